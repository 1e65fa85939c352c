package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/jengzang/shuttle-backend-go/internal/insights"
	"github.com/jengzang/shuttle-backend-go/internal/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var testNow = time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)

type fakeLoader struct {
	data  *models.AnalyticsData
	err   error
	calls int
}

func (l *fakeLoader) LoadSnapshot(context.Context) (*models.AnalyticsData, error) {
	l.calls++
	return l.data, l.err
}

type memoryRuns struct {
	mu   sync.Mutex
	runs []*models.RecommendationRun
	err  error
}

func (m *memoryRuns) SaveRun(_ context.Context, run *models.RecommendationRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	run.ID = fmt.Sprintf("run-%d", len(m.runs)+1)
	m.runs = append(m.runs, run)
	return nil
}

func (m *memoryRuns) ListRuns(_ context.Context, kind string, _ int) ([]*models.RecommendationRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.RecommendationRun
	for _, r := range m.runs {
		if kind == "" || r.Kind == kind {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memoryRuns) GetRun(_ context.Context, id string) (*models.RecommendationRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.runs {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, errors.New("not found")
}

type fakePublisher struct {
	mu       sync.Mutex
	subjects []string
	err      error
}

func (p *fakePublisher) PublishRun(run *models.RecommendationRun) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subjects = append(p.subjects, run.Kind)
	return p.err
}

// blockingGenerator waits for the context to end
type blockingGenerator struct{}

func (blockingGenerator) Generate(ctx context.Context, _ string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

type replyGenerator string

func (g replyGenerator) Generate(context.Context, string) (string, error) { return string(g), nil }

func snapshot() *models.AnalyticsData {
	return &models.AnalyticsData{
		Routes: []models.RouteDescriptor{
			{ID: "R001", Name: "Main Campus Loop", Schedule: []string{"07:30", "08:00"}},
			{ID: "R002", Name: "Hostel Express", Schedule: []string{"07:00"}},
		},
		BoardingRecords: []models.UsageRecord{
			{ID: "1", RouteID: "R001", Timestamp: "2026-10-13T07:40:00Z"},
			{ID: "2", RouteID: "R001", Timestamp: "2026-10-13T07:50:00Z"},
			{ID: "3", RouteID: "R002", Timestamp: "2026-10-13T17:10:00Z"},
			{ID: "4", RouteID: "R404", Timestamp: "garbage"},
		},
	}
}

func newPipeline(opts ...insights.Option) *insights.Pipeline {
	base := []insights.Option{
		insights.WithFallback(insights.NewFallback(insights.WithSeed(7), insights.WithFallbackClock(func() time.Time { return testNow }))),
		insights.WithNow(func() time.Time { return testNow }),
	}
	return insights.NewPipeline(append(base, opts...)...)
}

func TestInsightsService_PredictionsPersistAndPublish(t *testing.T) {
	runs := &memoryRuns{}
	pub := &fakePublisher{}
	loader := &fakeLoader{data: snapshot()}
	svc := NewInsightsService(newPipeline(), Options{Loader: loader, Runs: runs, Publisher: pub})

	res, err := svc.Predictions(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, 1, loader.calls)
	assert.Equal(t, insights.SourceFallback, res.Source)
	assert.Equal(t, insights.ReasonAIDisabled, res.FallbackReason)
	assert.Len(t, res.Data, 4)
	assert.Equal(t, "run-1", res.RunID)

	require.Len(t, runs.runs, 1)
	saved := runs.runs[0]
	assert.Equal(t, "demand-predictions", saved.Kind)
	assert.Equal(t, "fallback", saved.Source)
	assert.Equal(t, "ai_disabled", saved.FallbackReason)
	assert.Equal(t, 4, saved.ItemCount)
	assert.Equal(t, testNow, saved.CreatedAt)
	assert.Contains(t, string(saved.Payload), `"routeId":"R001"`)

	assert.Equal(t, []string{"demand-predictions"}, pub.subjects)
}

func TestInsightsService_GivenSnapshotSkipsLoader(t *testing.T) {
	loader := &fakeLoader{err: errors.New("db down")}
	svc := NewInsightsService(newPipeline(), Options{Loader: loader})

	res, err := svc.Optimizations(context.Background(), snapshot())
	require.NoError(t, err)
	assert.Zero(t, loader.calls)
	assert.Len(t, res.Data, 2)
	assert.Empty(t, res.RunID)

	_, err = svc.Optimizations(context.Background(), nil)
	assert.ErrorContains(t, err, "db down")

	_, err = NewInsightsService(newPipeline(), Options{}).Predictions(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoSnapshotSource)
}

func TestInsightsService_PersistenceFailuresAreSwallowed(t *testing.T) {
	runs := &memoryRuns{err: errors.New("disk full")}
	pub := &fakePublisher{}
	svc := NewInsightsService(newPipeline(), Options{Runs: runs, Publisher: pub})

	res, err := svc.Predictions(context.Background(), snapshot())
	require.NoError(t, err)
	assert.NotEmpty(t, res.Data)
	assert.Empty(t, res.RunID)
	assert.Empty(t, pub.subjects)

	runs.err = nil
	pub.err = errors.New("nats down")
	res, err = svc.Predictions(context.Background(), snapshot())
	require.NoError(t, err)
	assert.Equal(t, "run-1", res.RunID)
}

func TestInsightsService_Timeout(t *testing.T) {
	svc := NewInsightsService(newPipeline(insights.WithGenerator(blockingGenerator{})), Options{Timeout: 20 * time.Millisecond})

	start := time.Now()
	res, err := svc.Predictions(context.Background(), snapshot())
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, insights.ReasonUpstreamError, res.FallbackReason)
	assert.NotEmpty(t, res.Data)
}

func TestInsightsService_Overview(t *testing.T) {
	runs := &memoryRuns{}
	loader := &fakeLoader{data: snapshot()}
	svc := NewInsightsService(newPipeline(), Options{Loader: loader, Runs: runs})

	ov, err := svc.Overview(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, loader.calls)
	assert.Len(t, ov.Predictions.Data, 4)
	assert.Len(t, ov.Optimizations.Data, 2)
	assert.NotEqual(t, ov.Predictions.RunID, ov.Optimizations.RunID)
	assert.Len(t, runs.runs, 2)
}

func TestInsightsService_Chat(t *testing.T) {
	svc := NewInsightsService(newPipeline(insights.WithGenerator(replyGenerator("**Two** routes are active."))), Options{})

	_, err := svc.Chat(context.Background(), "   ", snapshot())
	assert.ErrorIs(t, err, ErrEmptyQuestion)

	long := make([]rune, MaxQuestionLength+1)
	for i := range long {
		long[i] = 'é'
	}
	_, err = svc.Chat(context.Background(), string(long), snapshot())
	assert.ErrorIs(t, err, ErrQuestionTooLong)

	out, err := svc.Chat(context.Background(), "How many routes are active?", snapshot())
	require.NoError(t, err)
	assert.Equal(t, insights.SourceAI, out.Source)
	assert.Equal(t, "Two routes are active.", out.Data)
	assert.Equal(t, 1, svc.Budget().Used)
}

func TestInsightsService_Stats(t *testing.T) {
	svc := NewInsightsService(newPipeline(), Options{})

	report, err := svc.Stats(context.Background(), snapshot())
	require.NoError(t, err)

	assert.Equal(t, 2, report.RouteDemand["R001"])
	assert.Equal(t, 1, report.RouteDemand[insights.UnknownRoute])
	assert.Equal(t, 4, report.Counters.TotalBoardings)
	require.NotEmpty(t, report.PeakSlots)
	assert.Equal(t, "07:00-08:00", report.PeakSlots[0].Key)
	assert.Equal(t, 2, report.PeakSlots[0].Count)
	assert.Equal(t, "R001", report.TopRoutes[0].Key)
	assert.Greater(t, report.DemandBalance, 0.0)
}

func TestInsightsService_Runs(t *testing.T) {
	runs := &memoryRuns{}
	svc := NewInsightsService(newPipeline(), Options{Runs: runs})
	res, err := svc.Optimizations(context.Background(), snapshot())
	require.NoError(t, err)

	list, err := svc.Runs(context.Background(), "schedule-optimizations", 10)
	require.NoError(t, err)
	require.Len(t, list, 1)

	run, err := svc.Run(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.Equal(t, 2, run.ItemCount)

	empty, err := NewInsightsService(newPipeline(), Options{}).Runs(context.Background(), "", 0)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
