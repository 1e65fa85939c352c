package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jengzang/shuttle-backend-go/internal/insights"
	"github.com/jengzang/shuttle-backend-go/internal/models"
	"github.com/jengzang/shuttle-backend-go/internal/stats"
)

// MaxQuestionLength bounds chat questions in characters
const MaxQuestionLength = 1000

var (
	ErrEmptyQuestion    = errors.New("question is required")
	ErrQuestionTooLong  = fmt.Errorf("question exceeds %d characters", MaxQuestionLength)
	ErrNoSnapshotSource = errors.New("no snapshot given and no repository configured")
)

// SnapshotLoader loads the current system snapshot
type SnapshotLoader interface {
	LoadSnapshot(ctx context.Context) (*models.AnalyticsData, error)
}

// RunStore persists recommendation runs
type RunStore interface {
	SaveRun(ctx context.Context, run *models.RecommendationRun) error
	ListRuns(ctx context.Context, kind string, limit int) ([]*models.RecommendationRun, error)
	GetRun(ctx context.Context, id string) (*models.RecommendationRun, error)
}

// RunPublisher announces persisted runs
type RunPublisher interface {
	PublishRun(run *models.RecommendationRun) error
}

// Result is a pipeline outcome together with the id of its persisted run
type Result[T any] struct {
	RunID string `json:"runId,omitempty"`
	insights.Outcome[T]
}

// Overview holds predictions and optimizations computed from the same snapshot
type Overview struct {
	Predictions   Result[[]models.DemandPrediction]     `json:"predictions"`
	Optimizations Result[[]models.ScheduleOptimization] `json:"optimizations"`
}

// StatsReport is the aggregated view served to dashboards
type StatsReport struct {
	insights.Stats
	Counters      models.SystemCounters `json:"counters"`
	PeakSlots     []stats.KeyCount      `json:"peakSlots"`
	TopRoutes     []stats.KeyCount      `json:"topRoutes"`
	DemandBalance float64               `json:"demandBalance"` // coefficient of variation of per-route demand
}

// InsightsService drives the pipeline for API and CLI callers
type InsightsService struct {
	pipeline  *insights.Pipeline
	loader    SnapshotLoader
	runs      RunStore
	publisher RunPublisher
	timeout   time.Duration
	logger    *zap.Logger
}

// Options configures an InsightsService. Nil collaborators disable the matching feature.
type Options struct {
	Loader    SnapshotLoader
	Runs      RunStore
	Publisher RunPublisher
	Timeout   time.Duration // applied to every pipeline call; zero means none
	Logger    *zap.Logger
}

// NewInsightsService creates a new insights service
func NewInsightsService(pipeline *insights.Pipeline, opts Options) *InsightsService {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InsightsService{
		pipeline:  pipeline,
		loader:    opts.Loader,
		runs:      opts.Runs,
		publisher: opts.Publisher,
		timeout:   opts.Timeout,
		logger:    logger,
	}
}

// Predictions runs demand forecasting. A nil snapshot is loaded from the repository.
func (s *InsightsService) Predictions(ctx context.Context, snapshot *models.AnalyticsData) (Result[[]models.DemandPrediction], error) {
	data, err := s.snapshot(ctx, snapshot)
	if err != nil {
		return Result[[]models.DemandPrediction]{}, err
	}
	return s.predict(ctx, data), nil
}

// Optimizations runs schedule optimization. A nil snapshot is loaded from the repository.
func (s *InsightsService) Optimizations(ctx context.Context, snapshot *models.AnalyticsData) (Result[[]models.ScheduleOptimization], error) {
	data, err := s.snapshot(ctx, snapshot)
	if err != nil {
		return Result[[]models.ScheduleOptimization]{}, err
	}
	return s.optimize(ctx, data), nil
}

// Overview computes predictions and optimizations concurrently from one snapshot
func (s *InsightsService) Overview(ctx context.Context, snapshot *models.AnalyticsData) (*Overview, error) {
	data, err := s.snapshot(ctx, snapshot)
	if err != nil {
		return nil, err
	}

	out := &Overview{}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		out.Predictions = s.predict(gctx, data)
		return nil
	})
	g.Go(func() error {
		out.Optimizations = s.optimize(gctx, data)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Chat answers a free-text question about the snapshot
func (s *InsightsService) Chat(ctx context.Context, question string, snapshot *models.AnalyticsData) (insights.Outcome[string], error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return insights.Outcome[string]{}, ErrEmptyQuestion
	}
	if utf8.RuneCountInString(question) > MaxQuestionLength {
		return insights.Outcome[string]{}, ErrQuestionTooLong
	}

	data, err := s.snapshot(ctx, snapshot)
	if err != nil {
		return insights.Outcome[string]{}, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.pipeline.Chat(ctx, data, question), nil
}

// Stats aggregates the snapshot without touching the model
func (s *InsightsService) Stats(ctx context.Context, snapshot *models.AnalyticsData) (*StatsReport, error) {
	data, err := s.snapshot(ctx, snapshot)
	if err != nil {
		return nil, err
	}

	agg := s.pipeline.Aggregate(data)
	perRoute := make([]float64, 0, len(data.Routes))
	for _, r := range data.Routes {
		perRoute = append(perRoute, float64(agg.RouteDemand[r.ID]))
	}

	return &StatsReport{
		Stats:         agg,
		Counters:      insights.Counters(data),
		PeakSlots:     stats.TopN(agg.TimeSlotDemand, 3),
		TopRoutes:     stats.TopN(agg.RouteDemand, 5),
		DemandBalance: stats.Round(stats.CoefficientOfVariation(perRoute), 3),
	}, nil
}

// Budget reports the model call budget
func (s *InsightsService) Budget() insights.BudgetState {
	return s.pipeline.Budget().Snapshot()
}

// Runs lists persisted runs, newest first
func (s *InsightsService) Runs(ctx context.Context, kind string, limit int) ([]*models.RecommendationRun, error) {
	if s.runs == nil {
		return []*models.RecommendationRun{}, nil
	}
	runs, err := s.runs.ListRuns(ctx, kind, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

// Run returns one persisted run
func (s *InsightsService) Run(ctx context.Context, id string) (*models.RecommendationRun, error) {
	if s.runs == nil {
		return nil, fmt.Errorf("run history is not configured")
	}
	return s.runs.GetRun(ctx, id)
}

func (s *InsightsService) predict(ctx context.Context, data *models.AnalyticsData) Result[[]models.DemandPrediction] {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	out := s.pipeline.PredictDemand(ctx, data)
	return Result[[]models.DemandPrediction]{
		RunID:   s.record(ctx, insights.TaskDemandPredictions, out.Source, out.FallbackReason, out.Data, len(out.Data), out.GeneratedAt),
		Outcome: out,
	}
}

func (s *InsightsService) optimize(ctx context.Context, data *models.AnalyticsData) Result[[]models.ScheduleOptimization] {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	out := s.pipeline.OptimizeSchedules(ctx, data)
	return Result[[]models.ScheduleOptimization]{
		RunID:   s.record(ctx, insights.TaskScheduleOptimizations, out.Source, out.FallbackReason, out.Data, len(out.Data), out.GeneratedAt),
		Outcome: out,
	}
}

// record persists and announces a run. Failures are logged and the run id is dropped.
func (s *InsightsService) record(ctx context.Context, kind insights.TaskKind, source insights.Source, reason insights.FallbackReason,
	data interface{}, count int, at time.Time) string {
	if s.runs == nil {
		return ""
	}

	payload, err := json.Marshal(data)
	if err != nil {
		s.logger.Error("failed to encode run payload", zap.String("kind", string(kind)), zap.Error(err))
		return ""
	}
	run := &models.RecommendationRun{
		Kind:           string(kind),
		Source:         string(source),
		FallbackReason: string(reason),
		ItemCount:      count,
		Payload:        payload,
		CreatedAt:      at,
	}
	// Persist even when the pipeline call used up the request deadline
	if err := s.runs.SaveRun(context.WithoutCancel(ctx), run); err != nil {
		s.logger.Error("failed to save run", zap.String("kind", string(kind)), zap.Error(err))
		return ""
	}

	if s.publisher != nil {
		if err := s.publisher.PublishRun(run); err != nil {
			s.logger.Warn("failed to publish run event", zap.String("run_id", run.ID), zap.Error(err))
		}
	}
	return run.ID
}

func (s *InsightsService) snapshot(ctx context.Context, snapshot *models.AnalyticsData) (*models.AnalyticsData, error) {
	if snapshot != nil {
		return snapshot, nil
	}
	if s.loader == nil {
		return nil, ErrNoSnapshotSource
	}
	data, err := s.loader.LoadSnapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	return data, nil
}

func (s *InsightsService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}
