package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, c *Collector) string {
	t.Helper()
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestCollector(t *testing.T) {
	c := NewCollector(45)
	used := 3
	c.TrackBudgetUsage(func() int { return used })
	c.TrackBudgetUsage(func() int { return 99 })

	c.ObserveOutcome("chat", "fallback", "upstream_quota")
	c.ObserveOutcome("chat", "ai", "")
	c.ObserveGeneration("chat", 120*time.Millisecond, errors.New("429"))
	c.ObserveRequest("POST", "/api/v1/insights/chat", 200, 5*time.Millisecond)
	c.ObserveRequest("GET", "", 404, time.Millisecond)
	c.EventPublishedInc()
	c.SetConnected(true)

	out := scrape(t, c)
	assert.Contains(t, out, `insights_outcomes_total{kind="chat",reason="upstream_quota",source="fallback"} 1`)
	assert.Contains(t, out, `insights_outcomes_total{kind="chat",reason="none",source="ai"} 1`)
	assert.Contains(t, out, `insights_generation_errors_total{kind="chat"} 1`)
	assert.Contains(t, out, `insights_generation_duration_seconds_count{kind="chat"} 1`)
	assert.Contains(t, out, `http_requests_total{method="POST",route="/api/v1/insights/chat",status="200"} 1`)
	assert.Contains(t, out, `http_requests_total{method="GET",route="unmatched",status="404"} 1`)
	assert.Contains(t, out, "insights_events_published_total 1")
	assert.Contains(t, out, "insights_nats_connected 1")
	assert.Contains(t, out, "insights_ai_budget_limit 45")
	assert.Contains(t, out, "insights_ai_budget_used 3")
}
