package insights

import (
	"context"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jengzang/shuttle-backend-go/internal/models"
)

// Source tells where an outcome came from
type Source string

const (
	SourceAI       Source = "ai"
	SourceFallback Source = "fallback"
)

// FallbackReason explains why an outcome did not come from the model
type FallbackReason string

const (
	ReasonNone          FallbackReason = ""
	ReasonAIDisabled    FallbackReason = "ai_disabled"
	ReasonNoRoutes      FallbackReason = "no_routes"
	ReasonRateLimited   FallbackReason = "rate_limited"
	ReasonUpstreamError FallbackReason = "upstream_error"
	ReasonUpstreamQuota FallbackReason = "upstream_quota"
	ReasonUnparseable   FallbackReason = "unparseable"
)

// ChatUnavailableNotice is returned for chat requests the model cannot answer
const ChatUnavailableNotice = "The AI assistant is temporarily unavailable. Please try again later or check the dashboard for current figures."

// Outcome is the result of one pipeline invocation. It always carries usable data.
type Outcome[T any] struct {
	Data           T              `json:"data"`
	Source         Source         `json:"source"`
	FallbackReason FallbackReason `json:"fallbackReason,omitempty"`
	GeneratedAt    time.Time      `json:"generatedAt"`
}

// Observer receives pipeline events; the metrics collector implements it
type Observer interface {
	ObserveOutcome(kind, source, reason string)
	ObserveGeneration(kind string, d time.Duration, err error)
}

// Pipeline sequences budget check, prompt, model call, parsing and fallback for each task kind.
// It holds no per-request state; the budget is the only shared mutable resource.
type Pipeline struct {
	gen      Generator
	budget   *DailyBudget
	fallback *Fallback
	logger   *zap.Logger
	observer Observer
	now      func() time.Time
	aggOpts  []AggregateOption
}

// Option customizes a Pipeline
type Option func(*Pipeline)

// WithGenerator sets the model client. A nil generator sends every request to the fallback.
func WithGenerator(gen Generator) Option {
	return func(p *Pipeline) { p.gen = gen }
}

// WithBudget sets the shared call budget
func WithBudget(b *DailyBudget) Option {
	return func(p *Pipeline) {
		if b != nil {
			p.budget = b
		}
	}
}

// WithFallback sets the fallback generator
func WithFallback(f *Fallback) Option {
	return func(p *Pipeline) {
		if f != nil {
			p.fallback = f
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithObserver registers an event observer
func WithObserver(o Observer) Option {
	return func(p *Pipeline) { p.observer = o }
}

// WithNow replaces the clock used for prompt dates and outcome timestamps
func WithNow(now func() time.Time) Option {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

// WithAggregateOptions sets the options used when aggregating snapshots
func WithAggregateOptions(opts ...AggregateOption) Option {
	return func(p *Pipeline) { p.aggOpts = opts }
}

// NewPipeline creates a pipeline
func NewPipeline(opts ...Option) *Pipeline {
	p := &Pipeline{
		budget:   NewDailyBudget(DefaultDailyLimit),
		fallback: NewFallback(),
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Budget returns the shared call budget
func (p *Pipeline) Budget() *DailyBudget {
	return p.budget
}

// Aggregate computes statistics for a snapshot with the pipeline's aggregation options
func (p *Pipeline) Aggregate(data *models.AnalyticsData) Stats {
	if data == nil {
		return Aggregate(nil, nil, p.aggOpts...)
	}
	opts := append([]AggregateOption{WithKnownLocations(data.Locations)}, p.aggOpts...)
	return Aggregate(data.BoardingRecords, data.Routes, opts...)
}

// PredictDemand forecasts passenger demand for every route in the snapshot
func (p *Pipeline) PredictDemand(ctx context.Context, data *models.AnalyticsData) Outcome[[]models.DemandPrediction] {
	data = orEmpty(data)
	s := p.Aggregate(data)
	return run(ctx, p, TaskDemandPredictions, data, s, "", ParsePredictions, func() []models.DemandPrediction {
		return p.fallback.DemandPredictions(data.Routes, s)
	})
}

// OptimizeSchedules proposes revised timetables for every route in the snapshot
func (p *Pipeline) OptimizeSchedules(ctx context.Context, data *models.AnalyticsData) Outcome[[]models.ScheduleOptimization] {
	data = orEmpty(data)
	s := p.Aggregate(data)
	return run(ctx, p, TaskScheduleOptimizations, data, s, "", ParseOptimizations, func() []models.ScheduleOptimization {
		return p.fallback.ScheduleOptimizations(data.Routes)
	})
}

// Chat answers a free-text question about the snapshot. Failures yield ChatUnavailableNotice.
func (p *Pipeline) Chat(ctx context.Context, data *models.AnalyticsData, question string) Outcome[string] {
	data = orEmpty(data)
	s := p.Aggregate(data)
	return run(ctx, p, TaskChat, data, s, question, ParseChatReply, func() string {
		return ChatUnavailableNotice
	})
}

func run[T any](
	ctx context.Context,
	p *Pipeline,
	kind TaskKind,
	data *models.AnalyticsData,
	s Stats,
	question string,
	parse func(string) (T, error),
	fallback func() T,
) Outcome[T] {
	reason := p.attempt(kind, data)
	if reason == ReasonNone {
		prompt := BuildPrompt(PromptInput{Kind: kind, Data: data, Stats: s, Question: question, Now: p.now()})

		start := time.Now()
		text, err := p.gen.Generate(ctx, prompt)
		if p.observer != nil {
			p.observer.ObserveGeneration(string(kind), time.Since(start), err)
		}

		if err != nil {
			reason = ClassifyError(err)
			p.logger.Warn("AI generation failed, using fallback",
				zap.String("kind", string(kind)),
				zap.Bool("quota", reason == ReasonUpstreamQuota),
				zap.Error(err))
		} else if parsed, perr := parse(text); perr != nil {
			reason = ReasonUnparseable
			p.logger.Warn("AI response rejected, using fallback",
				zap.String("kind", string(kind)),
				zap.Int("response_bytes", len(text)),
				zap.Error(perr))
		} else {
			p.logger.Debug("AI response accepted", zap.String("kind", string(kind)))
			return finish(p, kind, Outcome[T]{Data: parsed, Source: SourceAI})
		}
	}

	return finish(p, kind, Outcome[T]{Data: fallback(), Source: SourceFallback, FallbackReason: reason})
}

// attempt decides whether a model call may be made. It returns ReasonNone when the call is allowed.
func (p *Pipeline) attempt(kind TaskKind, data *models.AnalyticsData) FallbackReason {
	if kind != TaskChat && len(data.Routes) == 0 {
		return ReasonNoRoutes
	}
	if p.gen == nil {
		return ReasonAIDisabled
	}
	if !p.budget.TryAcquire() {
		p.logger.Warn("AI daily budget exhausted, using fallback",
			zap.String("kind", string(kind)),
			zap.Int("limit", p.budget.Snapshot().Limit))
		return ReasonRateLimited
	}
	return ReasonNone
}

func finish[T any](p *Pipeline, kind TaskKind, out Outcome[T]) Outcome[T] {
	out.GeneratedAt = p.now()
	if p.observer != nil {
		p.observer.ObserveOutcome(string(kind), string(out.Source), string(out.FallbackReason))
	}
	return out
}

func orEmpty(data *models.AnalyticsData) *models.AnalyticsData {
	if data == nil {
		return &models.AnalyticsData{}
	}
	return data
}

var (
	fenceLine  = regexp.MustCompile("(?m)^[ \t]*```.*$")
	lineMarker = regexp.MustCompile(`(?m)^[ \t]*(?:#{1,6}|>|[-*+])[ \t]+`)
	inlineCode = regexp.MustCompile("`([^`\n]+)`")
	boldMarker = regexp.MustCompile(`(^|[^\w*])\*\*([^*\s](?:[^*\n]*[^*\s])?)\*\*([^\w*]|$)`)
)

// stripMarkdown removes heading, quote and bullet markers at line starts, code fences,
// inline code ticks and bold wrapping. Symbols inside words and numbers are kept.
func stripMarkdown(text string) string {
	text = fenceLine.ReplaceAllString(text, "")
	text = lineMarker.ReplaceAllString(text, "")
	text = inlineCode.ReplaceAllString(text, "$1")
	// adjacent bold spans share a boundary byte, so repeat until stable
	for {
		next := boldMarker.ReplaceAllString(text, "${1}${2}${3}")
		if next == text {
			return text
		}
		text = next
	}
}

// ParseChatReply turns a model reply into plain text of at most ChatWordLimit words
func ParseChatReply(text string) (string, error) {
	words := strings.Fields(stripMarkdown(text))
	if len(words) == 0 {
		return "", ErrEmptyResponse
	}
	if len(words) > ChatWordLimit {
		words = words[:ChatWordLimit]
	}
	return strings.Join(words, " "), nil
}
