package publisher

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/jengzang/shuttle-backend-go/internal/models"
)

// SubjectPrefix is prepended to the run kind to form the event subject
const SubjectPrefix = "shuttle.insights"

// NATSPublisher publishes recommendation run events to NATS
type NATSPublisher struct {
	nc      *nats.Conn
	logger  *zap.Logger
	metrics PublisherMetrics
}

// PublisherMetrics is implemented by the metrics collector
type PublisherMetrics interface {
	EventPublishedInc()
	EventPublishErrInc()
	PublishObserve(d time.Duration)
	SetConnected(connected bool)
}

// NewNATSPublisher connects to NATS. m may be nil.
func NewNATSPublisher(url string, logger *zap.Logger, m PublisherMetrics) (*NATSPublisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	nc, err := nats.Connect(url,
		nats.Name("shuttle-insights"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if m != nil {
				m.SetConnected(false)
			}
			logger.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			if m != nil {
				m.SetConnected(true)
			}
			logger.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if m != nil {
				m.SetConnected(false)
			}
			logger.Info("nats closed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}
	if m != nil {
		m.SetConnected(true)
	}
	return &NATSPublisher{nc: nc, logger: logger, metrics: m}, nil
}

// Close drains pending messages and closes the connection
func (p *NATSPublisher) Close() {
	if p.nc != nil {
		p.nc.Drain()
		p.nc.Close()
	}
}

// RunMessage is the event emitted after every persisted run
type RunMessage struct {
	RunID          string    `json:"runId"`
	Kind           string    `json:"kind"`
	Source         string    `json:"source"`
	FallbackReason string    `json:"fallbackReason,omitempty"`
	Count          int       `json:"count"`
	GeneratedAt    time.Time `json:"generatedAt"`
}

// NewRunMessage builds the event for a run
func NewRunMessage(run *models.RecommendationRun) RunMessage {
	return RunMessage{
		RunID:          run.ID,
		Kind:           run.Kind,
		Source:         run.Source,
		FallbackReason: run.FallbackReason,
		Count:          run.ItemCount,
		GeneratedAt:    run.CreatedAt,
	}
}

// Subject returns the subject a run of the given kind is published on
func Subject(kind string) string {
	return SubjectPrefix + "." + subjectToken(kind)
}

// PublishRun publishes a run event on shuttle.insights.<kind>
func (p *NATSPublisher) PublishRun(run *models.RecommendationRun) error {
	subject := Subject(run.Kind)
	b, err := json.Marshal(NewRunMessage(run))
	if err != nil {
		return err
	}

	start := time.Now()
	err = p.nc.Publish(subject, b)
	if p.metrics != nil {
		p.metrics.PublishObserve(time.Since(start))
		if err != nil {
			p.metrics.EventPublishErrInc()
		} else {
			p.metrics.EventPublishedInc()
		}
	}
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", subject, err)
	}
	p.logger.Debug("published run event", zap.String("subject", subject), zap.String("run_id", run.ID))
	return nil
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// NATS token cannot contain spaces, '>', '*', or trailing '.'
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
