package publisher

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kusalkrp/bus-tracking-api/internal/models"
	"github.com/nats-io/nats.go"
)

// PublisherMetrics observes publishing
type PublisherMetrics interface {
	NATSPublishedInc()
	NATSPublishErrInc()
	PublishObserve(d time.Duration)
	NATSSetConnected(connected bool)
}

type conn interface {
	Publish(subject string, data []byte) error
}

// NATSPublisher fans location fixes out on <prefix>.<route>.<trip> subjects
type NATSPublisher struct {
	nc      *nats.Conn
	pub     conn
	prefix  string
	metrics PublisherMetrics
	logger  *slog.Logger
}

// NewNATSPublisher connects to url. m may be nil.
func NewNATSPublisher(url, prefix string, m PublisherMetrics, logger *slog.Logger) (*NATSPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	nc, err := nats.Connect(url,
		nats.Name("bus-tracking-api"),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			logger.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(true)
			}
			logger.Info("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			logger.Info("nats closed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	if m != nil {
		m.NATSSetConnected(true)
	}
	p := newPublisher(nc, prefix, m, logger)
	p.nc = nc
	return p, nil
}

func newPublisher(c conn, prefix string, m PublisherMetrics, logger *slog.Logger) *NATSPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSPublisher{pub: c, prefix: strings.TrimSuffix(prefix, "."), metrics: m, logger: logger}
}

// Close drains pending messages and closes the connection
func (p *NATSPublisher) Close() {
	if p.nc != nil {
		p.nc.Drain()
		p.nc.Close()
	}
}

// Subject returns the subject a fix of tripID on routeNumber is published on
func (p *NATSPublisher) Subject(routeNumber, tripID string) string {
	subject := fmt.Sprintf("%s.%s", subjectToken(routeNumber), subjectToken(tripID))
	if p.prefix == "" {
		return subject
	}
	return p.prefix + "." + subject
}

// PublishFix publishes fix as JSON. Delivery is fire-and-forget.
func (p *NATSPublisher) PublishFix(routeNumber string, fix *models.LocationFix) error {
	subject := p.Subject(routeNumber, fix.TripID)
	b, err := json.Marshal(fix)
	if err != nil {
		return fmt.Errorf("failed to marshal location: %w", err)
	}

	p.logger.Debug("nats publish", "subject", subject)
	start := time.Now()
	err = p.pub.Publish(subject, b)
	if p.metrics != nil {
		p.metrics.PublishObserve(time.Since(start))
		if err != nil {
			p.metrics.NATSPublishErrInc()
		} else {
			p.metrics.NATSPublishedInc()
		}
	}
	if err != nil {
		return fmt.Errorf("failed to publish on %s: %w", subject, err)
	}
	return nil
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// NATS token cannot contain spaces, '>', '*', or '.'
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
