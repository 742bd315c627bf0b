package publisher

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"shuttle-tracker/internal/geo"
	"shuttle-tracker/internal/logging"
	"shuttle-tracker/internal/network"
	"shuttle-tracker/internal/tracker"
)

// conn is the part of *nats.Conn the publisher uses.
type conn interface {
	Publish(subject string, data []byte) error
	Drain() error
	Close()
}

type NATSPublisher struct {
	nc          conn
	prefix      string
	logSubjects bool
	metrics     PublisherMetrics
	log         *slog.Logger
}

type PublisherMetrics interface {
	NATSPublishedInc()
	NATSPublishErrInc()
	PublishObserve(d time.Duration)
	NATSSetConnected(connected bool)
}

func NewNATSPublisher(url, subjectPrefix string, logSubjects bool, m PublisherMetrics, logger *slog.Logger) (*NATSPublisher, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	logger = logger.With(slog.String("component", "nats"))
	nc, err := nats.Connect(url,
		nats.Name("shuttle-tracker"),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			if err != nil {
				logging.LogWarn(logger, "nats disconnected", err)
			}
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
		return nil, err
	}
	if m != nil {
		m.NATSSetConnected(true)
	}
	return newPublisher(nc, subjectPrefix, logSubjects, m, logger), nil
}

func newPublisher(nc conn, prefix string, logSubjects bool, m PublisherMetrics, logger *slog.Logger) *NATSPublisher {
	if prefix = strings.Trim(prefix, ". "); prefix == "" {
		prefix = "vehicles"
	}
	return &NATSPublisher{nc: nc, prefix: prefix, logSubjects: logSubjects, metrics: m, log: logger}
}

func (p *NATSPublisher) Close() {
	if p.nc != nil {
		_ = p.nc.Drain()
		p.nc.Close()
	}
}

// PositionMessage is the payload published for every tracker update.
type PositionMessage struct {
	VehicleID   string              `json:"vehicleId"`
	Name        string              `json:"name,omitempty"`
	Timestamp   time.Time           `json:"timestamp"`
	Lat         float64             `json:"lat"`
	Lon         float64             `json:"lon"`
	Heading     geo.Octant          `json:"heading,omitempty"`
	Velocity    *float64            `json:"velocity,omitempty"`
	Direction   string              `json:"direction,omitempty"`
	Route       string              `json:"route,omitempty"`
	Orientation network.Orientation `json:"orientation"`
	TrackPoints int                 `json:"trackPoints"`
}

func messageFor(u tracker.Update) PositionMessage {
	return PositionMessage{
		VehicleID:   u.VehicleID,
		Name:        u.State.Name,
		Timestamp:   u.Timestamp,
		Lat:         u.State.Lat,
		Lon:         u.State.Lon,
		Heading:     u.State.Heading,
		Velocity:    u.State.Velocity,
		Direction:   u.State.Direction,
		Route:       u.Direction.Route.Name,
		Orientation: u.Direction.Orientation,
		TrackPoints: len(u.Track),
	}
}

func (p *NATSPublisher) Subject(vehicleID string) string {
	return fmt.Sprintf("%s.%s", p.prefix, subjectToken(vehicleID))
}

func (p *NATSPublisher) PublishPosition(msg PositionMessage) error {
	subject := p.Subject(msg.VehicleID)
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if p.logSubjects {
		p.log.Debug("nats publish", slog.String("subject", subject))
	}
	start := time.Now()
	err = p.nc.Publish(subject, b)
	if p.metrics != nil {
		p.metrics.PublishObserve(time.Since(start))
		if err != nil {
			p.metrics.NATSPublishErrInc()
		} else {
			p.metrics.NATSPublishedInc()
		}
	}
	return err
}

// Send implements tracker.Sink. Publish failures are logged and dropped.
func (p *NATSPublisher) Send(u tracker.Update) {
	if err := p.PublishPosition(messageFor(u)); err != nil {
		logging.LogWarn(p.log, "publish failed", err, slog.String("vehicle", u.VehicleID))
	}
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
