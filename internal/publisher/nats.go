package publisher

import (
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/you/subway/models"
)

type PublisherMetrics interface {
	NATSPublishedInc()
	NATSPublishErrInc()
	PublishObserve(d time.Duration)
	NATSSetConnected(connected bool)
}

// conn is the slice of *nats.Conn the publisher uses
type conn interface {
	Publish(subject string, data []byte) error
}

// NATSPublisher sends every line change to <prefix>.lines.<lineId>
type NATSPublisher struct {
	nc          conn
	raw         *nats.Conn
	prefix      string
	logSubjects bool
	metrics     PublisherMetrics
}

func NewNATSPublisher(url, prefix string, logSubjects bool, m PublisherMetrics) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("subway-registry"),
		nats.DisconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			log.Printf("nats disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(true)
			}
			log.Printf("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			log.Printf("nats closed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}
	if m != nil {
		m.NATSSetConnected(true)
	}
	p := newPublisher(nc, prefix, logSubjects, m)
	p.raw = nc
	return p, nil
}

func newPublisher(nc conn, prefix string, logSubjects bool, m PublisherMetrics) *NATSPublisher {
	prefix = strings.Trim(prefix, ". ")
	if prefix == "" {
		prefix = "subway"
	}
	return &NATSPublisher{nc: nc, prefix: prefix, logSubjects: logSubjects, metrics: m}
}

func (p *NATSPublisher) Close() {
	if p.raw != nil {
		p.raw.Drain()
		p.raw.Close()
	}
}

// LineEvent is the wire form of a line change
type LineEvent struct {
	ID            string             `json:"id"`
	Type          models.ChangeType  `json:"type"`
	LineID        int64              `json:"lineId"`
	LineName      string             `json:"lineName"`
	StationID     models.StationID   `json:"stationId,omitempty"`
	Stations      []models.StationID `json:"stations,omitempty"`
	TotalDistance int                `json:"totalDistance"`
	At            time.Time          `json:"at"`
}

func newLineEvent(c models.LineChange) LineEvent {
	return LineEvent{
		ID:            c.ID,
		Type:          c.Type,
		LineID:        c.LineID,
		LineName:      c.LineName,
		StationID:     c.StationID,
		Stations:      c.Stations,
		TotalDistance: c.TotalDistance,
		At:            c.At,
	}
}

// Subject returns the subject a change for lineID is published on
func (p *NATSPublisher) Subject(lineID int64) string {
	return fmt.Sprintf("%s.lines.%s", p.prefix, subjectToken(strconv.FormatInt(lineID, 10)))
}

func (p *NATSPublisher) PublishLineChange(change models.LineChange) error {
	subject := p.Subject(change.LineID)
	b, err := json.Marshal(newLineEvent(change))
	if err != nil {
		return err
	}
	if p.logSubjects {
		log.Printf("nats publish subject=%s type=%s", subject, change.Type)
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
