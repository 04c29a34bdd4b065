package events

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// DefaultSubject is the subject prefix events are published under.
const DefaultSubject = "autopilot.events"

// publisher is the part of *nats.Conn the sink uses.
type publisher interface {
	Publish(subject string, data []byte) error
}

// NATSSink publishes each event as JSON to "<prefix>.<type>", with the
// type's ":" replaced by ".", e.g. autopilot.events.subtask.success.
type NATSSink struct {
	pub    publisher
	prefix string
	logger *zap.Logger
	conn   *nats.Conn
}

// ConnectNATS dials url and returns a sink publishing under prefix.
func ConnectNATS(url, prefix string, logger *zap.Logger) (*NATSSink, error) {
	conn, err := nats.Connect(url,
		nats.Name("autopilot"),
		nats.MaxReconnects(5),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	s := newNATSSink(conn, prefix, logger)
	s.conn = conn
	return s, nil
}

func newNATSSink(pub publisher, prefix string, logger *zap.Logger) *NATSSink {
	if prefix == "" {
		prefix = DefaultSubject
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NATSSink{pub: pub, prefix: strings.TrimSuffix(prefix, "."), logger: logger}
}

// Subject returns the subject an event type is published on.
func (s *NATSSink) Subject(t Type) string {
	return s.prefix + "." + strings.ReplaceAll(string(t), ":", ".")
}

// Emit publishes the event. Failures are logged, never returned.
func (s *NATSSink) Emit(e Event) {
	data, err := json.Marshal(e)
	if err != nil {
		s.logger.Warn("encode event", zap.String("type", string(e.Type)), zap.Error(err))
		return
	}
	if err := s.pub.Publish(s.Subject(e.Type), data); err != nil {
		s.logger.Warn("publish event", zap.String("type", string(e.Type)), zap.Error(err))
	}
}

// Close flushes and closes the connection if the sink owns one.
func (s *NATSSink) Close() {
	if s.conn == nil {
		return
	}
	if err := s.conn.Flush(); err != nil {
		s.logger.Debug("flush nats", zap.Error(err))
	}
	s.conn.Close()
}
