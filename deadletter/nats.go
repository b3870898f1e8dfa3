package deadletter

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
)

// DefaultSubject is the subject NATS sinks publish to when none is configured.
const DefaultSubject = "planlens.deadletter"

// NATSSink publishes each record to a NATS subject so an external collector
// can archive them. Delivery is core NATS (at most once), matching the
// best-effort persistence contract.
type NATSSink struct {
	conn    *nats.Conn
	subject string
	owned   bool
}

// NewNATSSink connects to the given NATS URL and publishes records to subject.
func NewNATSSink(url, subject string) (*NATSSink, error) {
	if url == "" {
		url = nats.DefaultURL
	}
	if subject == "" {
		subject = DefaultSubject
	}

	conn, err := nats.Connect(url, nats.Name("planlens-deadletter"))
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	return &NATSSink{conn: conn, subject: subject, owned: true}, nil
}

// NewNATSSinkWithConn wraps an existing connection. Close will not close it.
func NewNATSSinkWithConn(conn *nats.Conn, subject string) *NATSSink {
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATSSink{conn: conn, subject: subject}
}

// Close drains the connection if this sink owns it.
func (s *NATSSink) Close() error {
	if s.owned && s.conn != nil {
		return s.conn.Drain()
	}
	return nil
}

// Persist publishes the record as JSON.
func (s *NATSSink) Persist(_ context.Context, dl DeadLetter) error {
	data, err := json.Marshal(dl)
	if err != nil {
		return fmt.Errorf("marshal dead letter %s: %w", dl.ID, err)
	}
	if err := s.conn.Publish(s.subject, data); err != nil {
		return fmt.Errorf("publish dead letter %s: %w", dl.ID, err)
	}
	return nil
}
