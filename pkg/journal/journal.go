// Package journal keeps an append-only operator record of failover
// decisions, promotions, reattachments and bootstraps. It is never consulted
// to make decisions; failures to write it are logged and ignored by callers.
package journal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind classifies an event
type Kind string

const (
	KindFailoverDecision Kind = "failover_decision"
	KindPromotion        Kind = "promotion"
	KindReattach         Kind = "reattach"
	KindBootstrap        Kind = "bootstrap"
)

// Event is one journal record
type Event struct {
	ID      string            `json:"id"`
	Kind    Kind              `json:"kind"`
	Time    time.Time         `json:"time"`
	Node    string            `json:"node"`
	Outcome string            `json:"outcome"`
	Message string            `json:"message,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// Journal stores events
type Journal interface {
	Append(ctx context.Context, ev Event) error
	// List returns up to limit events, newest first. A limit <= 0 means all.
	List(ctx context.Context, limit int) ([]Event, error)
	Close() error
}

var (
	ErrClosed         = errors.New("journal is closed")
	ErrUnknownBackend = errors.New("unknown journal backend")
)

// NewEvent stamps an event with an id and the current time
func NewEvent(kind Kind, node, outcome, message string) Event {
	return Event{
		ID:      uuid.NewString(),
		Kind:    kind,
		Time:    time.Now().UTC(),
		Node:    node,
		Outcome: outcome,
		Message: message,
	}
}

// With returns a copy of ev carrying an extra detail
func (ev Event) With(key, value string) Event {
	details := make(map[string]string, len(ev.Details)+1)
	for k, v := range ev.Details {
		details[k] = v
	}
	details[key] = value
	ev.Details = details
	return ev
}

// prepare fills in missing id and time
func prepare(ev Event) Event {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}
	return ev
}

// sortKey orders events by time then id. The fixed-width timestamp keeps
// lexical and chronological order identical.
func sortKey(ev Event) string {
	return fmt.Sprintf("%s-%s", ev.Time.UTC().Format("20060102T150405.000000000Z"), ev.ID)
}

// Nop discards every event
type Nop struct{}

func (Nop) Append(context.Context, Event) error        { return nil }
func (Nop) List(context.Context, int) ([]Event, error) { return nil, nil }
func (Nop) Close() error                               { return nil }
