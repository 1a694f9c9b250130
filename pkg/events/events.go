// Package events publishes delivery outcomes to a message broker so other
// systems can follow what was sent without polling the record store.
package events

import (
	"context"
	"time"
)

// Event is one published fact. Data must be JSON serializable.
type Event struct {
	OccurredAt time.Time `json:"occurred_at"`
	Data       any       `json:"data"`
	Type       string    `json:"type"`
	Key        string    `json:"-"`
}

// Publisher delivers events to a broker.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Nop discards events. It is used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }
