package cluster

import (
	"time"

	"github.com/google/uuid"
)

// FailoverDecision records that a node believed primary was declared down.
// It lives for the duration of one failover action.
type FailoverDecision struct {
	ID               string
	DetectedAt       time.Time
	FailedNode       Node
	PromotedNode     Node
	RetriesExhausted int
}

// NewFailoverDecision stamps a decision with a fresh id
func NewFailoverDecision(failed, promoted Node, retries int, at time.Time) FailoverDecision {
	return FailoverDecision{
		ID:               uuid.NewString(),
		DetectedAt:       at,
		FailedNode:       failed,
		PromotedNode:     promoted,
		RetriesExhausted: retries,
	}
}

// ReattachRequest is a one-shot, delayed admission of a node back into the pool.
type ReattachRequest struct {
	ID          string
	Node        Node
	ScheduledAt time.Time
	Delay       time.Duration
}

// NewReattachRequest schedules node for reattachment delay after at
func NewReattachRequest(node Node, delay time.Duration, at time.Time) ReattachRequest {
	return ReattachRequest{
		ID:          uuid.NewString(),
		Node:        node,
		ScheduledAt: at,
		Delay:       delay,
	}
}

// Due is the earliest instant the request may fire
func (r ReattachRequest) Due() time.Time {
	return r.ScheduledAt.Add(r.Delay)
}
