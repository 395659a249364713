// Package events publishes domain events after a transaction commits.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Type string

const (
	BranchForked          Type = "branch.forked"
	BranchDeleted         Type = "branch.deleted"
	BranchVoted           Type = "branch.voted"
	BranchUnvoted         Type = "branch.unvoted"
	BranchCanonChanged    Type = "branch.canon_changed"
	LinkRequestCreated    Type = "link_request.created"
	LinkRequestApproved   Type = "link_request.approved"
	LinkRequestRejected   Type = "link_request.rejected"
	ChapterPublished      Type = "chapter.published"
	PurchaseCreated       Type = "purchase.created"
	SubscriptionCreated   Type = "subscription.created"
	SubscriptionCancelled Type = "subscription.cancelled"
)

type Event struct {
	ID          string            `json:"id"`
	Type        Type              `json:"type"`
	AggregateID string            `json:"aggregate_id"`
	ActorID     string            `json:"actor_id,omitempty"`
	OccurredAt  time.Time         `json:"occurred_at"`
	Attributes  map[string]string `json:"attributes,omitempty"`
}

func New(t Type, aggregateID, actorID string, at time.Time, attrs map[string]string) Event {
	return Event{
		ID:          uuid.NewString(),
		Type:        t,
		AggregateID: aggregateID,
		ActorID:     actorID,
		OccurredAt:  at,
		Attributes:  attrs,
	}
}

type Publisher interface {
	Publish(ctx context.Context, evt Event) error
	Close() error
}

// PublishTimeout bounds how long Emit waits on the broker.
const PublishTimeout = 2 * time.Second

// Emit publishes evt and logs a failure instead of returning it. The state change
// the event describes has already committed, so a cancelled caller does not cancel
// the publish, but a slow broker cannot hold the caller past PublishTimeout.
func Emit(ctx context.Context, pub Publisher, logger *zap.Logger, evt Event) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), PublishTimeout)
	defer cancel()
	if err := pub.Publish(ctx, evt); err != nil {
		logger.Warn("failed to publish event",
			zap.String("event_type", string(evt.Type)),
			zap.String("aggregate_id", evt.AggregateID),
			zap.Error(err),
		)
	}
}

type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, evt Event) error {
	r.mu.Lock()
	r.events = append(r.events, evt)
	r.mu.Unlock()
	return nil
}

func (r *Recorder) Close() error { return nil }

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Types returns the recorded event types in publish order.
func (r *Recorder) Types() []Type {
	var out []Type
	for _, e := range r.Events() {
		out = append(out, e.Type)
	}
	return out
}
