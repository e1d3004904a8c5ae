// Package notify broadcasts change events to subscribers. Delivery is
// fire-and-forget: the request path never waits on or learns about failures.
package notify

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Event kinds published by the core.
const (
	EventBucketCreated = "bucket.created"
	EventBucketUpdated = "bucket.updated"
	EventBucketDeleted = "bucket.deleted"
	EventBucketExpired = "bucket.expired"
	EventFileCreated   = "file.created"
	EventFileUpdated   = "file.updated"
	EventFileDeleted   = "file.deleted"
)

// Event describes one change in a bucket.
type Event struct {
	Kind     string    `json:"kind"`
	BucketID string    `json:"bucket_id"`
	Payload  any       `json:"payload,omitempty"`
	At       time.Time `json:"at"`
}

// Notifier delivers events to the notification transport.
type Notifier interface {
	Publish(ctx context.Context, event Event) error
}

const dispatchTimeout = 5 * time.Second

// Dispatch publishes the event on a detached goroutine. The caller's context
// deadline does not apply; failures are logged at most once and dropped.
func Dispatch(ctx context.Context, n Notifier, kind, bucketID string, payload any) {
	if n == nil {
		return
	}
	event := Event{Kind: kind, BucketID: bucketID, Payload: payload, At: time.Now().UTC()}
	detached := context.WithoutCancel(ctx)
	go func() {
		ctx, cancel := context.WithTimeout(detached, dispatchTimeout)
		defer cancel()
		if err := n.Publish(ctx, event); err != nil {
			log.Warn().Err(err).Str("kind", kind).Str("bucket", bucketID).Msg("drop change notification")
		}
	}()
}

// Nop is a Notifier that discards all events.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
