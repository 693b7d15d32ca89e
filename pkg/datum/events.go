package datum

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// ChangeSubscription is an active Pub/Sub subscription to committed change
// request events. Caller must call Close() when done to clean up resources.
type ChangeSubscription struct {
	events <-chan *ChangeEvent
	errors <-chan error
	cancel func()
	once   sync.Once
}

// Events returns the channel of change events.
// The channel is closed when the subscription is closed or the context is
// cancelled.
func (s *ChangeSubscription) Events() <-chan *ChangeEvent {
	return s.events
}

// Errors returns the channel of subscription errors. Errors are non-fatal
// (malformed payloads are skipped); the subscription continues after them.
func (s *ChangeSubscription) Errors() <-chan error {
	return s.errors
}

// Close stops the subscription and cleans up resources. Implements io.Closer.
// Safe to call multiple times.
func (s *ChangeSubscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// ArtifactSubscription is an active Pub/Sub subscription to artifact state
// change events. Caller must call Close() when done.
type ArtifactSubscription struct {
	events <-chan *ArtifactEvent
	errors <-chan error
	cancel func()
	once   sync.Once
}

// Events returns the channel of artifact events.
func (s *ArtifactSubscription) Events() <-chan *ArtifactEvent {
	return s.events
}

// Errors returns the channel of subscription errors.
func (s *ArtifactSubscription) Errors() <-chan error {
	return s.errors
}

// Close stops the subscription and cleans up resources. Implements io.Closer.
func (s *ArtifactSubscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// SubscribeChangeEvents subscribes to committed change request events for
// this instance. Caller must call Close() when done; context cancellation
// also stops the subscription.
//
// Events are delivered on a buffered channel (size 10). Redis Pub/Sub is
// at-most-once: a subscriber that needs a complete view reconciles from
// store state rather than relying on every event arriving.
func (c *Client) SubscribeChangeEvents(ctx context.Context) (*ChangeSubscription, error) {
	pubsub := c.rdb.Subscribe(ctx, ChangeEventsChannel(c.instanceName))

	eventsChan := make(chan *ChangeEvent, 10)
	errorsChan := make(chan error, 10)
	subCtx, cancelFunc := context.WithCancel(ctx)

	go func() {
		defer close(eventsChan)
		defer close(errorsChan)
		defer pubsub.Close()

		ch := pubsub.Channel()

		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				var event ChangeEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					select {
					case errorsChan <- fmt.Errorf("failed to unmarshal change event: %w", err):
					case <-subCtx.Done():
						return
					}
					continue
				}

				select {
				case eventsChan <- &event:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return &ChangeSubscription{
		events: eventsChan,
		errors: errorsChan,
		cancel: cancelFunc,
	}, nil
}

// SubscribeArtifactEvents subscribes to artifact state change events for
// this instance. Caller must call Close() when done; context cancellation
// also stops the subscription.
func (c *Client) SubscribeArtifactEvents(ctx context.Context) (*ArtifactSubscription, error) {
	pubsub := c.rdb.Subscribe(ctx, ArtifactEventsChannel(c.instanceName))

	eventsChan := make(chan *ArtifactEvent, 10)
	errorsChan := make(chan error, 10)
	subCtx, cancelFunc := context.WithCancel(ctx)

	go func() {
		defer close(eventsChan)
		defer close(errorsChan)
		defer pubsub.Close()

		ch := pubsub.Channel()

		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				var event ArtifactEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					select {
					case errorsChan <- fmt.Errorf("failed to unmarshal artifact event: %w", err):
					case <-subCtx.Done():
						return
					}
					continue
				}

				select {
				case eventsChan <- &event:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return &ArtifactSubscription{
		events: eventsChan,
		errors: errorsChan,
		cancel: cancelFunc,
	}, nil
}
