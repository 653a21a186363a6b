// Package notify forwards cart changes to the message broker.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/abgdnv/gomarketplace/internal/service"
	"github.com/abgdnv/gomarketplace/pkg/config"
	"github.com/abgdnv/gomarketplace/pkg/messaging"
	"github.com/abgdnv/gomarketplace/pkg/messaging/events"
	"github.com/cenkalti/backoff/v5"
)

// Notifier turns cart snapshots into CartUpdatedEvent messages.
// Handle never blocks the cart: when the buffer is full the oldest pending snapshot
// is discarded, every event carries the complete cart so the newest one supersedes it.
type Notifier struct {
	publisher messaging.Publisher
	retry     config.RetryConfig
	logger    *slog.Logger
	events    chan service.Snapshot
	now       func() time.Time
}

// NewNotifier creates a Notifier buffering up to buffer snapshots.
func NewNotifier(publisher messaging.Publisher, retry config.RetryConfig, buffer int, logger *slog.Logger) *Notifier {
	if buffer < 1 {
		buffer = 1
	}
	return &Notifier{
		publisher: publisher,
		retry:     retry,
		logger:    logger.With("component", "notifier"),
		events:    make(chan service.Snapshot, buffer),
		now:       time.Now,
	}
}

// Handle is a service.Subscriber.
func (n *Notifier) Handle(snapshot service.Snapshot) {
	for {
		select {
		case n.events <- snapshot:
			return
		default:
		}
		select {
		case dropped := <-n.events:
			n.logger.Debug("Superseded cart event dropped", "generation", dropped.Generation)
		default:
		}
	}
}

// Run publishes buffered snapshots until ctx is done.
func (n *Notifier) Run(ctx context.Context) error {
	n.logger.InfoContext(ctx, "Cart notifier started")
	for {
		select {
		case <-ctx.Done():
			n.logger.InfoContext(ctx, "Cart notifier stopped")
			return nil
		case snapshot := <-n.events:
			if err := n.publish(ctx, snapshot); err != nil {
				n.logger.ErrorContext(ctx, "Failed to publish cart event", "generation", snapshot.Generation, "error", err)
			}
		}
	}
}

func (n *Notifier) publish(ctx context.Context, snapshot service.Snapshot) error {
	event := toEvent(snapshot, n.now())

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = n.retry.InitialBackoff
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, n.publisher.Publish(ctx, event)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(n.retry.MaxAttempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			n.logger.WarnContext(ctx, "Publishing cart event failed, retrying", "generation", snapshot.Generation, "retry_in", next, "error", err)
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to publish %s event: %w", event.Subject(), err)
	}
	n.logger.DebugContext(ctx, "Cart event published", "generation", snapshot.Generation, "items", event.TotalItems)
	return nil
}

func toEvent(snapshot service.Snapshot, now time.Time) events.CartUpdatedEvent {
	items := make([]events.CartItem, 0, len(snapshot.Products))
	total := 0
	for _, p := range snapshot.Products {
		items = append(items, events.CartItem{
			ID:       p.ID,
			Title:    p.Title,
			ImageURL: p.ImageURL,
			Price:    p.Price,
			Quantity: p.Quantity,
		})
		total += p.Quantity
	}
	return events.CartUpdatedEvent{
		Generation: snapshot.Generation,
		Items:      items,
		TotalItems: total,
		UpdatedAt:  now.UTC(),
	}
}
