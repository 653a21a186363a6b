// Package service provides the implementation of the cart business logic.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	carterrors "github.com/abgdnv/gomarketplace/internal/errors"
	"github.com/abgdnv/gomarketplace/internal/store"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// CartService defines the operations consumers use to read and change the cart.
type CartService interface {
	// Products returns a copy of the cart items in the order they were first added.
	Products() []CartItemDto

	// AddToCart appends item with quantity 1.
	// If an item with the same ID is already in the cart only its quantity is incremented.
	AddToCart(ctx context.Context, item CartItemCreateDto) ([]CartItemDto, error)

	// Increment raises the quantity of the item by one.
	// Returns ErrItemNotFound if no item exists with the given ID.
	Increment(ctx context.Context, id string) ([]CartItemDto, error)

	// Decrement lowers the quantity of the item by one, removing it when the quantity would reach zero.
	// Returns ErrItemNotFound if no item exists with the given ID.
	Decrement(ctx context.Context, id string) ([]CartItemDto, error)
}

var _ CartService = (*Service)(nil)

// CartItemCreateDto represents the data transfer object for adding a product to the cart.
type CartItemCreateDto struct {
	ID       string  `json:"id"        validate:"required,max=100"`
	Title    string  `json:"title"     validate:"required,max=200"`
	ImageURL string  `json:"image_url" validate:"omitempty,max=2048"`
	Price    float64 `json:"price"     validate:"min=0"`
}

// CartItemDto represents a cart line. It is also the element of the persisted snapshot.
type CartItemDto struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	ImageURL string  `json:"image_url"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

// Snapshot is what subscribers receive after every change of the cart.
type Snapshot struct {
	Generation uint64
	Products   []CartItemDto
}

// Subscriber is notified synchronously, in mutation order, after the cart changed.
// It must not call the mutating methods of the Service.
type Subscriber func(snapshot Snapshot)

// Service implements CartService. It owns the cart state, persists every change
// to the KVStore in the background and publishes the new state to subscribers.
type Service struct {
	kv           store.KVStore
	key          string
	writeTimeout time.Duration
	logger       *slog.Logger

	mu         sync.Mutex
	products   []CartItemDto
	generation uint64
	closed     bool

	// pubMu keeps notifications in the order the mutations were applied.
	pubMu     sync.Mutex
	subsMu    sync.RWMutex
	subs      map[uint64]Subscriber
	nextSubID uint64

	loadOnce sync.Once
	writer   *writer

	tracer          trace.Tracer
	mutations       metric.Int64Counter
	persistFailures metric.Int64Counter
}

// NewService creates a new cart service storing its snapshot under key in kv.
// Every background write is bounded by writeTimeout.
// The returned service runs a writer goroutine until Close is called.
func NewService(kv store.KVStore, key string, writeTimeout time.Duration, logger *slog.Logger) *Service {
	meter := otel.Meter("cart-service")
	mutations, err := meter.Int64Counter("cart_mutations", metric.WithDescription("Total number of applied cart mutations"))
	if err != nil {
		panic(fmt.Sprintf("failed to create cart_mutations counter: %v", err))
	}
	persistFailures, err := meter.Int64Counter("cart_persist_failures", metric.WithDescription("Total number of failed cart snapshot writes"))
	if err != nil {
		panic(fmt.Sprintf("failed to create cart_persist_failures counter: %v", err))
	}

	s := &Service{
		kv:              kv,
		key:             key,
		writeTimeout:    writeTimeout,
		logger:          logger.With("component", "cart"),
		products:        []CartItemDto{},
		subs:            make(map[uint64]Subscriber),
		tracer:          otel.Tracer("cart-service"),
		mutations:       mutations,
		persistFailures: persistFailures,
	}
	s.writer = newWriter(s.persist)
	go s.writer.run()
	return s
}

// Load restores the cart from the persisted snapshot. Only the first call reads the storage.
// A missing, unreadable or undecodable snapshot leaves the cart empty; the failure is only logged.
func (s *Service) Load(ctx context.Context) {
	s.loadOnce.Do(func() {
		s.load(ctx)
	})
}

func (s *Service) load(ctx context.Context) {
	ctx, span := s.tracer.Start(ctx, "CartService.Load")
	defer span.End()

	raw, found, err := s.kv.Get(ctx, s.key)
	if err != nil {
		span.RecordError(err)
		s.logger.WarnContext(ctx, "Failed to read saved cart, starting with an empty cart", "key", s.key, "error", err)
		return
	}
	if !found {
		s.logger.DebugContext(ctx, "No saved cart found", "key", s.key)
		return
	}
	products, err := decodeSnapshot(raw)
	if err != nil {
		span.RecordError(err)
		s.logger.WarnContext(ctx, "Failed to decode saved cart, starting with an empty cart", "key", s.key, "error", err)
		return
	}

	s.mu.Lock()
	s.products = products
	snapshot := Snapshot{Generation: s.generation, Products: slices.Clone(products)}
	s.pubMu.Lock()
	s.mu.Unlock()
	defer s.pubMu.Unlock()

	s.logger.InfoContext(ctx, "Saved cart restored", "items", len(products))
	s.notify(snapshot)
}

// Products returns a copy of the current cart items.
func (s *Service) Products() []CartItemDto {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.products)
}

// AddToCart adds a new item with quantity 1, or increments the existing item with the same ID.
// The other fields of an already present item are left untouched.
func (s *Service) AddToCart(ctx context.Context, item CartItemCreateDto) ([]CartItemDto, error) {
	ctx, span := s.tracer.Start(ctx, "CartService.AddToCart", trace.WithAttributes(attribute.String("cart.item_id", item.ID)))
	defer span.End()

	return s.mutate(ctx, span, "add", func(items []CartItemDto) ([]CartItemDto, error) {
		if idx := indexOf(items, item.ID); idx >= 0 {
			items[idx].Quantity++
			return items, nil
		}
		return append(items, CartItemDto{
			ID:       item.ID,
			Title:    item.Title,
			ImageURL: item.ImageURL,
			Price:    item.Price,
			Quantity: 1,
		}), nil
	})
}

// Increment raises the quantity of the item with the given ID by one.
func (s *Service) Increment(ctx context.Context, id string) ([]CartItemDto, error) {
	ctx, span := s.tracer.Start(ctx, "CartService.Increment", trace.WithAttributes(attribute.String("cart.item_id", id)))
	defer span.End()

	return s.mutate(ctx, span, "increment", func(items []CartItemDto) ([]CartItemDto, error) {
		idx := indexOf(items, id)
		if idx < 0 {
			return nil, fmt.Errorf("failed to increment item %s: %w", id, carterrors.ErrItemNotFound)
		}
		items[idx].Quantity++
		return items, nil
	})
}

// Decrement lowers the quantity of the item with the given ID by one.
// An item with quantity 1 is removed from the cart.
func (s *Service) Decrement(ctx context.Context, id string) ([]CartItemDto, error) {
	ctx, span := s.tracer.Start(ctx, "CartService.Decrement", trace.WithAttributes(attribute.String("cart.item_id", id)))
	defer span.End()

	return s.mutate(ctx, span, "decrement", func(items []CartItemDto) ([]CartItemDto, error) {
		idx := indexOf(items, id)
		if idx < 0 {
			return nil, fmt.Errorf("failed to decrement item %s: %w", id, carterrors.ErrItemNotFound)
		}
		if items[idx].Quantity <= 1 {
			return slices.Delete(items, idx, idx+1), nil
		}
		items[idx].Quantity--
		return items, nil
	})
}

// Subscribe registers fn to be called after every change of the cart.
// The returned function removes the subscription.
func (s *Service) Subscribe(fn Subscriber) (unsubscribe func()) {
	s.subsMu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subs[id] = fn
	s.subsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subsMu.Lock()
			delete(s.subs, id)
			s.subsMu.Unlock()
		})
	}
}

// Generation returns the number of mutations applied so far.
func (s *Service) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// PersistedGeneration returns the generation of the last snapshot successfully written to storage.
// It lags behind Generation while writes are pending or failing.
func (s *Service) PersistedGeneration() uint64 {
	return s.writer.persisted.Load()
}

// PendingWrites returns the number of snapshots waiting to be written.
func (s *Service) PendingWrites() int {
	return s.writer.pending()
}

// Close stops accepting mutations, waits for the pending writes to finish and stops the writer.
// Returns the context error if ctx is done before the queue is drained.
func (s *Service) Close(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		s.writer.close()
	}
	s.mu.Unlock()

	select {
	case <-s.writer.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("failed to drain pending cart writes: %w", ctx.Err())
	}
}

// mutate applies fn to a copy of the items, then enqueues the write of the result
// and publishes it. The caller does not wait for the write.
func (s *Service) mutate(ctx context.Context, span trace.Span, op string, fn func(items []CartItemDto) ([]CartItemDto, error)) ([]CartItemDto, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, carterrors.ErrServiceClosed
	}
	next, err := fn(slices.Clone(s.products))
	if err != nil {
		s.mu.Unlock()
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	s.generation++
	generation := s.generation
	if payload, err := json.Marshal(next); err != nil {
		// the in-memory state still advances, the next encodable state reconciles the storage
		s.logger.ErrorContext(ctx, "Failed to encode cart snapshot", "generation", generation, "error", err)
	} else {
		s.writer.enqueue(persistJob{generation: generation, payload: string(payload)})
	}
	s.products = next
	snapshot := Snapshot{Generation: generation, Products: slices.Clone(next)}

	s.pubMu.Lock()
	s.mu.Unlock()
	defer s.pubMu.Unlock()

	s.mutations.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
	span.SetAttributes(attribute.Int64("cart.generation", int64(generation)))
	s.notify(snapshot)
	return slices.Clone(next), nil
}

// notify calls every subscriber with its own copy of the snapshot. Must be called with pubMu held.
func (s *Service) notify(snapshot Snapshot) {
	s.subsMu.RLock()
	subs := make([]Subscriber, 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.subsMu.RUnlock()

	for _, fn := range subs {
		fn(Snapshot{Generation: snapshot.Generation, Products: slices.Clone(snapshot.Products)})
	}
}

// persist writes one snapshot. Failures are logged and counted, never returned to the caller of the mutation.
func (s *Service) persist(job persistJob) {
	ctx, cancel := context.WithTimeout(context.Background(), s.writeTimeout)
	defer cancel()

	if err := s.kv.Set(ctx, s.key, job.payload); err != nil {
		s.persistFailures.Add(ctx, 1)
		s.logger.WarnContext(ctx, "Failed to persist cart snapshot", "generation", job.generation, "key", s.key, "error", err)
		return
	}
	s.writer.persisted.Store(job.generation)
}

// indexOf returns the index of the first item with the given ID, or -1.
func indexOf(items []CartItemDto, id string) int {
	return slices.IndexFunc(items, func(item CartItemDto) bool {
		return item.ID == id
	})
}

// decodeSnapshot parses a persisted snapshot. Items with a non-positive quantity
// are dropped and only the first item of a duplicated ID is kept.
func decodeSnapshot(raw string) ([]CartItemDto, error) {
	var decoded []CartItemDto
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cart snapshot: %w", err)
	}
	products := make([]CartItemDto, 0, len(decoded))
	for _, item := range decoded {
		if item.Quantity < 1 || indexOf(products, item.ID) >= 0 {
			continue
		}
		products = append(products, item)
	}
	return products, nil
}
