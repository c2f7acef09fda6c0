// Package store holds the in-memory cart for a single session and keeps a
// persisted mirror of it in sync.
package store

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/utafrali/agricoventas/internal/domain"
)

// Outcome is the result of an add attempt.
type Outcome int

const (
	// OutcomeInvalid means the candidate failed validation.
	OutcomeInvalid Outcome = iota
	// OutcomeOutOfStock means the candidate had no available stock.
	OutcomeOutOfStock
	// OutcomeStockCeiling means the line is already at its stock ceiling.
	OutcomeStockCeiling
	// OutcomeAdded means a new line was appended.
	OutcomeAdded
	// OutcomeIncremented means an existing line grew by one unit.
	OutcomeIncremented
)

// Changed reports whether the outcome mutated the cart.
func (o Outcome) Changed() bool {
	return o == OutcomeAdded || o == OutcomeIncremented
}

func (o Outcome) String() string {
	switch o {
	case OutcomeAdded:
		return "added"
	case OutcomeIncremented:
		return "incremented"
	case OutcomeOutOfStock:
		return "out_of_stock"
	case OutcomeStockCeiling:
		return "stock_ceiling"
	default:
		return "invalid"
	}
}

// Store is the authoritative cart for one session. Every mutation writes the
// full cart back to Storage. It is safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	lines    []domain.CartLine
	degraded bool

	storage     Storage
	signal      SessionSignal
	logger      *slog.Logger
	unsubscribe func()
}

// New builds a store and hydrates it. The persisted cart is loaded only when
// the session signal is active and the payload decodes cleanly; any other
// case starts empty. Hydration never fails.
func New(ctx context.Context, storage Storage, signal SessionSignal, logger *slog.Logger) *Store {
	s := &Store{
		lines:   []domain.CartLine{},
		storage: storage,
		signal:  signal,
		logger:  logger,
	}
	s.lines = s.hydrate(ctx)
	s.unsubscribe = signal.Subscribe(s.onSession)
	return s
}

func (s *Store) hydrate(ctx context.Context) []domain.CartLine {
	if !s.signal.Active(ctx) {
		cartHydrationsTotal.WithLabelValues("no_session").Inc()
		return []domain.CartLine{}
	}

	raw, ok, err := s.storage.Get(ctx, StorageKey)
	if err != nil {
		s.logger.WarnContext(ctx, "cart storage read failed, starting empty",
			slog.String("error", err.Error()),
		)
		cartHydrationsTotal.WithLabelValues("read_error").Inc()
		return []domain.CartLine{}
	}
	if !ok {
		cartHydrationsTotal.WithLabelValues("empty").Inc()
		return []domain.CartLine{}
	}

	// A corrupt or unknown payload is discarded on purpose: the cart starts
	// empty and the next mutation overwrites it.
	lines, err := Decode([]byte(raw))
	if err != nil {
		s.logger.WarnContext(ctx, "discarding persisted cart",
			slog.String("error", err.Error()),
			slog.Bool("unsupported_version", errors.Is(err, ErrUnsupportedVersion)),
		)
		cartHydrationsTotal.WithLabelValues("discarded").Inc()
		return []domain.CartLine{}
	}

	cartHydrationsTotal.WithLabelValues("loaded").Inc()
	return lines
}

// onSession clears the in-memory cart when the session ends. The persisted
// payload is kept so the cart is restored on the next login.
func (s *Store) onSession(active bool) {
	if active {
		return
	}
	s.mu.Lock()
	s.lines = []domain.CartLine{}
	s.mu.Unlock()
	s.logger.Info("session ended, cart cleared from memory")
}

// Add tries to put one unit of the candidate in the cart.
func (s *Store) Add(ctx context.Context, in domain.LineInput) Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	outcome := s.add(in)
	cartMutationsTotal.WithLabelValues("add", outcome.String()).Inc()
	if outcome.Changed() {
		s.persist(ctx)
	}
	return outcome
}

func (s *Store) add(in domain.LineInput) Outcome {
	if err := in.Validate(); err != nil {
		return OutcomeInvalid
	}
	if !in.Stock.Available() {
		return OutcomeOutOfStock
	}

	if i := domain.FindLine(s.lines, in.ProductID); i >= 0 {
		next := s.lines[i].Quantity + 1
		if !in.Stock.Allows(next) {
			return OutcomeStockCeiling
		}
		s.lines[i].Quantity = next
		s.lines[i].Stock = in.Stock
		return OutcomeIncremented
	}

	s.lines = append(s.lines, in.NewLine())
	return OutcomeAdded
}

// AddItem adds one unit of the candidate and reports whether the cart changed.
// It returns false when the product is out of stock, the stock ceiling is
// reached, or the candidate is invalid.
func (s *Store) AddItem(ctx context.Context, in domain.LineInput) bool {
	return s.Add(ctx, in).Changed()
}

// RemoveItem drops the line for productID. Missing ids are ignored.
func (s *Store) RemoveItem(ctx context.Context, productID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := domain.FindLine(s.lines, productID); i >= 0 {
		s.lines = append(s.lines[:i], s.lines[i+1:]...)
	}
	cartMutationsTotal.WithLabelValues("remove", "ok").Inc()
	s.persist(ctx)
}

// SetQuantity sets the quantity of the line for productID, clamped to
// [1, stock]. Out-of-range requests are clamped rather than rejected.
// Missing ids are ignored.
func (s *Store) SetQuantity(ctx context.Context, productID string, quantity int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := domain.FindLine(s.lines, productID)
	if i < 0 {
		return
	}
	line := &s.lines[i]
	line.Quantity = line.Stock.Clamp(quantity)
	outcome := "ok"
	if line.Quantity != quantity {
		outcome = "clamped"
	}
	cartMutationsTotal.WithLabelValues("set_quantity", outcome).Inc()
	s.persist(ctx)
}

// Clear empties the cart.
func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lines = []domain.CartLine{}
	cartMutationsTotal.WithLabelValues("clear", "ok").Inc()
	s.persist(ctx)
}

// persist writes the full cart. Write failures leave the store usable in
// memory; they are logged and reported by Degraded. Callers hold s.mu.
func (s *Store) persist(ctx context.Context) {
	data, err := Encode(s.lines)
	if err == nil {
		err = s.storage.Set(ctx, StorageKey, string(data))
	}
	if err != nil {
		if !s.degraded {
			s.logger.WarnContext(ctx, "cart persistence failed, continuing in memory",
				slog.String("error", err.Error()),
			)
		}
		s.degraded = true
		cartPersistFailuresTotal.Inc()
		return
	}
	s.degraded = false
}

// Lines returns a copy of the cart lines in insertion order.
func (s *Store) Lines() []domain.CartLine {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.CartLine, len(s.lines))
	copy(out, s.lines)
	return out
}

// Len returns the number of distinct products in the cart.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.lines)
}

// TotalItems returns the sum of line quantities.
func (s *Store) TotalItems() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.TotalItems(s.lines)
}

// TotalPrice returns the exact sum of quantity * price.
func (s *Store) TotalPrice() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.TotalPrice(s.lines)
}

// Degraded reports whether the most recent storage write failed.
func (s *Store) Degraded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degraded
}

// Close removes the session subscription. The store must not be used after.
func (s *Store) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
}
