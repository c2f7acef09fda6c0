package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/utafrali/agricoventas/internal/catalog"
	"github.com/utafrali/agricoventas/internal/domain"
	"github.com/utafrali/agricoventas/internal/store"
	apperrors "github.com/utafrali/agricoventas/pkg/errors"
)

// SessionRegistry tracks active sessions and exposes per-user signals.
type SessionRegistry interface {
	Start(ctx context.Context, userID string) error
	End(ctx context.Context, userID string) error
	Generation(ctx context.Context, userID string) (gen string, active bool, err error)
	Signal(userID string) store.SessionSignal
}

// EventPublisher emits cart domain events.
type EventPublisher interface {
	PublishCartUpdated(ctx context.Context, userID string, lines []domain.CartLine) error
	PublishCartCleared(ctx context.Context, userID string) error
}

// StorageFor returns the persisted storage scoped to one user.
type StorageFor func(userID string) store.Storage

// CartView is the read model returned for every cart operation.
type CartView struct {
	UserID     string            `json:"user_id"`
	Lines      []domain.CartLine `json:"lines"`
	TotalItems int               `json:"total_items"`
	TotalPrice decimal.Decimal   `json:"total_price"`
	Degraded   bool              `json:"degraded"`
}

// cartEntry is a live store bound to the session generation it was
// hydrated for.
type cartEntry struct {
	store       *store.Store
	generation  string
	unsubscribe func()
}

// CartService implements the business logic for cart operations. It keeps at
// most one live store per user and drops it when the user's session ends,
// whether by logout or by expiry.
type CartService struct {
	sessions  SessionRegistry
	storage   StorageFor
	catalog   catalog.Lookup
	publisher EventPublisher
	logger    *slog.Logger

	mu    sync.Mutex
	carts map[string]cartEntry
}

// NewCartService creates a new cart service.
func NewCartService(sessions SessionRegistry, storage StorageFor, lookup catalog.Lookup, publisher EventPublisher, logger *slog.Logger) *CartService {
	return &CartService{
		sessions:  sessions,
		storage:   storage,
		catalog:   lookup,
		publisher: publisher,
		logger:    logger,
		carts:     make(map[string]cartEntry),
	}
}

// StartSession marks the user's session active.
func (s *CartService) StartSession(ctx context.Context, userID string) error {
	if userID == "" {
		return apperrors.InvalidInput("user id is required")
	}
	if err := s.sessions.Start(ctx, userID); err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	return nil
}

// EndSession ends the user's session. The in-memory cart is dropped; the
// persisted cart is kept for the next login.
func (s *CartService) EndSession(ctx context.Context, userID string) error {
	if userID == "" {
		return apperrors.InvalidInput("user id is required")
	}
	if err := s.sessions.End(ctx, userID); err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	return nil
}

// GetCart returns the user's cart.
func (s *CartService) GetCart(ctx context.Context, userID string) (*CartView, error) {
	st, err := s.cart(ctx, userID)
	if err != nil {
		return nil, err
	}
	return view(userID, st), nil
}

// AddProduct puts one unit of productID in the cart, reading price and stock
// from the catalog.
func (s *CartService) AddProduct(ctx context.Context, userID, productID string) (*CartView, error) {
	st, err := s.cart(ctx, userID)
	if err != nil {
		return nil, err
	}

	product, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get product: %w", err)
	}

	outcome := st.Add(ctx, product.LineInput())
	switch outcome {
	case store.OutcomeInvalid:
		return nil, apperrors.InvalidInput(fmt.Sprintf("product %s cannot be added to the cart", productID))
	case store.OutcomeOutOfStock:
		return nil, apperrors.OutOfStock(productID)
	case store.OutcomeStockCeiling:
		return nil, apperrors.StockLimit(productID, product.Stock.Limit())
	}

	lines := st.Lines()
	s.publishUpdated(ctx, userID, lines)

	s.logger.InfoContext(ctx, "product added to cart",
		slog.String("user_id", userID),
		slog.String("product_id", productID),
		slog.String("outcome", outcome.String()),
	)
	return view(userID, st), nil
}

// SetQuantity sets the quantity of a line, clamped to its stock. Setting a
// product that is not in the cart is a no-op.
func (s *CartService) SetQuantity(ctx context.Context, userID, productID string, quantity int) (*CartView, error) {
	st, err := s.cart(ctx, userID)
	if err != nil {
		return nil, err
	}

	if domain.FindLine(st.Lines(), productID) < 0 {
		return view(userID, st), nil
	}
	st.SetQuantity(ctx, productID, quantity)
	s.publishUpdated(ctx, userID, st.Lines())

	s.logger.InfoContext(ctx, "cart item quantity set",
		slog.String("user_id", userID),
		slog.String("product_id", productID),
		slog.Int("requested", quantity),
	)
	return view(userID, st), nil
}

// RemoveItem drops a line from the cart. Removing a product that is not in
// the cart is a no-op.
func (s *CartService) RemoveItem(ctx context.Context, userID, productID string) (*CartView, error) {
	st, err := s.cart(ctx, userID)
	if err != nil {
		return nil, err
	}

	if domain.FindLine(st.Lines(), productID) < 0 {
		return view(userID, st), nil
	}
	st.RemoveItem(ctx, productID)
	s.publishUpdated(ctx, userID, st.Lines())

	s.logger.InfoContext(ctx, "item removed from cart",
		slog.String("user_id", userID),
		slog.String("product_id", productID),
	)
	return view(userID, st), nil
}

// ClearCart empties the cart.
func (s *CartService) ClearCart(ctx context.Context, userID string) error {
	st, err := s.cart(ctx, userID)
	if err != nil {
		return err
	}

	st.Clear(ctx)
	if err := s.publisher.PublishCartCleared(ctx, userID); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish cart.cleared event",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "cart cleared", slog.String("user_id", userID))
	return nil
}

// Close releases every live store.
func (s *CartService) Close() {
	s.mu.Lock()
	entries := s.carts
	s.carts = make(map[string]cartEntry)
	s.mu.Unlock()

	for _, e := range entries {
		e.unsubscribe()
		e.store.Close()
	}
}

// maxHydrateAttempts bounds how often cart rebuilds a store when logins keep
// racing its hydration.
const maxHydrateAttempts = 3

// cart returns the live store for the user's current session, creating and
// hydrating it on first use. A store built for an earlier session generation
// is discarded and rebuilt from storage.
func (s *CartService) cart(ctx context.Context, userID string) (*store.Store, error) {
	if userID == "" {
		return nil, apperrors.InvalidInput("user id is required")
	}

	for range maxHydrateAttempts {
		gen, err := s.generation(ctx, userID)
		if err != nil {
			return nil, err
		}
		if gen == "" {
			s.evictUser(userID)
			return nil, apperrors.Unauthorized("no active session")
		}

		if st := s.lookup(userID, gen); st != nil {
			return st, nil
		}

		// Hydration reads Redis, so it runs outside the lock.
		signal := s.sessions.Signal(userID)
		st := store.New(ctx, s.storage(userID), signal, s.logger.With(slog.String("user_id", userID)))
		st = s.insert(userID, gen, st, signal)

		// The session may have ended or restarted while the store hydrated,
		// before its eviction listener was registered.
		current, err := s.generation(ctx, userID)
		if err != nil {
			return nil, err
		}
		if current == gen {
			return st, nil
		}
		s.evict(userID, st)
	}
	return nil, fmt.Errorf("%w: session changed during cart hydration", apperrors.ErrServiceUnavail)
}

// generation returns the current session generation, or "" when there is no
// active session.
func (s *CartService) generation(ctx context.Context, userID string) (string, error) {
	gen, active, err := s.sessions.Generation(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("check session: %w: %w", apperrors.ErrServiceUnavail, err)
	}
	if !active {
		return "", nil
	}
	return gen, nil
}

// lookup returns the live store for gen. An entry from another generation is
// evicted.
func (s *CartService) lookup(userID, gen string) *store.Store {
	s.mu.Lock()
	e, ok := s.carts[userID]
	s.mu.Unlock()
	if !ok {
		return nil
	}
	if e.generation == gen {
		return e.store
	}
	s.evict(userID, e.store)
	return nil
}

// insert registers st for gen unless a concurrent caller already did, in
// which case st is closed and the winner returned.
func (s *CartService) insert(userID, gen string, st *store.Store, signal store.SessionSignal) *store.Store {
	s.mu.Lock()
	e, ok := s.carts[userID]
	if ok && e.generation == gen {
		s.mu.Unlock()
		st.Close()
		return e.store
	}
	unsubscribe := signal.Subscribe(func(active bool) {
		if !active {
			s.evict(userID, st)
		}
	})
	s.carts[userID] = cartEntry{store: st, generation: gen, unsubscribe: unsubscribe}
	liveCarts.Set(float64(len(s.carts)))
	s.mu.Unlock()

	if ok {
		e.unsubscribe()
		e.store.Close()
	}
	return st
}

func (s *CartService) evictUser(userID string) {
	s.mu.Lock()
	e, ok := s.carts[userID]
	s.mu.Unlock()
	if ok {
		s.evict(userID, e.store)
	}
}

func (s *CartService) evict(userID string, st *store.Store) {
	s.mu.Lock()
	e, ok := s.carts[userID]
	if !ok || e.store != st {
		s.mu.Unlock()
		return
	}
	delete(s.carts, userID)
	liveCarts.Set(float64(len(s.carts)))
	s.mu.Unlock()

	e.unsubscribe()
	st.Close()
	s.logger.Debug("cart evicted", slog.String("user_id", userID))
}

// EvictExpired drops the stores of users whose session is no longer the one
// the store was hydrated for. Sessions that lapse by TTL send no signal, so
// this is the only path that frees them for users who never return. Users
// whose lookup fails are kept. It returns the number of stores evicted.
func (s *CartService) EvictExpired(ctx context.Context) int {
	s.mu.Lock()
	snapshot := make(map[string]cartEntry, len(s.carts))
	for id, e := range s.carts {
		snapshot[id] = e
	}
	s.mu.Unlock()

	evicted := 0
	for userID, e := range snapshot {
		gen, err := s.generation(ctx, userID)
		if err != nil {
			s.logger.WarnContext(ctx, "session lookup failed during sweep",
				slog.String("user_id", userID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if gen != e.generation {
			s.evict(userID, e.store)
			evicted++
		}
	}
	return evicted
}

// RunSweeper calls EvictExpired every interval until ctx is canceled.
func (s *CartService) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.EvictExpired(ctx); n > 0 {
				s.logger.InfoContext(ctx, "expired carts evicted", slog.Int("count", n))
			}
		}
	}
}

func (s *CartService) publishUpdated(ctx context.Context, userID string, lines []domain.CartLine) {
	if err := s.publisher.PublishCartUpdated(ctx, userID, lines); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish cart.updated event",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}
}

func view(userID string, st *store.Store) *CartView {
	lines := st.Lines()
	return &CartView{
		UserID:     userID,
		Lines:      lines,
		TotalItems: domain.TotalItems(lines),
		TotalPrice: domain.TotalPrice(lines),
		Degraded:   st.Degraded(),
	}
}
