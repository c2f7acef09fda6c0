// Package session tracks active user sessions in Redis and fans session
// transitions out to every service instance over Redis pub/sub.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/utafrali/agricoventas/internal/store"
)

const (
	keyPrefix = "agricoventas:session:"

	// Channel carries session transitions between instances.
	Channel = "agricoventas:session:events"

	eventStart = "start"
	eventEnd   = "end"
)

// ErrMalformedEvent is returned for pub/sub payloads that cannot be parsed.
var ErrMalformedEvent = errors.New("malformed session event")

// Registry records which users have an active session. Session transitions
// made through any Registry sharing the Redis server reach the listeners of
// every other Registry once Watch is running.
type Registry struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
	origin string

	mu        sync.RWMutex
	listeners map[string]map[uint64]func(bool)
	nextID    uint64
}

// NewRegistry creates a session registry. Sessions expire after ttl unless
// refreshed by another Start; a zero ttl keeps them until End.
func NewRegistry(client *redis.Client, ttl time.Duration, logger *slog.Logger) *Registry {
	return &Registry{
		client:    client,
		ttl:       ttl,
		logger:    logger,
		origin:    uuid.New().String(),
		listeners: make(map[string]map[uint64]func(bool)),
	}
}

func sessionKey(userID string) string {
	return keyPrefix + userID
}

// Start marks the user's session active and notifies listeners. Every Start
// opens a new session generation, even when one is already active.
func (r *Registry) Start(ctx context.Context, userID string) error {
	if userID == "" {
		return errors.New("user id is required")
	}
	if err := r.client.Set(ctx, sessionKey(userID), uuid.NewString(), r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set session: %w", err)
	}
	r.dispatch(userID, true)
	r.publish(ctx, eventStart, userID)

	r.logger.InfoContext(ctx, "session started", slog.String("user_id", userID))
	return nil
}

// End marks the user's session inactive and notifies listeners. Ending a
// session that is not active still notifies, so stale carts are cleared.
func (r *Registry) End(ctx context.Context, userID string) error {
	if userID == "" {
		return errors.New("user id is required")
	}
	if err := r.client.Del(ctx, sessionKey(userID)).Err(); err != nil {
		return fmt.Errorf("redis del session: %w", err)
	}
	r.dispatch(userID, false)
	r.publish(ctx, eventEnd, userID)

	r.logger.InfoContext(ctx, "session ended", slog.String("user_id", userID))
	return nil
}

// Active reports whether the user has an active session.
func (r *Registry) Active(ctx context.Context, userID string) (bool, error) {
	n, err := r.client.Exists(ctx, sessionKey(userID)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists session: %w", err)
	}
	return n > 0, nil
}

// Generation returns the id of the user's current session. A session that
// ended or expired reports active=false; the next Start gets a new id.
func (r *Registry) Generation(ctx context.Context, userID string) (gen string, active bool, err error) {
	gen, err = r.client.Get(ctx, sessionKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get session: %w", err)
	}
	return gen, true, nil
}

// publish broadcasts the transition to other instances. Failure is logged:
// the session key is already written and local listeners already notified.
func (r *Registry) publish(ctx context.Context, event, userID string) {
	msg := strings.Join([]string{event, userID, r.origin}, "|")
	if err := r.client.Publish(ctx, Channel, msg).Err(); err != nil {
		r.logger.ErrorContext(ctx, "failed to publish session event",
			slog.String("event", event),
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}
}

// Watch subscribes to session transitions from other instances and
// dispatches them to local listeners. It blocks until ctx is canceled.
func (r *Registry) Watch(ctx context.Context) error {
	pubsub := r.client.Subscribe(ctx, Channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("subscribe %s: %w", Channel, err)
	}
	r.logger.Info("session watcher started", slog.String("channel", Channel))

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("session watcher stopping")
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if err := r.handleMessage(msg.Payload); err != nil {
				r.logger.Warn("skipping session event",
					slog.String("payload", msg.Payload),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

func (r *Registry) handleMessage(payload string) error {
	parts := strings.Split(payload, "|")
	if len(parts) != 3 || parts[1] == "" {
		return ErrMalformedEvent
	}
	event, userID, origin := parts[0], parts[1], parts[2]
	if origin == r.origin {
		return nil
	}

	switch event {
	case eventStart:
		r.dispatch(userID, true)
	case eventEnd:
		r.dispatch(userID, false)
	default:
		return fmt.Errorf("%w: unknown event %q", ErrMalformedEvent, event)
	}
	return nil
}

func (r *Registry) dispatch(userID string, active bool) {
	r.mu.RLock()
	fns := make([]func(bool), 0, len(r.listeners[userID]))
	for _, fn := range r.listeners[userID] {
		fns = append(fns, fn)
	}
	r.mu.RUnlock()

	for _, fn := range fns {
		fn(active)
	}
}

func (r *Registry) subscribe(userID string, fn func(bool)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.nextID
	r.nextID++
	if r.listeners[userID] == nil {
		r.listeners[userID] = make(map[uint64]func(bool))
	}
	r.listeners[userID][id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			delete(r.listeners[userID], id)
			if len(r.listeners[userID]) == 0 {
				delete(r.listeners, userID)
			}
		})
	}
}

// Signal returns the session signal for one user.
func (r *Registry) Signal(userID string) store.SessionSignal {
	return &userSignal{registry: r, userID: userID}
}

type userSignal struct {
	registry *Registry
	userID   string
}

// Active treats a lookup failure as no session, so the cart starts empty
// rather than exposing a possibly stale payload.
func (s *userSignal) Active(ctx context.Context) bool {
	active, err := s.registry.Active(ctx, s.userID)
	if err != nil {
		s.registry.logger.WarnContext(ctx, "session lookup failed",
			slog.String("user_id", s.userID),
			slog.String("error", err.Error()),
		)
		return false
	}
	return active
}

func (s *userSignal) Subscribe(fn func(bool)) func() {
	return s.registry.subscribe(s.userID, fn)
}
