package event

import (
	"context"
	"fmt"
	"log/slog"

	pkgkafka "github.com/utafrali/agricoventas/pkg/kafka"
)

// TopicUserLoggedOut is published by the identity service when a user signs
// out on any device.
var TopicUserLoggedOut = pkgkafka.Topic("user", "logged_out")

// UserLoggedOutData is the payload for a user.logged_out event.
type UserLoggedOutData struct {
	UserID string `json:"user_id"`
}

// SessionEnder ends a user session.
type SessionEnder interface {
	End(ctx context.Context, userID string) error
}

// LogoutHandler returns a consumer handler that ends the session named in
// each user.logged_out event. Events of other types are ignored.
func LogoutHandler(sessions SessionEnder, logger *slog.Logger) pkgkafka.Handler {
	return func(ctx context.Context, event *pkgkafka.Event) error {
		if event.EventType != TopicUserLoggedOut {
			logger.DebugContext(ctx, "ignoring event",
				slog.String("event_type", event.EventType),
				slog.String("event_id", event.EventID),
			)
			return nil
		}

		var data UserLoggedOutData
		if err := event.UnmarshalData(&data); err != nil {
			return fmt.Errorf("decode %s data: %w", TopicUserLoggedOut, err)
		}
		// A payload without a user cannot succeed on retry.
		if data.UserID == "" {
			logger.WarnContext(ctx, "logout event without user id",
				slog.String("event_id", event.EventID),
			)
			return nil
		}

		if err := sessions.End(ctx, data.UserID); err != nil {
			return fmt.Errorf("end session for %s: %w", data.UserID, err)
		}

		logger.InfoContext(ctx, "session ended by logout event",
			slog.String("user_id", data.UserID),
			slog.String("event_id", event.EventID),
		)
		return nil
	}
}
