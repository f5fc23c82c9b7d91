// Package notify is the boundary to the notification transport. Delivery
// itself (email, push, in-app) lives outside this module.
package notify

import (
	"context"
	"log/slog"

	"github.com/xraph/trialpay/graceperiod"
	"github.com/xraph/trialpay/id"
)

// Message is one lifecycle notification addressed to a user.
type Message struct {
	UserID        string                       `json:"user_id"`
	TenantID      string                       `json:"tenant_id"`
	GracePeriodID id.GracePeriodID             `json:"grace_period_id"`
	Type          graceperiod.NotificationType `json:"type"`
	Payload       map[string]any               `json:"payload,omitempty"`
}

// Sender delivers messages. A nil error means the transport accepted the
// message; the returned channels are recorded on the grace period.
type Sender interface {
	Send(ctx context.Context, msg *Message) (graceperiod.Channels, error)
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, msg *Message) (graceperiod.Channels, error)

// Send implements Sender.
func (f SenderFunc) Send(ctx context.Context, msg *Message) (graceperiod.Channels, error) {
	return f(ctx, msg)
}

// LogSender writes messages to a logger and reports them as in-app.
// It is the default when no transport is configured.
type LogSender struct {
	Logger *slog.Logger
}

// Send implements Sender.
func (s LogSender) Send(ctx context.Context, msg *Message) (graceperiod.Channels, error) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "grace period notification",
		"user_id", msg.UserID,
		"tenant_id", msg.TenantID,
		"grace_period_id", msg.GracePeriodID.String(),
		"type", string(msg.Type),
	)
	return graceperiod.Channels{InApp: true}, nil
}
