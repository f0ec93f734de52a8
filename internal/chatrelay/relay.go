// Package chatrelay forwards player status messages to a chat text channel.
package chatrelay

import (
	"go.uber.org/zap"

	"github.com/llehouerou/wavesbot/internal/playback"
)

// DefaultChannel is used when no channel is configured.
const DefaultChannel = "general"

// Surface is a place text can be posted to, such as a chat channel.
type Surface interface {
	SendText(tenant, channel, text string) error
}

// Relay is a playback observer forwarding Info and ErrorEvent texts to a
// Surface. Track, queue, state and volume changes are ignored.
type Relay struct {
	tenant  string
	channel string
	surface Surface
	logger  *zap.Logger
}

// New creates a relay for tenant. An empty channel uses DefaultChannel.
func New(tenant, channel string, surface Surface, logger *zap.Logger) *Relay {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Relay{
		tenant:  tenant,
		channel: channel,
		surface: surface,
		logger:  logger,
	}
}

// Attach subscribes a relay to s, posting to channel through surface.
func Attach(s *playback.Session, channel string, surface Surface, logger *zap.Logger) *playback.Subscription {
	return s.Subscribe(New(s.TenantID(), channel, surface, logger))
}

// Notify implements playback.Observer.
func (r *Relay) Notify(e playback.Event) {
	var text string
	switch ev := e.(type) {
	case playback.Info:
		text = ev.Text
	case playback.ErrorEvent:
		text = ev.Text()
	default:
		return
	}
	if text == "" {
		return
	}
	if err := r.surface.SendText(r.tenant, r.channel, text); err != nil {
		r.logger.Warn("failed to relay message",
			zap.String("tenant", r.tenant),
			zap.String("channel", r.channel),
			zap.Error(err),
		)
	}
}

// LogSurface writes relayed messages to a logger. It stands in for a chat
// platform during development.
type LogSurface struct {
	Logger *zap.Logger
}

// SendText implements Surface.
func (s LogSurface) SendText(tenant, channel, text string) error {
	s.Logger.Info("chat",
		zap.String("tenant", tenant),
		zap.String("channel", channel),
		zap.String("text", text),
	)
	return nil
}
