// internal/player/interface.go
package player

import (
	"context"
	"errors"

	"github.com/llehouerou/wavesbot/internal/playlist"
)

var (
	// ErrNotJoinable is wrapped by Connector.Join when the target channel
	// exists but cannot be joined (permissions, full, wrong type).
	ErrNotJoinable = errors.New("channel is not joinable")

	// ErrTrackNotFound is wrapped by Resolver.Resolve when nothing matches.
	ErrTrackNotFound = errors.New("track not found")
)

// Connector joins live audio channels.
type Connector interface {
	// Join blocks until the connection is established, ctx is done, or the
	// join fails. Failures other than ErrNotJoinable are connection errors.
	Join(ctx context.Context, channelRef string) (Connection, error)
}

// Connection is a live audio connection owned by exactly one session.
type Connection interface {
	// Play starts streaming sourceRef. Any previous stream must have been
	// stopped by the caller.
	Play(sourceRef string) (Stream, error)
	// SetVolume applies a level in [0, 100].
	SetVolume(level int)
	Disconnect() error
	// Lost is closed when the connection drops without Disconnect being called.
	Lost() <-chan struct{}
}

// Stream is a single track being sent over a Connection.
type Stream interface {
	Pause()
	Resume()
	// Stop ends the stream early. Done is closed and Err returns nil.
	Stop()
	// Done is closed when the stream ends for any reason.
	Done() <-chan struct{}
	// Err reports why the stream ended; nil means natural completion or Stop.
	Err() error
}

// Resolver turns a free-text query into a playable track.
type Resolver interface {
	Resolve(ctx context.Context, term string) (playlist.Track, error)
}
