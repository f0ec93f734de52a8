package playback

import (
	"errors"

	"github.com/llehouerou/wavesbot/internal/errmsg"
)

// Event is a notification published by a session. Implementations are
// snapshots and never share memory with the session.
type Event interface {
	isEvent()
}

// Info is a human-readable status message meant for chat relays.
//
// Emitted by:
//   - Play: "Now playing ..." or "Queued ... (Nth in queue)"
//   - Pause/Resume: when the call is a no-op
//   - Skip: when the queue is exhausted
//   - Stop: when the connection is lost or the idle timeout fires
type Info struct {
	Text string
}

// ErrorEvent is emitted when an operation fails after it was accepted,
// typically when a stream cannot start or breaks mid-track.
type ErrorEvent struct {
	Op      errmsg.Op
	Context string // track title if applicable
	Err     error
}

// Text renders the error for chat surfaces. Internal errors get a generic
// message.
func (e ErrorEvent) Text() string {
	var perr *Error
	if errors.As(e.Err, &perr) && perr.Kind == KindInternal {
		return perr.Message()
	}
	return errmsg.FormatWith(e.Op, e.Context, e.Err)
}

// TrackChange is emitted when the current track changes.
//
// Emitted by:
//   - Play: when playback starts from Idle
//   - Skip/SkipPrevious: when the cursor lands on a different track
//   - track end: when a track finishes and the next one starts
//
// NOT emitted by:
//   - Skip past the last track: the queue is exhausted, Info is sent instead
//   - UpdateQueue/Shuffle: reordering keeps the current track
type TrackChange struct {
	Previous      *Track
	Current       *Track
	PreviousIndex int
	Index         int
}

// QueueChange is emitted when the queue contents or order change.
type QueueChange struct {
	Tracks []Track
	Index  int
}

// StateChange is emitted when the session state changes.
type StateChange struct {
	Previous State
	Current  State
}

// VolumeChange is emitted after SetVolume.
type VolumeChange struct {
	Volume int
}

func (Info) isEvent()         {}
func (ErrorEvent) isEvent()   {}
func (TrackChange) isEvent()  {}
func (QueueChange) isEvent()  {}
func (StateChange) isEvent()  {}
func (VolumeChange) isEvent() {}
