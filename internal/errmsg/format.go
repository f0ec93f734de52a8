// Package errmsg provides consistent error formatting for user-facing messages.
package errmsg

import "fmt"

// Op represents an operation that can fail.
type Op string

// Operation constants - grouped by domain.
const (
	// Session lifecycle
	OpSessionCreate Op = "join voice channel"
	OpSessionStop   Op = "stop the player"
	OpSessionFind   Op = "find a player"

	// Playback operations
	OpPlay          Op = "play track"
	OpPlaybackStart Op = "start playback"
	OpPause         Op = "pause"
	OpResume        Op = "resume"
	OpSkip          Op = "skip"
	OpSkipPrevious  Op = "go back"
	OpVolume        Op = "change volume"

	// Queue operations
	OpQueueUpdate  Op = "update queue"
	OpQueueShuffle Op = "shuffle queue"
	OpQueueClear   Op = "clear queue"

	// Remote control
	OpRemoteRequest Op = "handle request"

	// Persistence
	OpVolumeLoad Op = "load saved volume"
	OpVolumeSave Op = "save volume"
)

// Format creates a user-friendly error message.
func Format(op Op, err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf("Failed to %s: %v", op, err)
}

// FormatWith creates an error message with additional context.
func FormatWith(op Op, context string, err error) string {
	if err == nil {
		return ""
	}
	if context == "" {
		return Format(op, err)
	}
	return fmt.Sprintf("Failed to %s '%s': %v", op, context, err)
}
