// Package remote implements the remote-control protocol: JSON requests over
// a websocket, answered with a result or an error, plus pushed player
// changes for subscribed tenants.
package remote

// Operation is a remote request type.
type Operation int

const (
	OpUnknown Operation = iota
	OpPlay
	OpPause
	OpResume
	OpSkip
	OpSkipPrevious
	OpVolume
	OpUpdateQueue
	OpShuffle
	OpClear
	OpStop
	OpGetCurrentTrack
	OpGetCurrentQueue
	OpGetVolume
	OpIsPaused
	OpGetPlayer
	OpGetTenants
	OpSubscribe
	OpUnsubscribe
)

var operationNames = map[Operation]string{
	OpPlay:            "play",
	OpPause:           "pause",
	OpResume:          "resume",
	OpSkip:            "skip",
	OpSkipPrevious:    "skipPrevious",
	OpVolume:          "volume",
	OpUpdateQueue:     "updateQueue",
	OpShuffle:         "shuffle",
	OpClear:           "clear",
	OpStop:            "stop",
	OpGetCurrentTrack: "getCurrentTrack",
	OpGetCurrentQueue: "getCurrentQueue",
	OpGetVolume:       "getVolume",
	OpIsPaused:        "isPaused",
	OpGetPlayer:       "getPlayer",
	OpGetTenants:      "getTenants",
	OpSubscribe:       "subscribe",
	OpUnsubscribe:     "unsubscribe",
}

var operationsByName = func() map[string]Operation {
	m := make(map[string]Operation, len(operationNames))
	for op, name := range operationNames {
		m[name] = op
	}
	return m
}()

// ParseOperation maps a request type to an Operation, or OpUnknown.
func ParseOperation(name string) Operation {
	return operationsByName[name]
}

func (o Operation) String() string {
	if name, ok := operationNames[o]; ok {
		return name
	}
	return "unknown"
}

// needsTenant reports whether the operation targets a tenant's session.
func (o Operation) needsTenant() bool {
	switch o {
	case OpGetTenants, OpUnknown:
		return false
	default:
		return true
	}
}
