package remote

import (
	"encoding/json"

	"github.com/llehouerou/wavesbot/internal/playback"
)

// Request is a remote-control command.
type Request struct {
	ID       string          `json:"id,omitempty"`
	Type     string          `json:"type"`
	TenantID string          `json:"tenantID,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
}

// Response answers a Request with either Result or Error.
type Response struct {
	ID     string
	Result any
	Error  string
}

// MarshalJSON encodes {"id", "result"} or {"id", "error"}. A zero result
// such as false or 0 is still sent.
func (r Response) MarshalJSON() ([]byte, error) {
	if r.Error != "" {
		return json.Marshal(struct {
			ID    string `json:"id,omitempty"`
			Error string `json:"error"`
		}{r.ID, r.Error})
	}
	return json.Marshal(struct {
		ID     string `json:"id,omitempty"`
		Result any    `json:"result"`
	}{r.ID, r.Result})
}

// Push message types.
const (
	PushPlayerChange = "playerChange"
	PushInfo         = "info"
	PushError        = "error"
)

// Push is an unsolicited message sent to subscribed clients.
type Push struct {
	Type     string `json:"type"`
	TenantID string `json:"tenantID"`
	Event    string `json:"event,omitempty"`
	Data     any    `json:"data"`
}

type playData struct {
	Query       string `json:"query"`
	RequestedBy string `json:"requestedBy"`
}

type amountData struct {
	Amount *int `json:"amount"`
}

type volumeData struct {
	Volume *int `json:"volume"`
}

type queueItem struct {
	ID string `json:"id"`
}

type updateQueueData struct {
	Items []queueItem `json:"items"`
}

// pushFor converts a session event into a push message. The second return
// value is false for events that are not forwarded.
func pushFor(tenant string, e playback.Event) (Push, bool) {
	switch ev := e.(type) {
	case playback.TrackChange:
		return Push{Type: PushPlayerChange, TenantID: tenant, Event: "trackChanged", Data: ev.Current}, true
	case playback.QueueChange:
		return Push{Type: PushPlayerChange, TenantID: tenant, Event: "queueChanged", Data: ev.Tracks}, true
	case playback.StateChange:
		return Push{Type: PushPlayerChange, TenantID: tenant, Event: "stateChanged", Data: ev.Current}, true
	case playback.VolumeChange:
		return Push{Type: PushPlayerChange, TenantID: tenant, Event: "volumeChanged", Data: ev.Volume}, true
	case playback.Info:
		return Push{Type: PushInfo, TenantID: tenant, Data: ev.Text}, true
	case playback.ErrorEvent:
		return Push{Type: PushError, TenantID: tenant, Data: ev.Text()}, true
	default:
		return Push{}, false
	}
}
