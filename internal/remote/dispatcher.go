package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/llehouerou/wavesbot/internal/errmsg"
	"github.com/llehouerou/wavesbot/internal/playback"
)

var (
	errNoTenant      = errors.New("No tenantID provided!") //nolint:staticcheck // shown to clients verbatim
	errNoItems       = errors.New("No items provided!")    //nolint:staticcheck // shown to clients verbatim
	errNoQuery       = errors.New("No query provided!")    //nolint:staticcheck // shown to clients verbatim
	errNoVolume      = errors.New("No volume provided!")   //nolint:staticcheck // shown to clients verbatim
	errNotSubscribed = errors.New("not subscribed to this tenant")
	errNoConnection  = errors.New("subscriptions need a live connection")
)

// Subscriber receives pushes for the tenants it subscribes to. It is
// implemented by the websocket connection of each client.
type Subscriber interface {
	Subscribe(s *playback.Session) error
	Unsubscribe(tenant string) bool
}

// Dispatcher maps requests to session operations.
type Dispatcher struct {
	registry *playback.Registry
	logger   *zap.Logger
}

// NewDispatcher creates a dispatcher over registry.
func NewDispatcher(registry *playback.Registry, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{registry: registry, logger: logger}
}

// Dispatch runs req and renders the outcome. sub may be nil when the
// caller cannot receive pushes.
func (d *Dispatcher) Dispatch(ctx context.Context, sub Subscriber, req Request) (resp Response) {
	resp.ID = req.ID
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("request handler panicked",
				zap.String("type", req.Type),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
			resp.Result = nil
			resp.Error = playback.Message(&playback.Error{Kind: playback.KindInternal, Op: errmsg.OpRemoteRequest})
		}
	}()

	result, err := d.dispatch(ctx, sub, req)
	if err != nil {
		d.logger.Debug("request failed",
			zap.String("type", req.Type),
			zap.String("tenant", req.TenantID),
			zap.Error(err),
		)
		resp.Error = playback.Message(err)
		return resp
	}
	resp.Result = result
	return resp
}

func (d *Dispatcher) dispatch(ctx context.Context, sub Subscriber, req Request) (any, error) {
	op := ParseOperation(req.Type)
	if op == OpUnknown {
		return nil, &playback.Error{Kind: playback.KindUnknownOperation, Op: errmsg.OpRemoteRequest, Context: req.Type}
	}
	if op == OpGetTenants {
		return d.registry.Tenants(), nil
	}
	if op.needsTenant() && req.TenantID == "" {
		return nil, invalid(errNoTenant)
	}
	if op == OpUnsubscribe {
		if sub == nil {
			return nil, invalid(errNoConnection)
		}
		if !sub.Unsubscribe(req.TenantID) {
			return nil, invalid(errNotSubscribed)
		}
		return true, nil
	}

	s, ok := d.registry.Get(req.TenantID)
	if !ok {
		return nil, &playback.Error{Kind: playback.KindSessionNotFound, Op: errmsg.OpSessionFind}
	}

	switch op {
	case OpPlay:
		var data playData
		if err := decode(req.Data, &data); err != nil {
			return nil, err
		}
		if data.Query == "" {
			return nil, invalid(errNoQuery)
		}
		return s.Play(ctx, data.Query, data.RequestedBy)
	case OpPause:
		return true, s.Pause()
	case OpResume:
		return true, s.Resume()
	case OpSkip:
		amount, err := decodeAmount(req.Data)
		if err != nil {
			return nil, err
		}
		return true, s.Skip(amount)
	case OpSkipPrevious:
		amount, err := decodeAmount(req.Data)
		if err != nil {
			return nil, err
		}
		return true, s.SkipPrevious(amount)
	case OpVolume:
		var data volumeData
		if err := decode(req.Data, &data); err != nil {
			return nil, err
		}
		if data.Volume == nil {
			return nil, invalid(errNoVolume)
		}
		return s.SetVolume(*data.Volume)
	case OpUpdateQueue:
		var data updateQueueData
		if err := decode(req.Data, &data); err != nil {
			return nil, err
		}
		if data.Items == nil {
			return nil, invalid(errNoItems)
		}
		ids := make([]string, len(data.Items))
		for i, item := range data.Items {
			ids[i] = item.ID
		}
		return true, s.UpdateQueue(ids)
	case OpShuffle:
		return true, s.Shuffle()
	case OpClear:
		return true, s.Clear()
	case OpStop:
		return true, s.Stop()
	case OpGetCurrentTrack:
		return s.CurrentTrack(), nil
	case OpGetCurrentQueue:
		return s.Queue(), nil
	case OpGetVolume:
		return s.Volume(), nil
	case OpIsPaused:
		return s.IsPaused(), nil
	case OpGetPlayer:
		return s.Snapshot(), nil
	case OpSubscribe:
		if sub == nil {
			return nil, invalid(errNoConnection)
		}
		if err := sub.Subscribe(s); err != nil {
			return nil, err
		}
		return s.Snapshot(), nil
	case OpUnknown, OpGetTenants, OpUnsubscribe:
		// Handled before the session lookup.
		return nil, fmt.Errorf("unreachable operation %s", op)
	default:
		return nil, fmt.Errorf("unhandled operation %s", op)
	}
}

func invalid(err error) error {
	return &playback.Error{Kind: playback.KindInvalidArgument, Err: err}
}

func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return invalid(fmt.Errorf("invalid data: %w", err))
	}
	return nil
}

// decodeAmount reads an optional amount, defaulting to 1.
func decodeAmount(raw json.RawMessage) (int, error) {
	var data amountData
	if err := decode(raw, &data); err != nil {
		return 0, err
	}
	if data.Amount == nil {
		return 1, nil
	}
	return *data.Amount, nil
}
