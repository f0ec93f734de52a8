package playback

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/llehouerou/wavesbot/internal/player"
	"github.com/llehouerou/wavesbot/internal/player/mocks"
	"github.com/llehouerou/wavesbot/internal/playlist"
)

const testTenant = "tenant-1"

// recorder is an observer that keeps every event it receives.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Notify(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

func eventsOf[T Event](events []Event) []T {
	var out []T
	for _, e := range events {
		if v, ok := e.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

func infoTexts(events []Event) []string {
	var out []string
	for _, e := range eventsOf[Info](events) {
		out = append(out, e.Text)
	}
	return out
}

type resolverFunc func(ctx context.Context, term string) (playlist.Track, error)

func (f resolverFunc) Resolve(ctx context.Context, term string) (playlist.Track, error) {
	return f(ctx, term)
}

func trackFor(term string) playlist.Track {
	return playlist.Track{ID: term, Title: "Title " + term, SourceRef: "/music/" + term + ".mp3"}
}

// catalogResolver resolves every term to a track with the term as ID,
// except terms starting with "missing".
func catalogResolver(ctrl *gomock.Controller) *mocks.MockResolver {
	m := mocks.NewMockResolver(ctrl)
	m.EXPECT().Resolve(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, term string) (playlist.Track, error) {
			if strings.HasPrefix(term, "missing") {
				return playlist.Track{}, fmt.Errorf("%q: %w", term, player.ErrTrackNotFound)
			}
			return trackFor(term), nil
		},
	).AnyTimes()
	return m
}

type harness struct {
	connector *player.MockConnector
	registry  *Registry
	session   *Session
	conn      *player.MockConnection
	rec       *recorder
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	ctrl := gomock.NewController(t)
	return newHarnessWith(t, catalogResolver(ctrl), opts...)
}

func newHarnessWith(t *testing.T, resolver player.Resolver, opts ...Option) *harness {
	t.Helper()
	connector := player.NewMock()
	reg := NewRegistry(connector, resolver, opts...)
	s, err := reg.Create(context.Background(), testTenant, "music")
	require.NoError(t, err)

	rec := &recorder{}
	s.Subscribe(rec)
	return &harness{
		connector: connector,
		registry:  reg,
		session:   s,
		conn:      connector.LastConnection(),
		rec:       rec,
	}
}

// fill plays t0..t(n-1); t0 starts streaming.
func (h *harness) fill(t *testing.T, n int) {
	t.Helper()
	for i := range n {
		_, err := h.session.Play(context.Background(), fmt.Sprintf("t%d", i), "alice")
		require.NoError(t, err)
	}
}

func (h *harness) close() {
	_ = h.registry.Shutdown(context.Background())
}

func trackIDs(tracks []Track) []string {
	out := make([]string, len(tracks))
	for i, tr := range tracks {
		out[i] = tr.ID
	}
	return out
}
