package playback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/llehouerou/wavesbot/internal/player"
)

type memVolumeStore struct {
	mu      sync.Mutex
	volumes map[string]int
	loadErr error
}

func (m *memVolumeStore) LoadVolume(tenant string) (int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return 0, false, m.loadErr
	}
	v, ok := m.volumes[tenant]
	return v, ok, nil
}

func (m *memVolumeStore) SaveVolume(tenant string, v int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.volumes[tenant] = v
	return nil
}

func newTestRegistry(t *testing.T, opts ...Option) (*Registry, *player.MockConnector) {
	t.Helper()
	ctrl := gomock.NewController(t)
	connector := player.NewMock()
	return NewRegistry(connector, catalogResolver(ctrl), opts...), connector
}

func TestRegistry_GetReturnsSameSession(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		reg, _ := newTestRegistry(t)
		defer reg.Shutdown(context.Background())

		s, err := reg.Create(context.Background(), "a", "music")
		require.NoError(t, err)

		for range 3 {
			got, ok := reg.Get("a")
			require.True(t, ok)
			assert.Same(t, s, got)
		}
		_, ok := reg.Get("b")
		assert.False(t, ok)
	})
}

func TestRegistry_CreateTwiceFails(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		reg, connector := newTestRegistry(t)
		defer reg.Shutdown(context.Background())

		_, err := reg.Create(context.Background(), "a", "music")
		require.NoError(t, err)
		_, err = reg.Create(context.Background(), "a", "other")

		require.ErrorIs(t, err, ErrAlreadyExists)
		assert.Equal(t, []string{"music"}, connector.JoinCalls())
		assert.Equal(t, 1, reg.Len())
	})
}

func TestRegistry_ConcurrentCreate(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		reg, connector := newTestRegistry(t)
		defer reg.Shutdown(context.Background())
		release := connector.BlockJoins()

		const callers = 8
		errs := make([]error, callers)
		sessions := make([]*Session, callers)
		var wg sync.WaitGroup
		for i := range callers {
			wg.Go(func() {
				sessions[i], errs[i] = reg.Create(context.Background(), "a", "music")
			})
		}
		synctest.Wait()
		release()
		wg.Wait()

		var created *Session
		succeeded, exists := 0, 0
		for i, err := range errs {
			switch {
			case err == nil:
				succeeded++
				created = sessions[i]
			case errors.Is(err, ErrAlreadyExists):
				exists++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}
		assert.Equal(t, 1, succeeded)
		assert.Equal(t, callers-1, exists)
		assert.Len(t, connector.JoinCalls(), 1)

		got, ok := reg.Get("a")
		require.True(t, ok)
		assert.Same(t, created, got)
	})
}

func TestRegistry_PendingSessionIsNotVisible(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		reg, connector := newTestRegistry(t)
		defer reg.Shutdown(context.Background())
		release := connector.BlockJoins()

		done := make(chan error, 1)
		go func() {
			_, err := reg.Create(context.Background(), "a", "music")
			done <- err
		}()
		synctest.Wait()

		_, ok := reg.Get("a")
		assert.False(t, ok)
		assert.Empty(t, reg.Tenants())

		release()
		require.NoError(t, <-done)
		_, ok = reg.Get("a")
		assert.True(t, ok)
	})
}

func TestRegistry_JoinFailures(t *testing.T) {
	tests := []struct {
		name    string
		joinErr error
		want    error
	}{
		{"not joinable", fmt.Errorf("voice channel full: %w", player.ErrNotJoinable), ErrNotJoinable},
		{"connection", errors.New("gateway timeout"), ErrConnection},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			synctest.Test(t, func(t *testing.T) {
				reg, connector := newTestRegistry(t)
				defer reg.Shutdown(context.Background())
				connector.SetJoinError(tt.joinErr)

				s, err := reg.Create(context.Background(), "a", "music")

				require.ErrorIs(t, err, tt.want)
				assert.Nil(t, s)
				assert.Equal(t, 0, reg.Len())

				// Nothing is left reserved.
				connector.SetJoinError(nil)
				_, err = reg.Create(context.Background(), "a", "music")
				assert.NoError(t, err)
			})
		})
	}
}

func TestRegistry_JoinTimeout(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		reg, connector := newTestRegistry(t, WithJoinTimeout(3*time.Second))
		defer reg.Shutdown(context.Background())
		release := connector.BlockJoins()
		defer release()

		start := time.Now()
		_, err := reg.Create(context.Background(), "a", "music")

		require.ErrorIs(t, err, ErrConnection)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Equal(t, 3*time.Second, time.Since(start))
		assert.Equal(t, 0, reg.Len())
	})
}

func TestRegistry_ConnectionLostDuringCreate(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		reg, connector := newTestRegistry(t)
		defer reg.Shutdown(context.Background())
		connector.SetJoinLost(true)

		s, err := reg.Create(context.Background(), "a", "music")

		require.ErrorIs(t, err, ErrConnection)
		assert.ErrorIs(t, err, errConnectionLost)
		assert.Nil(t, s)
		_, ok := reg.Get("a")
		assert.False(t, ok)
		assert.True(t, connector.LastConnection().Disconnected())

		connector.SetJoinLost(false)
		s, err = reg.GetOrCreate(context.Background(), "a", "music")
		require.NoError(t, err)
		assert.Equal(t, StateIdle, s.State())
	})
}

func TestRegistry_EmptyTenant(t *testing.T) {
	reg, _ := newTestRegistry(t)
	_, err := reg.Create(context.Background(), "", "music")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestRegistry_StopRemoves(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		reg, _ := newTestRegistry(t)
		defer reg.Shutdown(context.Background())

		s, err := reg.Create(context.Background(), "a", "music")
		require.NoError(t, err)
		require.NoError(t, s.Stop())

		_, ok := reg.Get("a")
		assert.False(t, ok)

		again, err := reg.Create(context.Background(), "a", "music")
		require.NoError(t, err)
		assert.NotSame(t, s, again)

		// Stopping the old session again must not remove the new one.
		require.NoError(t, s.Stop())
		got, ok := reg.Get("a")
		require.True(t, ok)
		assert.Same(t, again, got)
	})
}

func TestRegistry_GetOrCreate(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		reg, connector := newTestRegistry(t)
		defer reg.Shutdown(context.Background())

		first, err := reg.GetOrCreate(context.Background(), "a", "music")
		require.NoError(t, err)
		second, err := reg.GetOrCreate(context.Background(), "a", "music")
		require.NoError(t, err)

		assert.Same(t, first, second)
		assert.Len(t, connector.JoinCalls(), 1)
	})
}

func TestRegistry_SessionHook(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		var hooked []string
		reg, connector := newTestRegistry(t, WithSessionHook(func(s *Session) {
			hooked = append(hooked, s.TenantID())
		}))
		defer reg.Shutdown(context.Background())

		_, err := reg.Create(context.Background(), "a", "music")
		require.NoError(t, err)
		_, err = reg.GetOrCreate(context.Background(), "a", "music")
		require.NoError(t, err)

		connector.SetJoinError(errors.New("gateway timeout"))
		_, err = reg.Create(context.Background(), "b", "music")
		require.Error(t, err)

		assert.Equal(t, []string{"a"}, hooked)
	})
}

func TestRegistry_Tenants(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		reg, _ := newTestRegistry(t)
		defer reg.Shutdown(context.Background())

		for _, tenant := range []string{"c", "a", "b"} {
			_, err := reg.Create(context.Background(), tenant, "music")
			require.NoError(t, err)
		}
		assert.Equal(t, []string{"a", "b", "c"}, reg.Tenants())
	})
}

func TestRegistry_Shutdown(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		reg, connector := newTestRegistry(t)

		a, err := reg.Create(context.Background(), "a", "music")
		require.NoError(t, err)
		connA := connector.LastConnection()
		b, err := reg.Create(context.Background(), "b", "music")
		require.NoError(t, err)
		connB := connector.LastConnection()

		require.NoError(t, reg.Shutdown(context.Background()))

		assert.Equal(t, StateStopped, a.State())
		assert.Equal(t, StateStopped, b.State())
		assert.True(t, connA.Disconnected())
		assert.True(t, connB.Disconnected())
		assert.Equal(t, 0, reg.Len())

		_, err = reg.Create(context.Background(), "c", "music")
		assert.ErrorIs(t, err, ErrConnection)
	})
}

func TestRegistry_VolumeStore(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		store := &memVolumeStore{volumes: map[string]int{"a": 30}}
		reg, connector := newTestRegistry(t, WithVolumeStore(store), WithDefaultVolume(70))
		defer reg.Shutdown(context.Background())

		a, err := reg.Create(context.Background(), "a", "music")
		require.NoError(t, err)
		assert.Equal(t, 30, a.Volume())
		assert.Equal(t, 30, connector.LastConnection().Volume())

		b, err := reg.Create(context.Background(), "b", "music")
		require.NoError(t, err)
		assert.Equal(t, 70, b.Volume())

		_, err = b.SetVolume(15)
		require.NoError(t, err)
		v, ok, err := store.LoadVolume("b")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 15, v)
	})
}

func TestRegistry_VolumeStoreLoadError(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		store := &memVolumeStore{volumes: map[string]int{}, loadErr: errors.New("disk gone")}
		reg, _ := newTestRegistry(t, WithVolumeStore(store))
		defer reg.Shutdown(context.Background())

		s, err := reg.Create(context.Background(), "a", "music")
		require.NoError(t, err)
		assert.Equal(t, defaultVolume, s.Volume())
	})
}

func TestRegistry_TenantsAreIndependent(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		reg, _ := newTestRegistry(t)
		defer reg.Shutdown(context.Background())

		a, err := reg.Create(context.Background(), "a", "music")
		require.NoError(t, err)
		b, err := reg.Create(context.Background(), "b", "music")
		require.NoError(t, err)

		_, err = a.Play(context.Background(), "t0", "")
		require.NoError(t, err)
		_, err = a.SetVolume(90)
		require.NoError(t, err)

		assert.Equal(t, StatePlaying, a.State())
		assert.Equal(t, StateIdle, b.State())
		assert.Empty(t, b.Queue())
		assert.Equal(t, defaultVolume, b.Volume())
	})
}
