// Package app wires the process: configuration, persistence, the local audio
// connector, the session registry and the remote-control server.
package app

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/llehouerou/wavesbot/internal/chatrelay"
	"github.com/llehouerou/wavesbot/internal/config"
	"github.com/llehouerou/wavesbot/internal/library"
	"github.com/llehouerou/wavesbot/internal/playback"
	"github.com/llehouerou/wavesbot/internal/player"
	"github.com/llehouerou/wavesbot/internal/remote"
	"github.com/llehouerou/wavesbot/internal/state"
)

const shutdownTimeout = 10 * time.Second

// Options is the full dependency graph of the process.
var Options = fx.Options(
	fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
		return &fxevent.ZapLogger{Logger: log}
	}),

	fx.Provide(
		config.Load,
		NewLogger,
		fx.Annotate(newStore, fx.As(new(playback.VolumeStore))),
		fx.Annotate(newConnector, fx.As(new(player.Connector))),
		newLibrary,
		func(r *library.Resolver) player.Resolver { return r },
		newChatSurface,
		newRegistry,
		remote.NewDispatcher,
		remote.NewServer,
		newHTTPServer,
	),

	fx.Invoke(
		registerLibraryWatch,
		registerHTTP,
		registerAutoJoin,
	),
)

// NewLogger builds the process logger at the configured level.
func NewLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(cfg.GetLogLevel())
	if err != nil {
		return nil, err
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = level
	return zcfg.Build()
}

func newStore(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) (*state.Store, error) {
	store, err := state.Open(cfg.DBPath, state.WithLogger(logger.Named("state")))
	if err != nil {
		return nil, err
	}
	lc.Append(fx.StopHook(store.Close))
	return store, nil
}

func newConnector(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) *player.Local {
	local := player.NewLocal(cfg.GetPlaybackConfig().SampleRate, logger.Named("local"))
	lc.Append(fx.StopHook(local.Close))
	return local
}

func newLibrary(cfg *config.Config, logger *zap.Logger) *library.Resolver {
	return library.New(cfg.LibrarySources, logger.Named("library"))
}

func registerLibraryWatch(lc fx.Lifecycle, cfg *config.Config, lib *library.Resolver) {
	if !cfg.ShouldWatchLibrary() {
		return
	}
	var w *library.Watcher
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			var err error
			w, err = library.Watch(lib, 0)
			return err
		},
		OnStop: func(context.Context) error {
			return w.Close()
		},
	})
}

func newChatSurface(logger *zap.Logger) chatrelay.Surface {
	return chatrelay.LogSurface{Logger: logger.Named("chat")}
}

type registryParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    *config.Config
	Logger    *zap.Logger
	Connector player.Connector
	Resolver  player.Resolver
	Volumes   playback.VolumeStore
	Chat      chatrelay.Surface
}

func newRegistry(p registryParams) *playback.Registry {
	pcfg := p.Config.GetPlaybackConfig()
	channel := p.Config.GetChatConfig().DefaultChannel
	relayLogger := p.Logger.Named("chatrelay")

	opts := []playback.Option{
		playback.WithLogger(p.Logger.Named("playback")),
		playback.WithJoinTimeout(pcfg.JoinTimeout()),
		playback.WithIdleTimeout(pcfg.IdleTimeout()),
		playback.WithDefaultVolume(*pcfg.DefaultVolume),
		playback.WithVolumeStore(p.Volumes),
		playback.WithSessionHook(func(s *playback.Session) {
			chatrelay.Attach(s, channel, p.Chat, relayLogger)
		}),
	}
	if pcfg.ShuffleSeed != nil {
		opts = append(opts, playback.WithShuffleSeed(uint64(*pcfg.ShuffleSeed))) //nolint:gosec // any seed will do
	}

	reg := playback.NewRegistry(p.Connector, p.Resolver, opts...)
	p.Lifecycle.Append(fx.StopHook(func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
		defer cancel()
		return reg.Shutdown(ctx)
	}))
	return reg
}

func registerAutoJoin(lc fx.Lifecycle, cfg *config.Config, reg *playback.Registry, logger *zap.Logger) {
	entries := cfg.GetAutoJoin()
	if len(entries) == 0 {
		return
	}
	lc.Append(fx.StartHook(func(ctx context.Context) {
		for _, e := range entries {
			if _, err := reg.GetOrCreate(ctx, e.Tenant, e.Channel); err != nil {
				logger.Warn("auto join failed",
					zap.String("tenant", e.Tenant),
					zap.String("channel", e.Channel),
					zap.Error(err),
				)
			}
		}
	}))
}
