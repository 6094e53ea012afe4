package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/genricoloni/nowplaying/internal/channel"
	"github.com/genricoloni/nowplaying/internal/codec"
	"github.com/genricoloni/nowplaying/internal/config"
	"github.com/genricoloni/nowplaying/internal/coordinator"
	"github.com/genricoloni/nowplaying/internal/domain"
	"github.com/genricoloni/nowplaying/internal/fetcher"
	"github.com/genricoloni/nowplaying/internal/metadata"
	"github.com/genricoloni/nowplaying/internal/monitor"
	"github.com/genricoloni/nowplaying/internal/processor"
	"github.com/genricoloni/nowplaying/internal/transport"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// AppOptions is the complete dependency graph of the daemon
var AppOptions = fx.Options(
	fx.Provide(
		config.NewAppConfig,
		newLogger,
		monitor.NewDisplaySize,

		fx.Annotate(monitor.NewMprisMonitor, fx.As(new(domain.EventSource))),
		fx.Annotate(newMetadataLookup, fx.As(new(domain.MetadataLookup))),
		fx.Annotate(newArtworkFetcher, fx.As(new(domain.ArtworkFetcher))),
		fx.Annotate(processor.NewInteractiveRenderer, fx.As(new(domain.Renderer))),
		fx.Annotate(processor.NewAmbientProcessor, fx.As(new(domain.AmbientTransformer))),
		fx.Annotate(newAssetCodec, fx.As(new(domain.AssetCodec))),
		newTransport,
		fx.Annotate(newChannel, fx.As(new(domain.CompanionChannel))),
		newCoordinator,
	),
	fx.Invoke(registerHooks),
)

func main() {
	app := fx.New(
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
		AppOptions,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := app.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "nowplaying: %v\n", err)
		os.Exit(1)
	}

	<-ctx.Done()

	if err := app.Stop(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "nowplaying: shutdown: %v\n", err)
		os.Exit(1)
	}
}

// newLogger builds a production logger at the configured level
func newLogger(cfg *config.AppConfig) (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log_level: %w", err)
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = level
	return zcfg.Build()
}

func newMetadataLookup(logger *zap.Logger, cfg *config.AppConfig) *metadata.SpotifyLookup {
	return metadata.NewSpotifyLookup(logger, metadata.SpotifyConfig{
		BaseURL:      cfg.MetadataURL,
		ClientID:     cfg.SpotifyClientID,
		ClientSecret: cfg.SpotifyClientSecret,
		TokenURL:     cfg.SpotifyTokenURL,
	})
}

func newArtworkFetcher(logger *zap.Logger, lookup domain.MetadataLookup, cfg *config.AppConfig) *fetcher.ArtworkFetcher {
	return fetcher.NewArtworkFetcher(logger, lookup, cfg.MinDimension)
}

func newAssetCodec(logger *zap.Logger, cfg *config.AppConfig) *codec.AssetCodec {
	return codec.NewAssetCodec(logger, codec.Options{
		Format:  cfg.EncodeFormat,
		Quality: cfg.EncodeQuality,
	})
}

// newTransport selects how the companion's data slots are reached
func newTransport(logger *zap.Logger, cfg *config.AppConfig) (domain.Transport, error) {
	switch cfg.Transport {
	case "file":
		return transport.NewFileTransport(logger, cfg.CompanionDir, cfg.HookCommand), nil
	case "websocket":
		return transport.NewWebSocketTransport(logger, cfg.CompanionURL), nil
	case "memory":
		logger.Warn("Memory transport selected, assets will not leave the process")
		return transport.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unsupported transport %q", cfg.Transport)
	}
}

func newChannel(logger *zap.Logger, t domain.Transport, cfg *config.AppConfig) *channel.Channel {
	return channel.NewChannel(logger, t, channel.Options{
		SlotPath:          cfg.SlotPath,
		AmbientSlotPath:   cfg.AmbientSlotPath,
		FieldName:         cfg.FieldName,
		DeleteBeforeWrite: cfg.DeleteBeforeWrite,
		ConnectTimeout:    cfg.ConnectTimeout,
	})
}

func newCoordinator(
	logger *zap.Logger,
	cfg *config.AppConfig,
	source domain.EventSource,
	fetch domain.ArtworkFetcher,
	renderer domain.Renderer,
	ambient domain.AmbientTransformer,
	enc domain.AssetCodec,
	ch domain.CompanionChannel,
) *coordinator.Coordinator {
	return coordinator.NewCoordinator(logger, source, fetch, renderer, ambient, enc, ch, coordinator.Options{
		Workers:        cfg.Workers,
		AmbientEnabled: cfg.AmbientEnabled,
		RetryInterval:  cfg.RetryInterval,
	})
}

// registerHooks starts the event source and the coordinator, and stops them in reverse
func registerHooks(
	lc fx.Lifecycle,
	logger *zap.Logger,
	cfg *config.AppConfig,
	display *domain.DisplaySize,
	source domain.EventSource,
	coord *coordinator.Coordinator,
) {
	sourceCtx, cancelSource := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("Configuration loaded",
				zap.String("transport", cfg.Transport),
				zap.Int("minDimension", cfg.MinDimension),
				zap.Int("displayWidth", display.Width),
				zap.String("format", cfg.EncodeFormat),
				zap.Int("quality", cfg.EncodeQuality),
				zap.Bool("deleteBeforeWrite", cfg.DeleteBeforeWrite),
				zap.Bool("ambient", cfg.AmbientEnabled))

			if err := coord.Start(ctx); err != nil {
				return err
			}

			// Start blocks for the lifetime of the source
			go func() {
				if err := source.Start(sourceCtx); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("Event source stopped", zap.Error(err))
				}
			}()

			logger.Info("nowplaying daemon started")
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("Shutting down")
			cancelSource()
			err := multierr.Combine(
				coord.Stop(ctx),
				source.Stop(ctx),
			)
			_ = logger.Sync()
			return err
		},
	})
}
