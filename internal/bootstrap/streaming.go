package bootstrap

import (
	"context"
	"log/slog"

	"github.com/eleven-am/voice-relay/internal/gateway"
	"github.com/eleven-am/voice-relay/internal/metrics"
	"github.com/eleven-am/voice-relay/internal/session"
	"github.com/eleven-am/voice-relay/internal/source"
	"github.com/eleven-am/voice-relay/internal/streaming"
	"github.com/eleven-am/voice-relay/internal/transcription"
	"go.uber.org/fx"
)

const userAgent = "voice-relay/" + version

func ProvideDialer(cfg *Config, logger *slog.Logger) *transcription.Dialer {
	return transcription.NewDialer(transcription.Config{
		URL:              cfg.DeepgramStreamURL,
		APIKey:           cfg.DeepgramAPIKey,
		HandshakeTimeout: cfg.StreamConnectTimeout,
	}, logger)
}

func ProvideSourceReader(cfg *Config) *source.Reader {
	return source.NewReader(source.Config{
		ChunkSize: cfg.SourceChunkSize,
		Timeout:   cfg.SourceFetchTimeout,
		UserAgent: userAgent,
	})
}

func ProvideStreamingConfig(cfg *Config) streaming.Config {
	return streaming.Config{
		ConnectTimeout:  cfg.StreamConnectTimeout,
		FinalizeTimeout: cfg.StreamFinalizeTimeout,
		Options: transcription.Options{
			Model:          cfg.DeepgramModel,
			Language:       cfg.DeepgramLanguage,
			Encoding:       cfg.DeepgramEncoding,
			SampleRate:     cfg.DeepgramSampleRate,
			InterimResults: cfg.DeepgramInterimResults,
			SmartFormat:    true,
			Punctuate:      true,
		},
	}
}

func ProvideMetricsCollector(logger *slog.Logger) *metrics.Collector {
	return metrics.NewCollector(logger)
}

func ProvideStreamingManager(
	lc fx.Lifecycle,
	cfg streaming.Config,
	dialer *transcription.Dialer,
	reader *source.Reader,
	store *session.Store,
	collector *metrics.Collector,
	logger *slog.Logger,
) *streaming.Manager {
	m := streaming.NewManager(cfg, dialer, reader, logger,
		streaming.WithRecorder(store),
		streaming.WithObserver(collector),
	)

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return m.Close(ctx)
		},
	})
	return m
}

func ProvideConnConfig(cfg *Config) gateway.ConnConfig {
	connCfg := gateway.DefaultConnConfig()
	if cfg.StartsPerSecond > 0 {
		connCfg.StartsPerSecond = cfg.StartsPerSecond
	}
	if cfg.StartBurst > 0 {
		connCfg.StartBurst = cfg.StartBurst
	}
	return connCfg
}

var StreamingModule = fx.Options(
	fx.Provide(
		ProvideDialer,
		ProvideSourceReader,
		ProvideStreamingConfig,
		ProvideMetricsCollector,
		ProvideStreamingManager,
		ProvideConnConfig,
	),
)
