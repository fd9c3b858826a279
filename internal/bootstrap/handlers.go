package bootstrap

import (
	"context"
	"log/slog"
	"os"

	"github.com/eleven-am/voice-relay/internal/audio"
	"github.com/eleven-am/voice-relay/internal/gateway"
	"github.com/eleven-am/voice-relay/internal/metrics"
	"github.com/eleven-am/voice-relay/internal/session"
	"github.com/eleven-am/voice-relay/internal/synthesis"
	"github.com/labstack/echo/v4"
	"go.uber.org/fx"
)

type HandlerParams struct {
	fx.In

	StreamHandler  *gateway.Handler
	AudioHandler   *audio.Handler
	SessionHandler *session.Handler
	Metrics        *metrics.Collector
	Config         *Config
}

func RegisterRoutes(lc fx.Lifecycle, e *echo.Echo, params HandlerParams) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})

	limiter := gateway.RateLimiter(ctx, gateway.RateLimiterConfig{
		RequestsPerSecond: params.Config.RateLimitRPS,
		Burst:             params.Config.RateLimitBurst,
	})

	e.Use(params.Metrics.Middleware())
	e.GET("/metrics", echo.WrapHandler(params.Metrics.Handler()))

	api := e.Group("/v1")
	params.StreamHandler.RegisterRoutes(api.Group("/stream"))
	params.AudioHandler.RegisterRoutes(api.Group("/audio", limiter))
	params.SessionHandler.RegisterRoutes(api.Group("", limiter))

	e.Static("/assets", params.Config.StaticDir)
	e.GET("/*", func(c echo.Context) error {
		return c.File(params.Config.IndexHTML)
	})
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func ProvideLogger(cfg *Config) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)
	return logger
}

func ProvideBatchClient(cfg *Config, logger *slog.Logger) *audio.BatchClient {
	return audio.NewBatchClient(audio.BatchConfig{
		APIURL:  cfg.DeepgramAPIURL,
		APIKey:  cfg.DeepgramAPIKey,
		Model:   cfg.DeepgramModel,
		Timeout: cfg.RequestTimeout,
	}, logger)
}

func ProvideTTSClient(cfg *Config, logger *slog.Logger) *synthesis.Client {
	return synthesis.New(synthesis.Config{
		APIURL:  cfg.DeepgramAPIURL,
		APIKey:  cfg.DeepgramAPIKey,
		Model:   cfg.DeepgramSpeakModel,
		Timeout: cfg.RequestTimeout,
	}, logger)
}

func ProvideAudioHandler(stt *audio.BatchClient, tts *synthesis.Client, cfg *Config, logger *slog.Logger) *audio.Handler {
	return audio.NewHandler(stt, tts, cfg.DeepgramLanguage, logger)
}

func ProvideSessionHandler(store *session.Store, logger *slog.Logger) *session.Handler {
	return session.NewHandler(store, logger)
}

var HandlersModule = fx.Options(
	fx.Provide(
		ProvideBatchClient,
		ProvideTTSClient,
		ProvideAudioHandler,
		ProvideSessionHandler,
	),
	fx.Invoke(RegisterRoutes),
)
