package gateway

import (
	"log/slog"

	"github.com/eleven-am/voice-relay/internal/streaming"
	"github.com/eleven-am/voice-relay/internal/transport"
	"go.uber.org/fx"
)

func ProvideStreamController(m *streaming.Manager) transport.StreamController {
	return m
}

func ProvideWSServer(controller transport.StreamController, cfg ConnConfig, logger *slog.Logger) *WSServer {
	return NewWSServer(controller, cfg, logger)
}

func ProvideHandler(wsServer *WSServer) *Handler {
	return NewHandler(wsServer)
}

var Module = fx.Options(
	fx.Provide(
		ProvideStreamController,
		ProvideWSServer,
		ProvideHandler,
	),
)
