package gateway

import (
	"log/slog"
	"net/http"

	"github.com/eleven-am/voice-relay/internal/transport"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type WSServer struct {
	controller transport.StreamController
	cfg        ConnConfig
	logger     *slog.Logger
}

func NewWSServer(controller transport.StreamController, cfg ConnConfig, logger *slog.Logger) *WSServer {
	return &WSServer{
		controller: controller,
		cfg:        cfg,
		logger:     logger.With("component", "ws_server"),
	}
}

func (s *WSServer) HandleConnection(c echo.Context) error {
	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return err
	}

	conn := NewWSConn(ws, s.cfg, s.logger)
	s.logger.Info("client connected", "conn_id", conn.ID(), "remote", c.RealIP())

	ctx := c.Request().Context()
	_ = conn.Send(ctx, transport.StatusMessage("connected", "connected to server"))

	go conn.writePump(ctx)
	conn.readPump(ctx, s.controller)

	s.controller.StopConnection(conn.ID())
	s.logger.Info("client disconnected", "conn_id", conn.ID())
	return nil
}
