package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/eleven-am/voice-relay/internal/transport"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 128
)

type ConnConfig struct {
	StartsPerSecond float64
	StartBurst      int
}

func DefaultConnConfig() ConnConfig {
	return ConnConfig{
		StartsPerSecond: 1,
		StartBurst:      5,
	}
}

// WSConn is one browser socket. It implements transport.EventSink so the
// streaming manager can address events to it directly.
type WSConn struct {
	ws     *websocket.Conn
	id     string
	logger *slog.Logger
	send   chan transport.ServerMessage
	done   chan struct{}
	starts *rate.Limiter

	closeOnce sync.Once
}

func NewWSConn(ws *websocket.Conn, cfg ConnConfig, logger *slog.Logger) *WSConn {
	if cfg.StartsPerSecond <= 0 {
		cfg = DefaultConnConfig()
	}

	id := uuid.NewString()
	return &WSConn{
		ws:     ws,
		id:     id,
		logger: logger.With("conn_id", id),
		send:   make(chan transport.ServerMessage, sendBuffer),
		done:   make(chan struct{}),
		starts: rate.NewLimiter(rate.Limit(cfg.StartsPerSecond), cfg.StartBurst),
	}
}

func (c *WSConn) ID() string {
	return c.id
}

func (c *WSConn) Done() <-chan struct{} {
	return c.done
}

// Send queues msg for the write pump. Messages for a closed socket are
// dropped without error; a full queue waits until ctx expires.
func (c *WSConn) Send(ctx context.Context, msg transport.ServerMessage) error {
	select {
	case <-c.done:
		return nil
	default:
	}

	select {
	case c.send <- msg:
		return nil
	case <-c.done:
		return nil
	case <-ctx.Done():
		c.logger.Warn("send buffer full, dropping message", "type", msg.Type)
		return ctx.Err()
	}
}

func (c *WSConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		err = c.ws.Close()
	})
	return err
}

func (c *WSConn) readPump(ctx context.Context, controller transport.StreamController) {
	defer c.Close()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		default:
		}

		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Error("websocket read error", "error", err)
			}
			return
		}

		var msg transport.ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Debug("dropping malformed message", "error", err)
			continue
		}

		c.handleMessage(ctx, controller, msg)
	}
}

func (c *WSConn) handleMessage(ctx context.Context, controller transport.StreamController, msg transport.ClientMessage) {
	sessionID := msg.SessionID
	if sessionID == "" {
		sessionID = c.id
	}

	switch msg.Type {
	case transport.MessageTypeStartStreaming:
		if !c.starts.Allow() {
			c.reply(ctx, transport.ErrorMessage(sessionID, "too many start requests"))
			return
		}
		if err := controller.Start(c.id, msg.SessionID, msg.URL, c); err != nil {
			c.logger.Info("start rejected", "session_id", sessionID, "error", err)
			c.reply(ctx, transport.ErrorMessage(sessionID, err.Error()))
		}

	case transport.MessageTypeStopStreaming:
		controller.Stop(c.id, msg.SessionID)

	default:
		c.reply(ctx, transport.ErrorMessage(sessionID, "unknown message type"))
	}
}

func (c *WSConn) reply(ctx context.Context, msg transport.ServerMessage) {
	ctx, cancel := context.WithTimeout(ctx, writeWait)
	defer cancel()
	_ = c.Send(ctx, msg)
}

func (c *WSConn) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case msg := <-c.send:
			data, err := json.Marshal(msg)
			if err != nil {
				c.logger.Error("failed to marshal message", "error", err)
				continue
			}

			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Error("websocket write error", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
