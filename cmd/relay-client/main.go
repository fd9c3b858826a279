package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/eleven-am/voice-relay/internal/transport"
	"github.com/gorilla/websocket"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: relay-client <audio-url> [session-id]")
		os.Exit(2)
	}
	audioURL := os.Args[1]
	sessionID := "cli"
	if len(os.Args) > 2 {
		sessionID = os.Args[2]
	}

	relayURL := os.Getenv("RELAY_URL")
	if relayURL == "" {
		relayURL = "ws://localhost:8080/v1/stream/ws"
	}

	u, err := url.Parse(relayURL)
	if err != nil {
		log.Fatal("relay url:", err)
	}

	conn, resp, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		if resp != nil {
			body, _ := io.ReadAll(resp.Body)
			fmt.Fprintf(os.Stderr, "dial failed: %v, status=%d, body=%s\n", err, resp.StatusCode, string(body))
		}
		log.Fatal("dial:", err)
	}
	defer conn.Close()

	start := transport.ClientMessage{
		Type:      transport.MessageTypeStartStreaming,
		SessionID: sessionID,
		URL:       audioURL,
	}
	if err := conn.WriteJSON(start); err != nil {
		log.Fatal("start:", err)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		stop := transport.ClientMessage{Type: transport.MessageTypeStopStreaming, SessionID: sessionID}
		if err := conn.WriteJSON(stop); err != nil {
			conn.Close()
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			fmt.Fprintf(os.Stderr, "read error: %v\n", err)
			os.Exit(1)
		}

		var msg transport.ServerMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			fmt.Fprintf(os.Stderr, "unmarshal error: %v\n", err)
			continue
		}

		switch msg.Type {
		case transport.MessageTypeStatus:
			fmt.Fprintf(os.Stderr, "[%s] %s\n", msg.Status, msg.Message)
		case transport.MessageTypeTranscript:
			marker := "~"
			if msg.IsFinal {
				marker = "="
			}
			fmt.Printf("%s %s\n", marker, msg.Transcript)
		case transport.MessageTypeError:
			fmt.Fprintf(os.Stderr, "error: %s\n", msg.Error)
			os.Exit(1)
		case transport.MessageTypeDone:
			return
		}
	}
}
