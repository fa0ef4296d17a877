// Copyright (c) 2026 the datachat authors.
// Licensed under the GNU Affero General Public License v3.0 or later.
// See LICENSE for details.

// Package transport implements C7 Event Transport: a per-session
// websocket connection carrying spec.md's client->server (message,
// auto_analyze, stop) and server->client (status, text, table, plot,
// query_result, session_update, error, done) message grammar.
package transport

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/datachat-oss/datachat/internal/agentloop"
	"github.com/datachat-oss/datachat/internal/dataset"
	"github.com/datachat-oss/datachat/internal/session"
	"github.com/datachat-oss/datachat/internal/tools"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },

	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,
}

// ClientMessage is the wire shape of a client->server frame.
type ClientMessage struct {
	Type string `json:"type"` // "message" | "auto_analyze" | "stop"
	Text string `json:"text,omitempty"`
}

// ServerMessage is the wire shape of a server->client frame.
type ServerMessage struct {
	Type        string         `json:"type"`
	Text        string         `json:"text,omitempty"`
	Payload     map[string]any `json:"payload,omitempty"`
	Reason      string         `json:"reason,omitempty"`
	Aborted     bool           `json:"aborted,omitempty"`
	DataUpdated bool           `json:"data_updated,omitempty"`
	Suggestions []string       `json:"suggestions,omitempty"`
}

// TurnRunner runs one agent-loop turn; Handler depends on this interface
// rather than *agentloop.Loop directly so tests can substitute a fake.
type TurnRunner interface {
	Run(ctx context.Context, sessionID string, profile dataset.Profile, executor *tools.Executor, userText string, isInitialTurn bool, emit agentloop.Emitter) error
}

// SessionContext supplies everything a connection needs to run turns for
// one session: its dataset profile, a bound tool executor, and whether
// the next turn is the session's first.
type SessionContext struct {
	Profile       dataset.Profile
	Executor      *tools.Executor
	IsInitialTurn bool
}

// SessionLoader resolves a session ID into its SessionContext. The
// caller is authenticated by REST-layer middleware before the upgrade;
// neither Handler nor the loader checks that the caller owns the session.
type SessionLoader func(ctx context.Context, sessionID string) (*SessionContext, error)

// wsEmitter adapts a websocket connection into an agentloop.Emitter,
// serializing writes with a mutex since gorilla/websocket connections are
// not safe for concurrent writers.
type wsEmitter struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func (e *wsEmitter) Emit(ev agentloop.Event) {
	e.send(ServerMessage{
		Type:        ev.Type,
		Text:        ev.Text,
		Payload:     ev.Payload,
		Reason:      ev.Reason,
		Aborted:     ev.Aborted,
		DataUpdated: ev.DataUpdated,
		Suggestions: ev.Suggestions,
	})
}

func (e *wsEmitter) send(msg ServerMessage) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ws.WriteJSON(msg); err != nil {
		slog.Warn("transport: failed to write websocket frame", "error", err)
	}
}

// Handler upgrades a request to a websocket and drives one session's
// turns over it until the client disconnects.
func Handler(runner TurnRunner, registry *session.Registry, loadSession SessionLoader) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.Param("id")

		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			slog.Error("transport: upgrade failed", "error", err)
			return
		}
		defer ws.Close()

		emitter := &wsEmitter{ws: ws}

		for {
			var msg ClientMessage
			if err := ws.ReadJSON(&msg); err != nil {
				slog.Info("transport: client disconnected", "session_id", sessionID, "error", err)
				return
			}

			switch msg.Type {
			case "stop":
				if err := registry.Stop(sessionID); err != nil {
					emitter.send(ServerMessage{Type: "error", Text: err.Error()})
				}
				continue
			case "message", "auto_analyze":
				// Acquire the turn lock synchronously, before reading the
				// next frame, so two back-to-back sends are ordered by
				// arrival rather than by goroutine scheduling: the second
				// of two overlapping sends must be the one rejected.
				ctx, release, err := registry.TryAcquire(c.Request.Context(), sessionID)
				if err != nil {
					emitter.send(ServerMessage{Type: "error", Text: err.Error()})
					continue
				}
				go runTurn(ctx, release, runner, loadSession, sessionID, msg, emitter)
			default:
				emitter.send(ServerMessage{Type: "error", Text: "unknown message type: " + msg.Type})
			}
		}
	}
}

func runTurn(ctx context.Context, release func(), runner TurnRunner, loadSession SessionLoader, sessionID string, msg ClientMessage, emitter *wsEmitter) {
	defer release()

	sctx, err := loadSession(ctx, sessionID)
	if err != nil {
		emitter.send(ServerMessage{Type: "error", Text: err.Error()})
		return
	}

	userText := msg.Text
	if msg.Type == "auto_analyze" {
		userText = "Please give me an initial analysis of this dataset."
	}

	if err := runner.Run(ctx, sessionID, sctx.Profile, sctx.Executor, userText, sctx.IsInitialTurn, emitter); err != nil {
		slog.Warn("transport: turn ended with error", "session_id", sessionID, "error", err)
	}
}
