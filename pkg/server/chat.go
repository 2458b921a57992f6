// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kadirpekel/chatgate/pkg/admin"
	"github.com/kadirpekel/chatgate/pkg/assistant"
	"github.com/kadirpekel/chatgate/pkg/bot"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPongWait     = 60 * time.Second
	wsPingPeriod   = wsPongWait * 9 / 10
	wsMaxMessage   = 64 << 10
)

type chatRequest struct {
	UserID    int64  `json:"user_id"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Text      string `json:"text"`
}

type chatResponse struct {
	ID   string     `json:"id"`
	Text string     `json:"text"`
	Menu admin.Menu `json:"menu,omitempty"`
}

// handleChat runs one message through the same pipeline as the bot.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.UserID <= 0 {
		writeError(w, http.StatusBadRequest, "user_id must be positive")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	in := bot.NewIncoming(req.UserID, req.Text)
	in.FirstName = req.FirstName
	in.LastName = req.LastName

	out, err := s.svc.Chat.Handle(r.Context(), in)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{ID: in.ID, Text: out.Text, Menu: out.Menu})
}

type wsMessage struct {
	Text string `json:"text"`
}

// handleChatWS keeps a conversation open for the user named by the user_id
// query parameter. Messages are handled one at a time in arrival order.
func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	userID, err := admin.ParseUserID(r.URL.Query().Get("user_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "user_id query parameter is required")
		return
	}
	firstName := r.URL.Query().Get("first_name")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	conn.SetReadLimit(wsMaxMessage)
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	done := make(chan struct{})
	defer close(done)
	go keepAlive(conn, done)

	ctx := r.Context()
	slog.Debug("Websocket chat opened", "user_id", userID)

	for {
		var msg wsMessage
		// Handling a message can outlast the pong window, so the deadline
		// is renewed before every read.
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		if err := conn.ReadJSON(&msg); err != nil {
			var closeErr *websocket.CloseError
			if !errors.As(err, &closeErr) {
				slog.Debug("Websocket read failed", "user_id", userID, "error", err)
			}
			return
		}
		if strings.TrimSpace(msg.Text) == "" {
			continue
		}

		in := bot.NewIncoming(userID, msg.Text)
		in.FirstName = firstName

		resp := chatResponse{ID: in.ID}
		out, err := s.svc.Chat.Handle(ctx, in)
		if err != nil {
			slog.Error("Chat handler failed", "user_id", userID, "error", err)
			resp.Text = assistant.GenericFailureText
		} else {
			resp.Text = out.Text
			resp.Menu = out.Menu
		}
		if resp.Text == "" {
			continue
		}

		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(resp); err != nil {
			return
		}
	}
}

// keepAlive pings conn until done is closed or a ping fails.
func keepAlive(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				return
			}
		}
	}
}
