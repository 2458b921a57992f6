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

// Package bot connects a chat transport to the assistant. A Source yields
// inbound messages, the Runner dispatches each one to a Handler on its own
// goroutine and a Sender delivers the reply.
package bot

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/kadirpekel/chatgate/pkg/admin"
)

// Incoming is one message received from a transport.
type Incoming struct {
	ID         string
	UserID     int64
	FirstName  string
	LastName   string
	Text       string
	ReceivedAt time.Time
}

// NewIncoming stamps a message with an ID and the receive time.
func NewIncoming(userID int64, text string) Incoming {
	return Incoming{
		ID:         uuid.NewString(),
		UserID:     userID,
		Text:       text,
		ReceivedAt: time.Now(),
	}
}

// Outgoing is one reply. Menu hints transports that render keyboards.
type Outgoing struct {
	UserID    int64      `json:"user_id"`
	InReplyTo string     `json:"in_reply_to,omitempty"`
	Text      string     `json:"text"`
	Menu      admin.Menu `json:"menu,omitempty"`
}

// Source yields inbound messages. Next returns io.EOF once the source is
// exhausted.
type Source interface {
	Next(ctx context.Context) (Incoming, error)
}

// Sender delivers replies.
type Sender interface {
	Send(ctx context.Context, out Outgoing) error
}

// Handler turns one inbound message into one reply. An empty reply text means
// nothing is sent.
type Handler interface {
	Handle(ctx context.Context, in Incoming) (Outgoing, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, in Incoming) (Outgoing, error)

func (f HandlerFunc) Handle(ctx context.Context, in Incoming) (Outgoing, error) {
	return f(ctx, in)
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, out Outgoing) error

func (f SenderFunc) Send(ctx context.Context, out Outgoing) error {
	return f(ctx, out)
}
