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

package history

import (
	"fmt"
	"time"
)

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// Message is one conversation turn.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Context is the rolling conversation buffer of one user.
//
// Context is not safe for concurrent use; Manager serializes access per user.
type Context struct {
	UserID      int64     `json:"user_id"`
	Messages    []Message `json:"messages"`
	MaxMessages int       `json:"max_messages"`
}

// NewContext creates an empty context holding at most maxMessages entries.
func NewContext(userID int64, maxMessages int) *Context {
	if maxMessages < 1 {
		maxMessages = 1
	}
	return &Context{
		UserID:      userID,
		Messages:    []Message{},
		MaxMessages: maxMessages,
	}
}

// Append adds a message stamped with the current time and trims on overflow.
func (c *Context) Append(role Role, content string) error {
	if !role.Valid() {
		return fmt.Errorf("invalid role %q", role)
	}
	c.AppendMessage(Message{Role: role, Content: content, Timestamp: time.Now()})
	return nil
}

// AppendMessage adds m as is and trims on overflow.
func (c *Context) AppendMessage(m Message) {
	c.Messages = append(c.Messages, m)
	c.trim()
}

// Clear empties the buffer in place.
func (c *Context) Clear() {
	c.Messages = []Message{}
}

// Snapshot returns a copy of the messages in their current order.
func (c *Context) Snapshot() []Message {
	out := make([]Message, len(c.Messages))
	copy(out, c.Messages)
	return out
}

// Size returns the number of buffered messages.
func (c *Context) Size() int {
	return len(c.Messages)
}

// Resize changes the capacity and trims immediately if needed.
func (c *Context) Resize(maxMessages int) {
	if maxMessages < 1 {
		maxMessages = 1
	}
	c.MaxMessages = maxMessages
	c.trim()
}

// trim keeps every system message followed by the most recent others.
// System messages move to the front, so interleaved system entries do not
// keep their chronological position. If system messages alone exceed the
// capacity, the most recent of them are kept.
func (c *Context) trim() {
	if len(c.Messages) <= c.MaxMessages {
		return
	}

	var system, other []Message
	for _, m := range c.Messages {
		if m.Role == RoleSystem {
			system = append(system, m)
		} else {
			other = append(other, m)
		}
	}

	if len(system) >= c.MaxMessages {
		c.Messages = append([]Message{}, system[len(system)-c.MaxMessages:]...)
		return
	}

	keep := c.MaxMessages - len(system)
	if len(other) > keep {
		other = other[len(other)-keep:]
	}

	trimmed := make([]Message, 0, len(system)+len(other))
	trimmed = append(trimmed, system...)
	trimmed = append(trimmed, other...)
	c.Messages = trimmed
}

func (c *Context) clone() *Context {
	return &Context{
		UserID:      c.UserID,
		Messages:    c.Snapshot(),
		MaxMessages: c.MaxMessages,
	}
}
