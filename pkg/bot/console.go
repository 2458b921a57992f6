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

package bot

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// ConsoleSource reads one message per line for a single local user. "exit",
// "/exit" and "/quit" end the session.
type ConsoleSource struct {
	userID    int64
	firstName string
	lines     chan string
	errs      chan error
	once      sync.Once
	r         *bufio.Reader
	prompt    func(sent bool)
}

// NewConsoleSource reads from r on behalf of userID. prompt, if set, is
// called before every read; sent reports whether the previous line was
// delivered as a message.
func NewConsoleSource(r io.Reader, userID int64, firstName string, prompt func(sent bool)) *ConsoleSource {
	return &ConsoleSource{
		userID:    userID,
		firstName: firstName,
		lines:     make(chan string),
		errs:      make(chan error, 1),
		r:         bufio.NewReader(r),
		prompt:    prompt,
	}
}

// Next blocks for the next non-empty line. Reading happens on a helper
// goroutine so that ctx cancellation is honored while stdin blocks.
func (c *ConsoleSource) Next(ctx context.Context) (Incoming, error) {
	c.once.Do(func() { go c.read() })

	select {
	case <-ctx.Done():
		return Incoming{}, ctx.Err()
	case err := <-c.errs:
		return Incoming{}, err
	case line := <-c.lines:
		in := NewIncoming(c.userID, line)
		in.FirstName = c.firstName
		return in, nil
	}
}

func (c *ConsoleSource) read() {
	sent := false
	for {
		if c.prompt != nil {
			c.prompt(sent)
		}
		line, err := c.r.ReadString('\n')
		line = strings.TrimSpace(line)
		sent = line != ""
		if sent {
			switch line {
			case "exit", "/exit", "/quit":
				c.errs <- io.EOF
				return
			}
			c.lines <- line
		}
		if err != nil {
			c.errs <- err
			return
		}
	}
}

// ConsoleSender writes replies to w. Done is signalled after every reply so
// an interactive prompt can wait for the answer before asking again.
type ConsoleSender struct {
	mu   sync.Mutex
	w    io.Writer
	Done chan struct{}
}

func NewConsoleSender(w io.Writer) *ConsoleSender {
	return &ConsoleSender{w: w, Done: make(chan struct{}, 1)}
}

func (s *ConsoleSender) Send(_ context.Context, out Outgoing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := fmt.Fprintf(s.w, "\n%s\n\n", out.Text); err != nil {
		return err
	}
	select {
	case s.Done <- struct{}{}:
	default:
	}
	return nil
}
