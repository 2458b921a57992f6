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
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/kadirpekel/chatgate/pkg/assistant"
)

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithOrdered serializes each user's messages in arrival order. Different
// users are still handled concurrently.
func WithOrdered(ordered bool) RunnerOption {
	return func(r *Runner) { r.ordered = ordered }
}

// Runner reads a Source and handles every message on its own goroutine.
type Runner struct {
	source  Source
	sender  Sender
	handler Handler
	ordered bool

	mu     sync.Mutex
	queues map[int64][]Incoming

	wg sync.WaitGroup
}

// NewRunner creates a runner.
func NewRunner(source Source, sender Sender, handler Handler, opts ...RunnerOption) (*Runner, error) {
	if source == nil {
		return nil, fmt.Errorf("source is required")
	}
	if sender == nil {
		return nil, fmt.Errorf("sender is required")
	}
	if handler == nil {
		return nil, fmt.Errorf("handler is required")
	}
	r := &Runner{
		source:  source,
		sender:  sender,
		handler: handler,
		queues:  make(map[int64][]Incoming),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Run dispatches messages until the source is exhausted or ctx is done, then
// waits for in-flight messages. An exhausted source returns nil.
func (r *Runner) Run(ctx context.Context) error {
	defer r.wg.Wait()

	for {
		msg, err := r.source.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("failed to receive message: %w", err)
		}
		r.dispatch(ctx, msg)
	}
}

func (r *Runner) dispatch(ctx context.Context, msg Incoming) {
	if !r.ordered {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.process(ctx, msg)
		}()
		return
	}

	r.mu.Lock()
	queue, busy := r.queues[msg.UserID]
	r.queues[msg.UserID] = append(queue, msg)
	r.mu.Unlock()
	if busy {
		return
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.drain(ctx, msg.UserID)
	}()
}

// drain handles a user's queue until it is empty. The queue entry stays in
// the map while a message is being processed, which marks the user busy.
func (r *Runner) drain(ctx context.Context, userID int64) {
	for {
		r.mu.Lock()
		queue := r.queues[userID]
		if len(queue) == 0 {
			delete(r.queues, userID)
			r.mu.Unlock()
			return
		}
		msg := queue[0]
		r.queues[userID] = queue[1:]
		r.mu.Unlock()

		r.process(ctx, msg)
	}
}

func (r *Runner) process(ctx context.Context, msg Incoming) {
	out, err := r.handler.Handle(ctx, msg)
	if err != nil {
		slog.Error("Failed to handle message", "user_id", msg.UserID, "message_id", msg.ID, "error", err)
		out = Outgoing{Text: assistant.GenericFailureText}
	}
	if out.Text == "" {
		return
	}
	out.UserID = msg.UserID
	out.InReplyTo = msg.ID
	if err := r.sender.Send(ctx, out); err != nil {
		slog.Error("Failed to send reply", "user_id", msg.UserID, "message_id", msg.ID, "error", err)
	}
}

// Pending returns the number of users with queued or in-flight messages in
// ordered mode.
func (r *Runner) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queues)
}
