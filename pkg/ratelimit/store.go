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

package ratelimit

import (
	"context"
	"time"
)

// UpdateFunc receives the timestamps recorded for a key, oldest first, and
// returns the slice to persist.
type UpdateFunc func(timestamps []time.Time) []time.Time

// RecordStore persists per-key event timestamps.
//
// Update must run fn atomically with respect to other Updates of the same key.
// Implementations must be safe for concurrent use.
type RecordStore interface {
	// Update loads the record for key, applies fn and stores the result.
	// Unknown keys start with an empty record. An empty result removes the
	// record in the same critical section.
	Update(ctx context.Context, key string, fn UpdateFunc) error

	// Load returns a copy of the record for key. Unknown keys yield nil.
	Load(ctx context.Context, key string) ([]time.Time, error)

	// Delete removes the record for key. Unknown keys are not an error.
	Delete(ctx context.Context, key string) error

	// Keys lists every key with a record.
	Keys(ctx context.Context) ([]string, error)

	// Close releases resources held by the store.
	Close() error
}
