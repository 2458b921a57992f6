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

package assistant

import "fmt"

// QuotaExhaustedText is the reply once a user has no requests left.
const QuotaExhaustedText = "❌ You have used all of your requests. Ask the administrator to raise your limit."

// GenericFailureText is the reply when a store fails mid-message.
const GenericFailureText = "❌ Something went wrong while processing your request. Please try again later."

// RateLimitedText renders the wait message for a denied message.
func RateLimitedText(seconds int) string {
	return fmt.Sprintf("⏳ Too many requests! Try again in %d seconds.", seconds)
}

// Footer is appended to every answered reply.
func Footer(remaining int) string {
	return fmt.Sprintf("\n\n💡 Requests left: %d", remaining)
}
