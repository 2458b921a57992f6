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

package observability

const (
	DefaultServiceName  = "chatgate"
	DefaultMetricsPath  = "/metrics"
	DefaultOTLPEndpoint = "localhost:4317"

	// Span names.
	SpanHandleMessage = "chatgate.handle_message"
	SpanBackendCall   = "chatgate.backend_call"
	SpanHTTPRequest   = "chatgate.http_request"

	// Attribute keys.
	AttrUserID         = "chatgate.user_id"
	AttrOutcome        = "chatgate.outcome"
	AttrBackend        = "chatgate.backend"
	AttrModel          = "chatgate.model"
	AttrHistoryLength  = "chatgate.history_length"
	AttrErrorKind      = "error.kind"
	AttrHTTPMethod     = "http.method"
	AttrHTTPRoute      = "http.route"
	AttrHTTPTarget     = "http.target"
	AttrHTTPStatusCode = "http.status_code"
)
