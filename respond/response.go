/*
 * Copyright 2022 RapidLoop, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package respond

import (
	"io"
	"net/http"
)

// CompleteHandler is invoked exactly once, when the owning AsyncResp's
// last reference is released. Layers install themselves with
// SetCompleteRequestHandler, capturing (and usually calling) the previous
// handler, which produces an explicit LIFO handler stack rather than
// implicit composition.
type CompleteHandler func(resp *Response)

// StreamBody describes an opaque streaming payload (a file handle) used
// instead of a JSON document, e.g. for crashdump/attachment downloads.
// When set, query-parameter post-processing is skipped entirely and only
// raw headers apply.
type StreamBody struct {
	Reader        io.ReadSeekCloser
	ContentLength int64
	ContentType   string
}

// Response is the mutable output document a request builds up. Exactly
// one of JSON or Stream may be set; never both.
type Response struct {
	Status  int
	Headers http.Header

	JSON   map[string]any
	Stream *StreamBody

	ETagOverride string // if non-empty, used verbatim instead of a computed ETag

	complete CompleteHandler
}

// NewResponse creates an empty 200-OK JSON response.
func NewResponse() *Response {
	return &Response{
		Status:  http.StatusOK,
		Headers: make(http.Header),
		JSON:    map[string]any{},
	}
}

// SetCompleteRequestHandler installs a new completion handler and returns
// the previous one (nil if none), so the caller can chain to it. Layers
// are expected to call the returned handler from within their own, so
// that they unwind LIFO after the core handler finishes.
func (r *Response) SetCompleteRequestHandler(h CompleteHandler) (previous CompleteHandler) {
	previous = r.complete
	r.complete = h
	return previous
}

// CompleteHandler returns the currently installed completion handler, or
// nil if none has been installed.
func (r *Response) CompleteHandler() CompleteHandler {
	return r.complete
}

// SetStream switches the response to streaming mode, clearing any JSON
// payload (the invariant is enforced here rather than merely documented).
func (r *Response) SetStream(s *StreamBody) {
	r.Stream = s
	r.JSON = nil
}

// IsStreaming reports whether the response carries a streaming body
// rather than a JSON document.
func (r *Response) IsStreaming() bool {
	return r.Stream != nil
}
