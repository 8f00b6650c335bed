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

// Package respond implements the request/response/AsyncResp trio: a
// read-only Request view, a mutable Response document, and the
// reference-counted AsyncResp that binds a Response's lifecycle to the
// asynchronous bus operations a handler fans out to.
package respond

import (
	"net/url"
	"strings"
)

// Session is the minimal view of an authenticated session a Request
// carries. Session persistence and the login flow live in package
// session; Request only needs to read the fields handlers check.
type Session struct {
	ID         string
	Username   string
	Privileges []string
}

// HasPrivileges reports whether the session carries every privilege in
// want (an AND of all required privileges).
func (s *Session) HasPrivileges(want []string) bool {
	if s == nil {
		return len(want) == 0
	}
	have := make(map[string]bool, len(s.Privileges))
	for _, p := range s.Privileges {
		have[p] = true
	}
	for _, w := range want {
		if !have[w] {
			return false
		}
	}
	return true
}

// Request is a read-only view over a parsed HTTP message. It must not be
// mutated by handlers; a synthetic If-Match replay is built by cloning
// one with WithoutHeader.
type Request struct {
	Method   string
	Path     string     // decoded path, e.g. "/redfish/v1/Chassis/1"
	RawQuery string     // raw query string, order-preserving
	Query    url.Values // parsed query (lossy w.r.t. order/valueless keys; see query package for the Redfish-specific parse)
	Headers  map[string][]string
	Body     []byte

	Session  *Session
	ClientIP string
	PeerCN   string // peer certificate common name, if mutual TLS
	IsSecure bool

	Scheme string // "http" or "https", derived from IsSecure
	Host   string // Host header, used to build absolute redirect Locations
}

// Header returns the first value of the named header, case-insensitively.
func (r *Request) Header(name string) string {
	vs := r.Headers[strings.ToLower(name)]
	if len(vs) == 0 {
		return ""
	}
	return vs[0]
}

// WithoutHeader returns a deep copy of the request with the named header
// removed. Used by the If-Match replay to present a clean context to
// the re-invoked handler pipeline.
func (r *Request) WithoutHeader(name string) *Request {
	clone := *r
	clone.Headers = make(map[string][]string, len(r.Headers))
	key := strings.ToLower(name)
	for k, v := range r.Headers {
		if k == key {
			continue
		}
		clone.Headers[k] = append([]string(nil), v...)
	}
	clone.Body = append([]byte(nil), r.Body...)
	return &clone
}

// AbsoluteURL assembles scheme://host+path, used for trailing-slash
// redirect Locations.
func (r *Request) AbsoluteURL(path string) string {
	scheme := "http"
	if r.IsSecure {
		scheme = "https"
	}
	return scheme + "://" + r.Host + path
}
