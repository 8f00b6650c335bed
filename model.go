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

package bmcweb

import (
	"fmt"
	"strings"
)

// SchemaVersion is the semver version of the schema of the server's
// configuration file. Currently this is v1.0.0.
const SchemaVersion = "1.0.0"

//------------------------------------------------------------------------------
// core

// ServerConfig is the entirety of the configuration supplied to the
// management server. It is typically deserialized in from a .json or
// .yaml file.
type ServerConfig struct {
	// Version indicates the version of the schema according to which the
	// other fields in this structure should be interpreted. This is in
	// the semver syntax (a trailing `.0` or `.0.0` may be omitted). This
	// field is required, and validation will fail without it.
	Version string `json:"version"`

	// Listen indicates the `IP` or `IP:port` for the server to bind to and
	// listen on. If the IP is omitted, the server will bind to all interfaces.
	// If port is omitted, it defaults to 443. IP may be an IPv4 or IPv6
	// literal. Hostnames are not allowed. When specifying an IPv6 literal
	// along with a port, enclose the IPv6 literal within square brackets.
	// Examples: `127.0.0.1:8443`, `[::]:443`, `:443`, `0.0.0.0:443`
	Listen string `json:"listen,omitempty"`

	// CommonPrefix, if set, is prefixed to the Redfish service root path
	// (normally `/redfish/v1`). Must begin with a slash and must not end
	// with one. Rarely needed; present for deployments fronted by a
	// reverse proxy that mounts the service below a sub-path.
	CommonPrefix string `json:"commonPrefix,omitempty"`

	// CORS specifies the Cross Origin Resource Sharing configuration for
	// the server. Optional, but note that CORS headers will not be added
	// if this is not configured (and therefore the APIs may not be
	// callable from browsers). See the documentation of the CORS struct.
	CORS *CORS `json:"cors,omitempty"`

	// Compression enables transparent gzip/deflate content encoding of
	// outgoing responses when the client request indicates support for
	// it. Applies to the server as a whole.
	Compression bool `json:"compression,omitempty"`

	// TLS configures the server's certificate and key, including
	// first-boot auto-generation. Optional; when omitted, the server
	// listens without TLS and no certificate is generated.
	TLS *TLSConfig `json:"tls,omitempty"`

	// Session configures the authenticated-session store.
	Session *SessionConfig `json:"session,omitempty"`

	// Bus configures the connection to the object-broker bus this server
	// is a client of.
	Bus *BusConfig `json:"bus,omitempty"`

	// Features toggles optional, build-time-flagged behavior such as
	// $expand support.
	Features *FeatureFlags `json:"features,omitempty"`

	// Tasks lists housekeeping jobs: the hostname-watch D-Bus subscriber
	// (started once, independent of its Schedule) and cron-scheduled
	// maintenance such as sweeping idle-timed-out sessions.
	// Optional.
	Tasks []TaskSchedule `json:"tasks,omitempty"`
}

// Validate the entire configuration. Returns a list of errors and warnings.
func (c *ServerConfig) Validate() (r []ValidationResult) {
	return c.validate()
}

// IsValid performs validation (calls Validate() internally) and returns an
// error if the validation finds at least one error. All errors are
// formatted into a single error message, and warnings are not included.
// For better formatting use the Validate() method directly.
func (c *ServerConfig) IsValid() error {
	var a []string
	for _, r := range c.Validate() {
		if !r.Warn {
			a = append(a, r.Message)
		}
	}
	if len(a) > 0 {
		return fmt.Errorf("%d errors: %s", len(a), strings.Join(a, "; "))
	}
	return nil
}

// ValidationResult holds one entry of the results of validation. The
// Validate method of ServerConfig returns a slice of these.
type ValidationResult struct {
	// Warn is true if the message is a warning, else it is an error.
	Warn bool

	// Message is the actual textual message describing the error or warning.
	Message string
}

//------------------------------------------------------------------------------
// cors

// CORS specifies the Cross Origin Resource Sharing configuration for the
// server.
type CORS struct {
	// AllowedOrigins is a list of origins a cross-domain request can be
	// executed from. If the special `*` value is present in the list, all
	// origins will be allowed. An origin may contain a wildcard (*) to
	// replace 0 or more characters (i.e.: https://*.domain.com). Only one
	// wildcard can be used per origin. Default value is [`*`].
	AllowedOrigins []string `json:"allowedOrigins,omitempty"`

	// AllowedMethods is a list of methods the client is allowed to use
	// with cross-domain requests. Default value is [`HEAD`, `GET`, `POST`,
	// `PUT`, `PATCH`, `DELETE`].
	AllowedMethods []string `json:"allowedMethods,omitempty"`

	// AllowedHeaders is a list of non-simple headers the client is
	// allowed to use with cross-domain requests. If the special `*` value
	// is present in the list, all headers will be allowed. `Origin` is
	// always appended to the list.
	AllowedHeaders []string `json:"allowedHeaders,omitempty"`

	// ExposedHeaders indicates which headers are safe to expose to the
	// API of a CORS API specification.
	ExposedHeaders []string `json:"exposedHeaders,omitempty"`

	// AllowCredentials indicates whether the request can include user
	// credentials like cookies, HTTP authentication or client side SSL
	// certificates.
	AllowCredentials bool `json:"allowCredentials,omitempty"`

	// MaxAge indicates how long (in seconds) the results of a preflight
	// request can be cached without sending another preflight request.
	MaxAge *int `json:"maxAge,omitempty"`

	// Debug enables logging of CORS-related decisions for every request.
	Debug bool `json:"debug,omitempty"`
}

//------------------------------------------------------------------------------
// tls

// TLSConfig configures the server's listening certificate. If CertFile and
// KeyFile do not exist at startup and AutoGenerate is true, a self-signed
// certificate is generated and written to those paths.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded server certificate.
	CertFile string `json:"certFile,omitempty"`

	// KeyFile is the path to the PEM-encoded private key matching CertFile.
	KeyFile string `json:"keyFile,omitempty"`

	// KeyType selects the key algorithm used when auto-generating a
	// certificate: `ecdsa` (default) or `rsa`.
	KeyType string `json:"keyType,omitempty"`

	// AutoGenerate enables generating a self-signed certificate on first
	// boot if CertFile/KeyFile are absent. When false (the default),
	// validation fails unless both files already exist.
	AutoGenerate bool `json:"autoGenerate,omitempty"`

	// WatchHostname enables the hostname-watch service: the server
	// certificate is regenerated whenever the system hostname changes.
	WatchHostname bool `json:"watchHostname,omitempty"`
}

//------------------------------------------------------------------------------
// session

// SessionConfig configures the authenticated-session store.
type SessionConfig struct {
	// StorePath is the directory session state is persisted under. Its
	// on-disk format is implementation-defined.
	StorePath string `json:"storePath,omitempty"`

	// Timeout is the idle session timeout in seconds. If <= 0 or
	// omitted, defaults to 1800 (30 minutes).
	Timeout *float64 `json:"timeout,omitempty"`

	// MaxSessions bounds the number of concurrently active sessions. A
	// login attempt beyond this limit fails with ResourceExhaustion. If
	// <= 0 or omitted, defaults to 16.
	MaxSessions *int `json:"maxSessions,omitempty"`

	// AuthFile is the path to the local-account file used to answer HTTP
	// Basic authentication: one `username:bcrypt-hash[:priv1,priv2]` line
	// per account. If empty, Basic authentication is disabled and only
	// X-Auth-Token sessions are accepted.
	AuthFile string `json:"authFile,omitempty"`
}

//------------------------------------------------------------------------------
// bus

// BusConfig configures the connection to the object-broker bus.
type BusConfig struct {
	// Address overrides the system bus address the server connects to.
	// Normally omitted; the default platform system-bus address is used.
	// Mainly useful in tests, against a private bus instance.
	Address string `json:"address,omitempty"`

	// CallTimeout bounds every bus call issued through the facade when
	// the caller's context carries no deadline of its own, in seconds.
	// If <= 0 or omitted, defaults to 30.
	CallTimeout *float64 `json:"callTimeout,omitempty"`
}

//------------------------------------------------------------------------------
// feature flags

// FeatureFlags toggles optional behavior that would otherwise be fixed
// at build time.
type FeatureFlags struct {
	// ExpandEnabled gates $expand support. When false, any request
	// carrying $expand is rejected with 501 QueryNotSupported.
	ExpandEnabled bool `json:"expandEnabled,omitempty"`

	// AggregationService enables the AggregationService sub-tree.
	AggregationService bool `json:"aggregationService,omitempty"`
}

//------------------------------------------------------------------------------
// scheduled housekeeping

// TaskSchedule represents a single housekeeping job: the hostname-watch
// D-Bus subscriber, idle-session reaping, and similar recurring maintenance
// that isn't itself a Redfish Task.
type TaskSchedule struct {
	// Name uniquely identifies a scheduled job. Examples: `hostname-watch`,
	// `task-reaper`.
	Name string `json:"name"`

	// Schedule is the CRON-style 5-part schedule for the job.
	// Additionally, strings like `@every 5m` are also accepted. Ignored
	// for Kind `hostname-watch`, which runs continuously from startup
	// instead of on a tick, but still required by validation for schema
	// uniformity across task kinds.
	Schedule string `json:"schedule"`

	// Kind selects which built-in housekeeping routine runs: one of
	// `hostname-watch` or `task-reaper`.
	Kind string `json:"kind"`

	// Debug enables debug logging of every run of this job.
	Debug bool `json:"debug,omitempty"`
}
