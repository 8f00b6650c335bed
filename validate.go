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
	"net"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/robfig/cron/v3"
	"golang.org/x/mod/semver"
)

//------------------------------------------------------------------------------

func addWarn(r []ValidationResult, msg string) []ValidationResult {
	return append(r, ValidationResult{
		Warn:    true,
		Message: msg,
	})
}

func addError(r []ValidationResult, msg string) []ValidationResult {
	return append(r, ValidationResult{
		Warn:    false,
		Message: msg,
	})
}

//------------------------------------------------------------------------------
// server

var (
	rxPort   = regexp.MustCompile(`:[0-9]+$`)
	rxPrefix = regexp.MustCompile(`^(/[A-Za-z0-9_.-]+)+$`)
)

func (c *ServerConfig) validate() (r []ValidationResult) {
	// Version
	if !semver.IsValid("v" + c.Version) {
		r = addError(r, fmt.Sprintf("invalid schema version %q: must be semver", c.Version))
	} else if semver.Canonical("v"+c.Version) != "v1.0.0" {
		r = addError(r, fmt.Sprintf("incompatible schema version %q", c.Version))
	}
	// Listen
	if len(c.Listen) > 0 {
		l := c.Listen
		if !rxPort.MatchString(c.Listen) {
			l += ":443"
		}
		if host, port, err := net.SplitHostPort(l); err != nil {
			r = addError(r, fmt.Sprintf("invalid listen specification %q", c.Listen))
		} else if nport, err := strconv.Atoi(port); err != nil || nport <= 0 || nport >= 65535 {
			r = addError(r, fmt.Sprintf("invalid listen specification: bad port %q", port))
		} else if host != "" && net.ParseIP(host) == nil {
			r = addError(r, fmt.Sprintf("invalid listen specification: bad IP %q", host))
		}
	}
	// CommonPrefix
	if len(c.CommonPrefix) > 0 {
		if !rxPrefix.MatchString(c.CommonPrefix) {
			r = addError(r, fmt.Sprintf("invalid common prefix %q", c.CommonPrefix))
		}
	}
	// CORS
	if c.CORS != nil {
		r = append(r, c.CORS.validate()...)
	}
	// TLS
	if c.TLS != nil {
		r = append(r, c.TLS.validate()...)
	}
	// Session
	if c.Session != nil {
		r = append(r, c.Session.validate()...)
	}
	// Bus
	if c.Bus != nil {
		r = append(r, c.Bus.validate()...)
	}
	// Tasks
	taskNames := make(map[string]int)
	for i := range c.Tasks {
		taskNames[c.Tasks[i].Name]++
		r = append(r, c.Tasks[i].validate()...)
	}
	for n, cnt := range taskNames {
		if cnt > 1 {
			r = addError(r, fmt.Sprintf("%d scheduled tasks named %q", cnt, n))
		}
	}
	return
}

//------------------------------------------------------------------------------
// server -> cors

var rxMethod = regexp.MustCompile(`^((GET)|(HEAD)|(POST)|(PUT)|(PATCH)|(DELETE))$`)

func (c *CORS) validate() (r []ValidationResult) {
	// AllowedOrigins
	for _, o := range c.AllowedOrigins {
		if n := strings.Count(o, "*"); n > 1 {
			r = addError(r, fmt.Sprintf("cors: allowed origin %q: can use only 1 wildcard",
				o))
		}
	}
	// AllowedMethods
	for _, m := range c.AllowedMethods {
		if !rxMethod.MatchString(m) {
			r = addError(r, fmt.Sprintf("cors: allowed methods: invalid method %q",
				m))
		}
	}
	// MaxAge
	if c.MaxAge != nil && *c.MaxAge <= 0 {
		r = addWarn(r, fmt.Sprintf("cors: max age %d is <=0, will be ignored",
			*c.MaxAge))
	}
	return
}

//------------------------------------------------------------------------------
// server -> tls

func (t *TLSConfig) validate() (r []ValidationResult) {
	kt := strings.ToLower(t.KeyType)
	if kt != "" && kt != "ecdsa" && kt != "rsa" {
		r = addError(r, fmt.Sprintf("tls: invalid keyType %q, must be 'ecdsa' or 'rsa'", t.KeyType))
	}
	if !t.AutoGenerate {
		if len(t.CertFile) == 0 || len(t.KeyFile) == 0 {
			r = addError(r, "tls: certFile and keyFile are required when autoGenerate is false")
		} else {
			if !fileExists(t.CertFile) {
				r = addError(r, fmt.Sprintf("tls: certFile %q does not exist", t.CertFile))
			}
			if !fileExists(t.KeyFile) {
				r = addError(r, fmt.Sprintf("tls: keyFile %q does not exist", t.KeyFile))
			}
		}
	}
	if t.WatchHostname && len(t.CertFile) == 0 {
		r = addError(r, "tls: watchHostname requires certFile to be set")
	}
	return
}

func fileExists(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && fi != nil && fi.Mode().IsRegular()
}

//------------------------------------------------------------------------------
// server -> session

func (s *SessionConfig) validate() (r []ValidationResult) {
	if s.Timeout != nil && *s.Timeout <= 0 {
		r = addWarn(r, fmt.Sprintf("session: timeout %g is <=0, will be ignored", *s.Timeout))
	}
	if s.MaxSessions != nil && *s.MaxSessions <= 0 {
		r = addWarn(r, fmt.Sprintf("session: maxSessions %d is <=0, will be ignored", *s.MaxSessions))
	}
	if len(s.AuthFile) > 0 && !fileExists(s.AuthFile) {
		r = addError(r, fmt.Sprintf("session: authFile %q does not exist", s.AuthFile))
	}
	return
}

//------------------------------------------------------------------------------
// server -> bus

func (b *BusConfig) validate() (r []ValidationResult) {
	if b.CallTimeout != nil && *b.CallTimeout <= 0 {
		r = addWarn(r, fmt.Sprintf("bus: callTimeout %g is <=0, will be ignored", *b.CallTimeout))
	}
	return
}

//------------------------------------------------------------------------------
// server -> task schedule

var stdCronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

var rxName = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_-]*(\.[A-Za-z0-9_][A-Za-z0-9_-]*)*$`)

func (j *TaskSchedule) validate() (r []ValidationResult) {
	if !rxName.MatchString(j.Name) {
		r = addError(r, fmt.Sprintf("task %q: invalid name", j.Name))
	}
	if j.Kind != "hostname-watch" && j.Kind != "task-reaper" {
		r = addError(r, fmt.Sprintf("task %q: invalid kind %q, must be one of 'hostname-watch' or 'task-reaper'",
			j.Name, j.Kind))
	}
	if _, err := stdCronParser.Parse(j.Schedule); err != nil {
		r = addError(r, fmt.Sprintf("task %q: invalid cron schedule: %v", j.Name, err))
	}
	return
}
