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

package bmcweb_test

import (
	"encoding/json"
	"testing"

	bmcweb "github.com/rapidloop/bmcweb"
	"github.com/stretchr/testify/require"
)

var invalidCfgs = []string{
	`{}`,
	`{"version": "x.y"}`,
	`{"version": "2"}`,
	`{"version": "1", "listen": "example.com:443"}`,
	`{"version": "1", "listen": ":70000"}`,
	`{"version": "1", "listen": "[[::]"}`,
	`{"version": "1", "commonPrefix": "noslash"}`,
	`{"version": "1", "commonPrefix": "/trailing/"}`,
	`{"version": "1", "cors": {"allowedOrigins": ["https://**.example.com"]}}`,
	`{"version": "1", "cors": {"allowedMethods": ["YOLO"]}}`,
	`{"version": "1", "tls": {"keyType": "dsa", "autoGenerate": true, "certFile": "c.pem", "keyFile": "k.pem"}}`,
	`{"version": "1", "tls": {"autoGenerate": false}}`,
	`{"version": "1", "tls": {"autoGenerate": true, "watchHostname": true}}`,
	`{"version": "1", "tasks": [{"name": "t1", "schedule": "@every 1m", "kind": "nope"}]}`,
	`{"version": "1", "tasks": [{"name": "t1", "schedule": "not a schedule", "kind": "task-reaper"}]}`,
	`{"version": "1", "tasks": [{"name": "!!", "schedule": "@every 1m", "kind": "task-reaper"}]}`,
	`{"version": "1", "tasks": [
		{"name": "t1", "schedule": "@every 1m", "kind": "task-reaper"},
		{"name": "t1", "schedule": "@every 2m", "kind": "task-reaper"}]}`,
}

var warnCfgs = []string{
	`{"version": "1", "session": {"timeout": -1}}`,
	`{"version": "1", "session": {"maxSessions": -1}}`,
	`{"version": "1", "bus": {"callTimeout": -2}}`,
	`{"version": "1", "cors": {"maxAge": -5}}`,
}

func TestValidateConfigError(t *testing.T) {
	r := require.New(t)

	for _, raw := range invalidCfgs {
		var cfg bmcweb.ServerConfig
		r.Nil(json.Unmarshal([]byte(raw), &cfg), raw)
		if err := cfg.IsValid(); err == nil {
			t.Fatalf("invalid config passes:\n%s\n", raw)
		} else {
			t.Logf("error (expected): %v", err)
		}
	}
}

func TestValidateConfigWarn(t *testing.T) {
	r := require.New(t)

	for _, raw := range warnCfgs {
		var cfg bmcweb.ServerConfig
		r.Nil(json.Unmarshal([]byte(raw), &cfg), raw)
		count := 0
		for _, vr := range cfg.Validate() {
			r.True(vr.Warn, vr.Message)
			r.Greater(len(vr.Message), 0)
			t.Logf("warning (expected): %s", vr.Message)
			count++
		}
		r.Greater(count, 0, "at least 1 warning was expected")
	}
}

func TestValidateConfigOK(t *testing.T) {
	r := require.New(t)

	raw := `{
		"version": "1",
		"listen": "127.0.0.1:8443",
		"commonPrefix": "/bmc",
		"compression": true,
		"cors": {"allowedOrigins": ["https://*.example.com"], "maxAge": 3600},
		"tls": {"certFile": "c.pem", "keyFile": "k.pem", "keyType": "ecdsa", "autoGenerate": true, "watchHostname": true},
		"session": {"timeout": 600, "maxSessions": 32},
		"bus": {"callTimeout": 10},
		"features": {"expandEnabled": true},
		"tasks": [
			{"name": "hostname-watch", "schedule": "@every 1h", "kind": "hostname-watch"},
			{"name": "task-reaper", "schedule": "@every 5m", "kind": "task-reaper", "debug": true}
		]
	}`
	var cfg bmcweb.ServerConfig
	r.Nil(json.Unmarshal([]byte(raw), &cfg))
	r.Nil(cfg.IsValid())
	r.Empty(cfg.Validate())
}
