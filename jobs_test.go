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
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/rapidloop/bmcweb/router"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestCronLogger(t *testing.T) {
	r := require.New(t)

	var buf bytes.Buffer
	l := loggerForCron{logger: zerolog.New(&buf)}

	l.Info("tick", "job", "j1")
	r.Zero(buf.Len())

	l.Error(errors.New("broke"), "job failed", "job", "j1")
	r.Contains(buf.String(), "crond")
	r.Contains(buf.String(), "broke")

	c := newCron(zerolog.New(&buf))
	r.NotNil(c)
	_, err := c.AddFunc("@every 1h", func() {})
	r.Nil(err)
}

func TestReapStaleSessions(t *testing.T) {
	r := require.New(t)

	timeout := 0.05 // seconds
	cfg := &ServerConfig{
		Version: "1",
		Session: &SessionConfig{Timeout: &timeout},
	}
	s, err := NewServer(cfg, router.NewTable(), nil)
	r.Nil(err)

	_, err = s.sessions.Create("admin", []string{"Login"}, "")
	r.Nil(err)
	r.Equal(1, s.sessions.Count())

	task := &TaskSchedule{Name: "task-reaper", Schedule: "@every 1s", Kind: "task-reaper", Debug: true}
	time.Sleep(100 * time.Millisecond)
	s.reapStaleSessions(task)()
	r.Equal(0, s.sessions.Count())
}

func TestSetupJobsScheduling(t *testing.T) {
	r := require.New(t)

	cfg := &ServerConfig{
		Version: "1",
		Tasks: []TaskSchedule{
			// hostname-watch with no TLS watch configured: skipped
			{Name: "hostname-watch", Schedule: "@every 1h", Kind: "hostname-watch"},
			{Name: "task-reaper", Schedule: "@every 5m", Kind: "task-reaper"},
		},
	}
	s, err := NewServer(cfg, router.NewTable(), nil)
	r.Nil(err)
	s.c = newCron(s.logger)
	r.Nil(s.setupJobs())

	// an unparseable schedule surfaces as an error from setupJobs
	s.cfg.Tasks = []TaskSchedule{
		{Name: "bad", Schedule: "not a schedule", Kind: "task-reaper"},
	}
	r.NotNil(s.setupJobs())
}
