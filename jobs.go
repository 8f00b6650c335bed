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
	"time"

	dbus "github.com/godbus/dbus/v5"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/rapidloop/bmcweb/tlsboot"
)

//------------------------------------------------------------------------------
// cron

func newCron(logger zerolog.Logger) *cron.Cron {
	l := loggerForCron{logger}
	return cron.New(cron.WithLogger(&l))
}

type loggerForCron struct {
	logger zerolog.Logger
}

func (l *loggerForCron) Info(msg string, keysAndValues ...interface{}) {
	// too verbose
	/*
		e := l.logger.Info().Bool("crond", true)
		for i := 0; i < len(keysAndValues)/2; i += 2 {
			e = e.Str(fmt.Sprintf("%v", keysAndValues[i]), fmt.Sprintf("%v", keysAndValues[i+1]))
		}
		e.Msg(msg)
	*/
}

func (l *loggerForCron) Error(err error, msg string, keysAndValues ...interface{}) {
	e := l.logger.Error().Err(err).Bool("crond", true)
	for i := 0; i < len(keysAndValues)/2; i += 2 {
		e = e.Str(fmt.Sprintf("%v", keysAndValues[i]), fmt.Sprintf("%v", keysAndValues[i+1]))
	}
	e.Msg(msg)
}

//------------------------------------------------------------------------------
// jobs

// setupJobs wires every entry in cfg.Tasks to its housekeeping routine.
// hostname-watch is started once, as a long-lived goroutine bound to
// s.bgctx, rather than scheduled on its cron tick: the task itself is a
// D-Bus signal subscription, not a poll. task-reaper is scheduled
// normally, on its configured schedule.
func (s *Server) setupJobs() error {
	for i := range s.cfg.Tasks {
		task := &s.cfg.Tasks[i]
		switch task.Kind {
		case "hostname-watch":
			if s.cfg.TLS == nil || !s.cfg.TLS.WatchHostname {
				continue
			}
			watch := tlsboot.NewHostnameWatch(s.subscribeForHostnameWatch, s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile, s.cfg.TLS.KeyType, s.jobLogger(task))
			go watch(s.bgctx)
		case "task-reaper":
			if _, err := s.c.AddFunc(task.Schedule, s.reapStaleSessions(task)); err != nil {
				s.logger.Error().Err(err).Str("task", task.Name).Msg("failed to schedule task")
				return fmt.Errorf("bmcweb: failed to schedule task %q: %w", task.Name, err)
			}
		default:
			return fmt.Errorf("bmcweb: task %q: unknown kind %q", task.Name, task.Kind)
		}
	}
	return nil
}

func (s *Server) jobLogger(task *TaskSchedule) zerolog.Logger {
	return s.logger.With().Str("task", task.Name).Logger()
}

// subscribeForHostnameWatch adapts (*bus.Bus).Subscribe to the narrower
// tlsboot.SubscribeFunc signature (avoids an import cycle between
// tlsboot and bus).
func (s *Server) subscribeForHostnameWatch(options ...dbus.MatchOption) (tlsboot.HostnameSubscription, error) {
	return s.bus.Subscribe(options...)
}

// reapStaleSessions sweeps the session store for idle-timed-out sessions
// on task's schedule, independent of whether anyone
// happens to touch the store via an API request in the meantime.
func (s *Server) reapStaleSessions(task *TaskSchedule) func() {
	return func() {
		t0 := time.Now()
		logger := s.jobLogger(task)
		before := s.sessions.Count()
		n := s.sessions.List()
		if task.Debug {
			logger.Debug().Int("before", before).Int("after", len(n)).
				Float64("elapsed", float64(time.Since(t0))/1e6).
				Msg("task-reaper run completed")
		}
	}
}
