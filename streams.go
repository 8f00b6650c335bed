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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	dbus "github.com/godbus/dbus/v5"
	"github.com/rs/zerolog"
	"nhooyr.io/websocket"

	"github.com/rapidloop/bmcweb/bus"
	"github.com/rapidloop/bmcweb/respond"
	"github.com/rapidloop/bmcweb/router"
)

//------------------------------------------------------------------------------
// eventDispatcher: fans out D-Bus property-change signals to every
// registered WebSocket/SSE subscriber, as Redfish-shaped event JSON. A
// single dispatcher goroutine serialises registrations against delivery.

type eventDispatcher struct {
	logger zerolog.Logger
	sub    *bus.Subscription
	cmd    chan dispatcherCmd
	wg     sync.WaitGroup
}

func newEventDispatcher(logger zerolog.Logger) *eventDispatcher {
	return &eventDispatcher{
		logger: logger,
		cmd:    make(chan dispatcherCmd, 1),
	}
}

// start subscribes to PropertiesChanged signals bus-wide and begins
// fanning them out. Subscribers receive a stream of resource-changed
// events for as long as their connection is open.
func (d *eventDispatcher) start(ctx context.Context, b *bus.Bus) error {
	sub, err := b.Subscribe(
		dbus.WithMatchInterface(dbusPropertiesInterface),
		dbus.WithMatchMember("PropertiesChanged"),
	)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	d.sub = sub
	d.wg.Add(1)
	go d.run(ctx)
	return nil
}

const dbusPropertiesInterface = "org.freedesktop.DBus.Properties"

// stop tears the dispatcher down. Safe to call even if start failed.
func (d *eventDispatcher) stop() {
	if d.sub != nil {
		d.sub.Cancel()
	}
	d.wg.Wait()
}

const (
	_ = iota
	dispatcherRegister
	dispatcherUnregister
)

type dispatcherCmd struct {
	act    int
	writer *notifWriter
}

func (d *eventDispatcher) register(w *notifWriter)   { d.cmd <- dispatcherCmd{act: dispatcherRegister, writer: w} }
func (d *eventDispatcher) unregister(w *notifWriter) { d.cmd <- dispatcherCmd{act: dispatcherUnregister, writer: w} }

func (d *eventDispatcher) run(ctx context.Context) {
	defer d.wg.Done()
	writers := make(map[*notifWriter]struct{})
	for {
		select {
		case c, ok := <-d.cmd:
			if !ok {
				return
			}
			switch c.act {
			case dispatcherRegister:
				writers[c.writer] = struct{}{}
			case dispatcherUnregister:
				delete(writers, c.writer)
			}
		case sig, ok := <-d.sub.Signals():
			if !ok {
				return
			}
			payload, ok := translateSignal(sig)
			if !ok {
				continue
			}
			for w := range writers {
				w.accept(payload)
			}
		case <-ctx.Done():
			return
		}
	}
}

// translateSignal turns a PropertiesChanged signal into a Redfish Event
// member, serialised as the JSON text pushed to subscribers.
func translateSignal(sig *dbus.Signal) (string, bool) {
	if len(sig.Body) < 2 {
		return "", false
	}
	changed, ok := sig.Body[1].(map[string]dbus.Variant)
	if !ok || len(changed) == 0 {
		return "", false
	}
	props := make(map[string]interface{}, len(changed))
	for k, v := range changed {
		props[k] = v.Value()
	}
	event := map[string]interface{}{
		"EventType":      "PropertyValueModified",
		"EventTimestamp": time.Now().Format(time.RFC3339),
		"OriginOfCondition": map[string]interface{}{
			"@odata.id": string(sig.Path),
		},
		"Properties": props,
	}
	b, err := json.Marshal(event)
	if err != nil {
		return "", false
	}
	return string(b), true
}

//------------------------------------------------------------------------------
// route-level entry points: these satisfy router.UpgradeFunc and
// router.StreamFunc and are what examplesvc wires EventService's
// subscription endpoints to.

// ServeEventStreamWS upgrades the connection to a WebSocket and streams
// every fanned-out event into it until the client disconnects. Matches
// router.UpgradeFunc.
func (s *Server) ServeEventStreamWS(w http.ResponseWriter, httpReq *http.Request, req *respond.Request, params router.Params) {
	s.serveEventStream(w, httpReq, true)
}

// ServeEventStreamSSE streams every fanned-out event as server-sent
// events until the client disconnects. Matches router.StreamFunc.
func (s *Server) ServeEventStreamSSE(w http.ResponseWriter, httpReq *http.Request, req *respond.Request, params router.Params) {
	s.serveEventStream(w, httpReq, false)
}

func (s *Server) serveEventStream(w http.ResponseWriter, httpReq *http.Request, ws bool) {
	logger := s.logger.With().Str("endpoint", httpReq.URL.Path).Bool("websocket", ws).Logger()

	nw := newNotifWriter()
	s.events.register(nw)

	var err error
	if ws {
		err = nw.loopWS(s.bgctx, w, httpReq, nil, false, logger)
	} else {
		err = nw.loopSSE(s.bgctx, w, httpReq, logger)
	}
	if !errors.Is(err, context.Canceled) {
		s.events.unregister(nw)
	}

	if err != nil {
		if msg := err.Error(); strings.Contains(msg, "broken pipe") || strings.Contains(msg, "i/o timeout") {
			err = nil
		}
	}
	if err != nil {
		logger.Error().Err(err).Msg("event stream closed on error")
	}
}

//------------------------------------------------------------------------------
// notifWriter writes event payloads into a websocket or SSE connection.
// It has no dedicated goroutine; its event loop is hosted by the HTTP
// handler goroutine that calls loopWS/loopSSE.

type notifWriter struct {
	q       chan string
	qClosed bool
	qMtx    sync.Mutex
}

// notifWriterBacklog is the max number of events allowed to be pending
// delivery. If a new event arrives and this many are still queued, the
// connection is closed rather than left to buffer unboundedly.
const notifWriterBacklog = 16

func newNotifWriter() *notifWriter {
	return &notifWriter{
		q: make(chan string, notifWriterBacklog),
	}
}

// accept takes in a new event. Must not block; called from the
// dispatcher's goroutine. There is an inherent race between a client
// disconnecting and a new event arriving, so tolerate sending to (or
// closing) an already-closed channel.
func (n *notifWriter) accept(payload string) {
	defer func() {
		if r := recover(); r != nil {
			if err, _ := r.(error); err != nil && err.Error() == "send on closed channel" {
				n.closeQ()
			}
		}
	}()

	select {
	case n.q <- payload:
	default:
		n.closeQ()
	}
}

func (n *notifWriter) closeQ() {
	n.qMtx.Lock()
	if !n.qClosed {
		close(n.q)
		n.qClosed = true
	}
	n.qMtx.Unlock()
}

var (
	notifWriteTimeout = 10 * time.Second
	errTooSlow        = errors.New("aborting connection because it is too slow")
)

// loopWS upgrades the connection and writes queued events into it. Meant
// to be called directly from the HTTP handler goroutine; blocks until
// the client disconnects or an error occurs. The notifWriter must not be
// reused after this returns.
func (n *notifWriter) loopWS(ctx context.Context, w http.ResponseWriter, r *http.Request, origins []string, compression bool, logger zerolog.Logger) error {
	qclosed := false
	defer func() {
		if !qclosed {
			n.closeQ()
		}
	}()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: len(origins) == 0,
		OriginPatterns:     origins,
		CompressionMode:    pick(compression, websocket.CompressionContextTakeover, websocket.CompressionDisabled),
	})
	if err != nil {
		return err
	}
	defer conn.Close(websocket.StatusInternalError, "")

	ctx = conn.CloseRead(ctx)

	for {
		select {
		case payload, ok := <-n.q:
			if !ok {
				conn.Close(websocket.StatusPolicyViolation, "connection too slow")
				qclosed = true
				return errTooSlow
			}
			ctx2, cancel := context.WithTimeout(ctx, notifWriteTimeout)
			err := conn.Write(ctx2, websocket.MessageText, []byte(payload))
			cancel()
			if err != nil {
				if cs := websocket.CloseStatus(err); cs == websocket.StatusNormalClosure || cs == websocket.StatusGoingAway {
					err = nil
				}
				return err
			}
		case <-ctx.Done():
			conn.Close(websocket.StatusGoingAway, "server shutdown")
			return ctx.Err()
		}
	}
}

var (
	notifSSEKeepAliveInterval = time.Minute
	notifSSEKeepAliveComment  = []byte{':', '\n', '\n'}
)

// loopSSE is like loopWS, but for server-sent events.
func (n *notifWriter) loopSSE(ctx context.Context, w http.ResponseWriter, r *http.Request, logger zerolog.Logger) error {
	ticker := time.NewTicker(notifSSEKeepAliveInterval)
	qclosed := false
	defer func() {
		if !qclosed {
			n.closeQ()
		}
		ticker.Stop()
	}()

	flusher, _ := w.(http.Flusher)
	flush := func() {
		if flusher != nil {
			flusher.Flush()
		}
	}
	keepalive := func() error {
		if _, err := w.Write(notifSSEKeepAliveComment); err != nil {
			return err
		}
		flush()
		return nil
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")

	if err := keepalive(); err != nil {
		return err
	}

	for {
		select {
		case <-ticker.C:
			if err := keepalive(); err != nil {
				return err
			}
		case payload, ok := <-n.q:
			if !ok {
				qclosed = true
				return errTooSlow
			}
			for _, line := range strings.Split(payload, "\n") {
				if _, err := fmt.Fprintf(w, "data: %s\n", line); err != nil {
					return err
				}
			}
			if _, err := fmt.Fprintln(w); err != nil {
				return err
			}
			flush()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func pick[T any](cond bool, ifyes, ifno T) T {
	if cond {
		return ifyes
	}
	return ifno
}
