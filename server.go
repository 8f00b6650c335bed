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
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"github.com/rapidloop/bmcweb/bus"
	"github.com/rapidloop/bmcweb/query"
	"github.com/rapidloop/bmcweb/redfishmsg"
	"github.com/rapidloop/bmcweb/respond"
	"github.com/rapidloop/bmcweb/router"
	"github.com/rapidloop/bmcweb/session"
	"github.com/rapidloop/bmcweb/tlsboot"
)

const (
	readTimeout  = time.Minute
	writeTimeout = 5 * time.Minute
	idleTimeout  = 2 * time.Minute
)

// Server is the management HTTP server: it owns the route table, the
// bus facade, the session store and the cron-scheduled housekeeping
// jobs, and runs the per-request dispatch algorithm that wires them
// together. It implements http.Handler.
type Server struct {
	cfg    *ServerConfig
	table  *router.Table
	logger zerolog.Logger

	bus      *bus.Bus
	sessions *session.Store
	creds    *session.Credentials
	events   *eventDispatcher

	srv         *http.Server
	c           *cron.Cron
	bgctx       context.Context
	bgctxcancel context.CancelFunc

	metrics serverMetrics
}

type serverMetrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

func newServerMetrics() serverMetrics {
	return serverMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bmcweb_requests_total",
			Help: "Total HTTP requests processed, by route and status class.",
		}, []string{"route", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "bmcweb_request_duration_seconds",
			Help: "Request handling latency, by route.",
		}, []string{"route"}),
	}
}

// NewServer creates a Server from a validated configuration and a fully
// populated, not-yet-validated route table (table.Validate is called by
// Start). logger may be nil, in which case logging is disabled.
func NewServer(cfg *ServerConfig, table *router.Table, logger *zerolog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("bmcweb: configuration is nil")
	}
	if err := cfg.IsValid(); err != nil {
		return nil, fmt.Errorf("bmcweb: invalid configuration: %w", err)
	}
	if table == nil {
		return nil, errors.New("bmcweb: route table is nil")
	}

	s := &Server{
		cfg:     cfg,
		table:   table,
		metrics: newServerMetrics(),
	}
	if logger != nil {
		s.logger = *logger
	} else {
		s.logger = zerolog.Nop()
	}

	sessCfg := cfg.Session
	storePath, timeout, maxSessions := "", 30*time.Minute, 16
	if sessCfg != nil {
		storePath = sessCfg.StorePath
		if sessCfg.Timeout != nil && *sessCfg.Timeout > 0 {
			timeout = time.Duration(*sessCfg.Timeout * float64(time.Second))
		}
		if sessCfg.MaxSessions != nil && *sessCfg.MaxSessions > 0 {
			maxSessions = *sessCfg.MaxSessions
		}
	}
	store, err := session.NewStore(storePath, timeout, maxSessions)
	if err != nil {
		return nil, fmt.Errorf("bmcweb: session store: %w", err)
	}
	s.sessions = store

	if sessCfg != nil && sessCfg.AuthFile != "" {
		creds, err := session.LoadCredentials(sessCfg.AuthFile)
		if err != nil {
			return nil, fmt.Errorf("bmcweb: %w", err)
		}
		s.creds = creds
	}

	return s, nil
}

// Sessions returns the server's session store, for SessionService
// handlers that create and delete login sessions.
func (s *Server) Sessions() *session.Store {
	return s.sessions
}

// Bus returns the object-broker handle. It is nil until Start connects;
// resource handlers only use it at request time, so registering them
// with a method-value provider (e.g. examplesvc.New(srv.Bus)) before
// Start is safe.
func (s *Server) Bus() *bus.Bus {
	return s.bus
}

// Start brings the server up: validates the route table, ensures a TLS
// certificate exists (generating a self-signed one if configured to),
// connects to the object bus, schedules housekeeping jobs and starts
// listening. The session store is opened earlier, by NewServer.
func (s *Server) Start() error {
	if err := s.table.Validate(); err != nil {
		return fmt.Errorf("bmcweb: route table: %w", err)
	}

	s.bgctx, s.bgctxcancel = context.WithCancel(context.Background())

	tlsCfg, err := s.setupTLS()
	if err != nil {
		s.bgctxcancel()
		return err
	}

	var busOpts bus.Options
	if busCfg := s.cfg.Bus; busCfg != nil {
		busOpts.Address = busCfg.Address
		if busCfg.CallTimeout != nil && *busCfg.CallTimeout > 0 {
			busOpts.CallTimeout = time.Duration(*busCfg.CallTimeout * float64(time.Second))
		}
	}
	b, err := bus.Connect(s.bgctx, s.logger.With().Bool("bus", true).Logger(), busOpts)
	if err != nil {
		s.bgctxcancel()
		return fmt.Errorf("bmcweb: bus: %w", err)
	}
	s.bus = b

	s.events = newEventDispatcher(s.logger.With().Bool("events", true).Logger())
	if err := s.events.start(s.bgctx, s.bus); err != nil {
		s.bgctxcancel()
		return fmt.Errorf("bmcweb: event dispatcher: %w", err)
	}

	s.c = newCron(s.logger)
	if err := s.setupJobs(); err != nil {
		s.bgctxcancel()
		return err // already logged
	}
	s.c.Start()

	r := chi.NewRouter()
	s.setupRouter(r)
	var h http.Handler = r
	if s.cfg.Compression {
		h = middleware.Compress(5)(h)
	}

	listen := s.cfg.Listen
	if listen == "" {
		listen = ":443"
	} else if !rxPort.MatchString(listen) {
		listen += ":443"
	}
	ln, err := net.Listen("tcp", listen)
	if err != nil {
		s.bgctxcancel()
		return fmt.Errorf("bmcweb: listen: %w", err)
	}
	if tlsCfg != nil {
		ln = tls.NewListener(ln, tlsCfg)
	}

	s.srv = &http.Server{
		Handler:      h,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("server exited unexpectedly")
		}
	}()
	s.logger.Info().Str("listen", listen).Bool("tls", tlsCfg != nil).Msg("bmcweb server started")
	return nil
}

func (s *Server) setupTLS() (*tls.Config, error) {
	tlsCfg := s.cfg.TLS
	if tlsCfg == nil {
		return nil, nil
	}
	autoGenerate := tlsCfg.AutoGenerate
	if _, err := tlsboot.EnsureCert(tlsCfg.CertFile, tlsCfg.KeyFile, tlsCfg.KeyType, ""); autoGenerate && err != nil {
		return nil, fmt.Errorf("bmcweb: tls bootstrap: %w", err)
	} else if !autoGenerate && !fileExists(tlsCfg.CertFile) {
		return nil, fmt.Errorf("bmcweb: tls: certificate file %q does not exist and autoGenerate is disabled", tlsCfg.CertFile)
	}
	cert, err := tls.LoadX509KeyPair(tlsCfg.CertFile, tlsCfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("bmcweb: tls: load keypair: %w", err)
	}
	return &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}, nil
}

// Stop shuts the server down, waiting up to timeout for in-flight
// requests to finish.
func (s *Server) Stop(timeout time.Duration) error {
	if s.srv == nil {
		return nil
	}
	s.logger.Info().Dur("timeout", timeout).Msg("stop requested, shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if s.c != nil {
		s.c.Stop()
	}
	s.bgctxcancel()

	if err := s.srv.Shutdown(ctx); err != nil {
		return err
	}
	s.srv = nil

	if s.events != nil {
		s.events.stop()
	}
	if s.bus != nil {
		_ = s.bus.Close()
	}
	s.logger.Info().Msg("bmcweb server stopped")
	return nil
}

type loggerForCORS struct {
	logger zerolog.Logger
}

func (l *loggerForCORS) Printf(f string, args ...interface{}) {
	l.logger.Debug().Msgf(f, args...)
}

func (s *Server) setupRouter(r *chi.Mux) {
	if corsCfg := s.cfg.CORS; corsCfg != nil {
		options := cors.Options{
			AllowedOrigins:   corsCfg.AllowedOrigins,
			AllowedMethods:   corsCfg.AllowedMethods,
			AllowedHeaders:   corsCfg.AllowedHeaders,
			ExposedHeaders:   corsCfg.ExposedHeaders,
			AllowCredentials: corsCfg.AllowCredentials,
			Debug:            corsCfg.Debug,
		}
		if corsCfg.MaxAge != nil && *corsCfg.MaxAge > 0 {
			options.MaxAge = *corsCfg.MaxAge
		}
		c := cors.New(options)
		if corsCfg.Debug {
			c.Log = &loggerForCORS{logger: s.logger.With().Bool("cors", true).Logger()}
		}
		r.Use(c.Handler)
	}

	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.HandleFunc("/*", s.ServeHTTP)
}

// ServeHTTP is the entry point for every Redfish route; it adapts the
// stdlib request/response to respond.Request/AsyncResp and runs the
// dispatcher algorithm (authenticate, route, privilege check, If-Match
// replay, handler invocation, post-processing).
func (s *Server) ServeHTTP(w http.ResponseWriter, httpReq *http.Request) {
	t0 := time.Now()
	req, err := s.buildRequest(httpReq)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to read request")
		_, m := redfishmsg.InternalError()
		writeErrorBody(w, http.StatusBadRequest, redfishmsg.ErrorBody(m))
		return
	}

	status := s.dispatch(w, httpReq, req)
	elapsed := time.Since(t0)
	statusClass := fmt.Sprintf("%dxx", status/100)
	s.metrics.requests.WithLabelValues(req.Path, statusClass).Inc()
	s.metrics.latency.WithLabelValues(req.Path).Observe(elapsed.Seconds())
}

// dispatch matches, authorizes and runs an already-built request, and
// returns the final HTTP status for metrics purposes.
func (s *Server) dispatch(w http.ResponseWriter, httpReq *http.Request, req *respond.Request) int {
	path := req.Path
	if prefix := s.cfg.CommonPrefix; prefix != "" {
		if !strings.HasPrefix(path, prefix) {
			code, m := redfishmsg.ResourceNotFound("Resource", path)
			writeErrorBody(w, code, redfishmsg.ErrorBody(m))
			return code
		}
		path = strings.TrimPrefix(path, prefix)
	}
	result, ok := s.table.Find(path)
	if !ok {
		code, m := redfishmsg.ResourceNotFound("Resource", req.Path)
		writeErrorBody(w, code, redfishmsg.ErrorBody(m))
		return code
	}
	if result.Redirect {
		loc := req.AbsoluteURL(req.Path + "/")
		http.Redirect(w, httpReq, loc, http.StatusMovedPermanently)
		return http.StatusMovedPermanently
	}
	rule := result.Rule

	if rule.Upgrade != nil && isWebSocketUpgrade(httpReq) {
		if len(rule.Privileges) > 0 && req.Session == nil {
			code, m := unauthorized()
			writeErrorBody(w, code, redfishmsg.ErrorBody(m))
			return code
		}
		if !req.Session.HasPrivileges(rule.Privileges) {
			code, m := forbidden()
			writeErrorBody(w, code, redfishmsg.ErrorBody(m))
			return code
		}
		rule.Upgrade(w, httpReq, req, result.Params)
		return http.StatusSwitchingProtocols
	}

	if rule.Stream != nil {
		if len(rule.Privileges) > 0 && req.Session == nil {
			code, m := unauthorized()
			writeErrorBody(w, code, redfishmsg.ErrorBody(m))
			return code
		}
		if !req.Session.HasPrivileges(rule.Privileges) {
			code, m := forbidden()
			writeErrorBody(w, code, redfishmsg.ErrorBody(m))
			return code
		}
		rule.Stream(w, httpReq, req, result.Params)
		return http.StatusOK
	}

	method := router.MethodFromString(req.Method)
	if rule.Methods&method == 0 {
		w.Header().Set("Allow", rule.Methods.Allow())
		writeErrorBody(w, http.StatusMethodNotAllowed, redfishmsg.ErrorBody(methodNotAllowedMessage()))
		return http.StatusMethodNotAllowed
	}

	if len(rule.Privileges) > 0 && req.Session == nil {
		code, m := unauthorized()
		writeErrorBody(w, code, redfishmsg.ErrorBody(m))
		return code
	}
	if !req.Session.HasPrivileges(rule.Privileges) {
		code, m := forbidden()
		writeErrorBody(w, code, redfishmsg.ErrorBody(m))
		return code
	}

	if ifMatch := req.Header("If-Match"); ifMatch != "" && ifMatch != "*" &&
		(method == router.MethodPatch || method == router.MethodPost || method == router.MethodDelete) {
		return s.serveWithIfMatch(w, httpReq, req, path, rule, result.Params, ifMatch)
	}

	return s.invoke(w, httpReq, req, rule, result.Params, true)
}

// invoke installs the completion-handler chain and runs the rule's
// handler, blocking until the AsyncResp's reference count drops to zero
// or the client disconnects. The handlers unwind LIFO, so the ETag
// handler (installed last, outermost) runs before the query handler:
// the ETag is computed over the canonical resource body, and $select/
// $expand post-processing never changes it. writeResponse controls
// whether the result is written to w (false when only the resulting
// status/body is wanted).
func (s *Server) invoke(w http.ResponseWriter, httpReq *http.Request, req *respond.Request, rule *router.Rule, params router.Params, writeResponse bool) int {
	resp := respond.NewResponse()
	ar := respond.New(resp)
	done := make(chan struct{})

	resp.SetCompleteRequestHandler(func(r *respond.Response) {
		close(done)
	})
	s.installQueryHandler(req, resp)
	s.installETagHandler(resp)

	func() {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error().Interface("panic", rec).Str("path", req.Path).Msg("handler panicked")
				ar.Mutate(func(r *respond.Response) {
					r.Status, r.JSON = redfishErrorResponse(redfishmsg.InternalError())
				})
			}
		}()
		rule.Handler(req, ar, params)
	}()
	ar.Release()

	select {
	case <-done:
	case <-httpReq.Context().Done():
		ar.Cancel()
		<-done
	}

	if resp.ETagOverride != "" && !resp.IsStreaming() &&
		(req.Method == "GET" || req.Method == "HEAD") &&
		req.Header("If-None-Match") == resp.ETagOverride {
		resp.Status = http.StatusNotModified
		resp.JSON = nil
	}

	status := resp.Status
	if writeResponse {
		s.writeResponse(w, resp)
	}
	return status
}

func redfishErrorResponse(status int, m redfishmsg.Message) (int, map[string]interface{}) {
	return status, redfishmsg.ErrorBody(m)
}

// serveWithIfMatch is the synthetic-GET If-Match replay: before letting
// a mutating method through, it performs an internal GET of the same
// resource and compares the computed ETag to the supplied If-Match
// value. On mismatch the request is rejected with 412 before the
// handler ever runs.
func (s *Server) serveWithIfMatch(w http.ResponseWriter, httpReq *http.Request, req *respond.Request, path string, rule *router.Rule, params router.Params, ifMatch string) int {
	getReq := req.WithoutHeader("If-Match")
	getReq.Method = "GET"

	getResult, ok := s.table.Find(path)
	if !ok {
		code, m := redfishmsg.ResourceNotFound("Resource", getReq.Path)
		writeErrorBody(w, code, redfishmsg.ErrorBody(m))
		return code
	}

	resp := respond.NewResponse()
	ar := respond.New(resp)
	done := make(chan struct{})
	resp.SetCompleteRequestHandler(func(r *respond.Response) { close(done) })
	s.installETagHandler(resp)

	getResult.Rule.Handler(getReq, ar, getResult.Params)
	ar.Release()
	<-done

	etag := resp.ETagOverride
	if etag != "" && etag != ifMatch {
		code, m := redfishmsg.PreconditionFailed()
		writeErrorBody(w, code, redfishmsg.ErrorBody(m))
		return code
	}

	return s.invoke(w, httpReq, req, rule, params, true)
}

func (s *Server) installETagHandler(resp *respond.Response) {
	prev := resp.CompleteHandler()
	resp.SetCompleteRequestHandler(func(r *respond.Response) {
		if r.ETagOverride == "" && !r.IsStreaming() && r.JSON != nil {
			r.ETagOverride = computeETag(r.JSON)
		}
		if prev != nil {
			prev(r)
		}
	})
}

func (s *Server) installQueryHandler(req *respond.Request, resp *respond.Response) {
	prev := resp.CompleteHandler()
	resp.SetCompleteRequestHandler(func(r *respond.Response) {
		if !r.IsStreaming() && r.JSON != nil {
			q, err := query.Parse(req.RawQuery, s.expandEnabled())
			if err != nil {
				r.Status, r.JSON = s.queryErrorResponse(err)
			} else if q.HasAny() {
				ctx := contextWithSession(context.Background(), req.Session)
				status, body := query.Run(ctx, q, r.Status, r.JSON, s, query.Capabilities{})
				r.Status, r.JSON = status, body
			}
		}
		if prev != nil {
			prev(r)
		}
	})
}

func (s *Server) queryErrorResponse(err error) (int, map[string]interface{}) {
	var nse *query.NotSupportedError
	var vfe *query.ValueFormatError
	switch {
	case errors.As(err, &nse):
		code, m := redfishmsg.QueryNotSupported(nse.Key)
		return code, redfishmsg.ErrorBody(m)
	case errors.As(err, &vfe):
		code, m := redfishmsg.QueryParameterValueFormatError(vfe.Value, vfe.Key)
		return code, redfishmsg.ErrorBody(m)
	default:
		code, m := redfishmsg.InternalError()
		return code, redfishmsg.ErrorBody(m)
	}
}

func (s *Server) expandEnabled() bool {
	return s.cfg.Features != nil && s.cfg.Features.ExpandEnabled
}

// Fetch implements query.Fetcher: a fully re-authorized internal GET,
// used by the "only" and "$expand" passes. The fetch carries the
// originating session so privileges are re-checked exactly as they
// would be for an external request.
func (s *Server) Fetch(ctx context.Context, path string) (int, map[string]interface{}, error) {
	u, err := url.Parse(path)
	if err != nil {
		return 0, nil, err
	}
	sess := sessionFromContext(ctx)
	req := &respond.Request{
		Method:   "GET",
		Path:     u.Path,
		RawQuery: "",
		Session:  sess,
	}
	result, ok := s.table.Find(req.Path)
	if !ok {
		return http.StatusNotFound, nil, nil
	}
	if !req.Session.HasPrivileges(result.Rule.Privileges) {
		return http.StatusForbidden, nil, nil
	}

	resp := respond.NewResponse()
	ar := respond.New(resp)
	done := make(chan struct{})
	resp.SetCompleteRequestHandler(func(r *respond.Response) { close(done) })
	s.installETagHandler(resp)

	result.Rule.Handler(req, ar, result.Params)
	ar.Release()
	<-done

	return resp.Status, resp.JSON, nil
}

type sessionCtxKey struct{}

func contextWithSession(ctx context.Context, sess *respond.Session) context.Context {
	return context.WithValue(ctx, sessionCtxKey{}, sess)
}

func sessionFromContext(ctx context.Context) *respond.Session {
	sess, _ := ctx.Value(sessionCtxKey{}).(*respond.Session)
	return sess
}

func isWebSocketUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Connection"), "Upgrade") &&
		strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

func methodNotAllowedMessage() redfishmsg.Message {
	return redfishmsg.Message{
		MessageId:  "Base.1.13.0.GeneralError",
		Message:    "The request method is not supported on this resource.",
		Severity:   redfishmsg.SeverityCritical,
		Resolution: "Consult the Allow header for the methods supported on this resource.",
	}
}

func forbidden() (int, redfishmsg.Message) {
	return http.StatusForbidden, redfishmsg.Message{
		MessageId:  "Base.1.13.0.InsufficientPrivilege",
		Message:    "There are insufficient privileges for the account or credentials associated with the current session to perform the requested operation.",
		Severity:   redfishmsg.SeverityCritical,
		Resolution: "Either abandon the operation or change the associated access rights and resubmit the request if the operation failed.",
	}
}

func unauthorized() (int, redfishmsg.Message) {
	return http.StatusUnauthorized, redfishmsg.Message{
		MessageId:  "Base.1.13.0.GeneralError",
		Message:    "While attempting to establish a session, the service determined that the credentials supplied were invalid or missing.",
		Severity:   redfishmsg.SeverityCritical,
		Resolution: "Ensure that a valid session token is supplied with the request and resubmit the request.",
	}
}

func writeErrorBody(w http.ResponseWriter, status int, body map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = writeJSON(w, body)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	return enc.Encode(v)
}

// buildRequest adapts a stdlib *http.Request into a respond.Request,
// including session resolution: first the X-Auth-Token header (Redfish
// standard) against the session store, then, if a credentials file is
// configured, an HTTP Basic Authorization header checked against it.
// Basic authentication yields a per-request session that is never
// persisted to the store.
func (s *Server) buildRequest(httpReq *http.Request) (*respond.Request, error) {
	body, err := readRequestBody(httpReq)
	if err != nil {
		return nil, fmt.Errorf("bmcweb: read body: %w", err)
	}

	headers := make(map[string][]string, len(httpReq.Header))
	for k, v := range httpReq.Header {
		headers[strings.ToLower(k)] = v
	}

	req := &respond.Request{
		Method:   httpReq.Method,
		Path:     httpReq.URL.Path,
		RawQuery: httpReq.URL.RawQuery,
		Query:    httpReq.URL.Query(),
		Headers:  headers,
		Body:     body,
		ClientIP: getRealIP(httpReq),
		IsSecure: httpReq.TLS != nil,
		Host:     httpReq.Host,
		Scheme:   "http",
	}
	if req.IsSecure {
		req.Scheme = "https"
		if len(httpReq.TLS.PeerCertificates) > 0 {
			req.PeerCN = httpReq.TLS.PeerCertificates[0].Subject.CommonName
		}
	}

	if s.sessions != nil {
		if token := req.Header("X-Auth-Token"); token != "" {
			if sess := s.sessions.Get(token); sess != nil {
				req.Session = &respond.Session{ID: sess.ID, Username: sess.Username, Privileges: sess.Privileges}
			}
		}
	}
	if req.Session == nil && s.creds != nil {
		if user, pass, ok := httpReq.BasicAuth(); ok {
			if privs, ok := s.creds.Verify(user, pass); ok {
				req.Session = &respond.Session{Username: user, Privileges: privs}
			}
		}
	}

	return req, nil
}

// maxBodyBytes bounds a single request body; large firmware/update
// payloads stream through a dedicated multipart handler rather than this
// generic path (out of scope here).
const maxBodyBytes = 16 << 20

// getRealIP resolves the client IP: X-Forwarded-For, then X-Real-Ip,
// then the socket's remote address.
func getRealIP(r *http.Request) string {
	if ff := r.Header.Get("X-Forwarded-For"); len(ff) > 0 {
		if p := strings.Index(ff, ","); p != -1 {
			ff = ff[:p]
		}
		return ff
	}
	if rip := r.Header.Get("X-Real-Ip"); len(rip) > 0 {
		return rip
	}
	ip := r.RemoteAddr
	if p := strings.LastIndex(ip, ":"); p != -1 {
		ip = ip[:p]
	}
	return ip
}

// writeResponse serializes a completed Response to the client.
func (s *Server) writeResponse(w http.ResponseWriter, resp *respond.Response) {
	for k, vs := range resp.Headers {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	if resp.ETagOverride != "" {
		w.Header().Set("ETag", resp.ETagOverride)
	}

	if resp.IsStreaming() {
		s.writeStream(w, resp)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(resp.Status)
	if resp.JSON != nil {
		if err := writeJSON(w, resp.JSON); err != nil {
			s.logger.Error().Err(err).Msg("error writing response body")
		}
	}
}

func (s *Server) writeStream(w http.ResponseWriter, resp *respond.Response) {
	defer resp.Stream.Reader.Close()
	if resp.Stream.ContentType != "" {
		w.Header().Set("Content-Type", resp.Stream.ContentType)
	}
	if resp.Stream.ContentLength > 0 {
		w.Header().Set("Content-Length", fmt.Sprintf("%d", resp.Stream.ContentLength))
	}
	w.WriteHeader(resp.Status)
	if _, err := io.Copy(w, resp.Stream.Reader); err != nil {
		s.logger.Error().Err(err).Msg("error writing stream body")
	}
}

// computeETag hashes a stable (key-sorted, by encoding/json's map
// marshaling) rendering of body, skipping the volatile "DateTime" key so
// that ETags don't change on every request to a resource whose only
// differing field is the current time.
func computeETag(body map[string]interface{}) string {
	if _, ok := body["DateTime"]; ok {
		cp := make(map[string]interface{}, len(body))
		for k, v := range body {
			if k != "DateTime" {
				cp[k] = v
			}
		}
		body = cp
	}
	b, err := json.Marshal(body)
	if err != nil {
		return ""
	}
	return fmt.Sprintf(`"%016x"`, xxhash.Sum64(b))
}
