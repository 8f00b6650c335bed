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

// Package bmcweb provides the server configuration schema (the
// [ServerConfig] structure and its children) and the management HTTP
// server itself ([Server]), which serves a Redfish-conformant REST API
// over TLS by translating requests into calls on an object-broker bus.
//
// The request/response plumbing (routing, query-parameter processing,
// the bus facade, Redfish message formatting) lives in the router,
// query, bus and redfishmsg subpackages; this package wires them
// together into the request dispatcher described by [Server.ServeHTTP]
// and its startup/shutdown lifecycle ([Server.Start], [Server.Stop]).
// The code for the `cmd/bmcwebd` CLI tool is a good example of how to
// use [Server].
package bmcweb
