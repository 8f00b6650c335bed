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

package tlsboot

import (
	"context"

	dbus "github.com/godbus/dbus/v5"
	"github.com/rs/zerolog"
)

// Network configuration object the system publishes its HostName
// property on: path '/xyz/openbmc_project/network/config', interface
// 'xyz.openbmc_project.Network.SystemConfiguration', member
// 'PropertiesChanged'.
const (
	networkConfigPath   = dbus.ObjectPath("/xyz/openbmc_project/network/config")
	networkConfigIface  = "xyz.openbmc_project.Network.SystemConfiguration"
	propertiesInterface = "org.freedesktop.DBus.Properties"
)

// WatchHostnameFunc is what jobs.go / the "hostname-watch" TaskSchedule
// actually calls: a closure that knows how to subscribe to the bus and
// regenerate the certificate. Constructed by NewHostnameWatch.
type WatchHostnameFunc func(ctx context.Context)

// HostnameSubscription is satisfied by *bus.Subscription.
type HostnameSubscription interface {
	Signals() <-chan *dbus.Signal
	Cancel()
}

// SubscribeFunc matches the signature of (*bus.Bus).Subscribe, adapted by
// the caller to return the narrower HostnameSubscription interface this
// package needs (avoids an import cycle between tlsboot and bus).
type SubscribeFunc func(options ...dbus.MatchOption) (HostnameSubscription, error)

// NewHostnameWatch returns a function that, when run (typically once,
// from a long-lived goroutine started by the "hostname-watch"
// TaskSchedule), subscribes to the network configuration object's
// HostName property changes and regenerates certFile/keyFile whenever it
// changes, until ctx is done.
func NewHostnameWatch(subscribe SubscribeFunc, certFile, keyFile, keyType string, logger zerolog.Logger) WatchHostnameFunc {
	return func(ctx context.Context) {
		s, err := subscribe(
			dbus.WithMatchObjectPath(networkConfigPath),
			dbus.WithMatchInterface(propertiesInterface),
			dbus.WithMatchMember("PropertiesChanged"),
			dbus.WithMatchArg(0, networkConfigIface),
		)
		if err != nil {
			logger.Error().Err(err).Msg("hostname-watch: failed to subscribe")
			return
		}
		defer s.Cancel()

		for {
			select {
			case <-ctx.Done():
				return
			case sig, ok := <-s.Signals():
				if !ok {
					return
				}
				hostname, ok := extractHostname(sig)
				if !ok {
					continue
				}
				logger.Debug().Str("hostname", hostname).Msg("hostname-watch: hostname changed")
				if err := GenerateCert(certFile, keyFile, keyType, hostname); err != nil {
					logger.Error().Err(err).Msg("hostname-watch: failed to regenerate certificate")
				} else {
					logger.Info().Str("hostname", hostname).Msg("hostname-watch: certificate regenerated")
				}
			}
		}
	}
}

// extractHostname pulls the "HostName" string out of a PropertiesChanged
// signal body, of the form (interface string, changed map[string]Variant,
// invalidated []string).
func extractHostname(sig *dbus.Signal) (string, bool) {
	if len(sig.Body) < 2 {
		return "", false
	}
	changed, ok := sig.Body[1].(map[string]dbus.Variant)
	if !ok {
		return "", false
	}
	v, ok := changed["HostName"]
	if !ok {
		return "", false
	}
	hostname, ok := v.Value().(string)
	return hostname, ok
}
