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

package bus

import (
	"errors"

	dbus "github.com/godbus/dbus/v5"
)

// notFoundNames lists the bus error names that mean "the thing you asked
// about doesn't exist" rather than "something went wrong". Callers that
// probe for optional interfaces or properties (most of the tree-walking
// code in the redfish handlers) are expected to treat these like EBADR:
// a normal, silent "absent", not a failure to surface to the client.
var notFoundNames = map[string]bool{
	"org.freedesktop.DBus.Error.UnknownObject":    true,
	"org.freedesktop.DBus.Error.UnknownInterface": true,
	"org.freedesktop.DBus.Error.UnknownMethod":    true,
	"org.freedesktop.DBus.Error.UnknownProperty":  true,
	"org.freedesktop.DBus.Error.InvalidArgs":      true,
	"org.freedesktop.DBus.Error.FileNotFound":     true,
	"xyz.openbmc_project.Common.Error.ResourceNotFound": true,
}

// IsNotFound reports whether err is a bus error meaning "not found" in the
// EBADR sense: the service, object, interface, method or property simply
// isn't there. It returns false for nil, for context cancellation, and for
// any other kind of error.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	var derr dbus.Error
	if errors.As(err, &derr) {
		return notFoundNames[derr.Name]
	}
	var pderr *dbus.Error
	if errors.As(err, &pderr) {
		return notFoundNames[pderr.Name]
	}
	return false
}

// IgnoreNotFound returns nil if err is a not-found bus error, and err
// otherwise. Use this at call sites that intentionally probe for an
// optional association or property and have a sensible default for its
// absence.
func IgnoreNotFound(err error) error {
	if IsNotFound(err) {
		return nil
	}
	return err
}
