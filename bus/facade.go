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

// Package bus is the object-broker facade: every handler that needs data
// from the system talks to it through this package rather than calling
// godbus directly. It exposes a small, fixed vocabulary (GetProperty,
// GetAllProperties, SetProperty, the various GetSubTree and
// GetAssociatedSubTree flavors, GetDbusObject, GetAssociationEndPoints,
// GetManagedObjects, AsyncMethodCall) so handler code stays uniform no
// matter which broker operation it needs.
package bus

import (
	"context"
	"fmt"
	"time"

	dbus "github.com/godbus/dbus/v5"
	"github.com/rs/zerolog"

	"github.com/rapidloop/bmcweb/respond"
)

const (
	mapperService   = "xyz.openbmc_project.ObjectMapper"
	mapperPath      = dbus.ObjectPath("/xyz/openbmc_project/object_mapper")
	mapperInterface = "xyz.openbmc_project.ObjectMapper"

	propertiesInterface  = "org.freedesktop.DBus.Properties"
	objectManagerIface   = "org.freedesktop.DBus.ObjectManager"
	associationInterface = "xyz.openbmc_project.Association"
)

// SubTree is the ObjectMapper's standard answer shape: for each object
// path, the set of services that implement it and, for each service, the
// interfaces it exports there.
type SubTree map[string]map[string][]string

// ManagedObjects is the ObjectManager's standard answer shape: for each
// object path, the set of interfaces and their properties.
type ManagedObjects map[dbus.ObjectPath]map[string]map[string]dbus.Variant

// Bus is a connected handle to the message bus, along with the background
// context calls should inherit their deadlines from when the caller gives
// none, and the logger every call logs failures through.
type Bus struct {
	conn        *dbus.Conn
	logger      zerolog.Logger
	bgctx       context.Context
	callTimeout time.Duration
}

// DefaultCallTimeout bounds every call made through this facade when the
// passed context carries no deadline of its own.
const DefaultCallTimeout = 30 * time.Second

// Options configures Connect beyond its defaults. The zero value means
// "the platform system bus, DefaultCallTimeout".
type Options struct {
	// Address overrides the bus address dialed; useful against a private
	// bus instance in tests.
	Address string

	// CallTimeout bounds every call made through the facade when the
	// caller's context carries no deadline. <= 0 means DefaultCallTimeout.
	CallTimeout time.Duration
}

// Connect dials the system bus and returns a ready Bus. bgctx is the
// long-lived parent context for any background work the Bus starts (signal
// dispatch, async callbacks outliving the originating request).
func Connect(bgctx context.Context, logger zerolog.Logger, opts Options) (*Bus, error) {
	var conn *dbus.Conn
	var err error
	if opts.Address != "" {
		conn, err = dbus.Connect(opts.Address)
	} else {
		conn, err = dbus.ConnectSystemBus()
	}
	if err != nil {
		return nil, fmt.Errorf("bus: connect: %w", err)
	}
	ct := opts.CallTimeout
	if ct <= 0 {
		ct = DefaultCallTimeout
	}
	return &Bus{conn: conn, logger: logger, bgctx: bgctx, callTimeout: ct}, nil
}

// Close releases the underlying connection.
func (b *Bus) Close() error {
	return b.conn.Close()
}

func (b *Bus) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, b.callTimeout)
}

//------------------------------------------------------------------------------
// properties

// GetProperty fetches a single D-Bus property and returns its boxed value.
func (b *Bus) GetProperty(ctx context.Context, service string, path dbus.ObjectPath, iface, name string) (dbus.Variant, error) {
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	var v dbus.Variant
	call := b.conn.Object(service, path).CallWithContext(ctx, propertiesInterface+".Get", 0, iface, name)
	if call.Err != nil {
		return dbus.Variant{}, fmt.Errorf("bus: GetProperty(%s,%s,%s): %w", path, iface, name, call.Err)
	}
	if err := call.Store(&v); err != nil {
		return dbus.Variant{}, fmt.Errorf("bus: GetProperty(%s,%s,%s): decode: %w", path, iface, name, err)
	}
	return v, nil
}

// GetAllProperties fetches every property of an interface at once.
func (b *Bus) GetAllProperties(ctx context.Context, service string, path dbus.ObjectPath, iface string) (map[string]dbus.Variant, error) {
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	var props map[string]dbus.Variant
	call := b.conn.Object(service, path).CallWithContext(ctx, propertiesInterface+".GetAll", 0, iface)
	if call.Err != nil {
		return nil, fmt.Errorf("bus: GetAllProperties(%s,%s): %w", path, iface, call.Err)
	}
	if err := call.Store(&props); err != nil {
		return nil, fmt.Errorf("bus: GetAllProperties(%s,%s): decode: %w", path, iface, err)
	}
	return props, nil
}

// SetProperty writes a single D-Bus property. value must already be boxed
// appropriately for the property's D-Bus signature (callers typically wrap
// it with dbus.MakeVariant).
func (b *Bus) SetProperty(ctx context.Context, service string, path dbus.ObjectPath, iface, name string, value interface{}) error {
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	call := b.conn.Object(service, path).CallWithContext(ctx, propertiesInterface+".Set", 0, iface, name, dbus.MakeVariant(value))
	if call.Err != nil {
		return fmt.Errorf("bus: SetProperty(%s,%s,%s): %w", path, iface, name, call.Err)
	}
	return nil
}

//------------------------------------------------------------------------------
// object mapper

// GetSubTree asks the ObjectMapper to enumerate every object below
// subtreePath (to the given depth; 0 means unlimited) that implements at
// least one of interfaces (an empty slice means "any interface").
func (b *Bus) GetSubTree(ctx context.Context, subtreePath string, depth int32, interfaces []string) (SubTree, error) {
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	var st SubTree
	call := b.mapper().CallWithContext(ctx, mapperInterface+".GetSubTree", 0, subtreePath, depth, interfaces)
	if call.Err != nil {
		return nil, fmt.Errorf("bus: GetSubTree(%s): %w", subtreePath, call.Err)
	}
	if err := call.Store(&st); err != nil {
		return nil, fmt.Errorf("bus: GetSubTree(%s): decode: %w", subtreePath, err)
	}
	return st, nil
}

// GetSubTreePaths is GetSubTree, but returns only the matching object paths.
func (b *Bus) GetSubTreePaths(ctx context.Context, subtreePath string, depth int32, interfaces []string) ([]string, error) {
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	var paths []string
	call := b.mapper().CallWithContext(ctx, mapperInterface+".GetSubTreePaths", 0, subtreePath, depth, interfaces)
	if call.Err != nil {
		return nil, fmt.Errorf("bus: GetSubTreePaths(%s): %w", subtreePath, call.Err)
	}
	if err := call.Store(&paths); err != nil {
		return nil, fmt.Errorf("bus: GetSubTreePaths(%s): decode: %w", subtreePath, err)
	}
	return paths, nil
}

// GetAssociatedSubTree follows the "endpoints" of the association object at
// associationPath and enumerates the subtree of each endpoint, the same way
// GetSubTree does for a plain path. An empty associationPath means "no
// association filter", which degrades to a plain GetSubTree.
func (b *Bus) GetAssociatedSubTree(ctx context.Context, associationPath dbus.ObjectPath, subtreePath string, depth int32, interfaces []string) (SubTree, error) {
	if associationPath == "" {
		return b.GetSubTree(ctx, subtreePath, depth, interfaces)
	}
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	var st SubTree
	call := b.mapper().CallWithContext(ctx, mapperInterface+".GetAssociatedSubTree", 0, associationPath, dbus.ObjectPath(subtreePath), depth, interfaces)
	if call.Err != nil {
		return nil, fmt.Errorf("bus: GetAssociatedSubTree(%s,%s): %w", associationPath, subtreePath, call.Err)
	}
	if err := call.Store(&st); err != nil {
		return nil, fmt.Errorf("bus: GetAssociatedSubTree(%s,%s): decode: %w", associationPath, subtreePath, err)
	}
	return st, nil
}

// GetAssociatedSubTreePaths is GetAssociatedSubTree, returning only paths.
func (b *Bus) GetAssociatedSubTreePaths(ctx context.Context, associationPath dbus.ObjectPath, subtreePath string, depth int32, interfaces []string) ([]string, error) {
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	var paths []string
	call := b.mapper().CallWithContext(ctx, mapperInterface+".GetAssociatedSubTreePaths", 0, associationPath, dbus.ObjectPath(subtreePath), depth, interfaces)
	if call.Err != nil {
		return nil, fmt.Errorf("bus: GetAssociatedSubTreePaths(%s,%s): %w", associationPath, subtreePath, call.Err)
	}
	if err := call.Store(&paths); err != nil {
		return nil, fmt.Errorf("bus: GetAssociatedSubTreePaths(%s,%s): decode: %w", associationPath, subtreePath, err)
	}
	return paths, nil
}

// GetAssociatedSubTreeById is the "by id" shortcut: it builds the
// association path from an id segment (e.g. a chassis or sensor id) and an
// association name (e.g. "chassis", "all_sensors") under the given object
// path, then behaves like GetAssociatedSubTree.
func (b *Bus) GetAssociatedSubTreeById(ctx context.Context, id, objectPath, associationName, subtreePath string, depth int32, interfaces []string) (SubTree, error) {
	assocPath := dbus.ObjectPath(fmt.Sprintf("%s/%s/%s", objectPath, id, associationName))
	return b.GetAssociatedSubTree(ctx, assocPath, subtreePath, depth, interfaces)
}

// GetAssociatedSubTreePathsById is GetAssociatedSubTreeById, returning only
// paths.
func (b *Bus) GetAssociatedSubTreePathsById(ctx context.Context, id, objectPath, associationName, subtreePath string, depth int32, interfaces []string) ([]string, error) {
	assocPath := dbus.ObjectPath(fmt.Sprintf("%s/%s/%s", objectPath, id, associationName))
	return b.GetAssociatedSubTreePaths(ctx, assocPath, subtreePath, depth, interfaces)
}

// GetDbusObject asks the ObjectMapper which services implement path, and
// which of interfaces (or all, if empty) each one exports there.
func (b *Bus) GetDbusObject(ctx context.Context, path dbus.ObjectPath, interfaces []string) (map[string][]string, error) {
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	var owners map[string][]string
	call := b.mapper().CallWithContext(ctx, mapperInterface+".GetObject", 0, path, interfaces)
	if call.Err != nil {
		return nil, fmt.Errorf("bus: GetDbusObject(%s): %w", path, call.Err)
	}
	if err := call.Store(&owners); err != nil {
		return nil, fmt.Errorf("bus: GetDbusObject(%s): decode: %w", path, err)
	}
	return owners, nil
}

// GetAssociationEndPoints reads the "endpoints" property of the association
// object at path, owned by service.
func (b *Bus) GetAssociationEndPoints(ctx context.Context, service string, path dbus.ObjectPath) ([]string, error) {
	v, err := b.GetProperty(ctx, service, path, associationInterface, "endpoints")
	if err != nil {
		return nil, err
	}
	eps, ok := v.Value().([]string)
	if !ok {
		return nil, fmt.Errorf("bus: GetAssociationEndPoints(%s): unexpected property type %T", path, v.Value())
	}
	return eps, nil
}

// GetManagedObjects fetches the full object/interface/property tree a
// service publishes below path via org.freedesktop.DBus.ObjectManager.
func (b *Bus) GetManagedObjects(ctx context.Context, service string, path dbus.ObjectPath) (ManagedObjects, error) {
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	var objs ManagedObjects
	call := b.conn.Object(service, path).CallWithContext(ctx, objectManagerIface+".GetManagedObjects", 0)
	if call.Err != nil {
		return nil, fmt.Errorf("bus: GetManagedObjects(%s,%s): %w", service, path, call.Err)
	}
	if err := call.Store(&objs); err != nil {
		return nil, fmt.Errorf("bus: GetManagedObjects(%s,%s): decode: %w", service, path, err)
	}
	return objs, nil
}

func (b *Bus) mapper() dbus.BusObject {
	return b.conn.Object(mapperService, mapperPath)
}

//------------------------------------------------------------------------------
// signal subscription

// Subscription is a live signal match on the bus. Cancel removes the
// match rule and stops delivery; the channel is closed once draining is
// complete.
type Subscription struct {
	bus     *Bus
	options []dbus.MatchOption
	ch      chan *dbus.Signal
	cancel  context.CancelFunc
}

// Signals returns the channel signals matching this subscription are
// delivered on. Closed after Cancel.
func (s *Subscription) Signals() <-chan *dbus.Signal {
	return s.ch
}

// Cancel removes the match rule from the bus and stops delivery.
func (s *Subscription) Cancel() {
	s.cancel()
	_ = s.bus.conn.RemoveMatchSignal(s.options...)
	s.bus.conn.RemoveSignal(s.ch)
	close(s.ch)
}

// Subscribe installs a signal match rule built from matchOptions (e.g.
// WithMatchInterface, WithMatchObjectPath, WithMatchMember) and returns a
// Subscription whose channel receives every matching signal until
// Cancel is called; bgctx being done does not stop delivery or close the
// channel. Used by the EventService websocket
// fan-out and the hostname-watch housekeeping task.
func (b *Bus) Subscribe(matchOptions ...dbus.MatchOption) (*Subscription, error) {
	if err := b.conn.AddMatchSignal(matchOptions...); err != nil {
		return nil, fmt.Errorf("bus: subscribe: %w", err)
	}
	ctx, cancel := context.WithCancel(b.bgctx)
	ch := make(chan *dbus.Signal, 32)
	b.conn.Signal(ch)
	go func() {
		<-ctx.Done()
	}()
	return &Subscription{bus: b, options: matchOptions, ch: ch, cancel: cancel}, nil
}

//------------------------------------------------------------------------------
// generic async method call

// AsyncMethodCall invokes an arbitrary D-Bus method without blocking the
// caller: the request holds a reference on ar for the duration of the
// call (taken here, released after callback returns), so the response
// cannot complete out from under an in-flight call.
func (b *Bus) AsyncMethodCall(ar *respond.AsyncResp, service string, path dbus.ObjectPath, iface, method string, args []interface{}, callback func(ar *respond.AsyncResp, call *dbus.Call)) {
	ar.Ref()
	done := make(chan *dbus.Call, 1)
	obj := b.conn.Object(service, path)
	ifaceMethod := iface + "." + method
	obj.Go(ifaceMethod, 0, done, args...)

	go func() {
		defer ar.Release()
		select {
		case call := <-done:
			callback(ar, call)
		case <-b.bgctx.Done():
			callback(ar, &dbus.Call{Err: b.bgctx.Err()})
		}
	}()
}
