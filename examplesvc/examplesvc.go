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

// Package examplesvc is a small, illustrative set of Redfish resource
// handlers (ServiceRoot, Chassis collection/member, a ComputerSystem
// reset action) that exercise the dispatcher, router, bus facade and
// query pipeline end to end. It is not a resource catalog; it exists so
// the routing and dispatch layers have something concrete to serve, in
// tests and in the bmcwebd binary.
package examplesvc

import (
	"context"
	"fmt"

	dbus "github.com/godbus/dbus/v5"

	bmcweb "github.com/rapidloop/bmcweb"
	"github.com/rapidloop/bmcweb/bus"
	"github.com/rapidloop/bmcweb/redfishmsg"
	"github.com/rapidloop/bmcweb/respond"
	"github.com/rapidloop/bmcweb/router"
)

const (
	chassisInventoryPath = "/xyz/openbmc_project/inventory/system/chassis"
	chassisIface         = "xyz.openbmc_project.Inventory.Item.Chassis"
	systemInventoryPath  = "/xyz/openbmc_project/inventory/system"
	systemIface          = "xyz.openbmc_project.Inventory.Item.System"
	stateHostIface       = "xyz.openbmc_project.State.Host"
	assetTagIface        = "xyz.openbmc_project.Inventory.Decorator.AssetTag"
)

// privileges, named per the Redfish standard privilege registry.
const (
	privLogin               = "Login"
	privConfigureComponents = "ConfigureComponents"
)

// errorResponse adapts a redfishmsg (status, Message) pair to the
// (status, body) shape a Response expects.
func errorResponse(status int, m redfishmsg.Message) (int, map[string]any) {
	return status, redfishmsg.ErrorBody(m)
}

// Service owns the bus handle the example handlers issue calls through.
// The handle is obtained lazily through a provider function, so handlers
// can be registered before the server has connected to the bus (pass the
// server's Bus method).
type Service struct {
	bus func() *bus.Bus
}

// New creates a Service backed by the bus handle busFn returns. busFn is
// called at request time, never during registration.
func New(busFn func() *bus.Bus) *Service {
	return &Service{bus: busFn}
}

// Register adds every example route to table.
func (s *Service) Register(table *router.Table) error {
	adds := []struct {
		pattern string
		methods router.Method
		privs   []string
		handler router.HandlerFunc
	}{
		{"/redfish/v1/", router.MethodGet, nil, s.serviceRoot},
		{"/redfish/v1/Chassis/", router.MethodGet, []string{privLogin}, s.chassisCollection},
		{"/redfish/v1/Chassis/<str>/", router.MethodGet, []string{privLogin}, s.chassisMember},
		{"/redfish/v1/Systems/", router.MethodGet, []string{privLogin}, s.systemCollection},
		{"/redfish/v1/Systems/<str>/", router.MethodGet, []string{privLogin}, s.systemMember},
		{"/redfish/v1/Systems/<str>/Actions/ComputerSystem.Reset", router.MethodPost, []string{privConfigureComponents}, s.systemReset},
	}
	for _, a := range adds {
		if _, err := table.Add(a.pattern, a.methods, a.privs, a.handler); err != nil {
			return fmt.Errorf("examplesvc: register %q: %w", a.pattern, err)
		}
	}
	return nil
}

func (s *Service) serviceRoot(req *respond.Request, ar *respond.AsyncResp, params router.Params) {
	ar.Mutate(func(r *respond.Response) {
		r.JSON = map[string]any{
			"@odata.id":      "/redfish/v1/",
			"@odata.type":    "#ServiceRoot.v1_16_0.ServiceRoot",
			"Id":             "RootService",
			"Name":           "Root Service",
			"RedfishVersion": "1.17.0",
			"Chassis":        map[string]any{"@odata.id": "/redfish/v1/Chassis"},
			"Systems":        map[string]any{"@odata.id": "/redfish/v1/Systems"},
			"SessionService": map[string]any{"@odata.id": "/redfish/v1/SessionService"},
		}
	})
}

// chassisCollection enumerates every inventory object that implements
// the Chassis interface via the ObjectMapper.
func (s *Service) chassisCollection(req *respond.Request, ar *respond.AsyncResp, params router.Params) {
	s.collection(req, ar, "Chassis", chassisInventoryPath, chassisIface)
}

func (s *Service) systemCollection(req *respond.Request, ar *respond.AsyncResp, params router.Params) {
	s.collection(req, ar, "Systems", systemInventoryPath, systemIface)
}

func (s *Service) collection(req *respond.Request, ar *respond.AsyncResp, name, subtreePath, iface string) {
	paths, err := s.bus().GetSubTreePaths(context.Background(), subtreePath, 0, []string{iface})
	if err != nil {
		ar.Mutate(func(r *respond.Response) {
			r.Status, r.JSON = errorResponse(redfishmsg.InternalError())
		})
		return
	}
	members := make([]any, 0, len(paths))
	for _, p := range paths {
		members = append(members, map[string]any{"@odata.id": "/redfish/v1/" + name + "/" + lastSegment(p)})
	}
	ar.Mutate(func(r *respond.Response) {
		r.JSON = map[string]any{
			"@odata.id":          "/redfish/v1/" + name,
			"@odata.type":        "#" + name + "Collection." + name + "Collection",
			"Name":               name + " Collection",
			"Members@odata.count": len(members),
			"Members":            members,
		}
	})
}

func (s *Service) chassisMember(req *respond.Request, ar *respond.AsyncResp, params router.Params) {
	id := params.Strings[0]
	path := dbus.ObjectPath(chassisInventoryPath + "/" + id)
	ctx := context.Background()

	owners, err := s.bus().GetDbusObject(ctx, path, []string{chassisIface})
	if err != nil || len(owners) == 0 {
		ar.Mutate(func(r *respond.Response) {
			r.Status, r.JSON = errorResponse(redfishmsg.ResourceNotFound("Chassis", id))
		})
		return
	}
	service := firstKey(owners)

	props, err := s.bus().GetAllProperties(ctx, service, path, chassisIface)
	if err != nil {
		ar.Mutate(func(r *respond.Response) {
			r.Status, r.JSON = errorResponse(redfishmsg.InternalError())
		})
		return
	}

	ar.Mutate(func(r *respond.Response) {
		r.JSON = map[string]any{
			"@odata.id":   "/redfish/v1/Chassis/" + id,
			"@odata.type": "#Chassis.v1_22_0.Chassis",
			"Id":          id,
			"Name":        id,
			"ChassisType": variantString(props["Type"], "RackMount"),
			"Status": map[string]any{
				"State":  "Enabled",
				"Health": "OK",
			},
		}
	})
}

func (s *Service) systemMember(req *respond.Request, ar *respond.AsyncResp, params router.Params) {
	id := params.Strings[0]
	path := dbus.ObjectPath(systemInventoryPath + "/" + id)
	ctx := context.Background()

	owners, err := s.bus().GetDbusObject(ctx, path, []string{systemIface})
	if err != nil || len(owners) == 0 {
		ar.Mutate(func(r *respond.Response) {
			r.Status, r.JSON = errorResponse(redfishmsg.ResourceNotFound("ComputerSystem", id))
		})
		return
	}
	service := firstKey(owners)

	assetTag := ""
	if props, err := s.bus().GetAllProperties(ctx, service, path, assetTagIface); err == nil {
		assetTag = variantString(props["AssetTag"], "")
	}

	ar.Mutate(func(r *respond.Response) {
		r.JSON = map[string]any{
			"@odata.id":   "/redfish/v1/Systems/" + id,
			"@odata.type": "#ComputerSystem.v1_20_0.ComputerSystem",
			"Id":          id,
			"Name":        id,
			"AssetTag":    assetTag,
			"SystemType":  "Physical",
			"Status": map[string]any{
				"State":  "Enabled",
				"Health": "OK",
			},
			"Actions": map[string]any{
				"#ComputerSystem.Reset": map[string]any{
					"target":                    "/redfish/v1/Systems/" + id + "/Actions/ComputerSystem.Reset",
					"ResetType@Redfish.AllowableValues": resetTypeAllowableValues,
				},
			},
		}
	})
}

var resetTypeAllowableValues = []string{"On", "ForceOff", "GracefulShutdown", "GracefulRestart", "ForceRestart"}

var resetAction = bmcweb.NewAction("ComputerSystem.Reset",
	bmcweb.ActionParam{
		Name:            "ResetType",
		Type:            "string",
		Required:        true,
		AllowableValues: bmcweb.StringValues(resetTypeAllowableValues...),
	})

// systemReset issues the requested reset as an asynchronous D-Bus method
// call, demonstrating the async completion path: the response only
// completes once the bus call's callback releases its reference on ar.
func (s *Service) systemReset(req *respond.Request, ar *respond.AsyncResp, params router.Params) {
	id := params.Strings[0]

	vals, aerr := resetAction.Decode(req)
	if aerr != nil {
		ar.Mutate(func(r *respond.Response) {
			r.Status, r.JSON = aerr.Status, redfishmsg.ErrorBody(aerr.Msg)
		})
		return
	}
	resetType := vals[0].(string)

	path := dbus.ObjectPath(systemInventoryPath + "/" + id)
	owners, err := s.bus().GetDbusObject(context.Background(), path, []string{stateHostIface})
	if err != nil || len(owners) == 0 {
		ar.Mutate(func(r *respond.Response) {
			r.Status, r.JSON = errorResponse(redfishmsg.ResourceNotFound("ComputerSystem", id))
		})
		return
	}
	service := firstKey(owners)

	transition := resetTypeToHostTransition(resetType)
	s.bus().AsyncMethodCall(ar, service, path, "org.freedesktop.DBus.Properties", "Set",
		[]interface{}{stateHostIface, "RequestedHostTransition", dbus.MakeVariant(transition)},
		func(ar *respond.AsyncResp, call *dbus.Call) {
			if call.Err != nil {
				ar.Mutate(func(r *respond.Response) {
					r.Status, r.JSON = errorResponse(redfishmsg.InternalError())
				})
				return
			}
			ar.Mutate(func(r *respond.Response) {
				r.Status = 204
				r.JSON = nil
			})
		})
}

func resetTypeToHostTransition(resetType string) string {
	switch resetType {
	case "On":
		return "xyz.openbmc_project.State.Host.Transition.On"
	case "GracefulShutdown":
		return "xyz.openbmc_project.State.Host.Transition.Off"
	case "GracefulRestart":
		return "xyz.openbmc_project.State.Host.Transition.Reboot"
	case "ForceRestart":
		return "xyz.openbmc_project.State.Host.Transition.ForceWarmReboot"
	default: // ForceOff
		return "xyz.openbmc_project.State.Host.Transition.Off"
	}
}

func lastSegment(p string) string {
	for i := len(p) - 1; i >= 0; i-- {
		if p[i] == '/' {
			return p[i+1:]
		}
	}
	return p
}

func firstKey(m map[string][]string) string {
	for k := range m {
		return k
	}
	return ""
}

func variantString(v dbus.Variant, def string) string {
	if s, ok := v.Value().(string); ok {
		return s
	}
	return def
}

