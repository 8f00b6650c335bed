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

// Package redfishmsg builds the standard Redfish error envelope
// ({"error": {"code", "message", "@Message.ExtendedInfo"}}) and the small
// set of Base registry messages the dispatcher and query pipeline need.
// Full registry content is out of scope; this covers the messages those
// two layers actually emit.
package redfishmsg

import "fmt"

// registryPrefix is prepended to every MessageId this package builds.
const registryPrefix = "Base.1.13.0."

// Severity levels as used in the MessageId registry's Severity field.
const (
	SeverityOK       = "OK"
	SeverityWarning  = "Warning"
	SeverityCritical = "Critical"
)

// Message is one entry of an @Message.ExtendedInfo array.
type Message struct {
	MessageId   string   `json:"MessageId"`
	Message     string   `json:"Message"`
	MessageArgs []string `json:"MessageArgs,omitempty"`
	Severity    string   `json:"Severity"`
	Resolution  string   `json:"Resolution,omitempty"`
}

func (m Message) toJSON() map[string]interface{} {
	out := map[string]interface{}{
		"MessageId": m.MessageId,
		"Message":   m.Message,
		"Severity":  m.Severity,
	}
	if len(m.MessageArgs) > 0 {
		out["MessageArgs"] = m.MessageArgs
	}
	if m.Resolution != "" {
		out["Resolution"] = m.Resolution
	}
	return out
}

func msg(id, text, severity, resolution string, args ...string) Message {
	return Message{
		MessageId:   registryPrefix + id,
		Message:     text,
		MessageArgs: args,
		Severity:    severity,
		Resolution:  resolution,
	}
}

//------------------------------------------------------------------------------
// query-parameter messages

// QueryNotSupported reports an unrecognized or feature-flagged-off
// $-prefixed query key. Maps to HTTP 501.
func QueryNotSupported(key string) (int, Message) {
	return 501, msg("QueryNotSupported",
		fmt.Sprintf("Query parameter '%s' is not supported by the implementation.", key),
		SeverityWarning, "Remove the query parameter and retry the request.")
}

// QueryParameterValueFormatError reports a recognized query key whose
// value failed to parse. Maps to HTTP 400.
func QueryParameterValueFormatError(value, key string) (int, Message) {
	return 400, msg("QueryParameterValueFormatError",
		fmt.Sprintf("The value '%s' for the query parameter '%s' is of a different format than the parameter can accept.", value, key),
		SeverityWarning, "Correct the value for the query parameter in the request and resubmit the request if the operation failed.",
		value, key)
}

// QueryParameterValueTypeError reports a value of the wrong JSON type for
// a query parameter or property. Maps to HTTP 400.
func QueryParameterValueTypeError(value, key string) (int, Message) {
	return 400, msg("QueryParameterValueTypeError",
		fmt.Sprintf("The value '%s' for the query parameter '%s' is of a different type than the parameter can accept.", value, key),
		SeverityWarning, "Correct the value for the query parameter in the request and resubmit the request if the operation failed.",
		value, key)
}

// PropertyValueNotInList reports a property value outside its enum.
// Maps to HTTP 400.
func PropertyValueNotInList(value, property string) (int, Message) {
	return 400, msg("PropertyValueNotInList",
		fmt.Sprintf("The value '%s' for the property '%s' is not in the list of acceptable values.", value, property),
		SeverityWarning, "Choose a value from the enumeration list that the implementation can support and resubmit the request.",
		value, property)
}

//------------------------------------------------------------------------------
// precondition

// PreconditionFailed reports an If-Match mismatch. Maps to HTTP 412.
func PreconditionFailed() (int, Message) {
	return 412, msg("PreconditionFailed",
		"The ETag supplied did not match the ETag required to change this resource.",
		SeverityCritical, "Try the operation again using the appropriate ETag.")
}

//------------------------------------------------------------------------------
// action-parameter messages

// ActionParameterMissing reports a required action parameter that was not
// supplied. Maps to HTTP 400.
func ActionParameterMissing(action, parameter string) (int, Message) {
	return 400, msg("ActionParameterMissing",
		fmt.Sprintf("The action %s requires the parameter %s to be present in the request body.", action, parameter),
		SeverityCritical, "Supply the action with the required parameter in the request body when the request is resubmitted.",
		action, parameter)
}

// ActionParameterValueTypeError reports an action parameter of the wrong
// JSON type. Maps to HTTP 400.
func ActionParameterValueTypeError(value, parameter, action string) (int, Message) {
	return 400, msg("ActionParameterValueTypeError",
		fmt.Sprintf("The value '%s' for the parameter %s in the action %s is of a different type than the action can accept.", value, parameter, action),
		SeverityWarning, "Correct the value for the parameter in the request body and resubmit the request if the operation failed.",
		value, parameter, action)
}

// ActionParameterNotSupported reports an action parameter the action does
// not recognize. Maps to HTTP 400.
func ActionParameterNotSupported(parameter, action string) (int, Message) {
	return 400, msg("ActionParameterNotSupported",
		fmt.Sprintf("The parameter %s for the action %s is not supported on the target resource.", parameter, action),
		SeverityWarning, "Remove the parameter supplied and resubmit the request if the operation failed.",
		parameter, action)
}

// MalformedJSON reports a request body that could not be parsed as JSON.
// Maps to HTTP 400.
func MalformedJSON() (int, Message) {
	return 400, msg("MalformedJSON",
		"The request body submitted was malformed JSON and could not be parsed by the receiving service.",
		SeverityCritical, "Ensure that the request body is valid JSON and resubmit the request.")
}

//------------------------------------------------------------------------------
// resource messages

// ResourceNotFound reports a missing resource of the given type and id.
// Maps to HTTP 404.
func ResourceNotFound(typ, id string) (int, Message) {
	return 404, msg("ResourceNotFound",
		fmt.Sprintf("The requested resource of type %s named '%s' was not found.", typ, id),
		SeverityCritical, "Provide a valid resource identifier and resubmit the request.",
		typ, id)
}

// ResourceInUse reports a resource that cannot be modified because it is
// in use. Maps to HTTP 409.
func ResourceInUse() (int, Message) {
	return 409, msg("ResourceInUse",
		"The change to this resource cannot be completed because the resource is in use.",
		SeverityWarning, "Remove the condition causing the resource to be in use and resubmit the request if the operation failed.")
}

// ResourceInStandby reports a resource that is present but powered down
// or otherwise unavailable to service the request. Maps to HTTP 409.
func ResourceInStandby() (int, Message) {
	return 409, msg("ResourceInStandby",
		"The request could not be performed because the resource is in standby.",
		SeverityCritical, "Ensure that the resource is in the correct power state and resubmit the request.")
}

// ServiceDisabled reports a service that exists but has been administratively
// disabled. Maps to HTTP 503.
func ServiceDisabled(service string) (int, Message) {
	return 503, msg("ServiceDisabled",
		fmt.Sprintf("The operation failed because the service %s is disabled and cannot accept the request.", service),
		SeverityOK, "Enable the service and resubmit the request if the operation failed.",
		service)
}

// ResourceExhaustion reports that a resource pool (sessions, tasks, a
// fixed-size table) is full. Maps to HTTP 503.
func ResourceExhaustion(resource string) (int, Message) {
	return 503, msg("ResourceExhaustion",
		fmt.Sprintf("The resource %s was not able to satisfy the request due to unavailability of resources.", resource),
		SeverityCritical, "Remove allocated resources or resubmit the request later.",
		resource)
}

//------------------------------------------------------------------------------
// fatal

// InternalError reports an unhandled handler failure or invariant
// violation. Maps to HTTP 500.
func InternalError() (int, Message) {
	return 500, msg("InternalError",
		"The request failed due to an internal service error. The service is still operational.",
		SeverityCritical, "Resubmit the request. If the problem persists, consider resetting the service.")
}

//------------------------------------------------------------------------------
// envelope construction and merging

// ErrorBody builds the standard Redfish error envelope around primary and
// any additional extended-info messages.
func ErrorBody(primary Message, extra ...Message) map[string]interface{} {
	all := append([]Message{primary}, extra...)
	infos := make([]interface{}, len(all))
	for i, m := range all {
		infos[i] = m.toJSON()
	}
	return map[string]interface{}{
		"error": map[string]interface{}{
			"code":                  primary.MessageId,
			"message":               primary.Message,
			"@Message.ExtendedInfo": infos,
		},
	}
}

// MergeExtendedInfo appends m to body's error.@Message.ExtendedInfo array,
// creating the error object (with a generic GeneralError code) if the
// body did not already carry one. Used when a composite response (e.g. an
// $expand inner failure) needs to record a problem without discarding the
// rest of the document.
func MergeExtendedInfo(body map[string]interface{}, m Message) {
	errObj, ok := body["error"].(map[string]interface{})
	if !ok {
		errObj = map[string]interface{}{
			"code":                  registryPrefix + "GeneralError",
			"message":               "A general error has occurred. See ExtendedInfo for more information.",
			"@Message.ExtendedInfo": []interface{}{},
		}
		body["error"] = errObj
	}
	infos, _ := errObj["@Message.ExtendedInfo"].([]interface{})
	errObj["@Message.ExtendedInfo"] = append(infos, m.toJSON())
}
