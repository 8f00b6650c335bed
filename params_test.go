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

package bmcweb_test

import (
	"testing"

	bmcweb "github.com/rapidloop/bmcweb"
	"github.com/rapidloop/bmcweb/respond"
	"github.com/stretchr/testify/require"
)

func actionReq(body string) *respond.Request {
	return &respond.Request{
		Method:  "POST",
		Body:    []byte(body),
		Headers: map[string][]string{"content-type": {"application/json"}},
	}
}

var testResetAction = bmcweb.NewAction("ComputerSystem.Reset",
	bmcweb.ActionParam{
		Name:            "ResetType",
		Type:            "string",
		Required:        true,
		AllowableValues: bmcweb.StringValues("On", "ForceOff", "GracefulRestart"),
	})

func TestActionDecodeBasic(t *testing.T) {
	r := require.New(t)

	vals, aerr := testResetAction.Decode(actionReq(`{"ResetType": "On"}`))
	r.Nil(aerr)
	r.Len(vals, 1)
	r.Equal("On", vals[0])
}

func TestActionDecodeMissingRequired(t *testing.T) {
	r := require.New(t)

	_, aerr := testResetAction.Decode(actionReq(`{}`))
	r.NotNil(aerr)
	r.Equal(400, aerr.Status)
	r.Equal("Base.1.13.0.ActionParameterMissing", aerr.Msg.MessageId)

	// empty body is the same as an empty object
	_, aerr = testResetAction.Decode(actionReq(``))
	r.NotNil(aerr)
	r.Equal("Base.1.13.0.ActionParameterMissing", aerr.Msg.MessageId)
}

func TestActionDecodeWrongType(t *testing.T) {
	r := require.New(t)

	_, aerr := testResetAction.Decode(actionReq(`{"ResetType": 5}`))
	r.NotNil(aerr)
	r.Equal(400, aerr.Status)
	r.Equal("Base.1.13.0.ActionParameterValueTypeError", aerr.Msg.MessageId)
}

func TestActionDecodeNotInList(t *testing.T) {
	r := require.New(t)

	_, aerr := testResetAction.Decode(actionReq(`{"ResetType": "Sideways"}`))
	r.NotNil(aerr)
	r.Equal(400, aerr.Status)
	r.Equal("Base.1.13.0.PropertyValueNotInList", aerr.Msg.MessageId)
}

func TestActionDecodeUnknownParameter(t *testing.T) {
	r := require.New(t)

	_, aerr := testResetAction.Decode(actionReq(`{"ResetType": "On", "Turbo": true}`))
	r.NotNil(aerr)
	r.Equal(400, aerr.Status)
	r.Equal("Base.1.13.0.ActionParameterNotSupported", aerr.Msg.MessageId)
}

func TestActionDecodeMalformedBody(t *testing.T) {
	r := require.New(t)

	_, aerr := testResetAction.Decode(actionReq(`{"ResetType":`))
	r.NotNil(aerr)
	r.Equal(400, aerr.Status)
	r.Equal("Base.1.13.0.MalformedJSON", aerr.Msg.MessageId)

	// a non-JSON content type is rejected the same way
	req := actionReq(`{"ResetType": "On"}`)
	req.Headers["content-type"] = []string{"text/plain"}
	_, aerr = testResetAction.Decode(req)
	r.NotNil(aerr)
	r.Equal("Base.1.13.0.MalformedJSON", aerr.Msg.MessageId)
}

func TestActionDecodeIntegerBounds(t *testing.T) {
	r := require.New(t)

	min, max := 1.0, 100.0
	act := bmcweb.NewAction("Oem.SetFanSpeed",
		bmcweb.ActionParam{Name: "Percent", Type: "integer", Required: true, Minimum: &min, Maximum: &max})

	vals, aerr := act.Decode(actionReq(`{"Percent": 50}`))
	r.Nil(aerr)
	r.Equal(int64(50), vals[0])

	// "50" and "50.00" coerce to the same integer
	vals, aerr = act.Decode(actionReq(`{"Percent": "50.00"}`))
	r.Nil(aerr)
	r.Equal(int64(50), vals[0])

	_, aerr = act.Decode(actionReq(`{"Percent": 101}`))
	r.NotNil(aerr)
	r.Equal("Base.1.13.0.ActionParameterValueTypeError", aerr.Msg.MessageId)

	_, aerr = act.Decode(actionReq(`{"Percent": 49.5}`))
	r.NotNil(aerr)
}

func TestActionDecodeOptionalAndTypes(t *testing.T) {
	r := require.New(t)

	act := bmcweb.NewAction("Oem.Configure",
		bmcweb.ActionParam{Name: "Label", Type: "string", Pattern: "[A-Z][0-9]+"},
		bmcweb.ActionParam{Name: "Scale", Type: "number"},
		bmcweb.ActionParam{Name: "Enabled", Type: "boolean"},
		bmcweb.ActionParam{Name: "Targets", Type: "array", ElemType: "string"})

	vals, aerr := act.Decode(actionReq(`{"Scale": 1.5, "Enabled": true, "Targets": ["a", "b"]}`))
	r.Nil(aerr)
	r.Nil(vals[0]) // optional, absent
	r.Equal(1.5, vals[1])
	r.Equal(true, vals[2])
	r.Equal([]string{"a", "b"}, vals[3])

	vals, aerr = act.Decode(actionReq(`{"Label": "A42"}`))
	r.Nil(aerr)
	r.Equal("A42", vals[0])

	_, aerr = act.Decode(actionReq(`{"Label": "nope"}`))
	r.NotNil(aerr)
	r.Equal("Base.1.13.0.ActionParameterValueTypeError", aerr.Msg.MessageId)

	_, aerr = act.Decode(actionReq(`{"Targets": ["a", 3]}`))
	r.NotNil(aerr)
}

func TestActionDecodeArrayBounds(t *testing.T) {
	r := require.New(t)

	one, two := 1, 2
	act := bmcweb.NewAction("Oem.Select",
		bmcweb.ActionParam{Name: "Ids", Type: "array", ElemType: "integer", MinItems: &one, MaxItems: &two})

	vals, aerr := act.Decode(actionReq(`{"Ids": [4, 5]}`))
	r.Nil(aerr)
	r.Equal([]int64{4, 5}, vals[0])

	_, aerr = act.Decode(actionReq(`{"Ids": []}`))
	r.NotNil(aerr)

	_, aerr = act.Decode(actionReq(`{"Ids": [1, 2, 3]}`))
	r.NotNil(aerr)
}
