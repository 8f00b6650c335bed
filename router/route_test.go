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

package router

import (
	"testing"

	"github.com/rapidloop/bmcweb/respond"
	"github.com/stretchr/testify/require"
)

func noop(req *respond.Request, ar *respond.AsyncResp, p Params) {}

func TestScenario1_LiteralAndStringParams(t *testing.T) {
	tbl := NewTable()
	_, err := tbl.Add("/redfish/v1/Chassis/<str>/Sensors/<str>", MethodGet, nil, noop)
	require.NoError(t, err)
	require.NoError(t, tbl.Validate())

	res, ok := tbl.Find("/redfish/v1/Chassis/chassis-1/Sensors/fan0")
	require.True(t, ok)
	require.False(t, res.Redirect)
	require.Equal(t, []string{"chassis-1", "fan0"}, res.Params.Strings)
}

func TestScenario2_TrailingSlashRedirect(t *testing.T) {
	tbl := NewTable()
	_, err := tbl.Add("/redfish/v1/Systems/<str>/LogServices/EventLog/Entries/", MethodGet, nil, noop)
	require.NoError(t, err)
	require.NoError(t, tbl.Validate())

	res, ok := tbl.Find("/redfish/v1/Systems/system/LogServices/EventLog/Entries")
	require.True(t, ok)
	require.True(t, res.Redirect)
	require.Equal(t, "/redfish/v1/Systems/<str>/LogServices/EventLog/Entries/", res.Rule.Pattern)

	// the slash form itself matches normally, not as a redirect
	res2, ok := tbl.Find("/redfish/v1/Systems/system/LogServices/EventLog/Entries/")
	require.True(t, ok)
	require.False(t, res2.Redirect)
}

func TestDeterministicTieBreak_LowestRuleIDWins(t *testing.T) {
	tbl := NewTable()
	// literal-vs-string ambiguity: what decides the winner is insertion
	// order (rule-id), not which pattern "looks" more specific.
	_, err := tbl.Add("/redfish/v1/Chassis/<str>", MethodGet, nil, noop)
	require.NoError(t, err)
	_, err = tbl.Add("/redfish/v1/Chassis/special", MethodGet, nil, noop)
	require.NoError(t, err)
	require.NoError(t, tbl.Validate())

	res, ok := tbl.Find("/redfish/v1/Chassis/special")
	require.True(t, ok)
	require.Equal(t, 1, res.Rule.ID, "earliest-registered (lowest rule-id) rule must win")
	require.Equal(t, []string{"special"}, res.Params.Strings)
}

func TestDeterministicTieBreak_OppositeInsertionOrder(t *testing.T) {
	tbl := NewTable()
	_, err := tbl.Add("/redfish/v1/Chassis/special", MethodGet, nil, noop)
	require.NoError(t, err)
	_, err = tbl.Add("/redfish/v1/Chassis/<str>", MethodGet, nil, noop)
	require.NoError(t, err)
	require.NoError(t, tbl.Validate())

	res, ok := tbl.Find("/redfish/v1/Chassis/special")
	require.True(t, ok)
	require.Equal(t, 1, res.Rule.ID, "earliest-registered rule must win, regardless of which pattern it is")
	require.Empty(t, res.Params.Strings, "the literal rule has no placeholders")
}

func TestTypedParams_IntUintFloat(t *testing.T) {
	tbl := NewTable()
	_, err := tbl.Add("/items/<int>/<uint>/<float>", MethodGet, nil, noop)
	require.NoError(t, err)
	require.NoError(t, tbl.Validate())

	res, ok := tbl.Find("/items/-42/7/3.25")
	require.True(t, ok)
	require.Equal(t, []int64{-42}, res.Params.Ints)
	require.Equal(t, []uint64{7}, res.Params.Uints)
	require.Equal(t, []float64{3.25}, res.Params.Floats)
}

func TestPathTail(t *testing.T) {
	tbl := NewTable()
	_, err := tbl.Add("/download/<path>", MethodGet, nil, noop)
	require.NoError(t, err)
	require.NoError(t, tbl.Validate())

	res, ok := tbl.Find("/download/a/b/c.bin")
	require.True(t, ok)
	require.Equal(t, []string{"a/b/c.bin"}, res.Params.Strings)
}

func TestNoMatch404(t *testing.T) {
	tbl := NewTable()
	_, err := tbl.Add("/redfish/v1", MethodGet, nil, noop)
	require.NoError(t, err)
	require.NoError(t, tbl.Validate())

	_, ok := tbl.Find("/nope")
	require.False(t, ok)
}

func TestMethodMaskAndAllowHeader(t *testing.T) {
	tbl := NewTable()
	r, err := tbl.Add("/redfish/v1/Chassis/1", MethodGet|MethodPatch, nil, noop)
	require.NoError(t, err)
	require.NoError(t, tbl.Validate())

	require.True(t, r.Methods&MethodGet != 0)
	require.True(t, r.Methods&MethodPatch != 0)
	require.False(t, r.Methods&MethodDelete != 0)
	require.Equal(t, "GET, PATCH", r.Methods.Allow())
}

func TestValidateRejectsMissingHandler(t *testing.T) {
	tbl := NewTable()
	tbl.rules = append(tbl.rules, &Rule{ID: 1, Pattern: "/x"})
	err := tbl.Validate()
	require.Error(t, err)
}

func TestValidateOnlyOnce(t *testing.T) {
	tbl := NewTable()
	_, err := tbl.Add("/a", MethodGet, nil, noop)
	require.NoError(t, err)
	require.NoError(t, tbl.Validate())
	require.Error(t, tbl.Validate())
	_, err = tbl.Add("/b", MethodGet, nil, noop)
	require.Error(t, err, "cannot add rules after validate()")
}

func TestDuplicatePattern(t *testing.T) {
	tbl := NewTable()
	_, err := tbl.Add("/a/<str>", MethodGet, nil, noop)
	require.NoError(t, err)
	_, err = tbl.Add("/a/<str>", MethodGet, nil, noop)
	require.Error(t, err)
}

func TestPathTailMustBeLast(t *testing.T) {
	tbl := NewTable()
	_, err := tbl.Add("/a/<path>/b", MethodGet, nil, noop)
	require.Error(t, err)
}

func TestMethodFromString(t *testing.T) {
	require.Equal(t, MethodGet, MethodFromString("get"))
	require.Equal(t, MethodPost, MethodFromString("POST"))
	require.Equal(t, Method(0), MethodFromString("TRACE"))
}
