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

package query

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunNoDirectivesIsNoOp(t *testing.T) {
	body := map[string]interface{}{"Id": "1"}
	status, out := Run(context.Background(), &Query{}, 200, body, &fakeFetcher{}, Capabilities{})
	require.Equal(t, 200, status)
	require.Equal(t, body, out)
}

func TestRunOnlyScenario3NoOpWhenCountNotOne(t *testing.T) {
	body := map[string]interface{}{
		"Members":             []interface{}{map[string]interface{}{"@odata.id": "/a"}, map[string]interface{}{"@odata.id": "/b"}},
		"Members@odata.count": float64(2),
	}
	q := &Query{Only: true}
	status, out := Run(context.Background(), q, 200, body, &fakeFetcher{}, Capabilities{})
	require.Equal(t, 200, status)
	require.Equal(t, body, out)
}

func TestRunOnlyScenario4Replacement(t *testing.T) {
	fetcher := &fakeFetcher{bodies: map[string]map[string]interface{}{
		"/redfish/v1/X": {"@odata.id": "/redfish/v1/X", "Name": "X"},
	}}
	body := map[string]interface{}{
		"Members":             []interface{}{map[string]interface{}{"@odata.id": "/redfish/v1/X"}},
		"Members@odata.count": float64(1),
	}
	q := &Query{Only: true}
	status, out := Run(context.Background(), q, 200, body, fetcher, Capabilities{})
	require.Equal(t, 200, status)
	require.Equal(t, "X", out["Name"])
}

func TestRunTopSkipPaging(t *testing.T) {
	body := map[string]interface{}{
		"Members": []interface{}{
			map[string]interface{}{"Id": "1"},
			map[string]interface{}{"Id": "2"},
			map[string]interface{}{"Id": "3"},
		},
	}
	top, skip := 1, 1
	q := &Query{Top: &top, Skip: &skip}
	_, out := Run(context.Background(), q, 200, body, &fakeFetcher{}, Capabilities{})
	members := out["Members"].([]interface{})
	require.Len(t, members, 1)
	require.Equal(t, "2", members[0].(map[string]interface{})["Id"])
}

func TestRunTopSkipSkippedWhenHandlerApplied(t *testing.T) {
	body := map[string]interface{}{
		"Members": []interface{}{map[string]interface{}{"Id": "1"}, map[string]interface{}{"Id": "2"}},
	}
	top := 1
	q := &Query{Top: &top}
	_, out := Run(context.Background(), q, 200, body, &fakeFetcher{}, Capabilities{TopSkipApplied: true})
	require.Len(t, out["Members"].([]interface{}), 2)
}

func TestRunFilterPrunesMembers(t *testing.T) {
	body := map[string]interface{}{
		"Members": []interface{}{
			map[string]interface{}{"Status": map[string]interface{}{"Health": "OK"}},
			map[string]interface{}{"Status": map[string]interface{}{"Health": "Critical"}},
		},
		"Members@odata.count": float64(2),
	}
	q := &Query{Filter: "Status/Health eq 'OK'"}
	_, out := Run(context.Background(), q, 200, body, &fakeFetcher{}, Capabilities{})
	members := out["Members"].([]interface{})
	require.Len(t, members, 1)
	require.Equal(t, float64(1), out["Members@odata.count"])
}

func TestRunPipelineOrderSelectAppliesLast(t *testing.T) {
	fetcher := &fakeFetcher{bodies: map[string]map[string]interface{}{
		"/redfish/v1/Chassis/A": {
			"@odata.id":   "/redfish/v1/Chassis/A",
			"@odata.type": "#Chassis",
			"Name":        "A",
		},
	}}
	body := map[string]interface{}{
		"Members": []interface{}{
			map[string]interface{}{"@odata.id": "/redfish/v1/Chassis/A"},
		},
	}
	q := &Query{Expand: &Expand{Type: ExpandBoth, Levels: 1}, Select: []string{"Members"}}
	_, out := Run(context.Background(), q, 200, body, fetcher, Capabilities{})
	members := out["Members"].([]interface{})
	a := members[0].(map[string]interface{})
	require.Equal(t, "A", a["Name"], "expand must run before select so selected properties come from the expanded body")
}
