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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseOnly(t *testing.T) {
	q, err := Parse("only", true)
	require.NoError(t, err)
	require.True(t, q.Only)
}

func TestParseOnlyRejectsValue(t *testing.T) {
	_, err := Parse("only=1", true)
	require.Error(t, err)
	var fe *ValueFormatError
	require.ErrorAs(t, err, &fe)
}

func TestParseExpand(t *testing.T) {
	q, err := Parse("%24expand=.%28%24levels%3D2%29", true)
	require.NoError(t, err)
	require.NotNil(t, q.Expand)
	require.Equal(t, ExpandNotLinks, q.Expand.Type)
	require.Equal(t, 2, q.Expand.Levels)
}

func TestParseExpandDefaultLevel(t *testing.T) {
	q, err := Parse("$expand=*", true)
	require.NoError(t, err)
	require.Equal(t, ExpandBoth, q.Expand.Type)
	require.Equal(t, 1, q.Expand.Levels)
}

func TestParseExpandDisabledFeature(t *testing.T) {
	_, err := Parse("$expand=*", false)
	require.Error(t, err)
	var nse *NotSupportedError
	require.ErrorAs(t, err, &nse)
	require.Equal(t, "$expand", nse.Key)
}

func TestParseExpandMalformed(t *testing.T) {
	_, err := Parse("$expand=bogus", true)
	require.Error(t, err)
	var fe *ValueFormatError
	require.ErrorAs(t, err, &fe)
}

func TestParseSelect(t *testing.T) {
	q, err := Parse("$select=RedfishVersion,Links/Sessions", true)
	require.NoError(t, err)
	require.Equal(t, []string{"RedfishVersion", "Links/Sessions"}, q.Select)
}

func TestParseTopSkip(t *testing.T) {
	q, err := Parse("$top=10&$skip=5", true)
	require.NoError(t, err)
	require.Equal(t, 10, *q.Top)
	require.Equal(t, 5, *q.Skip)
}

func TestParseTopOutOfRange(t *testing.T) {
	_, err := Parse("$top=0", true)
	require.Error(t, err)
	_, err = Parse("$top=1001", true)
	require.Error(t, err)
}

func TestParseSkipNegative(t *testing.T) {
	_, err := Parse("$skip=-1", true)
	require.Error(t, err)
}

func TestParseUnknownDollarKey(t *testing.T) {
	_, err := Parse("$bogus=1", true)
	require.Error(t, err)
	var nse *NotSupportedError
	require.ErrorAs(t, err, &nse)
}

func TestParseVendorExtensionIgnored(t *testing.T) {
	q, err := Parse("vendorFlag=1", true)
	require.NoError(t, err)
	require.False(t, q.HasAny())
}

func TestParseFilterStored(t *testing.T) {
	q, err := Parse("$filter=Status/Health eq 'OK'", true)
	require.NoError(t, err)
	require.Equal(t, "Status/Health eq 'OK'", q.Filter)
}

func TestParseFilterMalformed(t *testing.T) {
	_, err := Parse("$filter=Status/Health eq", true)
	require.Error(t, err)
}
