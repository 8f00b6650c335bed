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

package redfishmsg

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestQueryNotSupported(t *testing.T) {
	status, m := QueryNotSupported("$bogus")
	require.Equal(t, 501, status)
	require.Equal(t, "Base.1.13.0.QueryNotSupported", m.MessageId)
	require.Contains(t, m.Message, "$bogus")
}

func TestPreconditionFailed(t *testing.T) {
	status, m := PreconditionFailed()
	require.Equal(t, 412, status)
	require.Equal(t, "Base.1.13.0.PreconditionFailed", m.MessageId)
}

func TestResourceNotFound(t *testing.T) {
	status, m := ResourceNotFound("Chassis", "nonexistent")
	require.Equal(t, 404, status)
	require.Equal(t, []string{"Chassis", "nonexistent"}, m.MessageArgs)
}

func TestErrorBodyShape(t *testing.T) {
	_, primary := PreconditionFailed()
	body := ErrorBody(primary)

	errObj, ok := body["error"].(map[string]interface{})
	require.True(t, ok)
	require.Equal(t, "Base.1.13.0.PreconditionFailed", errObj["code"])
	require.Equal(t, primary.Message, errObj["message"])

	infos, ok := errObj["@Message.ExtendedInfo"].([]interface{})
	require.True(t, ok)
	require.Len(t, infos, 1)
}

func TestMergeExtendedInfoCreatesEnvelope(t *testing.T) {
	body := map[string]interface{}{"Id": "1"}
	_, m := ResourceInUse()
	MergeExtendedInfo(body, m)

	errObj := body["error"].(map[string]interface{})
	infos := errObj["@Message.ExtendedInfo"].([]interface{})
	require.Len(t, infos, 1)
	require.Equal(t, "1", body["Id"], "merging an error must not disturb the rest of the document")
}

func TestMergeExtendedInfoAppends(t *testing.T) {
	_, first := ResourceInUse()
	_, second := InternalError()
	body := ErrorBody(first)
	MergeExtendedInfo(body, second)

	errObj := body["error"].(map[string]interface{})
	infos := errObj["@Message.ExtendedInfo"].([]interface{})
	require.Len(t, infos, 2)
}
