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

package respond

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewResponseDefaults(t *testing.T) {
	r := NewResponse()
	require.Equal(t, http.StatusOK, r.Status)
	require.NotNil(t, r.JSON)
	require.False(t, r.IsStreaming())
}

func TestSetCompleteRequestHandlerChains(t *testing.T) {
	r := NewResponse()
	var order []string

	first := func(resp *Response) { order = append(order, "first") }
	prev := r.SetCompleteRequestHandler(first)
	require.Nil(t, prev)

	var prev2 CompleteHandler
	second := func(resp *Response) {
		order = append(order, "second")
		prev2(resp)
	}
	prev2 = r.SetCompleteRequestHandler(second)
	require.NotNil(t, prev2)

	r.CompleteHandler()(r)
	require.Equal(t, []string{"second", "first"}, order, "later-installed handler must run first, unwinding LIFO to the original")
}

func TestSetStreamClearsJSON(t *testing.T) {
	r := NewResponse()
	r.JSON["Id"] = "1"
	r.SetStream(&StreamBody{ContentLength: 10, ContentType: "application/octet-stream"})

	require.Nil(t, r.JSON)
	require.True(t, r.IsStreaming())
	require.Equal(t, int64(10), r.Stream.ContentLength)
}
