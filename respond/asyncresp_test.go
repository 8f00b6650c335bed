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
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAsyncRespSingleCompletion(t *testing.T) {
	resp := NewResponse()
	var calls int32
	resp.SetCompleteRequestHandler(func(r *Response) {
		atomic.AddInt32(&calls, 1)
	})

	ar := New(resp)
	require.EqualValues(t, 1, ar.RefCount())

	ar.Ref()
	ar.Ref()
	require.EqualValues(t, 3, ar.RefCount())

	ar.Release()
	ar.Release()
	require.EqualValues(t, 0, atomic.LoadInt32(&calls), "must not complete until every reference is released")

	ar.Release()
	require.EqualValues(t, 1, atomic.LoadInt32(&calls))
	require.EqualValues(t, 0, ar.RefCount())
}

func TestAsyncRespConcurrentCompletion(t *testing.T) {
	resp := NewResponse()
	var calls int32
	resp.SetCompleteRequestHandler(func(r *Response) {
		atomic.AddInt32(&calls, 1)
	})

	const n = 50
	ar := New(resp)
	for i := 0; i < n-1; i++ {
		ar.Ref()
	}

	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			ar.Release()
		}()
	}
	wg.Wait()

	require.EqualValues(t, 1, atomic.LoadInt32(&calls), "completion handler must run exactly once even under concurrent release")
}

func TestAsyncRespMutateIsSerialized(t *testing.T) {
	resp := NewResponse()
	ar := New(resp)
	ar.Ref()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		defer ar.Release()
		ar.Mutate(func(r *Response) {
			r.JSON["a"] = 1
		})
	}()
	go func() {
		defer wg.Done()
		defer ar.Release()
		ar.Mutate(func(r *Response) {
			r.JSON["b"] = 2
		})
	}()
	wg.Wait()

	require.Equal(t, 1, ar.Response().JSON["a"])
	require.Equal(t, 2, ar.Response().JSON["b"])
}

func TestAsyncRespCancel(t *testing.T) {
	ar := New(NewResponse())
	require.False(t, ar.Cancelled())
	ar.Cancel()
	require.True(t, ar.Cancelled())
}
