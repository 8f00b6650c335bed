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
)

// AsyncResp is a reference-counted handle on a Response. A handler takes
// one (the one created for it at dispatch), and every asynchronous bus
// call it issues should hold its own reference, typically by capturing
// the AsyncResp in the call's completion closure and releasing it when
// the closure runs. When the last reference drops, the Response's
// completion handler runs exactly once.
//
// Bus callbacks may run on arbitrary goroutines (the bus facade
// dispatches them as they arrive), so mutation of the underlying
// Response is serialised by an internal mutex. Use Mutate to make a
// change under that lock.
type AsyncResp struct {
	refCount int32
	mu       sync.Mutex
	resp     *Response
	finished int32 // 0/1, set via atomic CAS to guarantee single completion
	cancelled int32
}

// New creates an AsyncResp wrapping resp with an initial reference count
// of one, owned by the caller (typically the dispatcher, which hands it
// to the rule handler).
func New(resp *Response) *AsyncResp {
	return &AsyncResp{resp: resp, refCount: 1}
}

// Ref takes an additional reference. Call this before capturing the
// AsyncResp in a new completion closure when an existing closure is
// about to return without calling Release (i.e. when it is transferring
// ownership to further async work rather than finishing).
func (a *AsyncResp) Ref() {
	atomic.AddInt32(&a.refCount, 1)
}

// Release drops a reference. When the count reaches zero, the Response's
// completion handler is invoked exactly once.
func (a *AsyncResp) Release() {
	if atomic.AddInt32(&a.refCount, -1) == 0 {
		a.finish()
	}
}

func (a *AsyncResp) finish() {
	if !atomic.CompareAndSwapInt32(&a.finished, 0, 1) {
		return // should not happen: refcount invariant already guarantees this
	}
	a.mu.Lock()
	h := a.resp.CompleteHandler()
	a.mu.Unlock()
	if h != nil {
		h(a.resp)
	}
}

// Mutate runs fn with exclusive access to the underlying Response. Use
// this from bus-call completion closures to merge disjoint JSON fields;
// the lock makes concurrent callbacks from different goroutines safe,
// though handlers must still only write to disjoint JSON pointers to
// avoid clobbering a sibling callback's write.
func (a *AsyncResp) Mutate(fn func(resp *Response)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	fn(a.resp)
}

// Response exposes the underlying Response for read-only inspection
// outside of Mutate (e.g. status code checks after the fact). Prefer
// Mutate for anything that writes.
func (a *AsyncResp) Response() *Response {
	return a.resp
}

// Cancel marks the AsyncResp as belonging to a disconnected client. It
// does not abort any in-flight bus call; completion closures should check
// Cancelled and skip writing to the Response if set.
func (a *AsyncResp) Cancel() {
	atomic.StoreInt32(&a.cancelled, 1)
}

// Cancelled reports whether Cancel has been called.
func (a *AsyncResp) Cancelled() bool {
	return atomic.LoadInt32(&a.cancelled) != 0
}

// RefCount returns the current reference count, for tests and diagnostics.
func (a *AsyncResp) RefCount() int32 {
	return atomic.LoadInt32(&a.refCount)
}
