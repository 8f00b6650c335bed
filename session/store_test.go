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

package session

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCreateAndGet(t *testing.T) {
	r := require.New(t)
	st, err := NewStore(t.TempDir(), time.Hour, 16)
	r.NoError(err)

	sess, err := st.Create("admin", []string{"ConfigureManager"}, "10.0.0.1")
	r.NoError(err)
	r.NotEmpty(sess.ID)

	got := st.Get(sess.ID)
	r.NotNil(got)
	r.Equal("admin", got.Username)
	r.Equal([]string{"ConfigureManager"}, got.Privileges)

	r.Nil(st.Get("no-such-id"))
}

func TestMaxSessions(t *testing.T) {
	r := require.New(t)
	st, err := NewStore(t.TempDir(), time.Hour, 1)
	r.NoError(err)

	_, err = st.Create("a", nil, "")
	r.NoError(err)

	_, err = st.Create("b", nil, "")
	r.ErrorIs(err, ErrMaxSessions)
}

func TestExpiry(t *testing.T) {
	r := require.New(t)
	st, err := NewStore(t.TempDir(), time.Millisecond, 16)
	r.NoError(err)

	sess, err := st.Create("admin", nil, "")
	r.NoError(err)

	time.Sleep(5 * time.Millisecond)
	r.Nil(st.Get(sess.ID))
	r.Equal(0, st.Count())
}

func TestDelete(t *testing.T) {
	r := require.New(t)
	st, err := NewStore(t.TempDir(), time.Hour, 16)
	r.NoError(err)

	sess, err := st.Create("admin", nil, "")
	r.NoError(err)

	st.Delete(sess.ID)
	r.Nil(st.Get(sess.ID))
}

func TestListReturnsSnapshot(t *testing.T) {
	r := require.New(t)
	st, err := NewStore(t.TempDir(), time.Hour, 16)
	r.NoError(err)

	_, err = st.Create("a", nil, "")
	r.NoError(err)
	_, err = st.Create("b", nil, "")
	r.NoError(err)

	all := st.List()
	r.Len(all, 2)
}

func TestReloadFromDisk(t *testing.T) {
	r := require.New(t)
	dir := t.TempDir()
	st1, err := NewStore(dir, time.Hour, 16)
	r.NoError(err)
	sess, err := st1.Create("admin", []string{"Login"}, "")
	r.NoError(err)

	r.Eventually(func() bool {
		_, statErr := os.Stat(dir + "/" + sess.ID + ".json")
		return statErr == nil
	}, time.Second, 5*time.Millisecond)

	st2, err := NewStore(dir, time.Hour, 16)
	r.NoError(err)
	got := st2.Get(sess.ID)
	r.NotNil(got)
	r.Equal("admin", got.Username)
}
