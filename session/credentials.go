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
	"bufio"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Credentials is the local-account table used to answer HTTP Basic
// authentication: one line per account, in the form
// `username:bcrypt-hash[:priv1,priv2,...]`. Blank lines and lines
// starting with '#' are ignored.
type Credentials struct {
	accounts map[string]credential
}

type credential struct {
	hash       []byte
	privileges []string
}

// LoadCredentials reads the account file at path. A malformed line is an
// error, not a skip: a partially loaded credential table would silently
// lock out the accounts below the bad line.
func LoadCredentials(path string) (*Credentials, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("session: open credentials: %w", err)
	}
	defer f.Close()

	c := &Credentials{accounts: make(map[string]credential)}
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, ":", 3)
		if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("session: credentials line %d: malformed entry", lineNo)
		}
		var privs []string
		if len(parts) == 3 && parts[2] != "" {
			for _, p := range strings.Split(parts[2], ",") {
				if p = strings.TrimSpace(p); p != "" {
					privs = append(privs, p)
				}
			}
		}
		c.accounts[parts[0]] = credential{hash: []byte(parts[1]), privileges: privs}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("session: read credentials: %w", err)
	}
	return c, nil
}

// Verify checks password for username and returns the account's
// privileges on success. The comparison cost is bcrypt's, so callers
// should prefer token authentication for high-frequency clients.
func (c *Credentials) Verify(username, password string) ([]string, bool) {
	if c == nil {
		return nil, false
	}
	acct, ok := c.accounts[username]
	if !ok {
		return nil, false
	}
	if bcrypt.CompareHashAndPassword(acct.hash, []byte(password)) != nil {
		return nil, false
	}
	return append([]string(nil), acct.privileges...), true
}
