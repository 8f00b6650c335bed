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
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

var expandRx = regexp.MustCompile(`^([~.*])(\(\$levels=([1-6])\))?$`)

// Parse reads the raw query string of a request (order-preserving; a
// url.Values would silently collapse repeated keys) into a validated
// Query. expandEnabled gates the $expand feature flag: when false,
// any $expand key produces NotSupportedError regardless of its value.
func Parse(rawQuery string, expandEnabled bool) (*Query, error) {
	q := &Query{}
	for _, pair := range splitQuery(rawQuery) {
		key, value := pair.key, pair.value
		switch key {
		case "only":
			if value != "" {
				return nil, &ValueFormatError{Key: key, Value: value}
			}
			q.Only = true

		case "$expand":
			if !expandEnabled {
				return nil, &NotSupportedError{Key: key}
			}
			m := expandRx.FindStringSubmatch(value)
			if m == nil {
				return nil, &ValueFormatError{Key: key, Value: value}
			}
			e := &Expand{Levels: 1}
			switch m[1] {
			case "*":
				e.Type = ExpandBoth
			case ".":
				e.Type = ExpandNotLinks
			case "~":
				e.Type = ExpandLinks
			}
			if m[3] != "" {
				lvl, err := strconv.Atoi(m[3])
				if err != nil {
					return nil, &ValueFormatError{Key: key, Value: value}
				}
				e.Levels = lvl
			}
			q.Expand = e

		case "$select":
			paths, err := parseSelect(value)
			if err != nil {
				return nil, &ValueFormatError{Key: key, Value: value}
			}
			q.Select = paths

		case "$filter":
			if strings.TrimSpace(value) == "" {
				return nil, &ValueFormatError{Key: key, Value: value}
			}
			if _, err := parseFilter(value); err != nil {
				return nil, &ValueFormatError{Key: key, Value: value}
			}
			q.Filter = value

		case "$top":
			n, err := strconv.Atoi(value)
			if err != nil || n < 1 || n > 1000 {
				return nil, &ValueFormatError{Key: key, Value: value}
			}
			q.Top = &n

		case "$skip":
			n, err := strconv.Atoi(value)
			if err != nil || n < 0 {
				return nil, &ValueFormatError{Key: key, Value: value}
			}
			q.Skip = &n

		default:
			if strings.HasPrefix(key, "$") {
				return nil, &NotSupportedError{Key: key}
			}
			// vendor extension: silently ignored
		}
	}
	return q, nil
}

func parseSelect(value string) ([]string, error) {
	var paths []string
	for _, entry := range strings.Split(value, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" || strings.HasPrefix(entry, "/") || strings.HasSuffix(entry, "/") || strings.Contains(entry, "//") {
			return nil, &ValueFormatError{Key: "$select", Value: value}
		}
		paths = append(paths, entry)
	}
	if len(paths) == 0 {
		return nil, &ValueFormatError{Key: "$select", Value: value}
	}
	return paths, nil
}

type kv struct{ key, value string }

// splitQuery splits a raw query string on "&", preserving order and
// decoding percent-escapes, without net/url's value-collapsing behavior.
func splitQuery(raw string) []kv {
	if raw == "" {
		return nil
	}
	var out []kv
	for _, part := range strings.Split(raw, "&") {
		if part == "" {
			continue
		}
		var key, value string
		if i := strings.IndexByte(part, '='); i >= 0 {
			key, value = part[:i], part[i+1:]
		} else {
			key = part
		}
		if k, err := url.QueryUnescape(key); err == nil {
			key = k
		}
		if v, err := url.QueryUnescape(value); err == nil {
			value = v
		}
		out = append(out, kv{key: key, value: value})
	}
	return out
}
