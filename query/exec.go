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

import "context"

const membersCountKey = "Members@odata.count"

// Run executes the fixed-order post-processing pipeline (only, $expand,
// $top/$skip, $filter, $select) against body, returning the possibly
// replaced body and the worst HTTP status observed (status itself, if no
// pass surfaced anything worse).
func Run(ctx context.Context, q *Query, status int, body map[string]interface{}, fetcher Fetcher, caps Capabilities) (int, map[string]interface{}) {
	if !q.HasAny() {
		return status, body
	}

	if q.Only {
		if s, b, ok := runOnly(ctx, body, fetcher); ok {
			status, body = WorstStatus(status, s), b
		} else if s != 0 {
			status = WorstStatus(status, s)
		}
	}

	if q.Expand != nil {
		if w := RunExpand(ctx, body, q.Expand, fetcher); w != 0 {
			status = WorstStatus(status, w)
		}
	}

	if !caps.TopSkipApplied && (q.Top != nil || q.Skip != nil) {
		applyTopSkip(body, q.Top, q.Skip)
	}

	if q.Filter != "" {
		if ast, err := parseFilter(q.Filter); err == nil {
			applyFilter(body, ast)
		}
	}

	body = ApplySelect(q, body)

	return status, body
}

// runOnly implements pass 1: if body is a single-member collection,
// replace it wholesale with the result of fetching its one member.
func runOnly(ctx context.Context, body map[string]interface{}, fetcher Fetcher) (int, map[string]interface{}, bool) {
	members, ok := body["Members"].([]interface{})
	if !ok {
		return 0, nil, false
	}
	count, ok := memberCount(body, members)
	if !ok || count != 1 {
		return 0, nil, false
	}
	first, ok := members[0].(map[string]interface{})
	if !ok {
		return 0, nil, false
	}
	id, ok := first["@odata.id"].(string)
	if !ok {
		return 0, nil, false
	}
	status, inner, err := fetcher.Fetch(ctx, id)
	if err != nil || inner == nil {
		return 500, nil, false
	}
	return status, inner, true
}

func memberCount(body map[string]interface{}, members []interface{}) (int, bool) {
	if n, ok := body[membersCountKey].(float64); ok {
		return int(n), true
	}
	return len(members), true
}

// applyTopSkip pages the Members array of a collection response, if
// present. A handler that already paged at the bus level sets
// Capabilities.TopSkipApplied to skip this.
func applyTopSkip(body map[string]interface{}, top, skip *int) {
	members, ok := body["Members"].([]interface{})
	if !ok {
		return
	}
	start := 0
	if skip != nil {
		start = *skip
	}
	if start > len(members) {
		start = len(members)
	}
	end := len(members)
	if top != nil && start+*top < end {
		end = start + *top
	}
	body["Members"] = members[start:end]
}

// applyFilter retains only the Members whose evaluation against ast is
// truthy. Non-collection bodies are left untouched.
func applyFilter(body map[string]interface{}, ast filterNode) {
	members, ok := body["Members"].([]interface{})
	if !ok {
		return
	}
	kept := members[:0]
	for _, m := range members {
		mm, ok := m.(map[string]interface{})
		if !ok {
			continue
		}
		if ast.eval(mm) {
			kept = append(kept, m)
		}
	}
	body["Members"] = kept
	if _, ok := body[membersCountKey]; ok {
		body[membersCountKey] = float64(len(kept))
	}
}
