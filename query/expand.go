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

	"github.com/rapidloop/bmcweb/redfishmsg"
)

// expandNode is one bare {"@odata.id": url} object found while scanning a
// response body, along with enough information to splice the fetched
// sub-resource back into place.
type expandNode struct {
	parent     interface{} // map[string]interface{} or []interface{}
	key        interface{} // string key (map parent) or int index (slice parent)
	url        string
	underLinks bool
}

func isExpandNode(v map[string]interface{}) bool {
	if len(v) != 1 {
		return false
	}
	id, ok := v["@odata.id"]
	if !ok {
		return false
	}
	_, ok = id.(string)
	return ok
}

func scanExpandRoot(body map[string]interface{}, out *[]expandNode) {
	for k, v := range body {
		scanExpandValue(body, k, v, k == "Links", out)
	}
}

// scanExpandValue walks value looking for bare expand nodes. Per the
// design notes, it does not need to special-case already-expanded
// (@odata.type-bearing) objects for correctness: a node only qualifies as
// an expand node if it is *exactly* {"@odata.id": "..."}, so a fully
// expanded object is never mistaken for one, and its own nested bare
// references (e.g. a Thermal link inside an expanded Chassis) are still
// found and queued for the next depth.
func scanExpandValue(parent interface{}, key interface{}, value interface{}, underLinks bool, out *[]expandNode) {
	switch v := value.(type) {
	case map[string]interface{}:
		if isExpandNode(v) {
			*out = append(*out, expandNode{parent: parent, key: key, url: v["@odata.id"].(string), underLinks: underLinks})
			return
		}
		for ck, cv := range v {
			scanExpandValue(v, ck, cv, underLinks || ck == "Links", out)
		}
	case []interface{}:
		for i, cv := range v {
			scanExpandValue(v, i, cv, underLinks, out)
		}
	}
}

func setChild(parent interface{}, key interface{}, value interface{}) {
	switch p := parent.(type) {
	case map[string]interface{}:
		p[key.(string)] = value
	case []interface{}:
		p[key.(int)] = value
	}
}

// RunExpand performs the breadth-first, level-bounded $expand pass over
// body, mutating it in place, and returns the worst HTTP status observed
// across any inner fetch (0 if every inner fetch succeeded or none ran).
// An inner failure does not abort the outer response: the node is left
// as a bare reference and a structured error is merged into the outer
// body's error.@Message.ExtendedInfo. visited prevents cycles: a URL
// already expanded once anywhere in this request is treated as a leaf
// thereafter.
func RunExpand(ctx context.Context, body map[string]interface{}, exp *Expand, fetcher Fetcher) int {
	if exp == nil || exp.Type == ExpandNone {
		return 0
	}
	worst := 0
	visited := map[string]bool{}
	for depth := 0; depth < exp.Levels; depth++ {
		var nodes []expandNode
		scanExpandRoot(body, &nodes)

		var pending []expandNode
		for _, n := range nodes {
			switch exp.Type {
			case ExpandLinks:
				if !n.underLinks {
					continue
				}
			case ExpandNotLinks:
				if n.underLinks {
					continue
				}
			}
			if visited[n.url] {
				continue
			}
			pending = append(pending, n)
		}
		if len(pending) == 0 {
			break
		}

		for _, n := range pending {
			visited[n.url] = true
			status, inner, err := fetcher.Fetch(ctx, n.url)
			if err != nil || inner == nil {
				worst = WorstStatus(worst, 500)
				_, m := redfishmsg.InternalError()
				redfishmsg.MergeExtendedInfo(body, m)
				continue
			}
			if status >= 400 {
				worst = WorstStatus(worst, status)
				_, m := redfishmsg.InternalError()
				redfishmsg.MergeExtendedInfo(body, m)
				continue
			}
			setChild(n.parent, n.key, map[string]interface{}(inner))
		}
	}
	return worst
}
