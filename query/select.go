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

import "strings"

// reservedKeys are always retained by $select pruning regardless of
// whether they appear in the select trie.
var reservedKeys = map[string]bool{
	"@odata.id":      true,
	"@odata.type":    true,
	"@odata.context": true,
	"@odata.etag":    true,
}

// reservedKey reports whether key is always retained by $select pruning:
// the exact @odata.* identity keys above, plus any property ending in
// "@odata.count" or "@Message.ExtendedInfo" (annotation keys like
// Members@odata.count belong to their base property, not to the
// selection).
func reservedKey(key string) bool {
	return reservedKeys[key] ||
		strings.HasSuffix(key, "@odata.count") ||
		strings.HasSuffix(key, "@Message.ExtendedInfo")
}

// selectNode is one node of the select trie: selected means "retain the
// whole subtree here", children holds named sub-paths still being
// narrowed.
type selectNode struct {
	selected bool
	children map[string]*selectNode
}

func newSelectNode() *selectNode {
	return &selectNode{children: map[string]*selectNode{}}
}

// buildSelectTrie turns the raw "/"-joined $select paths into a trie. A
// nil/empty paths list means "no $select was given"; callers should skip
// pruning entirely in that case rather than calling this.
func buildSelectTrie(paths []string) *selectNode {
	root := newSelectNode()
	for _, path := range paths {
		n := root
		segs := strings.Split(path, "/")
		for _, seg := range segs {
			child, ok := n.children[seg]
			if !ok {
				child = newSelectNode()
				n.children[seg] = child
			}
			n = child
		}
		n.selected = true
	}
	return root
}

// applySelect prunes value in place according to the trie descent rule:
// a selected node retains its whole subtree; otherwise, only
// reserved keys and children that match the trie survive, and arrays
// apply the same node to every element.
func applySelect(node *selectNode, value interface{}) interface{} {
	if node == nil || node.selected {
		return value
	}
	switch v := value.(type) {
	case map[string]interface{}:
		for key, child := range v {
			if reservedKey(key) {
				continue
			}
			next, ok := node.children[key]
			if !ok {
				delete(v, key)
				continue
			}
			v[key] = applySelect(next, child)
		}
		return v
	case []interface{}:
		for i, elem := range v {
			v[i] = applySelect(node, elem)
		}
		return v
	default:
		return value
	}
}

// ApplySelect prunes body according to the comma-separated $select paths
// in q (a no-op if none were given).
func ApplySelect(q *Query, body map[string]interface{}) map[string]interface{} {
	if q == nil || len(q.Select) == 0 {
		return body
	}
	trie := buildSelectTrie(q.Select)
	pruned := applySelect(trie, body)
	m, _ := pruned.(map[string]interface{})
	return m
}
