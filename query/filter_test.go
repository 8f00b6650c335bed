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
	"testing"

	"github.com/stretchr/testify/require"
)

func member(health string, count float64) map[string]interface{} {
	return map[string]interface{}{
		"Status": map[string]interface{}{"Health": health},
		"Count":  count,
	}
}

func TestFilterSimpleEquality(t *testing.T) {
	ast, err := parseFilter("Status/Health eq 'OK'")
	require.NoError(t, err)
	require.True(t, ast.eval(member("OK", 1)))
	require.False(t, ast.eval(member("Warning", 1)))
}

func TestFilterAndOr(t *testing.T) {
	ast, err := parseFilter("Status/Health eq 'OK' and Count gt 0")
	require.NoError(t, err)
	require.True(t, ast.eval(member("OK", 5)))
	require.False(t, ast.eval(member("OK", 0)))

	ast2, err := parseFilter("Status/Health eq 'Critical' or Count ge 10")
	require.NoError(t, err)
	require.True(t, ast2.eval(member("OK", 10)))
	require.False(t, ast2.eval(member("OK", 9)))
}

func TestFilterNotAndParens(t *testing.T) {
	ast, err := parseFilter("not (Status/Health eq 'OK')")
	require.NoError(t, err)
	require.False(t, ast.eval(member("OK", 1)))
	require.True(t, ast.eval(member("Warning", 1)))
}

func TestFilterNumericComparisons(t *testing.T) {
	ast, err := parseFilter("Count le 3")
	require.NoError(t, err)
	require.True(t, ast.eval(member("OK", 3)))
	require.False(t, ast.eval(member("OK", 4)))
}

func TestFilterMissingPropertyIsFalse(t *testing.T) {
	ast, err := parseFilter("Nonexistent eq 'x'")
	require.NoError(t, err)
	require.False(t, ast.eval(member("OK", 1)))
}

func TestFilterSyntaxErrors(t *testing.T) {
	_, err := parseFilter("Status/Health eq")
	require.Error(t, err)

	_, err = parseFilter("Status/Health badop 'OK'")
	require.Error(t, err)

	_, err = parseFilter("(Status/Health eq 'OK'")
	require.Error(t, err)
}
