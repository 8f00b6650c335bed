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

package bmcweb

import (
	"compress/flate"
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/rapidloop/bmcweb/redfishmsg"
	"github.com/rapidloop/bmcweb/respond"
)

//------------------------------------------------------------------------------
// action parameters

// ActionParam declares one parameter of a Redfish action's POST body.
type ActionParam struct {
	// Name is the parameter name as it appears in the action's request
	// body, e.g. `ResetType`.
	Name string

	// Type is one of `string`, `integer`, `number`, `boolean` or `array`.
	Type string

	// ElemType is the element type for Type `array`: one of `string`,
	// `integer`, `number` or `boolean`.
	ElemType string

	// Required marks the parameter as mandatory; a request body without
	// it is rejected with ActionParameterMissing.
	Required bool

	// AllowableValues restricts the value to this set (the
	// `@Redfish.AllowableValues` advertised on the action). Applies to
	// string, integer and number parameters.
	AllowableValues []any

	// Pattern is an optional anchored regular expression a string value
	// must match.
	Pattern string

	// Minimum and Maximum bound integer and number values, inclusive.
	Minimum *float64
	Maximum *float64

	// MaxLength bounds the length of a string value.
	MaxLength *int

	// MinItems and MaxItems bound the length of an array value.
	MinItems *int
	MaxItems *int
}

type paramInfo struct {
	rx   *regexp.Regexp // compiled "^{.Pattern}$"
	enum any            // []string, []int64 or []float64
}

// Action is a compiled description of one Redfish action: its qualified
// name (e.g. `ComputerSystem.Reset`) and its declared parameters.
// Compile once (typically in a package-level var) and reuse across
// requests; an Action is read-only after NewAction.
type Action struct {
	Name   string
	Params []ActionParam

	pinfo map[string]*paramInfo
}

// NewAction compiles the parameter declarations (patterns, allowable
// value sets) for repeated use. An unparseable Pattern is ignored, the
// same way an invalid pattern in a config file would be.
func NewAction(name string, params ...ActionParam) *Action {
	a := &Action{
		Name:   name,
		Params: params,
		pinfo:  make(map[string]*paramInfo, len(params)),
	}
	for i := range params {
		p := &params[i]
		var info paramInfo

		// pattern
		if len(p.Pattern) > 0 {
			if rx, err := regexp.Compile("^" + p.Pattern + "$"); err == nil {
				info.rx = rx
			}
		}

		// allowable values
		if len(p.AllowableValues) > 0 && (p.Type == "string" || p.Type == "integer" || p.Type == "number") {
			var sa []string
			var ia []int64
			var na []float64
			for _, v := range p.AllowableValues {
				switch p.Type {
				case "string":
					if s, ok := v.(string); ok {
						sa = append(sa, s)
					}
				case "integer":
					if i, ok := v.(int64); ok {
						ia = append(ia, i)
					} else if i, ok := v.(int); ok {
						ia = append(ia, int64(i))
					} else if f, ok := v.(float64); ok {
						if i, ok := float2int(f); ok {
							ia = append(ia, i)
						}
					} else if s, ok := v.(string); ok {
						if i, err := strconv.ParseInt(s, 10, 64); err == nil {
							ia = append(ia, i)
						}
					}
				case "number":
					if i, ok := v.(int64); ok {
						na = append(na, float64(i))
					} else if i, ok := v.(int); ok {
						na = append(na, float64(i))
					} else if f, ok := v.(float64); ok {
						na = append(na, f)
					} else if s, ok := v.(string); ok {
						if f, err := strconv.ParseFloat(s, 64); err == nil {
							na = append(na, f)
						}
					}
				}
			}
			if len(sa) > 0 {
				info.enum = sa
			} else if len(ia) > 0 {
				info.enum = ia
			} else if len(na) > 0 {
				info.enum = na
			}
		}

		if info.rx != nil || info.enum != nil {
			a.pinfo[p.Name] = &info
		}
	}
	return a
}

// StringValues is a convenience for building AllowableValues from a
// string slice (the usual case for Redfish action enums).
func StringValues(vs ...string) []any {
	out := make([]any, len(vs))
	for i := range vs {
		out[i] = vs[i]
	}
	return out
}

// ActionError is a failed action-parameter decode, carrying the HTTP
// status and registry message to return to the client.
type ActionError struct {
	Status int
	Msg    redfishmsg.Message
}

func (e *ActionError) Error() string {
	return e.Msg.Message
}

// errNotInList distinguishes an allowable-values miss from a type
// mismatch, so Decode can map it to PropertyValueNotInList rather than
// ActionParameterValueTypeError.
var errNotInList = errors.New("does not match any of the allowable values")

// Decode parses req's JSON body against the action's declared
// parameters and returns their values positionally, in declaration
// order (nil for an absent optional parameter). Undeclared keys in the
// body, missing required parameters, type mismatches and out-of-list
// values each produce the corresponding registry message.
func (a *Action) Decode(req *respond.Request) ([]any, *ActionError) {
	var data map[string]any
	if body := strings.TrimSpace(string(req.Body)); len(body) > 0 {
		if ct := contentType(req); ct != "" && ct != "application/json" {
			code, m := redfishmsg.MalformedJSON()
			return nil, &ActionError{Status: code, Msg: m}
		}
		if err := json.Unmarshal([]byte(body), &data); err != nil {
			code, m := redfishmsg.MalformedJSON()
			return nil, &ActionError{Status: code, Msg: m}
		}
	}

	declared := make(map[string]bool, len(a.Params))
	for i := range a.Params {
		declared[a.Params[i].Name] = true
	}
	for k := range data {
		if !declared[k] {
			code, m := redfishmsg.ActionParameterNotSupported(k, a.Name)
			return nil, &ActionError{Status: code, Msg: m}
		}
	}

	out := make([]any, len(a.Params))
	for i := range a.Params {
		p := &a.Params[i]
		v, ok := data[p.Name]
		if !ok {
			if p.Required {
				code, m := redfishmsg.ActionParameterMissing(a.Name, p.Name)
				return nil, &ActionError{Status: code, Msg: m}
			}
			continue
		}
		v2, err := a.isSuitable(p, v)
		if err != nil {
			if errors.Is(err, errNotInList) {
				code, m := redfishmsg.PropertyValueNotInList(stringify(v), p.Name)
				return nil, &ActionError{Status: code, Msg: m}
			}
			code, m := redfishmsg.ActionParameterValueTypeError(stringify(v), p.Name, a.Name)
			return nil, &ActionError{Status: code, Msg: m}
		}
		out[i] = v2
	}

	return out, nil
}

func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

func (a *Action) isSuitable(p *ActionParam, v any) (out any, err error) {
	switch p.Type {
	case "string":
		if s, ok := v.(string); ok {
			return a.checkString(p, s)
		}
		return nil, errors.New("not a string")
	case "integer":
		return a.checkIntegerAny(p, v)
	case "number":
		return a.checkFloatAny(p, v)
	case "boolean":
		return a.checkBoolAny(p, v)
	case "array":
		return a.checkArrayAny(p, v)
	}

	// should not happen for a valid declaration
	return nil, errors.New("unknown parameter type")
}

func (a *Action) checkStringAny(p *ActionParam, v any) (string, error) {
	if s, ok := v.(string); ok {
		return a.checkString(p, s)
	}
	return "", fmt.Errorf("cannot convert value of type %T to string", v)
}

func (a *Action) checkString(p *ActionParam, s string) (string, error) {
	// allowable values
	if len(p.AllowableValues) > 0 {
		if pi := a.pinfo[p.Name]; pi != nil {
			for _, v := range pi.enum.([]string) {
				if v == s {
					return s, nil
				}
			}
		}
		return "", errNotInList
	}

	// maxLength
	if p.MaxLength != nil && *p.MaxLength >= 0 && len(s) > *p.MaxLength {
		return "", fmt.Errorf("exceeds specified max length of %d", *p.MaxLength)
	}

	// pattern
	if len(p.Pattern) > 0 {
		if pi := a.pinfo[p.Name]; pi != nil && pi.rx != nil {
			if !pi.rx.MatchString(s) {
				return "", fmt.Errorf("does not match pattern %s", p.Pattern)
			}
		}
	}

	return s, nil
}

func (a *Action) checkIntegerAny(p *ActionParam, v any) (int64, error) {
	if s, ok := v.(string); ok {
		// allow both "200.00" and "200"
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			if i, ok := float2int(f); ok {
				return a.checkInteger(p, i)
			}
		}
		return 0, errors.New("not a valid integer")
	} else if f, ok := v.(float64); ok {
		if i, ok := float2int(f); ok {
			return a.checkInteger(p, i)
		}
	}
	return 0, fmt.Errorf("cannot convert value of type %T to integer", v)
}

func (a *Action) checkInteger(p *ActionParam, i int64) (int64, error) {
	// allowable values
	if len(p.AllowableValues) > 0 {
		if pi := a.pinfo[p.Name]; pi != nil {
			for _, v := range pi.enum.([]int64) {
				if v == i {
					return i, nil
				}
			}
		}
		return 0, errNotInList
	}

	// minimum
	if p.Minimum != nil {
		if min := int64(*p.Minimum); i < min {
			return 0, fmt.Errorf("is lower than the minimum of %d", min)
		}
	}

	// maximum
	if p.Maximum != nil {
		if max := int64(*p.Maximum); i > max {
			return 0, fmt.Errorf("is higher than the maximum of %d", max)
		}
	}

	return i, nil
}

func (a *Action) checkFloatAny(p *ActionParam, v any) (float64, error) {
	if s, ok := v.(string); ok {
		if f, err := strconv.ParseFloat(s, 64); err != nil {
			return 0, errors.New("not a valid number")
		} else {
			return a.checkFloat(p, f)
		}
	} else if f, ok := v.(float64); ok && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return a.checkFloat(p, f)
	}
	return 0, fmt.Errorf("cannot convert value of type %T to number", v)
}

func (a *Action) checkFloat(p *ActionParam, f float64) (float64, error) {
	// allowable values
	if len(p.AllowableValues) > 0 {
		if pi := a.pinfo[p.Name]; pi != nil {
			for _, v := range pi.enum.([]float64) {
				if v == f {
					return f, nil
				}
			}
		}
		return 0, errNotInList
	}

	// minimum
	if p.Minimum != nil {
		if min := *p.Minimum; f < min {
			return 0, fmt.Errorf("is lower than the minimum of %g", min)
		}
	}

	// maximum
	if p.Maximum != nil {
		if max := *p.Maximum; f > max {
			return 0, fmt.Errorf("is higher than the maximum of %g", max)
		}
	}

	return f, nil
}

func float2int(f float64) (i int64, ok bool) {
	if i, frac := math.Modf(f); math.Abs(frac) < 1e-9 {
		return int64(i), true
	}
	return 0, false
}

func (a *Action) checkBoolAny(p *ActionParam, v any) (out bool, err error) {
	if s, ok := v.(string); ok {
		s = strings.ToLower(s)
		if s == "true" {
			return true, nil
		} else if s == "false" {
			return false, nil
		}
	} else if b, ok := v.(bool); ok {
		return b, nil
	}
	return false, fmt.Errorf("cannot convert value of type %T to boolean", v)
}

func (a *Action) checkArrayAny(p *ActionParam, v any) (out any, err error) {
	aa, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("cannot convert value of type %T to array", v)
	}
	return a.checkArray(p, aa)
}

func (a *Action) checkArray(p *ActionParam, v []any) (out any, err error) {
	// minItems
	if p.MinItems != nil && len(v) < *p.MinItems {
		return nil, fmt.Errorf("fewer than the specified minimum of %d items", *p.MinItems)
	}

	// maxItems
	if p.MaxItems != nil && len(v) > *p.MaxItems {
		return nil, fmt.Errorf("more than the specified maximum of %d items", *p.MaxItems)
	}

	// result is one of:
	var (
		sa []string
		ia []int64
		fa []float64
		ba []bool
	)

	// for each element:
	for j, ev := range v {
		switch p.ElemType {
		case "integer":
			if i, err := a.checkIntegerAny(p, ev); err != nil {
				return nil, fmt.Errorf("element #%d: %v", j+1, err)
			} else {
				ia = append(ia, i)
			}
		case "number":
			if f, err := a.checkFloatAny(p, ev); err != nil {
				return nil, fmt.Errorf("element #%d: %v", j+1, err)
			} else {
				fa = append(fa, f)
			}
		case "string":
			if s, err := a.checkStringAny(p, ev); err != nil {
				return nil, fmt.Errorf("element #%d: %v", j+1, err)
			} else {
				sa = append(sa, s)
			}
		case "boolean":
			if b, err := a.checkBoolAny(p, ev); err != nil {
				return nil, fmt.Errorf("element #%d: %v", j+1, err)
			} else {
				ba = append(ba, b)
			}
		}
	}

	// done, return appropriately
	switch p.ElemType {
	case "integer":
		return ia, nil
	case "number":
		return fa, nil
	case "string":
		return sa, nil
	case "boolean":
		return ba, nil
	}
	// should not happen for a valid declaration
	return nil, fmt.Errorf("invalid elemType %q", p.ElemType)
}

//------------------------------------------------------------------------------
// request body

// contentType returns the media type of the request body, without any
// parameters (charset etc).
func contentType(req *respond.Request) (out string) {
	out = req.Header("Content-Type")
	if pos := strings.IndexByte(out, ';'); pos > 0 {
		out = out[:pos]
	}
	return
}

// readRequestBody reads the request body, transparently decompressing a
// gzip or deflate Content-Encoding, bounded by maxBodyBytes.
func readRequestBody(httpReq *http.Request) ([]byte, error) {
	var r io.Reader = io.LimitReader(httpReq.Body, maxBodyBytes)
	switch httpReq.Header.Get("Content-Encoding") {
	case "gzip":
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize gzip reader: %v", err)
		}
		defer gz.Close()
		r = gz
	case "deflate":
		fr := flate.NewReader(r)
		defer fr.Close()
		r = fr
	}
	return io.ReadAll(r)
}
