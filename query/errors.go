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

import "fmt"

// NotSupportedError is returned for a $-prefixed query key the server does
// not recognize, or one that is recognized but disabled at build time
// (e.g. $expand when the feature flag is off). The dispatcher maps this to
// a 501 response carrying a QueryNotSupported message.
type NotSupportedError struct {
	Key string
}

func (e *NotSupportedError) Error() string {
	return fmt.Sprintf("query: %s is not supported", e.Key)
}

// ValueFormatError is returned when a recognized query key's value fails
// to parse. The dispatcher maps this to a 400 response carrying a
// QueryParameterValueFormatError message naming Key and Value.
type ValueFormatError struct {
	Key   string
	Value string
}

func (e *ValueFormatError) Error() string {
	return fmt.Sprintf("query: malformed value %q for %s", e.Value, e.Key)
}
