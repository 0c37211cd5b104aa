// Copyright 2025 walteh LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package remote

import (
	"bytes"
	"fmt"
	"net/http"
)

const maxErrorBody = 512

// 🚫 StatusError is returned when the service answers with a non-2xx status
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("transform service returned %d %s", e.Code, http.StatusText(e.Code))
	}
	return fmt.Sprintf("transform service returned %d %s: %s", e.Code, http.StatusText(e.Code), e.Body)
}

// StatusCode exposes the HTTP status for retry predicates
func (e *StatusError) StatusCode() int {
	return e.Code
}

func newStatusError(code int, body []byte) *StatusError {
	body = bytes.TrimSpace(body)
	if len(body) > maxErrorBody {
		body = append(body[:maxErrorBody:maxErrorBody], "..."...)
	}
	return &StatusError{Code: code, Body: string(body)}
}
