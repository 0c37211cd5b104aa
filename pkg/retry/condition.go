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

package retry

import (
	"context"
	"net"
	"slices"
	"syscall"

	"gitlab.com/tozd/go/errors"
)

// DefaultRetryableStatus are the HTTP status codes retried by IsTransient
var DefaultRetryableStatus = []int{408, 429, 500, 502, 503, 504}

// statusCoder is implemented by errors that carry an HTTP status code
type statusCoder interface {
	StatusCode() int
}

// 🌩️ IsTransient reports whether err looks like a hiccup that a later
// attempt could get past: a reset or refused connection, an unknown host, a
// timeout, or one of DefaultRetryableStatus. Authentication failures and
// other client errors are not transient.
func IsTransient(err error) bool {
	return isTransient(err, DefaultRetryableStatus)
}

// StatusPredicate builds a retry condition that treats the given status
// codes (and transient network failures) as retryable
func StatusPredicate(codes ...int) func(error) bool {
	codes = slices.Clone(codes)
	return func(err error) bool {
		return isTransient(err, codes)
	}
}

func isTransient(err error, codes []int) bool {
	if err == nil {
		return false
	}

	var sc statusCoder
	if errors.As(err, &sc) {
		return slices.Contains(codes, sc.StatusCode())
	}

	return isTransientNetwork(err)
}

func isTransientNetwork(err error) bool {
	switch {
	case errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ETIMEDOUT),
		errors.Is(err, context.DeadlineExceeded):
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.IsNotFound || dnsErr.IsTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return false
}
