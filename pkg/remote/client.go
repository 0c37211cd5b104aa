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
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
	"golang.org/x/time/rate"
)

const (
	// DefaultTimeout bounds a single transform request
	DefaultTimeout = 60 * time.Second

	transformPath   = "/transform"
	maxResponseSize = 64 << 20
)

var validate = validator.New()

func init() {
	Register("http", func(ctx context.Context, opts Options) (Transformer, error) {
		return NewClient(opts)
	})
}

// 🔧 Options configures the HTTP client
type Options struct {
	BaseURL string `validate:"required,url"`
	APIKey  string
	// Timeout applies per request; zero means DefaultTimeout
	Timeout time.Duration `validate:"gte=0"`
	// RateLimit is the number of requests per second, zero is unlimited
	RateLimit  float64 `validate:"gte=0"`
	HTTPClient *http.Client
}

// 🌐 Client calls the transform service over HTTP
type Client struct {
	endpoint string
	apiKey   string
	timeout  time.Duration
	limiter  *rate.Limiter
	http     *http.Client
}

// 🏭 NewClient validates opts and creates a client
func NewClient(opts Options) (*Client, error) {
	if err := validate.Struct(opts); err != nil {
		return nil, errors.Errorf("invalid client options: %w", err)
	}

	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, errors.Errorf("parsing base url: %w", err)
	}

	c := &Client{
		endpoint: base.JoinPath(transformPath).String(),
		apiKey:   opts.APIKey,
		timeout:  opts.Timeout,
		limiter:  rate.NewLimiter(rate.Inf, 0),
		http:     opts.HTTPClient,
	}
	if c.timeout == 0 {
		c.timeout = DefaultTimeout
	}
	if opts.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	}
	if c.http == nil {
		c.http = http.DefaultClient
	}

	return c, nil
}

// Endpoint returns the full transform URL
func (c *Client) Endpoint() string {
	return c.endpoint
}

// 🔄 Transform posts the file to the service and decodes the answer.
// Non-2xx responses come back as *StatusError.
func (c *Client) Transform(ctx context.Context, req Request) (*Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, errors.Errorf("waiting for rate limiter: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Errorf("encoding request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Errorf("creating request: %w", err)
	}

	requestID := uuid.NewString()
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Request-ID", requestID)
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	logger := zerolog.Ctx(ctx).With().
		Str("request_id", requestID).
		Str("file", req.FilePath).
		Logger()
	start := time.Now()

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, errors.Errorf("making request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, errors.Errorf("reading response: %w", err)
	}

	logger.Debug().
		Int("status", resp.StatusCode).
		Dur("took", time.Since(start)).
		Msg("transform request finished")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newStatusError(resp.StatusCode, data)
	}

	var out Response
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, errors.Errorf("decoding response: %w", err)
	}
	if err := validate.Struct(out); err != nil {
		return nil, errors.Errorf("invalid response: %w", err)
	}

	return &out, nil
}
