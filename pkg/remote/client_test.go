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

package remote_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/walteh/batchfix/pkg/remote"
	"github.com/walteh/batchfix/pkg/retry"
	"gitlab.com/tozd/go/errors"
)

func testContext(t *testing.T) context.Context {
	return zerolog.New(zerolog.NewTestWriter(t)).WithContext(context.Background())
}

func TestClientTransform(t *testing.T) {
	var gotReq remote.Request
	var gotHeaders http.Header

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/transform", r.URL.Path)
		gotHeaders = r.Header.Clone()
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq)) {
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(remote.Response{
			Transformed: gotReq.Code + "// fixed\n",
			Layers: []remote.LayerResult{
				{ID: 1, Name: "config", Status: remote.LayerSkipped},
				{ID: 2, Name: "patterns", Status: remote.LayerSuccess, Changes: 3},
			},
		})
	}))
	defer srv.Close()

	client, err := remote.NewClient(remote.Options{BaseURL: srv.URL + "/api/", APIKey: "secret"})
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/api/transform", client.Endpoint())

	resp, err := client.Transform(testContext(t), remote.Request{
		Code:     "const a = 1;\n",
		FilePath: "src/a.ts",
		Layers:   []int{1, 2},
	})
	require.NoError(t, err)

	assert.Equal(t, remote.Request{Code: "const a = 1;\n", FilePath: "src/a.ts", Layers: []int{1, 2}}, gotReq)
	assert.Equal(t, "Bearer secret", gotHeaders.Get("Authorization"))
	assert.Equal(t, "application/json", gotHeaders.Get("Content-Type"))
	_, err = uuid.Parse(gotHeaders.Get("X-Request-ID"))
	assert.NoError(t, err, "request id should be a uuid")

	assert.Equal(t, "const a = 1;\n// fixed\n", resp.Transformed)
	require.Len(t, resp.Layers, 2)
	assert.Equal(t, 3, resp.Layers[1].Changes)
}

func TestClientOmitsAuthorizationWithoutKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		_, _ = io.WriteString(w, `{"transformed":"x","layers":[]}`)
	}))
	defer srv.Close()

	client, err := remote.NewClient(remote.Options{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = client.Transform(testContext(t), remote.Request{Code: "x"})
	require.NoError(t, err)
}

func TestClientErrors(t *testing.T) {
	tests := []struct {
		name          string
		handler       http.HandlerFunc
		wantStatus    int
		wantContains  string
		wantRetryable bool
	}{
		{
			name: "server_error_is_retryable",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "boom", http.StatusInternalServerError)
			},
			wantStatus:    500,
			wantContains:  "500 Internal Server Error: boom",
			wantRetryable: true,
		},
		{
			name: "rate_limited_is_retryable",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusTooManyRequests)
			},
			wantStatus:    429,
			wantContains:  "429 Too Many Requests",
			wantRetryable: true,
		},
		{
			name: "unauthorized_is_permanent",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "bad key", http.StatusUnauthorized)
			},
			wantStatus:   401,
			wantContains: "bad key",
		},
		{
			name: "malformed_json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, `{"transformed":`)
			},
			wantContains: "decoding response",
		},
		{
			name: "unknown_layer_status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, `{"transformed":"x","layers":[{"id":1,"name":"a","status":"weird","changes":0}]}`)
			},
			wantContains: "invalid response",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			client, err := remote.NewClient(remote.Options{BaseURL: srv.URL})
			require.NoError(t, err)

			_, err = client.Transform(testContext(t), remote.Request{Code: "x"})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantContains)
			assert.Equal(t, tt.wantRetryable, retry.IsTransient(err))

			var se *remote.StatusError
			if tt.wantStatus == 0 {
				assert.False(t, errors.As(err, &se))
				return
			}
			require.True(t, errors.As(err, &se))
			assert.Equal(t, tt.wantStatus, se.StatusCode())
		})
	}
}

func TestClientTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	client, err := remote.NewClient(remote.Options{BaseURL: srv.URL, Timeout: 50 * time.Millisecond})
	require.NoError(t, err)

	_, err = client.Transform(testContext(t), remote.Request{Code: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, retry.IsTransient(err), "timeouts should be retried")
}

func TestClientRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = io.WriteString(w, `{"transformed":"x","layers":[]}`)
	}))
	defer srv.Close()

	client, err := remote.NewClient(remote.Options{BaseURL: srv.URL, RateLimit: 10})
	require.NoError(t, err)

	ctx := testContext(t)
	start := time.Now()
	for range 3 {
		_, err := client.Transform(ctx, remote.Request{Code: "x"})
		require.NoError(t, err)
	}

	assert.EqualValues(t, 3, calls.Load())
	assert.GreaterOrEqual(t, time.Since(start), 180*time.Millisecond, "3 requests at 10/s need two waits")
}

func TestNewClientValidation(t *testing.T) {
	_, err := remote.NewClient(remote.Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid client options")

	_, err = remote.NewClient(remote.Options{BaseURL: "http://localhost", RateLimit: -1})
	require.Error(t, err)
}

func TestRegistry(t *testing.T) {
	assert.Contains(t, remote.Names(), "http")

	tr, err := remote.New(context.Background(), "http", remote.Options{BaseURL: "http://localhost:9"})
	require.NoError(t, err)
	assert.IsType(t, &remote.Client{}, tr)

	_, err = remote.New(context.Background(), "nope", remote.Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "transformer nope not found, options: http")
}

func TestTransformerFunc(t *testing.T) {
	var tr remote.Transformer = remote.TransformerFunc(func(ctx context.Context, req remote.Request) (*remote.Response, error) {
		return &remote.Response{Transformed: req.Code + "!"}, nil
	})

	resp, err := tr.Transform(context.Background(), remote.Request{Code: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hi!", resp.Transformed)
}
