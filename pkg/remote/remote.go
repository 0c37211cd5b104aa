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

// Package remote is the boundary to the transform service. The core only
// depends on the Transformer interface; the HTTP client is one
// implementation, registered under the name "http".
package remote

import (
	"context"
	"slices"
	"strings"
	"sync"

	"gitlab.com/tozd/go/errors"
)

// Layer statuses reported by the transform service
const (
	LayerSuccess = "success"
	LayerError   = "error"
	LayerSkipped = "skipped"
)

// 📨 Request is one file sent for transformation
type Request struct {
	Code     string `json:"code"`
	FilePath string `json:"filePath"`
	Layers   []int  `json:"layers"`
}

// 📬 Response is the transformed content plus per-layer results
type Response struct {
	Transformed string        `json:"transformed"`
	Layers      []LayerResult `json:"layers" validate:"dive"`
}

// LayerResult describes what one layer did to a file
type LayerResult struct {
	ID      int    `json:"id"      validate:"gte=1"`
	Name    string `json:"name"`
	Status  string `json:"status"  validate:"oneof=success error skipped"`
	Changes int    `json:"changes" validate:"gte=0"`
}

// Transformer applies the requested layers to a file's content
type Transformer interface {
	Transform(ctx context.Context, req Request) (*Response, error)
}

// TransformerFunc adapts a function to the Transformer interface
type TransformerFunc func(ctx context.Context, req Request) (*Response, error)

func (f TransformerFunc) Transform(ctx context.Context, req Request) (*Response, error) {
	return f(ctx, req)
}

// Factory builds a Transformer from options
type Factory func(ctx context.Context, opts Options) (Transformer, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// 📝 Register makes a transformer available by name
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = f
}

// 🔌 New builds the transformer registered under name
func New(ctx context.Context, name string, opts Options) (Transformer, error) {
	registryMu.RLock()
	f, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, errors.Errorf("transformer %s not found, options: %s", name, strings.Join(Names(), ", "))
	}

	t, err := f(ctx, opts)
	if err != nil {
		return nil, errors.Errorf("creating %s transformer: %w", name, err)
	}
	return t, nil
}

// Names lists the registered transformers, sorted
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for k := range registry {
		names = append(names, k)
	}
	slices.Sort(names)
	return names
}
