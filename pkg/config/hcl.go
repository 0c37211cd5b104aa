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

package config

import (
	"context"
	"os"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"gitlab.com/tozd/go/errors"
)

func init() {
	Register(&HCLParser{})
}

// 🔧 HCLParser implements the Parser interface for HCL files.
// Environment variables are available as env.NAME.
type HCLParser struct{}

// 🔍 CanParse checks if this parser can handle the given file
func (p *HCLParser) CanParse(filename string) bool {
	return hasExt(filename, ".hcl")
}

type hclConfig struct {
	Transformer   *string  `hcl:"transformer,optional"`
	APIURL        *string  `hcl:"api_url,optional"`
	APIKeyEnv     *string  `hcl:"api_key_env,optional"`
	Timeout       *string  `hcl:"timeout,optional"`
	RateLimit     *float64 `hcl:"rate_limit,optional"`
	Layers        []int    `hcl:"layers,optional"`
	BatchSize     *int     `hcl:"batch_size,optional"`
	MaxConcurrent *int     `hcl:"max_concurrent,optional"`
	ProgressFile  *string  `hcl:"progress_file,optional"`
	Exclude       []string `hcl:"exclude,optional"`

	Retry *struct {
		MaxAttempts     *int     `hcl:"max_attempts,optional"`
		Delay           *string  `hcl:"delay,optional"`
		BackoffFactor   *float64 `hcl:"backoff_factor,optional"`
		MaxDelay        *string  `hcl:"max_delay,optional"`
		Jitter          *float64 `hcl:"jitter,optional"`
		RetryableStatus []int    `hcl:"retryable_status,optional"`
	} `hcl:"retry,block"`

	Backup *struct {
		Enabled    *bool   `hcl:"enabled,optional"`
		Dir        *string `hcl:"dir,optional"`
		MaxBackups *int    `hcl:"max_backups,optional"`
	} `hcl:"backup,block"`

	Validation *struct {
		MaxFiles         *int     `hcl:"max_files,optional"`
		MaxFileSize      *int64   `hcl:"max_file_size,optional"`
		Extensions       []string `hcl:"extensions,optional"`
		StrictExtensions *bool    `hcl:"strict_extensions,optional"`
		WarnOnOversize   *bool    `hcl:"warn_on_oversize,optional"`
	} `hcl:"validation,block"`
}

// 📝 Parse parses the config from HCL
func (p *HCLParser) Parse(ctx context.Context, data []byte, filename string, into *Config) error {
	parser := hclparse.NewParser()
	hclFile, diags := parser.ParseHCL(data, filename)
	if diags.HasErrors() {
		return errors.Errorf("parsing HCL: %s", diags.Error())
	}

	evalCtx := &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"env": envObject(),
		},
	}

	var hc hclConfig
	diags = gohcl.DecodeBody(hclFile.Body, evalCtx, &hc)
	if diags.HasErrors() {
		return errors.Errorf("decoding HCL: %s", diags.Error())
	}

	set(&into.Transformer, hc.Transformer)
	set(&into.APIURL, hc.APIURL)
	set(&into.APIKeyEnv, hc.APIKeyEnv)
	set(&into.Timeout, hc.Timeout)
	set(&into.RateLimit, hc.RateLimit)
	set(&into.BatchSize, hc.BatchSize)
	set(&into.MaxConcurrent, hc.MaxConcurrent)
	set(&into.ProgressFile, hc.ProgressFile)
	if hc.Layers != nil {
		into.Layers = hc.Layers
	}
	if hc.Exclude != nil {
		into.Exclude = hc.Exclude
	}

	if r := hc.Retry; r != nil {
		set(&into.Retry.MaxAttempts, r.MaxAttempts)
		set(&into.Retry.Delay, r.Delay)
		set(&into.Retry.BackoffFactor, r.BackoffFactor)
		set(&into.Retry.MaxDelay, r.MaxDelay)
		set(&into.Retry.Jitter, r.Jitter)
		if r.RetryableStatus != nil {
			into.Retry.RetryableStatus = r.RetryableStatus
		}
	}

	if b := hc.Backup; b != nil {
		set(&into.Backup.Enabled, b.Enabled)
		set(&into.Backup.Dir, b.Dir)
		set(&into.Backup.MaxBackups, b.MaxBackups)
	}

	if v := hc.Validation; v != nil {
		set(&into.Validation.MaxFiles, v.MaxFiles)
		set(&into.Validation.MaxFileSize, v.MaxFileSize)
		set(&into.Validation.StrictExtensions, v.StrictExtensions)
		set(&into.Validation.WarnOnOversize, v.WarnOnOversize)
		if v.Extensions != nil {
			into.Validation.Extensions = v.Extensions
		}
	}

	return nil
}

func set[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

func envObject() cty.Value {
	vars := map[string]cty.Value{}
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		vars[k] = cty.StringVal(v)
	}
	if len(vars) == 0 {
		return cty.EmptyObjectVal
	}
	return cty.ObjectVal(vars)
}
