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
	"fmt"
	"os"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/batchfix/pkg/backup"
	"github.com/walteh/batchfix/pkg/discover"
	"github.com/walteh/batchfix/pkg/job"
	"github.com/walteh/batchfix/pkg/progress"
	"github.com/walteh/batchfix/pkg/remote"
	"github.com/walteh/batchfix/pkg/retry"
	"github.com/walteh/batchfix/pkg/validate"
)

// 📚 Config is the complete batchfix configuration
type Config struct {
	Transformer   string   `json:"transformer"    yaml:"transformer"    validate:"required"`
	APIURL        string   `json:"api_url"        yaml:"api_url"        validate:"required,url"`
	APIKeyEnv     string   `json:"api_key_env"    yaml:"api_key_env"`
	Timeout       string   `json:"timeout"        yaml:"timeout"        validate:"duration"`
	RateLimit     float64  `json:"rate_limit"     yaml:"rate_limit"     validate:"gte=0"`
	Layers        []int    `json:"layers"         yaml:"layers"         validate:"required,min=1,dive,gte=1,lte=6"`
	BatchSize     int      `json:"batch_size"     yaml:"batch_size"     validate:"gte=1"`
	MaxConcurrent int      `json:"max_concurrent" yaml:"max_concurrent" validate:"gte=1"`
	ProgressFile  string   `json:"progress_file"  yaml:"progress_file"  validate:"required"`
	Exclude       []string `json:"exclude"        yaml:"exclude"`

	Retry      RetrySettings      `json:"retry"      yaml:"retry"`
	Backup     BackupSettings     `json:"backup"     yaml:"backup"`
	Validation ValidationSettings `json:"validation" yaml:"validation"`

	location string
}

// 🔁 RetrySettings tune the retry executor around each transform call
type RetrySettings struct {
	MaxAttempts     int     `json:"max_attempts"     yaml:"max_attempts"     validate:"gte=1"`
	Delay           string  `json:"delay"            yaml:"delay"            validate:"duration"`
	BackoffFactor   float64 `json:"backoff_factor"   yaml:"backoff_factor"   validate:"gte=1"`
	MaxDelay        string  `json:"max_delay"        yaml:"max_delay"        validate:"omitempty,duration"`
	Jitter          float64 `json:"jitter"           yaml:"jitter"           validate:"gte=0,lte=1"`
	RetryableStatus []int   `json:"retryable_status" yaml:"retryable_status" validate:"dive,gte=100,lte=599"`
}

// 💾 BackupSettings control the backup manager
type BackupSettings struct {
	Enabled    bool   `json:"enabled"     yaml:"enabled"`
	Dir        string `json:"dir"         yaml:"dir"         validate:"required"`
	MaxBackups int    `json:"max_backups" yaml:"max_backups" validate:"gte=1"`
}

// ✅ ValidationSettings bound the file set accepted by a job
type ValidationSettings struct {
	MaxFiles         int      `json:"max_files"         yaml:"max_files"         validate:"gte=1"`
	MaxFileSize      int64    `json:"max_file_size"     yaml:"max_file_size"     validate:"gte=1"`
	Extensions       []string `json:"extensions"        yaml:"extensions"        validate:"dive,startswith=."`
	StrictExtensions bool     `json:"strict_extensions" yaml:"strict_extensions"`
	WarnOnOversize   bool     `json:"warn_on_oversize"  yaml:"warn_on_oversize"`
}

// 🏭 Default returns the built-in configuration
func Default() *Config {
	rc := retry.DefaultConfig()
	return &Config{
		Transformer:   "http",
		APIURL:        "http://localhost:3000/api",
		APIKeyEnv:     "BATCHFIX_API_KEY",
		Timeout:       remote.DefaultTimeout.String(),
		Layers:        slices.Clone(job.DefaultLayers),
		BatchSize:     job.DefaultBatchSize,
		MaxConcurrent: job.DefaultMaxConcurrent,
		ProgressFile:  progress.DefaultFile,
		Retry: RetrySettings{
			MaxAttempts:     rc.MaxAttempts,
			Delay:           rc.Delay.String(),
			BackoffFactor:   rc.BackoffFactor,
			MaxDelay:        rc.MaxDelay.String(),
			RetryableStatus: slices.Clone(retry.DefaultRetryableStatus),
		},
		Backup: BackupSettings{
			Dir:        backup.DefaultDir,
			MaxBackups: backup.DefaultMaxBackups,
		},
		Validation: ValidationSettings{
			MaxFiles:    validate.DefaultMaxFiles,
			MaxFileSize: validate.DefaultMaxFileSize,
			Extensions:  slices.Clone(validate.DefaultExtensions),
		},
	}
}

var validatorInstance = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("duration", func(fl validator.FieldLevel) bool {
		_, err := time.ParseDuration(fl.Field().String())
		return err == nil
	})
	// report yaml/json names instead of Go field names
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// 🔍 Validate checks every field
func (cfg *Config) Validate() error {
	err := validatorInstance.Struct(cfg)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return errors.Errorf("validating config: %w", err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q (value %v)", fieldPath(fe.Namespace()), fe.ActualTag(), fe.Value()))
	}
	return errors.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// fieldPath drops the root struct name from a validator namespace
func fieldPath(ns string) string {
	_, rest, ok := strings.Cut(ns, ".")
	if !ok {
		return ns
	}
	return rest
}

// Location is the file the config was loaded from, empty for Default()
func (cfg *Config) Location() string {
	return cfg.location
}

// APIKey reads the key from the configured environment variable
func (cfg *Config) APIKey() string {
	if cfg.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(cfg.APIKeyEnv)
}

// 🌐 RemoteOptions builds the transform client options
func (cfg *Config) RemoteOptions() (remote.Options, error) {
	timeout, err := time.ParseDuration(cfg.Timeout)
	if err != nil {
		return remote.Options{}, errors.Errorf("parsing timeout: %w", err)
	}
	return remote.Options{
		BaseURL:   cfg.APIURL,
		APIKey:    cfg.APIKey(),
		Timeout:   timeout,
		RateLimit: cfg.RateLimit,
	}, nil
}

// 🔁 RetryConfig builds the retry policy
func (cfg *Config) RetryConfig() (retry.Config, error) {
	delay, err := time.ParseDuration(cfg.Retry.Delay)
	if err != nil {
		return retry.Config{}, errors.Errorf("parsing retry.delay: %w", err)
	}

	opts := []retry.Option{
		retry.WithMaxAttempts(cfg.Retry.MaxAttempts),
		retry.WithDelay(delay),
		retry.WithBackoffFactor(cfg.Retry.BackoffFactor),
		retry.WithJitter(cfg.Retry.Jitter),
	}
	if cfg.Retry.MaxDelay != "" {
		maxDelay, err := time.ParseDuration(cfg.Retry.MaxDelay)
		if err != nil {
			return retry.Config{}, errors.Errorf("parsing retry.max_delay: %w", err)
		}
		opts = append(opts, retry.WithMaxDelay(maxDelay))
	}
	if len(cfg.Retry.RetryableStatus) > 0 {
		opts = append(opts, retry.WithRetryCondition(retry.StatusPredicate(cfg.Retry.RetryableStatus...)))
	}

	return retry.New(opts...), nil
}

// 💾 BackupOptions builds the backup manager options
func (cfg *Config) BackupOptions() backup.Options {
	return backup.Options{
		Dir:        cfg.Backup.Dir,
		MaxBackups: cfg.Backup.MaxBackups,
	}
}

// ✅ ValidationOptions builds the file set limits
func (cfg *Config) ValidationOptions() validate.Options {
	return validate.Options{
		MaxFiles:         cfg.Validation.MaxFiles,
		MaxFileSize:      cfg.Validation.MaxFileSize,
		Extensions:       slices.Clone(cfg.Validation.Extensions),
		StrictExtensions: cfg.Validation.StrictExtensions,
		WarnOnOversize:   cfg.Validation.WarnOnOversize,
	}
}

// 🎮 JobOptions maps the config onto coordinator options. The caller still
// sets the transformer, the patterns and any interactive hooks.
func (cfg *Config) JobOptions() (job.Options, error) {
	rc, err := cfg.RetryConfig()
	if err != nil {
		return job.Options{}, err
	}
	v := cfg.ValidationOptions()

	return job.Options{
		Discover: discover.Options{
			Exclude:    slices.Clone(cfg.Exclude),
			Extensions: slices.Clone(cfg.Validation.Extensions),
		},
		Layers:        slices.Clone(cfg.Layers),
		Backup:        cfg.Backup.Enabled,
		BackupOptions: cfg.BackupOptions(),
		BatchSize:     cfg.BatchSize,
		MaxConcurrent: cfg.MaxConcurrent,
		Retry:         rc,
		Validation:    &v,
		Store:         progress.NewFileStore(cfg.ProgressFile),
	}, nil
}

// 📝 String returns a short description of the config
func (cfg *Config) String() string {
	src := cfg.location
	if src == "" {
		src = "defaults"
	}
	return fmt.Sprintf("%s %s layers=%v batch=%d concurrency=%d (%s)",
		cfg.Transformer, cfg.APIURL, cfg.Layers, cfg.BatchSize, cfg.MaxConcurrent, src)
}
