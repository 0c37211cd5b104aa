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

package log

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
)

// 🎨 Display configuration
const (
	fileIndent  = 4  // spaces to indent file entries
	nameWidth   = 35 // Base width for filename
	statusWidth = 15 // Width for status text
)

// 🎯 FileOperation is one settled file, as shown to the user
type FileOperation struct {
	Path       string // File path
	IsChanged  bool   // Content differs from the original
	IsDryRun   bool   // Changes were computed but not written
	IsFailed   bool   // Processing failed
	IsSkipped  bool   // Left pending by an interrupted run
	Insertions int    // Lines added
	Deletions  int    // Lines removed
	Detail     string // Failure reason or backup location
}

// Status is the short status column text
func (op FileOperation) Status() string {
	switch {
	case op.IsFailed:
		return "failed"
	case op.IsSkipped:
		return "skipped"
	case op.IsChanged && op.IsDryRun:
		return "would modify"
	case op.IsChanged:
		return "changed"
	default:
		return "unchanged"
	}
}

// 📦 JobOperation describes a run for the header line
type JobOperation struct {
	Operation string // Operation name
	Files     int    // Number of files in the run
	Layers    []int  // Requested layers
	DryRun    bool   // Whether writes are suppressed
	Resumed   bool   // Whether an interrupted run is being picked up
}

// 🎯 Logger handles user facing console output and mirrors it to zerolog
type Logger struct {
	zlog       zerolog.Logger
	console    io.Writer
	mu         sync.Mutex
	currentJob *JobOperation
	operations []FileOperation
}

// 🏭 New creates a new logger writing to console and mirroring to zlog
func New(console io.Writer, zlog zerolog.Logger) *Logger {
	return &Logger{
		zlog:    zlog,
		console: console,
		mu:      sync.Mutex{},
	}
}

// 🔑 contextKey is the type for context values
type contextKey struct{}

// 🎯 FromContext gets the logger from context
func FromContext(ctx context.Context) *Logger {
	logger, ok := ctx.Value(contextKey{}).(*Logger)
	if !ok {
		panic("logger not found in context")
	}
	return logger
}

// 🎯 NewContext adds the logger to context
func NewContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, l)
}

// 📝 formatFileOperation formats a file operation for display
func (l *Logger) formatFileOperation(op FileOperation) string {
	var symbol rune
	var symbolColor color.Attribute
	switch {
	case op.IsFailed:
		symbol = '✗'
		symbolColor = color.FgRed
	case op.IsSkipped:
		symbol = '-'
		symbolColor = color.FgYellow
	case op.IsChanged && op.IsDryRun:
		symbol = '~'
		symbolColor = color.FgBlue
	case op.IsChanged:
		symbol = '✓'
		symbolColor = color.FgGreen
	default:
		symbol = '•'
		symbolColor = color.FgCyan
	}

	line := fmt.Sprintf("%s%s %s %s",
		fmt.Sprintf("%*s", fileIndent, ""),
		color.New(symbolColor).Sprint(string(symbol)),
		fmt.Sprintf("%-*s", nameWidth, op.Path),
		fmt.Sprintf("%-*s", statusWidth, op.Status()))

	if op.IsChanged && !op.IsFailed {
		line += fmt.Sprintf(" %s %s",
			color.New(color.FgGreen).Sprintf("+%d", op.Insertions),
			color.New(color.FgRed).Sprintf("-%d", op.Deletions))
	}
	if op.Detail != "" {
		line += " " + color.New(color.Faint).Sprint(op.Detail)
	}

	return line
}

// 📝 LogFileOperation logs a file operation
func (l *Logger) LogFileOperation(ctx context.Context, op FileOperation) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.operations = append(l.operations, op)

	fmt.Fprintln(l.console, l.formatFileOperation(op))

	ev := l.zlog.Debug()
	if op.IsFailed {
		ev = l.zlog.Warn()
	}
	ev.Str("file", op.Path).
		Str("status", op.Status()).
		Int("insertions", op.Insertions).
		Int("deletions", op.Deletions).
		Str("detail", op.Detail).
		Msg("file operation")
}

// 📝 StartJobOperation prints the header of a run
func (l *Logger) StartJobOperation(ctx context.Context, op JobOperation) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.currentJob = &op
	l.operations = nil

	mode := "writing"
	if op.DryRun {
		mode = "dry run"
	}
	if op.Resumed {
		mode += ", resumed"
	}

	fmt.Fprintf(l.console, "[%s %s]\n",
		op.Operation,
		color.New(color.FgCyan).Sprintf("%d files", op.Files))

	fmt.Fprintf(l.console, "%s %s %s %s\n",
		color.New(color.FgMagenta).Sprint("◆"),
		color.New(color.Bold).Sprintf("layers %v", op.Layers),
		color.New(color.Faint).Sprint("•"),
		color.New(color.FgYellow).Sprint(mode))

	l.zlog.Info().
		Str("operation", op.Operation).
		Int("files", op.Files).
		Ints("layers", op.Layers).
		Bool("dry_run", op.DryRun).
		Bool("resumed", op.Resumed).
		Msg("starting job operation")
}

// 📝 EndJobOperation ends the current run
func (l *Logger) EndJobOperation(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.currentJob == nil {
		return
	}

	l.zlog.Info().
		Str("operation", l.currentJob.Operation).
		Int("files", len(l.operations)).
		Msg("job operation complete")

	l.currentJob = nil
	l.operations = nil
}

// 📝 LogNewline logs a newline
func (l *Logger) LogNewline() {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.console)
}

// 📝 Header logs a header
func (l *Logger) Header(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	name := color.New(color.Bold, color.FgCyan).Sprint("batchfix")
	fmt.Fprintf(l.console, "\n%s %s\n\n", name, color.New(color.Faint).Sprint("• "+msg))
	l.zlog.Info().Msg(msg)
}

// 📝 Success logs a success message
func (l *Logger) Success(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.console, "✅ %s\n", color.New(color.FgGreen).Sprint(msg))
	l.zlog.Info().Msg(msg)
}

// 📝 Warning logs a warning message
func (l *Logger) Warning(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.console, "⚠️  %s\n", color.New(color.FgYellow).Sprint(msg))
	l.zlog.Warn().Msg(msg)
}

// 📝 Error logs an error message
func (l *Logger) Error(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.console, "❌ %s\n", color.New(color.FgRed).Sprint(msg))
	l.zlog.Error().Msg(msg)
}

// 📝 Info logs an info message
func (l *Logger) Info(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.console, "ℹ️  %s\n", color.New(color.FgCyan).Sprint(msg))
	l.zlog.Info().Msg(msg)
}

// 📝 Infof logs a formatted info message
func (l *Logger) Infof(format string, args ...any) {
	l.Info(fmt.Sprintf(format, args...))
}

// 📝 Warningf logs a formatted warning message
func (l *Logger) Warningf(format string, args ...any) {
	l.Warning(fmt.Sprintf(format, args...))
}

// 📝 Errorf logs a formatted error message
func (l *Logger) Errorf(format string, args ...any) {
	l.Error(fmt.Sprintf(format, args...))
}

// 📝 Successf logs a formatted success message
func (l *Logger) Successf(format string, args ...any) {
	l.Success(fmt.Sprintf(format, args...))
}
