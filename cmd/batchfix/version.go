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

package main

import (
	"fmt"
	"runtime"
	rdebug "runtime/debug"
	"strings"
)

// version is overridden at link time with -ldflags "-X main.version=v1.2.3"
var version = ""

// VersionInfo describes the running binary
type VersionInfo struct {
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
	Revision  string `json:"revision"`
	Time      string `json:"time"`
	Modified  bool   `json:"modified"`
}

// GetVersionInfo reads the version from the linker flag or the module build info
func GetVersionInfo() VersionInfo {
	info := VersionInfo{
		Version:   version,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}

	if bi, ok := rdebug.ReadBuildInfo(); ok {
		if info.Version == "" && bi.Main.Version != "(devel)" {
			info.Version = bi.Main.Version
		}
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				info.Revision = s.Value
			case "vcs.time":
				info.Time = s.Value
			case "vcs.modified":
				info.Modified = s.Value == "true"
			}
		}
	}
	if info.Version == "" {
		info.Version = "dev"
	}

	return info
}

// FormatVersion renders the version info for humans
func FormatVersion() string {
	return formatVersion(GetVersionInfo())
}

func formatVersion(info VersionInfo) string {
	var b strings.Builder
	fmt.Fprintf(&b, "batchfix %s\n", info.Version)
	if info.Revision != "" {
		rev := info.Revision
		if len(rev) > 12 {
			rev = rev[:12]
		}
		if info.Modified {
			rev += "-dirty"
		}
		fmt.Fprintf(&b, "  revision  %s\n", rev)
	}
	if info.Time != "" {
		fmt.Fprintf(&b, "  built     %s\n", info.Time)
	}
	fmt.Fprintf(&b, "  go        %s %s\n", info.GoVersion, info.Platform)
	return b.String()
}
