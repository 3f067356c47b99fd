// Package version defines mission version information and build metadata.
//
// CommitHash should be set using -ldflags during compilation. When it is not,
// the VCS revision recorded by the Go toolchain is used if present.
package version

import (
	"fmt"
	"runtime/debug"
	"strings"
)

// CommitHash stores the current git commit hash of this build.
var CommitHash string

// semanticAlphabet is the set of characters allowed in a SemVer pre-release
// string.
const semanticAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz-."

const (
	appMajor uint = 0
	appMinor uint = 3
	appPatch uint = 0

	// appPreRelease MUST only contain characters from semanticAlphabet.
	appPreRelease = ""
)

// Version returns the SemVer version string.
func Version() string {
	return semanticVersion(appPreRelease)
}

// RichVersion returns the version with the commit it was built from, when
// known.
func RichVersion() string {
	commit := strings.TrimSpace(CommitHash)
	dirty := false
	if commit == "" {
		commit, dirty = buildRevision()
	}
	if commit == "" {
		return Version()
	}
	if len(commit) > 12 {
		commit = commit[:12]
	}
	if dirty {
		commit += "-dirty"
	}
	return fmt.Sprintf("%s commit=%s", Version(), commit)
}

func buildRevision() (string, bool) {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "", false
	}
	var rev string
	var dirty bool
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			rev = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	return rev, dirty
}

func semanticVersion(preRelease string) string {
	v := fmt.Sprintf("%d.%d.%d", appMajor, appMinor, appPatch)
	if pre := normalize(preRelease); pre != "" {
		v += "-" + pre
	}
	return v
}

// normalize strips characters outside semanticAlphabet.
func normalize(s string) string {
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(semanticAlphabet, r) {
			return r
		}
		return -1
	}, s)
}
