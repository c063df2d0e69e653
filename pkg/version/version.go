// Package version implements the peer version negotiation. Version
// strings are either "MAJOR.MINOR~" for releases or "dev~<hash>" for
// development builds.
package version

import (
	"strconv"
	"strings"
)

// Current is the version string announced to peers. Overridden at build
// time via ldflags.
var Current = "0.7~"

// Result classifies the compatibility of two version strings
type Result int

const (
	// Match means the versions are fully compatible
	Match Result = iota
	// MinorDiffers means release versions differ only in the minor
	// number; proceed with a warning
	MinorDiffers
	// MajorDiffers means release major versions differ
	MajorDiffers
	// DevHashDiffers means two development builds with different hashes
	DevHashDiffers
	// Mixed means one side runs a release and the other a dev build
	Mixed
	// Malformed means a version string could not be parsed
	Malformed
)

// String returns a description of the result for log output
func (r Result) String() string {
	switch r {
	case Match:
		return "match"
	case MinorDiffers:
		return "minor version differs"
	case MajorDiffers:
		return "major version differs"
	case DevHashDiffers:
		return "development build hashes differ"
	case Mixed:
		return "release and development build"
	default:
		return "malformed version string"
	}
}

// Compatible reports whether the session may proceed without asking the
// user
func (r Result) Compatible() bool {
	return r == Match || r == MinorDiffers
}

// Check compares the local and remote version strings
func Check(local, remote string) Result {
	localDev, remoteDev := isDev(local), isDev(remote)

	if localDev != remoteDev {
		return Mixed
	}

	if localDev {
		localHash, remoteHash := devHash(local), devHash(remote)
		if localHash == "" || remoteHash == "" {
			return Malformed
		}
		if localHash != remoteHash {
			return DevHashDiffers
		}
		return Match
	}

	localMajor, localMinor, ok := parseRelease(local)
	if !ok {
		return Malformed
	}
	remoteMajor, remoteMinor, ok := parseRelease(remote)
	if !ok {
		return Malformed
	}

	if localMajor != remoteMajor {
		return MajorDiffers
	}
	if localMinor != remoteMinor {
		return MinorDiffers
	}
	return Match
}

// parseRelease parses "MAJOR.MINOR~"
func parseRelease(s string) (major, minor int, ok bool) {
	tilde := strings.IndexByte(s, '~')
	dot := strings.IndexByte(s, '.')
	if tilde < 0 || dot < 0 || dot > tilde {
		return 0, 0, false
	}

	major, err := strconv.Atoi(s[:dot])
	if err != nil {
		return 0, 0, false
	}
	minor, err = strconv.Atoi(s[dot+1 : tilde])
	if err != nil {
		return 0, 0, false
	}
	return major, minor, true
}

func isDev(s string) bool {
	return strings.HasPrefix(s, "dev")
}

// devHash extracts the hash of "dev~<hash>", empty when missing
func devHash(s string) string {
	idx := strings.IndexByte(s, '~')
	if idx < 0 || idx+1 >= len(s) {
		return ""
	}
	return s[idx+1:]
}
