package internal

import (
	"fmt"
	"strconv"
	"strings"
)

var (
	version   = "0.3.0"
	gitCommit = ""
	buildDate = ""
)

// Version returns the human-readable version of this build.
func Version() string {
	v := version
	if gitCommit != "" {
		v += "+" + gitCommit
	}
	if buildDate != "" {
		v += " (" + buildDate + ")"
	}
	return v
}

// Semver is a parsed semantic version. The build metadata part is ignored
// for comparison purposes.
type Semver struct {
	major, minor, patch uint64
	preRelease          string
}

// Parse parses a semantic version string like "1.2.3-alpha+build123".
// Missing minor/patch parts default to zero. It returns nil on malformed
// input.
func Parse(versionStr string) *Semver {
	// strip build metadata
	if p := strings.Index(versionStr, "+"); p >= 0 {
		versionStr = versionStr[:p]
	}

	var preRelease string
	if p := strings.Index(versionStr, "-"); p >= 0 {
		preRelease = versionStr[p+1:]
		versionStr = versionStr[:p]
	}

	parts := strings.Split(versionStr, ".")
	if len(parts) == 0 || len(parts) > 3 {
		return nil
	}

	nums := make([]uint64, 3)
	for i, part := range parts {
		n, err := strconv.ParseUint(part, 10, 64)
		if err != nil {
			return nil
		}
		nums[i] = n
	}

	return &Semver{
		major:      nums[0],
		minor:      nums[1],
		patch:      nums[2],
		preRelease: preRelease,
	}
}

// CompareVersions returns -1, 0 or 1 if v1 is older than, equal to or newer
// than v2. A release is considered newer than any pre-release of the same
// version; pre-releases compare lexically.
func CompareVersions(v1, v2 *Semver) (int, error) {
	if v1 == nil || v2 == nil {
		return 0, fmt.Errorf("cannot compare nil versions")
	}
	if v1.major != v2.major {
		return compareUint(v1.major, v2.major), nil
	}
	if v1.minor != v2.minor {
		return compareUint(v1.minor, v2.minor), nil
	}
	if v1.patch != v2.patch {
		return compareUint(v1.patch, v2.patch), nil
	}
	if v1.preRelease == v2.preRelease {
		return 0, nil
	}
	if v1.preRelease == "" {
		return 1, nil
	}
	if v2.preRelease == "" {
		return -1, nil
	}
	return strings.Compare(v1.preRelease, v2.preRelease), nil
}

func compareUint(a, b uint64) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}
