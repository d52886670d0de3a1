package analysis

import (
	"strconv"
	"strings"
)

// IsVersionSupported reports whether current satisfies the required minimum
// version. Versions are dotted numeric strings; missing segments count as
// zero, and non-numeric segments (pre-release suffixes) compare as zero.
// An empty requirement always passes.
func IsVersionSupported(required, current string) bool {
	if strings.TrimSpace(required) == "" {
		return true
	}
	return CompareVersions(current, required) >= 0
}

// CompareVersions compares two dotted version strings segment by segment,
// returning -1, 0 or 1.
func CompareVersions(a, b string) int {
	as := strings.Split(strings.TrimSpace(a), ".")
	bs := strings.Split(strings.TrimSpace(b), ".")
	for i := 0; i < len(as) || i < len(bs); i++ {
		av, bv := 0, 0
		if i < len(as) {
			av = numericPrefix(as[i])
		}
		if i < len(bs) {
			bv = numericPrefix(bs[i])
		}
		if av != bv {
			if av < bv {
				return -1
			}
			return 1
		}
	}
	return 0
}

// numericPrefix parses the leading digits of a segment, so "3-beta" counts
// as 3.
func numericPrefix(segment string) int {
	end := 0
	for end < len(segment) && segment[end] >= '0' && segment[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0
	}
	n, err := strconv.Atoi(segment[:end])
	if err != nil {
		return 0
	}
	return n
}
