/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package redmine

import (
	"strconv"
	"strings"
)

// LatestOpenVersion returns the highest open version whose name starts with
// prefix, or nil when none matches. Names are ordered by dotted numeric
// comparison ("3.10" sorts after "3.9"); non-numeric segments fall back to
// string comparison.
func LatestOpenVersion(versions []Version, prefix string) *Version {
	var latest *Version
	for i := range versions {
		v := &versions[i]
		if !v.Open() || !strings.HasPrefix(v.Name, prefix) {
			continue
		}
		if latest == nil || versionLess(latest.Name, v.Name) {
			latest = v
		}
	}
	return latest
}

// versionLess reports whether version name a orders before b.
func versionLess(a, b string) bool {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")

	for i := 0; i < len(as) && i < len(bs); i++ {
		an, aerr := strconv.Atoi(as[i])
		bn, berr := strconv.Atoi(bs[i])
		switch {
		case aerr == nil && berr == nil:
			if an != bn {
				return an < bn
			}
		default:
			if as[i] != bs[i] {
				return as[i] < bs[i]
			}
		}
	}
	return len(as) < len(bs)
}
