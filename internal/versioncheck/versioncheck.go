// Package versioncheck implements spec.md §233's Collector/Dashboard
// compatibility gate: the Collector reads the Dashboard's last-written
// version file and refuses to run against a Dashboard build it isn't
// compatible with. Ground: windowsadmins-cimian's pkg/status.IsOlderVersion
// (parse both sides with hashicorp/go-version, then compare) generalized
// from "is local older than remote" to "are these two versions close
// enough to interoperate" — same library, same parse-then-compare shape.
package versioncheck

import (
	"fmt"
	"os"
	"strings"

	goversion "github.com/hashicorp/go-version"
)

// MaxCompatiblePatchDiff is spec.md §233's "same major+minor and
// |patch_diff| <= 3" rule.
const MaxCompatiblePatchDiff = 3

// Compatible reports whether collectorVersion and dashboardVersion may
// interoperate: equal major and minor components, and a patch
// difference no larger than MaxCompatiblePatchDiff.
func Compatible(collectorVersion, dashboardVersion string) (bool, error) {
	cv, err := goversion.NewVersion(strings.TrimSpace(collectorVersion))
	if err != nil {
		return false, fmt.Errorf("parse collector version %q: %w", collectorVersion, err)
	}
	dv, err := goversion.NewVersion(strings.TrimSpace(dashboardVersion))
	if err != nil {
		return false, fmt.Errorf("parse dashboard version %q: %w", dashboardVersion, err)
	}

	cSeg, dSeg := cv.Segments(), dv.Segments()
	if len(cSeg) < 3 || len(dSeg) < 3 {
		return false, fmt.Errorf("version missing a patch component: collector=%s dashboard=%s", collectorVersion, dashboardVersion)
	}
	if cSeg[0] != dSeg[0] || cSeg[1] != dSeg[1] {
		return false, nil
	}

	diff := cSeg[2] - dSeg[2]
	if diff < 0 {
		diff = -diff
	}
	return diff <= MaxCompatiblePatchDiff, nil
}

// ReadDashboardVersion reads the version file the Dashboard writes on
// every startup (spec.md §233, "<APPDATA>/TimeFlow/dashboard_version.txt").
func ReadDashboardVersion(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// WriteDashboardVersion persists the Dashboard's own version so a
// Collector on the same machine can check compatibility against it.
func WriteDashboardVersion(path, version string) error {
	return os.WriteFile(path, []byte(strings.TrimSpace(version)+"\n"), 0o644)
}
