package plugin

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// CheckVersion reports a ConfigError unless sdkVersion satisfies at least one
// of ranges. Ranges accept exact versions, comparison operators, ~ and ^, and
// x wildcards such as 1.2.x or 0.x.
func CheckVersion(pluginID string, ranges []string, sdkVersion string) error {
	if len(ranges) == 0 {
		return nil
	}

	v, err := semver.NewVersion(sdkVersion)
	if err != nil {
		return &ConfigError{Message: fmt.Sprintf("invalid sdk version %q", sdkVersion), Err: err}
	}

	for _, r := range ranges {
		c, err := semver.NewConstraint(strings.TrimSpace(r))
		if err != nil {
			return &ConfigError{Message: fmt.Sprintf("plugin %q declares invalid version range %q", pluginID, r), Err: err}
		}
		if c.Check(v) {
			return nil
		}
	}

	return NewConfigError("plugin %q is not compatible with sdk version %s (requires %s)",
		pluginID, sdkVersion, strings.Join(ranges, " || "))
}
