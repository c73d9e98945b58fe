package plugin_test

import (
	"testing"

	"github.com/aussiebroadwan/tabsession/pkg/plugin"
	"github.com/stretchr/testify/require"
)

func TestCheckVersion(t *testing.T) {
	tests := []struct {
		ranges []string
		sdk    string
		ok     bool
	}{
		{nil, "1.2.3", true},
		{[]string{"1.2.3"}, "1.2.3", true},
		{[]string{"1.2.3"}, "1.2.4", false},
		{[]string{"=1.2.3"}, "1.2.3", true},
		{[]string{">=1.2.0"}, "1.2.0", true},
		{[]string{">=1.2.0"}, "1.1.9", false},
		{[]string{">1.2.0"}, "1.2.0", false},
		{[]string{"<=2.0.0"}, "2.0.0", true},
		{[]string{"<2.0.0"}, "2.0.0", false},
		{[]string{"~1.2.0"}, "1.2.9", true},
		{[]string{"~1.2.0"}, "1.3.0", false},
		{[]string{"^1.2.0"}, "1.9.0", true},
		{[]string{"^1.2.0"}, "2.0.0", false},
		{[]string{"1.2.x"}, "1.2.7", true},
		{[]string{"1.2.x"}, "1.3.0", false},
		{[]string{"0.x"}, "0.17.1", true},
		{[]string{"0.x"}, "1.0.0", false},
		{[]string{"0.x", "1.x"}, "1.0.0", true},
	}

	for _, tt := range tests {
		err := plugin.CheckVersion("p", tt.ranges, tt.sdk)
		if tt.ok {
			require.NoError(t, err, "ranges=%v sdk=%s", tt.ranges, tt.sdk)
		} else {
			require.ErrorIs(t, err, plugin.ErrConfig, "ranges=%v sdk=%s", tt.ranges, tt.sdk)
		}
	}
}

func TestCheckVersionInvalidInput(t *testing.T) {
	require.ErrorIs(t, plugin.CheckVersion("p", []string{"not a range!!"}, "1.0.0"), plugin.ErrConfig)
	require.ErrorIs(t, plugin.CheckVersion("p", []string{"1.x"}, "banana"), plugin.ErrConfig)
}
