package version

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStringCarriesAllBuildFields(t *testing.T) {
	s := String()
	require.Contains(t, s, "retropie-ha")
	require.Contains(t, s, Version)
	require.Contains(t, s, GitCommit)
	require.Contains(t, s, BuildTime)
}

func TestUnstampedDefaults(t *testing.T) {
	require.NotEmpty(t, Version)
	require.NotEmpty(t, GitCommit)
	require.NotEmpty(t, BuildTime)
}
