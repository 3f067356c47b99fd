package version

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSemanticVersion(t *testing.T) {
	require.Equal(t, "0.3.0", semanticVersion(""))
	require.Equal(t, "0.3.0-rc.1", semanticVersion("rc.1"))
	require.Equal(t, "0.3.0-beta", semanticVersion("be ta!"))
}

func TestRichVersionUsesCommitHash(t *testing.T) {
	prev := CommitHash
	t.Cleanup(func() { CommitHash = prev })

	CommitHash = "0123456789abcdef0123"
	require.Equal(t, "0.3.0 commit=0123456789ab", RichVersion())
}
