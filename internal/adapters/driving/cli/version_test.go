package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionCmd(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{"version"})

	err := rootCmd.Execute()

	require.NoError(t, err)
	assert.Contains(t, out.String(), "meta-ads-mcp version")
}

func TestRootCmd_HasCommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	assert.True(t, names["serve"])
	assert.True(t, names["login"])
	assert.True(t, names["logout"])
	assert.True(t, names["version"])
}
