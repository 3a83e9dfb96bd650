package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func executeCommand(root *cobra.Command, args ...string) (string, error) {
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func TestRootCommands(t *testing.T) {
	var names []string
	for _, c := range rootCmd.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"build", "start", "ports"})
}

func TestBuildOptions(t *testing.T) {
	opts, err := buildOptions("auto", 0.5)
	require.NoError(t, err)
	assert.Nil(t, opts.Coding)
	assert.Equal(t, 0.5, opts.DefaultLLMConfig["temperature"])

	opts, err = buildOptions("YES", 0)
	require.NoError(t, err)
	require.NotNil(t, opts.Coding)
	assert.True(t, *opts.Coding)

	opts, err = buildOptions("no", 0)
	require.NoError(t, err)
	require.NotNil(t, opts.Coding)
	assert.False(t, *opts.Coding)

	_, err = buildOptions("maybe", 0)
	assert.Error(t, err)
}

func TestPortsCommand(t *testing.T) {
	dir := t.TempDir()
	settings := filepath.Join(dir, "agentcrew.yaml")
	require.NoError(t, os.WriteFile(settings, []byte("ports:\n  start: 65530\n  end: 65535\nlog:\n  level: error\n"), 0o644))
	t.Setenv("AGENTCREW_CONFIG_LIST", filepath.Join(dir, "missing"))

	out, err := executeCommand(rootCmd, "ports", "--config", settings)
	require.NoError(t, err)
	assert.Contains(t, out, "free ports on localhost in 65530-65535")
}

func TestBuildCommandRequiresTask(t *testing.T) {
	_, err := executeCommand(rootCmd, "build")
	assert.Error(t, err)
}
