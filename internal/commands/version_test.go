package commands

import (
	"bytes"
	"runtime"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const builtWithPrefix = "Built with "

func TestNewVersionCommand(t *testing.T) {
	cmd := NewVersionCommand("v1.2.3")
	require.NotNil(t, cmd)
	assert.Equal(t, "version", cmd.Use)

	var buf bytes.Buffer
	cmd.SetOut(&buf)
	require.NoError(t, cmd.Execute())

	assert.Equal(t, "retrier version v1.2.3\n"+
		builtWithPrefix+runtime.Version()+" "+runtime.GOOS+"/"+runtime.GOARCH+"\n", buf.String())
}

func TestVersionCommandIntegration(t *testing.T) {
	rootCmd := &cobra.Command{Use: "test-root"}
	rootCmd.AddCommand(NewVersionCommand("test-version"))

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetArgs([]string{"version"})
	require.NoError(t, rootCmd.Execute())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "retrier version test-version", lines[0])
}
