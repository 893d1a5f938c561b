package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/amoylab/castwall/pkg/version"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureOutput(f func()) string {
	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w
	defer func() { os.Stdout = old }()

	f()
	_ = w.Close()
	var buf bytes.Buffer
	_, _ = io.Copy(&buf, r)
	return buf.String()
}

func TestRootCmd_Version(t *testing.T) {
	t.Cleanup(func() { rootCmd.SetArgs([]string{}) })
	rootCmd.SetArgs([]string{"version"})
	out := captureOutput(func() { _ = rootCmd.Execute() })
	assert.Equal(t, "castwall version "+version.Get()+"\n", out)
}

func TestRootCmd_Help(t *testing.T) {
	t.Cleanup(func() { rootCmd.SetArgs([]string{}) })
	rootCmd.SetArgs([]string{"--help"})
	require.NoError(t, rootCmd.Execute())
}

func TestTestCommand_SucceedsWithTempConfig(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "castwall.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("port: 5050\ncapture:\n  type: synthetic\n"), 0o644))

	t.Cleanup(func() { rootCmd.SetArgs([]string{}) })
	rootCmd.SetArgs([]string{"test", "--conf", cfgPath})
	var err error
	out := captureOutput(func() { err = rootCmd.Execute() })
	require.NoError(t, err)
	assert.True(t, strings.Contains(out, "test is successful"))
}

func TestTestCommand_FailsWithInvalidConfig(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "castwall.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("capture:\n  type: x11\n"), 0o644))

	t.Cleanup(func() { rootCmd.SetArgs([]string{}) })
	rootCmd.SetArgs([]string{"test", "--conf", cfgPath})
	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true
	t.Cleanup(func() {
		rootCmd.SilenceUsage = false
		rootCmd.SilenceErrors = false
	})
	err := rootCmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "x11")
}
