package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	require.NoError(t, rootCmd.Execute())
	return out.String()
}

func TestAirtimeCommand(t *testing.T) {
	out := execute(t, "airtime", "--bytes", "12")
	assert.Contains(t, out, "ACK WINDOW us")
	// 22 bytes at 4800 baud
	assert.Regexp(t, `(?m)^4800\s+36667\s`, out)
}

func TestChannelsCommand(t *testing.T) {
	out := execute(t, "channels", "433")
	assert.Contains(t, out, "433")
	assert.NotContains(t, out, "915")
}

func TestSettingsSetAndShow(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "radiolink.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("settings:\n  path: "+filepath.Join(dir, "flash.db")+"\n"), 0o600))

	out := execute(t, "--config", cfg, "settings", "set", "--readout", "90", "--channel", "2")
	assert.Contains(t, out, "readout interval: 90 s")

	out = execute(t, "--config", cfg, "settings", "show")
	assert.Contains(t, out, "readout interval: 90 s")
	assert.Contains(t, out, "channel:          2")
}

func TestChannelsSingleBaud(t *testing.T) {
	out := execute(t, "channels", "868g", "--baud", "38400")
	assert.Regexp(t, `(?m)^868g\s+38400\s+10\s`, out)
	assert.NotContains(t, out, "4800")
}
