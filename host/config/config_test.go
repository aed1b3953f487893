package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"radiolink/radio"
)

func TestDefaults(t *testing.T) {
	chdir(t, t.TempDir())
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, ":8080", cfg.Gateway.HTTPAddr)
	assert.Equal(t, 15*time.Minute, cfg.Gateway.NodeTTL)
	assert.Equal(t, 100*time.Millisecond, cfg.Modem.ReadTimeout)

	rc, err := cfg.RadioSettings()
	require.NoError(t, err)
	assert.Equal(t, radio.DefaultConfig(), rc)
}

func TestFileAndEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "radiolink.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
radio:
  baudrate: 9600
  band: 868g1
  channel: 3
logging:
  level: debug
gateway:
  commandRate: 2.5
`), 0o600))
	t.Setenv("RADIOLINK_MODEM_DEVICE", "/dev/ttyACM3")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 2.5, cfg.Gateway.CommandRate)
	assert.Equal(t, "/dev/ttyACM3", cfg.Modem.Device)

	rc, err := cfg.RadioSettings()
	require.NoError(t, err)
	assert.Equal(t, radio.Baud9600, rc.Baudrate)
	assert.Equal(t, radio.Band868G1, rc.Band)
	assert.Equal(t, uint8(3), rc.Channel)
}

func TestRadioSettingsRejects(t *testing.T) {
	tests := []struct {
		name string
		mod  func(*RadioConfig)
		err  error
	}{
		{"band", func(r *RadioConfig) { r.Band = "2g4" }, radio.ErrInvalidBand},
		{"baud", func(r *RadioConfig) { r.Baudrate = 1200 }, radio.ErrInvalidBaudrate},
		{"channel", func(r *RadioConfig) { r.Channel = 8 }, radio.ErrInvalidChannel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chdir(t, t.TempDir())
			cfg, err := Load("")
			require.NoError(t, err)
			tt.mod(&cfg.Radio)
			_, err = cfg.RadioSettings()
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

// chdir changes the working directory to dir for the duration of the test,
// restoring it on cleanup (equivalent of testing.T.Chdir, added in Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { require.NoError(t, os.Chdir(old)) })
}
