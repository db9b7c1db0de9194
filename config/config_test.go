package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValidOnceApplicationURISet(t *testing.T) {
	cfg := Default()
	assert.NoError(t, cfg.Validate())
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(""+
		"server_name: test-server\n"+
		"application_uri: urn:test:server\n"+
		"server_urls:\n  - opc.tcp://:4840\n"+
		"housekeeping_interval: 1s\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "test-server", cfg.ServerName)
	assert.Equal(t, []string{"opc.tcp://:4840"}, cfg.ServerURLs)
}

func TestLoadMissingFileFailsFatalInit(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidateRejectsMissingApplicationURI(t *testing.T) {
	cfg := Default()
	cfg.ApplicationURI = ""
	assert.Error(t, cfg.Validate())
}
