package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"instabridge/pkg/config"
	"instabridge/pkg/logger"
	"instabridge/pkg/state"
	"instabridge/pkg/storage"
)

func execute(t *testing.T, args ...string) error {
	t.Helper()
	configFile, dataDir, logLevel, bridgeURL = "", "", "", ""
	resendLast, forceRun, dryRun, cleanupMedia = false, false, false, false
	maxFiles, recipientID = 0, ""
	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}

func TestConfigInitWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "instabridge.yaml")

	require.NoError(t, execute(t, "config", "init", "--config", path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var cfg config.Config
	require.NoError(t, yaml.Unmarshal(data, &cfg))
	assert.Equal(t, "http://127.0.0.1:3001", cfg.WhatsApp.BridgeURL)
	assert.Equal(t, "19:00", cfg.Schedule.DefaultTime)
	assert.Empty(t, cfg.Instagram.Password)

	err = execute(t, "config", "init", "--config", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestStateResetMediaKeepsHistory(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "instabridge.yaml")
	require.NoError(t, config.DefaultConfig().Save(cfgPath))

	media, err := storage.NewManager(filepath.Join(dir, "media"))
	require.NoError(t, err)
	file, _, err := media.Save(strings.NewReader("jpeg"), "post_1.jpg")
	require.NoError(t, err)

	store := state.NewStore(filepath.Join(dir, "state.json"), logger.NewNopLogger())
	st := state.New()
	st.MarkSent("default", "post_1")
	st.Finalize(time.Now(), []string{file}, "hello")
	require.NoError(t, store.Save(st))

	require.NoError(t, execute(t, "state", "reset-media", "--config", cfgPath, "--data-dir", dir))

	_, err = os.Stat(file)
	assert.True(t, os.IsNotExist(err))

	after := store.Load()
	assert.Empty(t, after.LastRunFiles)
	assert.Equal(t, "hello", after.LastRunCaption)
	assert.True(t, after.HasSent("default", "post_1"))
}

func TestRunRequiresCredentials(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "instabridge.yaml")
	require.NoError(t, config.DefaultConfig().Save(cfgPath))
	t.Setenv("IG_USERNAME", "")
	t.Setenv("IG_PASSWORD", "")
	t.Setenv("WA_CONTENT_CONTACT_NAME", "Alice")
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("HOME", dir)

	err := execute(t, "run", "--config", cfgPath, "--data-dir", dir, "--dry-run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Instagram username is required")
}

func TestResendNeedsContentContactOnly(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "instabridge.yaml")
	require.NoError(t, config.DefaultConfig().Save(cfgPath))
	for _, key := range []string{
		"IG_USERNAME", "IG_PASSWORD",
		"WA_CONTENT_CONTACT_NAME", "WA_CONTENT_PHONE", "WA_CONTACT_NAME", "WA_PHONE",
	} {
		t.Setenv(key, "")
	}
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("HOME", dir)

	err := execute(t, "run", "--config", cfgPath, "--data-dir", dir, "--resend-last")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "WhatsApp content contact is required")
	assert.NotContains(t, err.Error(), "Instagram")
}

func TestRunFlagDefaults(t *testing.T) {
	maxFlag := runCmd.Flags().Lookup("max-files")
	require.NotNil(t, maxFlag)
	assert.Equal(t, "0", maxFlag.DefValue)

	dryFlag := runCmd.Flags().Lookup("dry-run")
	require.NotNil(t, dryFlag)
	assert.Contains(t, dryFlag.Usage, "download media")
}
