package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/CreatorVault/internal/pkg/env"
)

func withEnv(t *testing.T, values map[string]string) {
	t.Helper()
	old := env.Env
	env.Env = values
	t.Cleanup(func() { env.Env = old })
}

func TestDownloadTokenSecretDerivation(t *testing.T) {
	withEnv(t, map[string]string{"APP_SECRET": "master"})
	a, err := DownloadTokenSecret()
	require.NoError(t, err)
	assert.Len(t, a, 32)

	b, err := DeriveKey([]byte("master"), "creatorvault download token v1", 32)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	other, err := DeriveKey([]byte("master"), "something else", 32)
	require.NoError(t, err)
	assert.NotEqual(t, a, other)

	withEnv(t, map[string]string{"DOWNLOAD_TOKEN_SECRET": "explicit", "APP_SECRET": "master"})
	c, err := DownloadTokenSecret()
	require.NoError(t, err)
	assert.Equal(t, []byte("explicit"), c)
}

func TestLoadRequiresSecret(t *testing.T) {
	withEnv(t, map[string]string{})
	t.Setenv("APP_SECRET", "")
	t.Setenv("DOWNLOAD_TOKEN_SECRET", "")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadReadsFeeFileAndDurations(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fees.yaml")
	require.NoError(t, os.WriteFile(path, []byte("providers:\n  stripe:\n    default: 3\ncommission_tiers:\n  STANDARD: 20\n"), 0o600))
	withEnv(t, map[string]string{
		"APP_SECRET":          "m",
		"FEE_SCHEDULE_FILE":   path,
		"REFUND_WINDOW_DAYS":  "3",
		"SETTLEMENT_CURRENCY": "usd",
	})

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3*24*time.Hour, cfg.RefundWindow)
	assert.Equal(t, "USD", cfg.SettlementCurrency)
	assert.Equal(t, []string{"stripe"}, cfg.FeeSchedule.Providers())
}
