package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORE", StoreMemory)
	t.Setenv("LOCKER", LockerLocal)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, PaymentSimulated, cfg.Payment)
	assert.Equal(t, 100*time.Millisecond, cfg.Booking.LockWait)
	assert.Equal(t, 5*time.Second, cfg.Booking.LockLease)
	assert.Equal(t, 3, cfg.Booking.RetryMaxAttempts)
	assert.Equal(t, 50*time.Millisecond, cfg.Booking.RetryBaseDelay)
	assert.Equal(t, 5, cfg.RateLimit.IPLimit)
	assert.Equal(t, time.Minute, cfg.RateLimit.IPWindow)
	assert.Equal(t, 3, cfg.RateLimit.EmailLimit)
	assert.Equal(t, time.Hour, cfg.RateLimit.EmailWindow)
	assert.Equal(t, 5*time.Minute, cfg.Scheduler.ExpiryInterval)
	assert.Equal(t, 24*time.Hour, cfg.Scheduler.CompletionInterval)
	assert.Equal(t, 2*time.Hour, cfg.Scheduler.CompletionGrace)
	assert.Equal(t, "reject", cfg.Worker.Policy)
}

func TestLoadFileAndEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.env")
	content := "STORE=postgres\nDB_DSN=postgres://file\nLOCKER=local\nPORT=4000\nBOOKING_LOCK_WAIT=250ms\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("PORT", "5000")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres://file", cfg.DB.DSN)
	assert.Equal(t, 5000, cfg.Port)
	assert.Equal(t, 250*time.Millisecond, cfg.Booking.LockWait)
}

func TestLoadRejectsIncompleteSettings(t *testing.T) {
	t.Setenv("STORE", StorePostgres)
	t.Setenv("LOCKER", LockerRedis)
	t.Setenv("PAYMENT_PROVIDER", "paypal")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_DSN is required")
	assert.Contains(t, err.Error(), "REDIS_URL is required")
	assert.Contains(t, err.Error(), `unknown PAYMENT_PROVIDER "paypal"`)
}

func TestLoadRejectsNonPositiveLockLease(t *testing.T) {
	t.Setenv("BOOKING_LOCK_LEASE", "0s")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BOOKING_LOCK_LEASE must be positive")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)
}
