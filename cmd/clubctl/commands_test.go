package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("CLUB_TIMEZONE", "UTC")
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		adminPassword, exportOut = "", ""
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCreateAdmin(t *testing.T) {
	out, err := run(t, "create-admin", "root@club.test", "--password", "password123")
	require.NoError(t, err)
	assert.Contains(t, out, "admin ready: root@club.test")
}

func TestCreateAdminNeedsPassword(t *testing.T) {
	t.Setenv("CLUBCTL_ADMIN_PASSWORD", "")
	_, err := run(t, "create-admin", "root@club.test")
	assert.ErrorContains(t, err, "password required")
}

func TestEnsureIndexes(t *testing.T) {
	out, err := run(t, "ensure-indexes")
	require.NoError(t, err)
	assert.Contains(t, out, "memory store is up to date")
}

func TestExportUnknownSession(t *testing.T) {
	_, err := run(t, "export", "missing")
	assert.ErrorContains(t, err, "session not found")
}
