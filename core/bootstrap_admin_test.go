package core

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBootstrapAdmin(t *testing.T) {
	repo := newMemoryUserRepo()
	logger, _ := test.NewNullLogger()
	cfg := DefaultConfig()
	cfg.BootstrapAdminEnabled = true
	cfg.PasswordIterations = testIterations
	cfg.InitialAdminPasswordPath = filepath.Join(t.TempDir(), "admin-password")

	require.NoError(t, BootstrapAdmin(context.Background(), repo, cfg, logger))

	admin, ok := repo.byUsername("admin")
	require.True(t, ok)
	assert.True(t, admin.IsStaff)
	assert.Equal(t, "ADMIN", admin.Role)

	raw, err := os.ReadFile(cfg.InitialAdminPasswordPath)
	require.NoError(t, err)
	password := strings.TrimSpace(string(raw))
	assert.Len(t, password, 32)
	assert.True(t, CheckPassword(password, admin.PasswordHash))

	// A staff account now exists, so a second run is a no-op.
	require.NoError(t, BootstrapAdmin(context.Background(), repo, cfg, logger))
	assert.Len(t, repo.users, 1)
}

func TestBootstrapAdminSkipped(t *testing.T) {
	logger, hook := test.NewNullLogger()
	cfg := DefaultConfig()
	cfg.PasswordIterations = testIterations

	repo := newMemoryUserRepo()
	require.NoError(t, BootstrapAdmin(context.Background(), repo, cfg, logger))
	assert.Empty(t, repo.users, "disabled")

	cfg.BootstrapAdminEnabled = true
	repo.add("boss", "x", "ADMIN", true)
	require.NoError(t, BootstrapAdmin(context.Background(), repo, cfg, logger))
	assert.Len(t, repo.users, 1, "staff already present")

	repo = newMemoryUserRepo()
	require.NoError(t, BootstrapAdmin(context.Background(), repo, cfg, logger))
	require.NotNil(t, hook.LastEntry())
	assert.NotEmpty(t, hook.LastEntry().Data["password"], "password is logged when no file is configured")
}

func TestBootstrapAdminStoreError(t *testing.T) {
	repo := newMemoryUserRepo()
	repo.findErr = errStoreDown
	logger, _ := test.NewNullLogger()
	cfg := DefaultConfig()
	cfg.BootstrapAdminEnabled = true

	assert.ErrorIs(t, BootstrapAdmin(context.Background(), repo, cfg, logger), errStoreDown)
}
