package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockhelper.org/internal/auth"
	"stockhelper.org/internal/config"
)

func TestNewMemory(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	cfg.Auth.PasswordMode = auth.PasswordModePlain

	a, err := New(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	assert.Nil(t, a.SQL)
	assert.NoError(t, a.Ping(ctx))

	admin, err := a.Permissions.FamilyByName(ctx, auth.RoleAdministrator)
	require.NoError(t, err)
	assert.True(t, admin.HasPermission(auth.PermUserManagement))
}

func TestNewSQLiteMigratesAndSeeds(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	cfg.Database.Driver = config.DriverSQLite
	cfg.Database.DSN = ":memory:"
	cfg.Database.Migrate = true
	cfg.Auth.PasswordMode = auth.PasswordModePlain

	a, err := New(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	require.NotNil(t, a.SQL)
	assert.NoError(t, a.Ping(ctx))

	require.NoError(t, a.Users.Insert(ctx, &auth.User{Name: "root", Password: "pw", IsActive: true, Role: auth.RoleAdministrator}))
	u, err := a.Login.Login(ctx, "root", "pw")
	require.NoError(t, err)
	assert.True(t, u.HasPermission(auth.PermDatabaseBackup))

	status, err := NewMigrator(a.SQL).Status(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, status)
}

func TestNewRejectsBadDriver(t *testing.T) {
	cfg := config.Default()
	cfg.Database.Driver = "oracle"
	cfg.Database.DSN = "x"
	_, err := New(context.Background(), cfg)
	assert.Error(t, err)
}
