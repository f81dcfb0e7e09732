package license

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := Open(context.Background(), filepath.Join(t.TempDir(), "license.db"), "test-license-secret", 30)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestFreshInstallStartsTrial(t *testing.T) {
	m := openTestManager(t)

	state, err := m.Status(context.Background())
	require.NoError(t, err)
	require.False(t, state.Activated)
	require.False(t, state.Expired)
	require.NotEmpty(t, state.MachineID)
	require.Greater(t, state.DaysRemaining, 0)
	require.LessOrEqual(t, state.DaysRemaining, 30)

	require.NoError(t, m.Require(context.Background()))
}

func TestActivateWithValidCode(t *testing.T) {
	m := openTestManager(t)

	code := ActivationCode("test-license-secret", m.MachineID())
	require.NoError(t, m.Activate(context.Background(), code))

	state, err := m.Status(context.Background())
	require.NoError(t, err)
	require.True(t, state.Activated)
	require.NoError(t, m.Require(context.Background()))
}

func TestActivateRejectsWrongCode(t *testing.T) {
	m := openTestManager(t)

	err := m.Activate(context.Background(), "AAAA-BBBB-CCCC")
	require.ErrorIs(t, err, ErrInvalidCode)

	state, err := m.Status(context.Background())
	require.NoError(t, err)
	require.False(t, state.Activated)
}

func TestActivationCodeIgnoresFormatting(t *testing.T) {
	m := openTestManager(t)

	code := ActivationCode("test-license-secret", m.MachineID())
	loose := " " + code[:4] + code[5:9] + "-" + code[10:] + " "
	require.NoError(t, m.Activate(context.Background(), loose))
}

func TestActivationSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "license.db")
	ctx := context.Background()

	m, err := Open(ctx, path, "test-license-secret", 30)
	require.NoError(t, err)
	require.NoError(t, m.Activate(ctx, ActivationCode("test-license-secret", m.MachineID())))
	require.NoError(t, m.Close())

	reopened, err := Open(ctx, path, "test-license-secret", 30)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	state, err := reopened.Status(ctx)
	require.NoError(t, err)
	require.True(t, state.Activated)
}

func TestActivationCodeFormat(t *testing.T) {
	code := ActivationCode("secret", "machine")
	require.Len(t, code, 14)
	require.Equal(t, byte('-'), code[4])
	require.Equal(t, byte('-'), code[9])
	require.Equal(t, code, ActivationCode("secret", "machine"), "code must be deterministic")
	require.NotEqual(t, code, ActivationCode("other-secret", "machine"))
}
