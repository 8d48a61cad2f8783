package interview_test

import (
	"testing"

	"github.com/stemsi/interview-coach/internal/interview"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCameraGate_GrantPath(t *testing.T) {
	g := interview.NewCameraPermissionGate()
	assert.Equal(t, interview.GateIdle, g.State())
	assert.False(t, g.Open())

	require.NoError(t, g.Request())
	require.NoError(t, g.Grant())
	assert.True(t, g.Open())
}

func TestCameraGate_DeniedCanRetry(t *testing.T) {
	g := interview.NewCameraPermissionGate()
	require.NoError(t, g.Request())
	require.NoError(t, g.Deny("NotAllowedError"))
	assert.Equal(t, interview.GateDenied, g.State())
	assert.Equal(t, "NotAllowedError", g.Reason())

	require.NoError(t, g.Request())
	require.NoError(t, g.Grant())
	assert.Empty(t, g.Reason())
}

func TestCameraGate_InvalidTransitions(t *testing.T) {
	g := interview.NewCameraPermissionGate()
	assert.ErrorIs(t, g.Grant(), interview.ErrInvalidGateTransition)
	assert.ErrorIs(t, g.Deny("x"), interview.ErrInvalidGateTransition)

	require.NoError(t, g.Request())
	assert.ErrorIs(t, g.Request(), interview.ErrInvalidGateTransition)

	require.NoError(t, g.Grant())
	assert.ErrorIs(t, g.Request(), interview.ErrInvalidGateTransition)
	assert.ErrorIs(t, g.Deny("late"), interview.ErrInvalidGateTransition)
	assert.True(t, g.Open())
}
