package user_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telecare/telecare/internal/user"
)

func TestService_ResolveScope(t *testing.T) {
	ctx := context.Background()
	svc := user.NewService(user.NewInMemoryRepository())

	doctor, err := svc.Register(ctx, user.RoleProvider, "doc@example.com", "Dr. Vos")
	require.NoError(t, err)
	patient, err := svc.Register(ctx, user.RolePatient, "pat@example.com", "")
	require.NoError(t, err)
	other, err := svc.Register(ctx, user.RolePatient, "other@example.com", "")
	require.NoError(t, err)

	require.NoError(t, svc.AssignPatient(ctx, doctor.ID, patient.ID))
	require.NoError(t, svc.AssignPatient(ctx, doctor.ID, patient.ID))

	t.Run("patient sees self only", func(t *testing.T) {
		scope, err := svc.ResolveScope(ctx, patient.ID, user.RolePatient)
		require.NoError(t, err)
		assert.True(t, scope.Allows(patient.ID))
		assert.False(t, scope.Allows(other.ID))
		assert.Equal(t, []string{patient.ID}, scope.Restriction())
	})

	t.Run("provider sees assigned patients", func(t *testing.T) {
		scope, err := svc.ResolveScope(ctx, doctor.ID, user.RoleProvider)
		require.NoError(t, err)
		assert.True(t, scope.Allows(doctor.ID))
		assert.True(t, scope.Allows(patient.ID))
		assert.False(t, scope.Allows(other.ID))
		assert.False(t, scope.Owns(patient.ID))
	})

	t.Run("admin is unrestricted", func(t *testing.T) {
		scope, err := svc.ResolveScope(ctx, "usr_admin", user.RoleAdmin)
		require.NoError(t, err)
		assert.True(t, scope.Allows(other.ID))
		assert.True(t, scope.Owns(other.ID))
		assert.Nil(t, scope.Restriction())
	})

	t.Run("unknown role", func(t *testing.T) {
		_, err := svc.ResolveScope(ctx, patient.ID, user.Role("nurse"))
		assert.ErrorIs(t, err, user.ErrInvalidRole)
	})
}

func TestService_AssignPatient_RequiresRoles(t *testing.T) {
	ctx := context.Background()
	svc := user.NewService(user.NewInMemoryRepository())

	a, err := svc.Register(ctx, user.RolePatient, "a@example.com", "")
	require.NoError(t, err)
	b, err := svc.Register(ctx, user.RolePatient, "b@example.com", "")
	require.NoError(t, err)

	err = svc.AssignPatient(ctx, a.ID, b.ID)
	assert.ErrorIs(t, err, user.ErrInvalidAssignment)

	err = svc.AssignPatient(ctx, "usr_missing", b.ID)
	assert.ErrorIs(t, err, user.ErrUserNotFound)
}

func TestUser_DisplayName(t *testing.T) {
	assert.Equal(t, "Ada", (&user.User{Name: "Ada", Email: "ada@example.com"}).DisplayName())
	assert.Equal(t, "ada@example.com", (&user.User{Email: "ada@example.com"}).DisplayName())
}
