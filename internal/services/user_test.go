package services

import (
	"context"
	"testing"

	"ecoproof-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertKeepsAccountState(t *testing.T) {
	w := newWorld()
	ctx := context.Background()

	u, err := w.users.Upsert(ctx, models.Profile{ID: "alice", FirstName: ptr("Alice")})
	require.NoError(t, err)
	assert.Equal(t, models.RoleUser, u.Role)

	require.NoError(t, w.users.SetPayoutAddress(ctx, "alice", "0x00000000000000000000000000000000000000aa"))
	_, err = w.users.Credit(ctx, "alice", 10)
	require.NoError(t, err)

	u, err = w.users.Upsert(ctx, models.Profile{ID: "alice", FirstName: ptr("Alicia"), Username: ptr("al")})
	require.NoError(t, err)
	assert.Equal(t, "Alicia", *u.FirstName)
	assert.Equal(t, "al", *u.Username)
	assert.Equal(t, uint64(10), u.Balance)
	require.NotNil(t, u.WalletAddress)

	_, err = w.users.Upsert(ctx, models.Profile{ID: ""})
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestCreditCreatesMissingUser(t *testing.T) {
	w := newWorld()
	ctx := context.Background()

	balance, err := w.users.Credit(ctx, "ghost", 10)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), balance)

	balance, err = w.users.Credit(ctx, "ghost", 10)
	require.NoError(t, err)
	assert.Equal(t, uint64(20), balance)
	assert.Equal(t, uint64(20), w.users.Balance("ghost"))
	assert.Equal(t, uint64(0), w.users.Balance("nobody"))

	role, err := w.users.Role("ghost")
	require.NoError(t, err)
	assert.Equal(t, models.RoleUser, role)
}

func TestDebit(t *testing.T) {
	w := newWorld()
	ctx := context.Background()

	_, err := w.users.Debit(ctx, "ghost", 1)
	assert.ErrorIs(t, err, models.ErrUserNotFound)

	_, err = w.users.Credit(ctx, "ghost", 10)
	require.NoError(t, err)

	balance, err := w.users.Debit(ctx, "ghost", 4)
	require.NoError(t, err)
	assert.Equal(t, uint64(6), balance)

	_, err = w.users.Debit(ctx, "ghost", 7)
	assert.ErrorIs(t, err, models.ErrInvalidInput)
	assert.Equal(t, uint64(6), w.users.Balance("ghost"))
}

func TestPayoutAddress(t *testing.T) {
	w := newWorld()
	ctx := context.Background()

	_, err := w.users.PayoutAddress("nobody")
	assert.ErrorIs(t, err, models.ErrNoPayoutAddress)
	assert.ErrorIs(t, err, models.ErrUserNotFound)

	_, err = w.users.Upsert(ctx, models.Profile{ID: "alice"})
	require.NoError(t, err)
	_, err = w.users.PayoutAddress("alice")
	assert.ErrorIs(t, err, models.ErrNoPayoutAddress)

	require.NoError(t, w.users.SetPayoutAddress(ctx, "alice", "  0xabc  "))
	addr, err := w.users.PayoutAddress("alice")
	require.NoError(t, err)
	assert.Equal(t, "0xabc", addr)

	assert.ErrorIs(t, w.users.SetPayoutAddress(ctx, "nobody", "0xabc"), models.ErrUserNotFound)
}

func TestSetRole(t *testing.T) {
	w := newWorld()
	ctx := context.Background()
	for _, id := range []string{"alice", "bob", "carol"} {
		_, err := w.users.Upsert(ctx, models.Profile{ID: id})
		require.NoError(t, err)
	}

	assert.ErrorIs(t, w.users.SetRole(ctx, "nobody", "bob", models.RoleAdmin), models.ErrCallerNotFound)
	assert.ErrorIs(t, w.users.SetRole(ctx, "alice", "nobody", models.RoleAdmin), models.ErrTargetNotFound)

	// without an admin, only promotion to Admin is open to everyone
	assert.ErrorIs(t, w.users.SetRole(ctx, "alice", "bob", models.RoleModerator), models.ErrForbidden)

	require.NoError(t, w.users.SetRole(ctx, "alice", "alice", models.RoleAdmin))
	role, _ := w.users.Role("alice")
	assert.Equal(t, models.RoleAdmin, role)

	err := w.users.SetRole(ctx, "bob", "bob", models.RoleAdmin)
	assert.ErrorIs(t, err, models.ErrForbidden)
	assert.Equal(t, models.KindForbidden, models.KindOf(err))

	require.NoError(t, w.users.SetRole(ctx, "alice", "carol", models.RoleModerator))
	role, _ = w.users.Role("carol")
	assert.Equal(t, models.RoleModerator, role)
}

func TestUsersRestore(t *testing.T) {
	w := newWorld()
	ctx := context.Background()
	_, err := w.users.Upsert(ctx, models.Profile{ID: "bob"})
	require.NoError(t, err)
	_, err = w.users.Upsert(ctx, models.Profile{ID: "alice"})
	require.NoError(t, err)

	dir := NewUserDirectory(w.repo)
	require.NoError(t, dir.Restore(ctx))
	all := dir.All()
	require.Len(t, all, 2)
	assert.Equal(t, "alice", all[0].ID)
	assert.Error(t, dir.Restore(ctx))
}

func TestDeviceToken(t *testing.T) {
	w := newWorld()
	ctx := context.Background()
	_, err := w.users.Upsert(ctx, models.Profile{ID: "alice"})
	require.NoError(t, err)

	require.NoError(t, w.users.SetDeviceToken(ctx, "alice", "abc123"))
	u, _ := w.users.Get("alice")
	require.NotNil(t, u.DeviceToken)
	assert.Equal(t, "abc123", *u.DeviceToken)

	require.NoError(t, w.users.SetDeviceToken(ctx, "alice", ""))
	u, _ = w.users.Get("alice")
	assert.Nil(t, u.DeviceToken)
}
