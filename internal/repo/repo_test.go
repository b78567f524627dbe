package repo

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/calculator/internal/models"
	pkgdb "github.com/Skotchmaster/calculator/pkg/db"
)

func newTestRepo(t *testing.T) *GormRepo {
	t.Helper()

	ctx := context.Background()
	gdb, err := pkgdb.Open(ctx, pkgdb.DriverSQLite, ":memory:")
	require.NoError(t, err)
	require.NoError(t, Migrate(ctx, gdb))
	t.Cleanup(func() { _ = pkgdb.Close(gdb) })
	return New(gdb)
}

func newUser(username, email string) *models.User {
	now := time.Now().UTC()
	return &models.User{
		ID:           uuid.New(),
		Username:     username,
		Email:        email,
		PasswordHash: "$2a$04$placeholder",
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestUsers(t *testing.T) {
	t.Parallel()

	r := newTestRepo(t)
	ctx := context.Background()

	alice := newUser("alice", "alice@example.com")
	require.NoError(t, r.CreateUser(ctx, alice))

	got, err := r.UserByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, got.ID)
	assert.True(t, got.IsActive)
	assert.False(t, got.IsVerified)
	assert.Nil(t, got.LastLogin)

	got, err = r.UserByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", got.Email)

	_, err = r.UserByUsername(ctx, "bob")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = r.UserByID(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateUser_UniqueIndexes(t *testing.T) {
	t.Parallel()

	r := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, r.CreateUser(ctx, newUser("alice", "alice@example.com")))

	err := r.CreateUser(ctx, newUser("alice", "other@example.com"))
	assert.ErrorIs(t, err, ErrDuplicate)

	err = r.CreateUser(ctx, newUser("alice2", "alice@example.com"))
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestIdentityTaken(t *testing.T) {
	t.Parallel()

	r := newTestRepo(t)
	ctx := context.Background()
	require.NoError(t, r.CreateUser(ctx, newUser("alice", "alice@example.com")))

	tests := []struct {
		username, email    string
		wantUser, wantMail bool
	}{
		{username: "alice", email: "new@example.com", wantUser: true},
		{username: "bob", email: "alice@example.com", wantMail: true},
		{username: "alice", email: "alice@example.com", wantUser: true, wantMail: true},
		{username: "bob", email: "bob@example.com"},
	}

	for _, tt := range tests {
		u, m, err := r.IdentityTaken(ctx, tt.username, tt.email)
		require.NoError(t, err)
		assert.Equal(t, tt.wantUser, u, tt.username)
		assert.Equal(t, tt.wantMail, m, tt.email)
	}
}

func TestTouchLastLogin(t *testing.T) {
	t.Parallel()

	r := newTestRepo(t)
	ctx := context.Background()
	alice := newUser("alice", "alice@example.com")
	require.NoError(t, r.CreateUser(ctx, alice))

	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, r.TouchLastLogin(ctx, alice.ID, at))

	got, err := r.UserByID(ctx, alice.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastLogin)
	assert.True(t, at.Equal(*got.LastLogin))

	assert.ErrorIs(t, r.TouchLastLogin(ctx, uuid.New(), at), ErrNotFound)
}

func newCalc(owner uuid.UUID, typ string, inputs models.Inputs, result float64, created time.Time) *models.Calculation {
	return &models.Calculation{
		ID:        uuid.New(),
		UserID:    owner,
		Type:      typ,
		Inputs:    inputs,
		Result:    result,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func TestCalculations_CRUDAndOwnership(t *testing.T) {
	t.Parallel()

	r := newTestRepo(t)
	ctx := context.Background()

	alice := newUser("alice", "alice@example.com")
	bob := newUser("bob", "bob@example.com")
	require.NoError(t, r.CreateUser(ctx, alice))
	require.NoError(t, r.CreateUser(ctx, bob))

	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	c := newCalc(alice.ID, "division", models.Inputs{100, 5, 2}, 10, created)
	require.NoError(t, r.CreateCalculation(ctx, c))

	got, err := r.CalculationByID(ctx, alice.ID, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.Inputs{100, 5, 2}, got.Inputs)
	assert.InDelta(t, 10, got.Result, 1e-9)

	_, err = r.CalculationByID(ctx, bob.ID, c.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	c.Inputs = models.Inputs{9, 3}
	c.Result = 3
	c.UpdatedAt = created.Add(time.Minute)
	require.NoError(t, r.UpdateCalculation(ctx, c))

	got, err = r.CalculationByID(ctx, alice.ID, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.Inputs{9, 3}, got.Inputs)
	assert.Equal(t, "division", got.Type)
	assert.True(t, got.UpdatedAt.After(got.CreatedAt))

	stolen := *c
	stolen.UserID = bob.ID
	assert.ErrorIs(t, r.UpdateCalculation(ctx, &stolen), ErrNotFound)

	assert.ErrorIs(t, r.DeleteCalculation(ctx, bob.ID, c.ID), ErrNotFound)
	require.NoError(t, r.DeleteCalculation(ctx, alice.ID, c.ID))
	assert.ErrorIs(t, r.DeleteCalculation(ctx, alice.ID, c.ID), ErrNotFound)
}

func TestListCalculations(t *testing.T) {
	t.Parallel()

	r := newTestRepo(t)
	ctx := context.Background()

	alice := newUser("alice", "alice@example.com")
	require.NoError(t, r.CreateUser(ctx, alice))

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, r.CreateCalculation(ctx,
			newCalc(alice.ID, "addition", models.Inputs{float64(i), 1}, float64(i+1), base.Add(time.Duration(i)*time.Minute))))
	}
	require.NoError(t, r.CreateCalculation(ctx,
		newCalc(uuid.New(), "addition", models.Inputs{1, 1}, 2, base)))

	total, items, err := r.ListCalculations(ctx, alice.ID, 0, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 5, total)
	require.Len(t, items, 2)
	assert.InDelta(t, 5, items[0].Result, 1e-9, "newest first")

	_, items, err = r.ListCalculations(ctx, alice.ID, 4, 2)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.InDelta(t, 1, items[0].Result, 1e-9)
}

func TestCalculationStats(t *testing.T) {
	t.Parallel()

	r := newTestRepo(t)
	ctx := context.Background()

	owner := uuid.New()
	now := time.Now().UTC()
	require.NoError(t, r.CreateCalculation(ctx, newCalc(owner, "addition", models.Inputs{1, 1}, 2, now)))
	require.NoError(t, r.CreateCalculation(ctx, newCalc(owner, "addition", models.Inputs{2, 2}, 4, now)))
	require.NoError(t, r.CreateCalculation(ctx, newCalc(owner, "division", models.Inputs{100, 5, 2}, 10, now)))

	stats, err := r.CalculationStats(ctx, owner)
	require.NoError(t, err)
	require.Len(t, stats, 2)

	assert.Equal(t, "addition", stats[0].Type)
	assert.EqualValues(t, 2, stats[0].Count)
	assert.InDelta(t, 3, stats[0].Average, 1e-9)
	assert.Equal(t, "division", stats[1].Type)
	assert.EqualValues(t, 1, stats[1].Count)

	empty, err := r.CalculationStats(ctx, uuid.New())
	require.NoError(t, err)
	assert.Empty(t, empty)
}
