package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/billing-gate/internal/lib/apperr"
	"github.com/magabrotheeeer/billing-gate/internal/models"
)

func TestStorage_GetAccessByUserUID(t *testing.T) {
	storage := setupTestDatabase(t)
	factory := NewTestDataFactory(storage)
	ctx := context.Background()

	trialEnds := time.Now().Add(48 * time.Hour).UTC().Truncate(time.Microsecond)
	companyID, ownerUID := factory.CreateTenant(t, "owner@example.com", trialEnds)
	memberUID := factory.CreateMember(t, companyID, "member@example.com")
	orphanUID := factory.CreateOrphanUser(t, "orphan@example.com")

	for _, uid := range []string{ownerUID, memberUID} {
		snap, err := storage.GetAccessByUserUID(ctx, uid)
		require.NoError(t, err)
		assert.Equal(t, uid, snap.UserUID)
		assert.Equal(t, companyID, snap.CompanyID)
		assert.True(t, snap.IsActive)
		assert.Equal(t, models.StatusNone, snap.SubscriptionStatus)
		require.NotNil(t, snap.TrialEndsAt)
		assert.True(t, trialEnds.Equal(*snap.TrialEndsAt))
	}

	snap, err := storage.GetAccessByUserUID(ctx, orphanUID)
	require.NoError(t, err)
	assert.False(t, snap.HasCompany())

	_, err = storage.GetAccessByUserUID(ctx, uuid.NewString())
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestStorage_ListUserUIDsByCompany(t *testing.T) {
	storage := setupTestDatabase(t)
	factory := NewTestDataFactory(storage)
	ctx := context.Background()

	companyID, ownerUID := factory.CreateTenant(t, "owner@example.com", time.Now())
	memberUID := factory.CreateMember(t, companyID, "member@example.com")

	uids, err := storage.ListUserUIDsByCompany(ctx, companyID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{ownerUID, memberUID}, uids)

	uids, err = storage.ListUserUIDsByCompany(ctx, "not-a-uuid")
	require.NoError(t, err)
	assert.Empty(t, uids)
}

func TestStorage_UsersLookup(t *testing.T) {
	storage := setupTestDatabase(t)
	factory := NewTestDataFactory(storage)
	ctx := context.Background()

	companyID, ownerUID := factory.CreateTenant(t, "owner@example.com", time.Now())

	owner, err := storage.GetCompanyOwner(ctx, companyID)
	require.NoError(t, err)
	assert.Equal(t, ownerUID, owner.UID)

	u, err := storage.GetUser(ctx, ownerUID)
	require.NoError(t, err)
	assert.Nil(t, u.LastLoginAt)

	require.NoError(t, storage.TouchLastLogin(ctx, ownerUID))
	u, err = storage.GetUser(ctx, ownerUID)
	require.NoError(t, err)
	assert.NotNil(t, u.LastLoginAt)

	_, err = storage.GetUser(ctx, "bad")
	require.ErrorIs(t, err, apperr.ErrNotFound)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = storage.GetUser(cancelled, ownerUID)
	require.ErrorIs(t, err, context.Canceled)
}
