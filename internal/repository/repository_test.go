package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"servicehub/internal/database"
	"servicehub/internal/domain"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := database.Connect(":memory:")
	require.NoError(t, err)
	require.NoError(t, Migrate(db))
	return db
}

func seedUser(t *testing.T, db *gorm.DB, id int64, name string, role domain.UserRole, verified bool) {
	t.Helper()
	require.NoError(t, db.Create(&userModel{
		ID: id, Name: name, Role: string(role), IsVerified: verified,
	}).Error)
}

func i64(v int64) *int64 { return &v }

func TestUserRepository_UpdateLocation(t *testing.T) {
	db := setupDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	seedUser(t, db, 2, "Marat", domain.RoleProvider, true)

	require.NoError(t, repo.UpdateLocation(ctx, 2, 43.238, 76.889))

	u, err := repo.GetByID(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 43.238, *u.Latitude)
	assert.Equal(t, 76.889, *u.Longitude)

	assert.ErrorIs(t, repo.UpdateLocation(ctx, 404, 1, 1), ErrNotFound)
}

func TestUserRepository_VerifiedBrokers(t *testing.T) {
	db := setupDB(t)
	repo := NewUserRepository(db)

	seedUser(t, db, 1, "Asel", domain.RoleCustomer, true)
	seedUser(t, db, 9, "Bekzat", domain.RoleBroker, true)
	seedUser(t, db, 10, "Dana", domain.RoleBroker, false)

	brokers, err := repo.VerifiedBrokers(context.Background())
	require.NoError(t, err)
	require.Len(t, brokers, 1)
	assert.Equal(t, int64(9), brokers[0].ID)
}

func TestNotificationRepository_ReadFlow(t *testing.T) {
	db := setupDB(t)
	repo := NewNotificationRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.CreateBatch(ctx, []domain.Notification{
		{UserID: 5, Message: "Booking #1 is now ACCEPTED"},
		{UserID: 5, Message: "Booking #1 is now COMPLETED"},
		{UserID: 6, Message: "New booking request from Asel"},
	}))

	unread, err := repo.CountUnread(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(2), unread)

	list, err := repo.ListByUser(ctx, 5, 50)
	require.NoError(t, err)
	require.Len(t, list, 2)

	// Another user cannot acknowledge this row.
	assert.ErrorIs(t, repo.MarkRead(ctx, list[0].ID, 6), ErrNotFound)

	require.NoError(t, repo.MarkRead(ctx, list[0].ID, 5))
	unread, err = repo.CountUnread(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(1), unread)

	require.NoError(t, repo.MarkAllRead(ctx, 5))
	unread, err = repo.CountUnread(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(0), unread)

	// User 6 untouched throughout.
	unread, err = repo.CountUnread(ctx, 6)
	require.NoError(t, err)
	assert.Equal(t, int64(1), unread)
}
