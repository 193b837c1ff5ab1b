package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chargeshare-backend/internal/domain"
	"chargeshare-backend/internal/repository/memory"
	"chargeshare-backend/internal/service"
)

func TestNotificationService(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	for i := 0; i < 3; i++ {
		require.NoError(t, store.Notifications().Create(ctx, &domain.Notification{UserID: 5, Kind: domain.EventRentalStarted, Title: "t"}))
	}
	require.NoError(t, store.Notifications().Create(ctx, &domain.Notification{UserID: 6, Kind: domain.EventRentalStarted, Title: "t"}))

	svc := service.NewNotificationService(store.Notifications())

	notes, total, err := svc.GetNotifications(ctx, 5, false, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int32(3), total)
	assert.Len(t, notes, 2)

	notes, _, err = svc.GetNotifications(ctx, 5, false, 0, 0)
	require.NoError(t, err)
	require.Len(t, notes, 3)

	require.NoError(t, svc.MarkAsRead(ctx, 5, notes[0].ID))
	notes, _, err = svc.GetNotifications(ctx, 5, false, 1, 10)
	require.NoError(t, err)
	read := 0
	for _, n := range notes {
		if n.IsRead {
			read++
		}
	}
	assert.Equal(t, 1, read)

	unread, total, err := svc.GetNotifications(ctx, 5, true, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int32(2), total)
	for _, n := range unread {
		assert.False(t, n.IsRead)
	}

	notes, total, err = svc.GetNotifications(ctx, 5, false, 3, 2)
	require.NoError(t, err)
	assert.Equal(t, int32(3), total)
	assert.Empty(t, notes)
}
