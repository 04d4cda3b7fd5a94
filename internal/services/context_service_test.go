package services

import (
	"context"
	"testing"
	"time"

	"supportdesk/internal/cache"
	"supportdesk/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextService_UpdateAndGet(t *testing.T) {
	svc := NewContextService(cache.NewMemoryProvider(), newTestDB(t), config.ContextConfig{}, quietLogger())
	ctx := context.Background()
	assert.Equal(t, 30*time.Minute, svc.TTL())

	missing, err := svc.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, missing)

	assert.ErrorIs(t, svc.Update(ctx, &UserContext{}), ErrInvalidContext)

	cart, retries := 27500.0, 2
	require.NoError(t, svc.Update(ctx, &UserContext{
		UserID:            "u1",
		CurrentScreen:     "checkout",
		CartValue:         &cart,
		EventType:         "WEDDING",
		PaymentRetryCount: &retries,
		CartItems:         []CartItem{{ItemID: "p1", Name: "Royal Platter", Quantity: 2, Price: 13750}},
	}))

	got, err := svc.Get(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "checkout", got.CurrentScreen)
	require.Len(t, got.CartItems, 1)
	assert.Equal(t, "Royal Platter", got.CartItems[0].Name)

	sig := SignalsFromContext(got)
	assert.Equal(t, 27500.0, sig.CartValue)
	assert.Equal(t, 2, sig.PaymentRetryCount)
	assert.Zero(t, sig.BackNavCount)
}

func TestContextService_LogSignal(t *testing.T) {
	svc := NewContextService(cache.NewMemoryProvider(), newTestDB(t), config.ContextConfig{}, quietLogger())
	ctx := context.Background()

	v := 75.0
	sig, err := svc.LogSignal(ctx, &FrictionSignalRequest{UserID: "u1", SessionID: "s1", SignalType: "inactivity", Value: &v, Screen: "menu"})
	require.NoError(t, err)
	assert.NotZero(t, sig.ID)

	_, err = svc.LogSignal(ctx, &FrictionSignalRequest{UserID: "u2", SessionID: "s2", SignalType: "back_nav"})
	require.NoError(t, err)

	list, err := svc.RecentSignals(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "inactivity", list[0].SignalType)
	assert.Equal(t, 75.0, *list[0].Value)
}
