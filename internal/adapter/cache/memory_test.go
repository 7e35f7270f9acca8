package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/smallbiznis/builder-auth/internal/domain"
)

func TestMemoryStateStoreTakeIsSingleUse(t *testing.T) {
	store := NewMemoryStateStore()
	ctx := context.Background()

	err := store.SaveState(ctx, "state-1", domain.FlowState{
		State:        "state-1",
		CodeVerifier: "verifier-1",
		ReturnTo:     "/dashboard",
	}, time.Minute)
	require.NoError(t, err)

	flow, err := store.TakeState(ctx, "state-1")
	require.NoError(t, err)
	require.NotNil(t, flow)
	require.Equal(t, "verifier-1", flow.CodeVerifier)
	require.Equal(t, "/dashboard", flow.ReturnTo)

	flow, err = store.TakeState(ctx, "state-1")
	require.NoError(t, err)
	require.Nil(t, flow)
}

func TestMemoryStateStoreExpiry(t *testing.T) {
	store := NewMemoryStateStore()
	ctx := context.Background()

	err := store.SaveState(ctx, "state-1", domain.FlowState{State: "state-1"}, -time.Millisecond)
	require.NoError(t, err)

	flow, err := store.TakeState(ctx, "state-1")
	require.NoError(t, err)
	require.Nil(t, flow)
}

func TestMemoryStateStoreMissingKey(t *testing.T) {
	store := NewMemoryStateStore()
	flow, err := store.TakeState(context.Background(), "nope")
	require.NoError(t, err)
	require.Nil(t, flow)
}

func TestMemoryCodeConsumer(t *testing.T) {
	consumer := NewMemoryCodeConsumer()
	ctx := context.Background()

	first, err := consumer.Consume(ctx, "token-1", time.Minute)
	require.NoError(t, err)
	require.True(t, first)

	first, err = consumer.Consume(ctx, "token-1", time.Minute)
	require.NoError(t, err)
	require.False(t, first)

	first, err = consumer.Consume(ctx, "token-2", time.Minute)
	require.NoError(t, err)
	require.True(t, first)
}

func TestMemoryCodeConsumerExpiredEntryIsReusable(t *testing.T) {
	consumer := NewMemoryCodeConsumer()
	ctx := context.Background()

	first, err := consumer.Consume(ctx, "token-1", -time.Millisecond)
	require.NoError(t, err)
	require.True(t, first)

	first, err = consumer.Consume(ctx, "token-1", time.Minute)
	require.NoError(t, err)
	require.True(t, first)
}
