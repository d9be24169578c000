package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/StewieC/DApp-PropertyVault/internal/config"
	"github.com/StewieC/DApp-PropertyVault/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestPublisher(t *testing.T) (*miniredis.Miniredis, *Publisher) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := NewClient(config.EventsConfig{RedisAddr: mr.Addr()})
	p := NewPublisher(client, "vault:facts", 0)
	t.Cleanup(func() { _ = p.Close() })
	return mr, p
}

func TestPublishPayment(t *testing.T) {
	mr, p := setupTestPublisher(t)
	ctx := context.Background()
	require.NoError(t, p.Ping(ctx))

	f := &models.PaymentFact{
		Seq:           1,
		PropertyID:    4,
		Payer:         "0x70997970c51812dc3a010c7d01b50e0d17dc79c8",
		Amount:        100_000_000,
		SavedForOwner: 30_000_000,
		OwnerPortion:  70_000_000,
		Timestamp:     time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
		Reference:     "0xabc",
	}
	require.NoError(t, p.PublishPayment(ctx, f))

	entries, err := mr.Stream("vault:facts")
	require.NoError(t, err)
	require.Len(t, entries, 1)

	got, err := p.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, TypeRentPaid, got[0].Type)
	assert.Equal(t, uint64(4), got[0].PropertyID)
	assert.Equal(t, "0xabc", got[0].Reference)

	var decoded models.PaymentFact
	require.NoError(t, json.Unmarshal(got[0].Data, &decoded))
	assert.Equal(t, f.SavedForOwner, decoded.SavedForOwner)
	assert.True(t, f.Timestamp.Equal(decoded.Timestamp))
}

func TestRecent_NewestFirst(t *testing.T) {
	_, p := setupTestPublisher(t)
	ctx := context.Background()

	require.NoError(t, p.PublishPayment(ctx, &models.PaymentFact{PropertyID: 1, Reference: "0x1"}))
	require.NoError(t, p.PublishWithdrawal(ctx, &models.WithdrawalFact{PropertyID: 1, Reference: "0x2"}))

	got, err := p.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, TypeSavingsWithdrawn, got[0].Type)
	assert.Equal(t, TypeRentPaid, got[1].Type)
}

func TestRecent_EmptyStream(t *testing.T) {
	_, p := setupTestPublisher(t)
	got, err := p.Recent(context.Background(), 5)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestPublish_ServerDown(t *testing.T) {
	mr, p := setupTestPublisher(t)
	mr.Close()
	err := p.PublishPayment(context.Background(), &models.PaymentFact{})
	assert.Error(t, err)
}
