package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/topservers/credits/pkg/types"
)

func TestOrderDerivedStatus(t *testing.T) {
	now := time.Now()
	o := &Order{Status: types.OrderStatusPending, ExpiresAt: now.Add(time.Hour)}

	require.Equal(t, types.OrderStatusPending, o.DerivedStatus(now))
	require.Equal(t, types.OrderStatusExpired, o.DerivedStatus(now.Add(2*time.Hour)))

	// Completion wins over expiry: a late notification can still finish an
	// order past its TTL.
	o.Status = types.OrderStatusCompleted
	require.Equal(t, types.OrderStatusCompleted, o.DerivedStatus(now.Add(2*time.Hour)))
}

func TestTransactionNeedsManualReview(t *testing.T) {
	tx := &Transaction{}
	require.False(t, tx.NeedsManualReview())

	tx.Metadata = map[string]any{MetadataKeyNeedsManualReview: true}
	require.True(t, tx.NeedsManualReview())

	tx.Metadata = map[string]any{MetadataKeyNeedsManualReview: "true"}
	require.False(t, tx.NeedsManualReview())
}
