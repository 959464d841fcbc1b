package models

import (
	"reflect"
	"sync"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/schema"
)

func TestTransactionExternalIDIsNullable(t *testing.T) {
	// Rows are created before the provider call, with no external id yet.
	// The column must store NULL for those rows: NULLs do not collide under
	// the (provider, external_id) unique index, while a '' default would
	// reject every second pending creation for the same provider.
	s, err := schema.Parse(&Transaction{}, &sync.Map{}, schema.NamingStrategy{})
	require.NoError(t, err)

	f := s.LookUpField("external_id")
	require.NotNil(t, f)
	require.Equal(t, reflect.Ptr, f.FieldType.Kind())

	fresh := &Transaction{ID: "tx-1", Provider: "paypal"}
	require.Nil(t, fresh.ExternalID)
	require.Empty(t, fresh.ExternalRef())
}

func TestTransactionExternalRef(t *testing.T) {
	tx := &Transaction{ExternalID: lo.ToPtr("ext-1")}
	require.Equal(t, "ext-1", tx.ExternalRef())
	require.Empty(t, (&Transaction{}).ExternalRef())
}
