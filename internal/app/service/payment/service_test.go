package payment

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/topservers/credits/internal/app/service/provider"
	"github.com/topservers/credits/pkg/apperr"
	cfgpkg "github.com/topservers/credits/pkg/config"
	"github.com/topservers/credits/pkg/types"
)

func testService() *Service {
	cfg := &cfgpkg.Config{
		CreditPackages: []*types.CreditPackage{
			{ID: "starter", Credits: 500, BasePriceCents: 50000},
		},
	}
	reg := provider.NewRegistry(
		provider.NewCoinPaymentsAdapter(cfg),
		provider.NewPayPalAdapter(cfg),
		provider.NewMercadoPagoAdapter(cfg),
	)
	return NewService(cfg, reg, nil, nil, nil, zap.NewNop().Sugar())
}

func TestCreatePayment_RequiresUser(t *testing.T) {
	svc := testService()
	_, err := svc.CreatePayment(context.Background(), "", &CreatePaymentRequest{
		Provider: types.PaymentProviderPayPal,
		Credits:  10,
	})
	require.Error(t, err)
	require.True(t, apperr.IsAuthentication(err))
}

func TestCreatePayment_RejectsUnknownProvider(t *testing.T) {
	svc := testService()
	_, err := svc.CreatePayment(context.Background(), "u-1", &CreatePaymentRequest{
		Provider: "stripe",
		Credits:  10,
	})
	require.Error(t, err)
	require.True(t, apperr.IsValidation(err))
}

func TestCreatePayment_RejectsUnknownPackage(t *testing.T) {
	svc := testService()
	_, err := svc.CreatePayment(context.Background(), "u-1", &CreatePaymentRequest{
		Provider:  types.PaymentProviderPayPal,
		PackageID: "mega",
	})
	require.Error(t, err)
	require.True(t, apperr.IsValidation(err))
}

func TestCreatePayment_RejectsZeroCredits(t *testing.T) {
	svc := testService()
	_, err := svc.CreatePayment(context.Background(), "u-1", &CreatePaymentRequest{
		Provider: types.PaymentProviderPayPal,
		Credits:  0,
	})
	require.Error(t, err)
	require.True(t, apperr.IsValidation(err))
}
