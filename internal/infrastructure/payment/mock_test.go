package payment

import (
	"context"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trip-provider/internal/domain"
)

func TestCharge_Approves(t *testing.T) {
	a := NewMockAuthorizer("", nil)
	id, err := a.Charge(context.Background(), "mock_card_0", decimal.NewFromInt(100))
	require.NoError(t, err)
	assert.Equal(t, "pay_136bc148b074d23214bd6f13", id)

	again, err := a.Charge(context.Background(), "mock_card_0", decimal.RequireFromString("100.00"))
	require.NoError(t, err)
	assert.Equal(t, id, again)

	other, err := a.Charge(context.Background(), "mock_card_0", decimal.RequireFromString("42.5"))
	require.NoError(t, err)
	assert.Equal(t, "pay_dab5b12beb29d19d96817258", other)
}

func TestCharge_DeterministicDecline(t *testing.T) {
	a := NewMockAuthorizer(DefaultCredentialPrefix, nil)
	for i := 0; i < 3; i++ {
		_, err := a.Charge(context.Background(), "mock_card_18", decimal.NewFromInt(100))
		assert.ErrorIs(t, err, domain.ErrPaymentDeclined)
	}
	_, err := a.Charge(context.Background(), "mock_card_18", decimal.RequireFromString("42.5"))
	assert.NoError(t, err)
}

func TestCharge_DeclineRateIsAboutFivePercent(t *testing.T) {
	a := NewMockAuthorizer("", nil)
	declined := 0
	for i := 0; i < 400; i++ {
		_, err := a.Charge(context.Background(), fmt.Sprintf("mock_card_%d", i), decimal.NewFromInt(100))
		if err != nil {
			require.ErrorIs(t, err, domain.ErrPaymentDeclined)
			declined++
		}
	}
	assert.Equal(t, 25, declined)
}

func TestCharge_Credentials(t *testing.T) {
	a := NewMockAuthorizer("", nil)
	tests := []struct {
		name       string
		credential string
		want       error
	}{
		{"blank", "", domain.ErrPaymentCredential},
		{"spaces", "   ", domain.ErrPaymentCredential},
		{"real card", "4111111111111111", domain.ErrPaymentCredential},
		{"upper prefix", "MOCK_card_0", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.Charge(context.Background(), tt.credential, decimal.NewFromInt(100))
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}

	custom := NewMockAuthorizer("test_", nil)
	_, err := custom.Charge(context.Background(), "mock_card_0", decimal.NewFromInt(100))
	assert.ErrorIs(t, err, domain.ErrPaymentCredential)
}

func TestCharge_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMockAuthorizer("", nil).Charge(ctx, "mock_card_0", decimal.NewFromInt(1))
	assert.ErrorIs(t, err, context.Canceled)
}
