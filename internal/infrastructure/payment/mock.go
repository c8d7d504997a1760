package payment

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"trip-provider/internal/domain"
)

const (
	DefaultCredentialPrefix = "mock_"
	declinePercent          = 5
)

// MockAuthorizer stands in for a card gateway. Outcomes depend only on the
// credential and amount, so a given pair always approves or always declines.
type MockAuthorizer struct {
	Prefix string
	Log    *zap.Logger
}

func NewMockAuthorizer(prefix string, log *zap.Logger) *MockAuthorizer {
	if prefix == "" {
		prefix = DefaultCredentialPrefix
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &MockAuthorizer{Prefix: prefix, Log: log}
}

func (a *MockAuthorizer) Charge(ctx context.Context, credential string, amount decimal.Decimal) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return "", domain.NewError(domain.KindPaymentCredential, "payment credential is required")
	}
	prefix := a.Prefix
	if prefix == "" {
		prefix = DefaultCredentialPrefix
	}
	if !strings.HasPrefix(strings.ToLower(credential), strings.ToLower(prefix)) {
		return "", domain.NewError(domain.KindPaymentCredential, "unsupported payment credential, expected %s prefix", prefix)
	}
	if amount.IsNegative() {
		return "", domain.Validationf("charge amount must not be negative")
	}

	sum := sha256.Sum256([]byte(credential + "|" + amount.String()))
	if binary.BigEndian.Uint16(sum[0:2])%100 < declinePercent {
		if a.Log != nil {
			a.Log.Info("mock payment declined", zap.String("amount", amount.String()))
		}
		return "", domain.NewError(domain.KindPaymentDeclined, "payment declined by issuer")
	}
	return "pay_" + hex.EncodeToString(sum[2:14]), nil
}
