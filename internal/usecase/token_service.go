package usecase

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"trip-provider/internal/canonical"
	"trip-provider/internal/domain"
	"trip-provider/internal/pricing"
)

const defaultQuoteTTL = 15 * time.Minute

type quoteClaims struct {
	Quote domain.QuoteTokenPayload `json:"quote"`
	jwt.RegisteredClaims
}

// TokenService seals quote payloads into HS256 JWTs. The token is the only
// record of a quote; nothing is stored between quote and confirm.
type TokenService struct {
	Secret []byte
	TTL    time.Duration
	Issuer string
	Now    func() time.Time
}

func NewTokenService(secret string, ttl time.Duration, issuer string) (*TokenService, error) {
	if secret == "" {
		return nil, errors.New("quote token secret is empty")
	}
	if ttl <= 0 {
		ttl = defaultQuoteTTL
	}
	return &TokenService{Secret: []byte(secret), TTL: ttl, Issuer: issuer}, nil
}

func (s *TokenService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *TokenService) ttl() time.Duration {
	if s.TTL <= 0 {
		return defaultQuoteTTL
	}
	return s.TTL
}

func (s *TokenService) SignQuote(req domain.QuoteRequest, result pricing.PricingResult) (string, time.Time, error) {
	item, err := result.PrimaryItem()
	if err != nil {
		return "", time.Time{}, err
	}
	params, err := canonical.Params(req.Params)
	if err != nil {
		return "", time.Time{}, domain.WrapError(domain.KindValidation, err, "params are not serializable")
	}
	payload := domain.QuoteTokenPayload{
		Kind:     domain.QuoteSingle,
		Currency: result.Currency,
		Total:    result.Total(),
		Fees:     result.Fees(),
		Single: &domain.SingleQuote{
			ProductType: req.ProductType,
			PartySize:   max(req.PartySize, 1),
			Params:      params,
			LineItems:   result.Items,
			UnitPrice:   item.UnitPrice,
			Quantity:    item.Quantity,
		},
	}
	return s.sign(payload)
}

func (s *TokenService) SignItineraryQuote(req domain.ItineraryQuoteRequest, snapshots []domain.ItineraryItemSnapshot) (string, time.Time, error) {
	cur, err := pricing.NormalizeCurrency(req.Currency)
	if err != nil {
		return "", time.Time{}, err
	}
	total, fees := decimal.Zero, decimal.Zero
	for _, it := range snapshots {
		total = total.Add(it.Total)
		fees = fees.Add(it.Fees)
	}
	payload := domain.QuoteTokenPayload{
		Kind:     domain.QuoteItinerary,
		Currency: cur,
		Total:    pricing.Round(total, cur),
		Fees:     pricing.Round(fees, cur),
		Itinerary: &domain.ItineraryPayload{
			ItineraryID: req.ItineraryID,
			Items:       snapshots,
		},
	}
	return s.sign(payload)
}

func (s *TokenService) sign(payload domain.QuoteTokenPayload) (string, time.Time, error) {
	now := s.now().UTC()
	exp := now.Add(s.ttl()).Truncate(time.Second)
	claims := quoteClaims{
		Quote: payload,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString(s.Secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// VerifyQuote checks the signature first and the expiry second, so an
// expired error always means the token itself is genuine.
func (s *TokenService) VerifyQuote(raw string) (domain.QuoteTokenPayload, error) {
	if raw == "" {
		return domain.QuoteTokenPayload{}, domain.NewError(domain.KindTokenInvalid, "quote token is required")
	}
	claims := &quoteClaims{}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithStrictDecoding(),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	}
	if s.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.Issuer))
	}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return s.Secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return domain.QuoteTokenPayload{}, domain.WrapError(domain.KindQuoteExpired, err, "quote expired, request a new quote")
		}
		return domain.QuoteTokenPayload{}, domain.WrapError(domain.KindTokenInvalid, err, "quote token rejected")
	}
	payload := claims.Quote
	if err := checkPayload(payload); err != nil {
		return domain.QuoteTokenPayload{}, err
	}
	payload.ExpiresAt = claims.ExpiresAt.Time
	return payload, nil
}

func checkPayload(p domain.QuoteTokenPayload) error {
	invalid := func(msg string) error { return domain.NewError(domain.KindTokenInvalid, "%s", msg) }
	total, fees := decimal.Zero, decimal.Zero
	switch p.Kind {
	case domain.QuoteSingle:
		if p.Single == nil || p.Itinerary != nil || len(p.Single.LineItems) == 0 {
			return invalid("malformed single quote payload")
		}
		for _, it := range p.Single.LineItems {
			total = total.Add(it.Total)
			fees = fees.Add(it.Fees)
		}
	case domain.QuoteItinerary:
		if p.Itinerary == nil || p.Single != nil {
			return invalid("malformed itinerary quote payload")
		}
		for _, it := range p.Itinerary.Items {
			total = total.Add(it.Total)
			fees = fees.Add(it.Fees)
		}
	default:
		return invalid("unknown quote kind")
	}
	if !pricing.Round(total, p.Currency).Equal(p.Total) || !pricing.Round(fees, p.Currency).Equal(p.Fees) {
		return invalid("quote totals do not add up")
	}
	return nil
}
