package usecase

import (
	"strings"

	"github.com/shopspring/decimal"

	"trip-provider/internal/canonical"
	"trip-provider/internal/domain"
	"trip-provider/internal/pricing"
)

type ItineraryService struct {
	Engine *pricing.Engine
	Tokens *TokenService
}

func (s *ItineraryService) PrepareItinerary(req domain.ItineraryQuoteRequest) (domain.ItineraryQuote, error) {
	if len(req.Items) == 0 {
		return domain.ItineraryQuote{}, domain.Validationf("itinerary has no items")
	}
	cur, err := pricing.NormalizeCurrency(req.Currency)
	if err != nil {
		return domain.ItineraryQuote{}, err
	}
	seen := make(map[string]struct{}, len(req.Items))
	snapshots := make([]domain.ItineraryItemSnapshot, 0, len(req.Items))
	out := domain.ItineraryQuote{ItineraryID: req.ItineraryID, Currency: cur}
	total, fees := decimal.Zero, decimal.Zero
	for i, it := range req.Items {
		ref := strings.TrimSpace(it.Reference)
		if ref == "" {
			return domain.ItineraryQuote{}, domain.Validationf("item %d has no reference", i)
		}
		if _, dup := seen[ref]; dup {
			return domain.ItineraryQuote{}, domain.Validationf("duplicate item reference %q", ref)
		}
		seen[ref] = struct{}{}

		params, decoded, err := canonical.Normalize(it.Params)
		if err != nil {
			return domain.ItineraryQuote{}, domain.WrapError(domain.KindValidation, err, "item %q params are not serializable", ref)
		}
		res, err := s.Engine.Calculate(it.ProductType, cur, it.PartySize, decoded)
		if err != nil {
			return domain.ItineraryQuote{}, err
		}
		snap := domain.ItineraryItemSnapshot{
			Reference:   ref,
			EntityID:    it.EntityID,
			ProductType: it.ProductType,
			PartySize:   max(it.PartySize, 1),
			Params:      params,
			LineItems:   res.Items,
			Fees:        res.Fees(),
			Total:       res.Total(),
		}
		snapshots = append(snapshots, snap)
		out.Items = append(out.Items, domain.ItineraryItemResponse{
			Reference:   snap.Reference,
			EntityID:    snap.EntityID,
			ProductType: snap.ProductType,
			LineItems:   snap.LineItems,
			Fees:        snap.Fees,
			Total:       snap.Total,
		})
		total = total.Add(snap.Total)
		fees = fees.Add(snap.Fees)
	}

	token, exp, err := s.Tokens.SignItineraryQuote(domain.ItineraryQuoteRequest{
		ItineraryID: req.ItineraryID,
		Currency:    cur,
	}, snapshots)
	if err != nil {
		return domain.ItineraryQuote{}, err
	}
	out.Token = token
	out.ExpiresAt = exp
	out.Total = pricing.Round(total, cur)
	out.Fees = pricing.Round(fees, cur)
	return out, nil
}

// Reprice re-runs pricing for the selected items of a verified itinerary
// token and returns their sums. An empty selection means every item.
// References come back in itinerary order so equal sets compare equal.
func (s *ItineraryService) Reprice(payload domain.QuoteTokenPayload, selection []string) (decimal.Decimal, decimal.Decimal, []string, error) {
	if payload.Kind != domain.QuoteItinerary || payload.Itinerary == nil {
		return decimal.Zero, decimal.Zero, nil, domain.Validationf("quote token is not an itinerary quote")
	}
	items := payload.Itinerary.Items

	want := make(map[string]struct{}, len(selection))
	for _, ref := range selection {
		if _, dup := want[ref]; dup {
			return decimal.Zero, decimal.Zero, nil, domain.Validationf("duplicate item reference %q", ref)
		}
		if _, ok := payload.Itinerary.Item(ref); !ok {
			return decimal.Zero, decimal.Zero, nil, domain.Validationf("unknown item reference %q", ref)
		}
		want[ref] = struct{}{}
	}

	var refs []string
	total, fees := decimal.Zero, decimal.Zero
	for _, it := range items {
		if len(want) > 0 {
			if _, ok := want[it.Reference]; !ok {
				continue
			}
		}
		if err := s.checkItem(payload.Currency, it); err != nil {
			return decimal.Zero, decimal.Zero, nil, err
		}
		refs = append(refs, it.Reference)
		total = total.Add(it.Total)
		fees = fees.Add(it.Fees)
	}
	if len(refs) == 0 {
		return decimal.Zero, decimal.Zero, nil, domain.Validationf("nothing selected to confirm")
	}
	return pricing.Round(total, payload.Currency), pricing.Round(fees, payload.Currency), refs, nil
}

func (s *ItineraryService) checkItem(currency string, it domain.ItineraryItemPayload) error {
	params, err := canonical.DecodeParams(it.Params)
	if err != nil {
		return domain.WrapError(domain.KindTokenInvalid, err, "item %q params are unreadable", it.Reference)
	}
	res, err := s.Engine.Calculate(it.ProductType, currency, it.PartySize, params)
	if err != nil {
		return domain.WrapError(domain.KindQuoteExpired, err, "item %q can no longer be priced", it.Reference)
	}
	if !res.Total().Equal(it.Total) || !res.Fees().Equal(it.Fees) {
		return domain.NewError(domain.KindQuoteExpired, "item %q price changed since quoting, request a new quote", it.Reference)
	}
	return nil
}
