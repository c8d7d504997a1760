package pricing

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"trip-provider/internal/domain"
)

var transportBase = map[string]float64{
	"flight": 180,
	"train":  65,
	"bus":    28,
	"ferry":  45,
}

var transportServiceFee = map[string]float64{
	"flight": 15,
	"train":  5,
	"bus":    2,
	"ferry":  6,
}

var transportClass = map[string]float64{
	"economy":         1.0,
	"premium_economy": 1.55,
	"business":        2.8,
	"first":           4.2,
}

// distance bands from short hop to long haul
var distanceBands = []float64{0.6, 1.0, 1.45, 2.1, 3.0}

// Transport prices one ticket per traveller.
//
// Params: mode (flight|train|bus|ferry, default flight), origin or from,
// destination or to, date, class (economy|premium_economy|business|first,
// default economy).
func Transport(currency string, partySize int, p Params) (domain.QuoteLineItem, error) {
	mode := p.Lower("flight", "mode", "transportMode")
	base, ok := transportBase[mode]
	if !ok {
		return domain.QuoteLineItem{}, domain.Validationf("unsupported transport mode %q", mode)
	}
	origin := p.String("", "origin", "from")
	destination := p.String("", "destination", "to")
	if origin == "" || destination == "" {
		return domain.QuoteLineItem{}, domain.Validationf("transport requires origin and destination")
	}
	date := p.String("", "date", "departureDate")
	class := strings.ReplaceAll(p.Lower("economy", "class", "ticketClass"), " ", "_")
	classFactor, ok := transportClass[class]
	if !ok {
		class, classFactor = "economy", transportClass["economy"]
	}
	partySize = atLeastOne(partySize)

	o, d := strings.ToLower(origin), strings.ToLower(destination)
	r := seeded("transport", mode, o, d, date, class, strconv.Itoa(partySize))
	distance := distanceBands[band(len(distanceBands), "route", o, d)]

	unit := factor(base).
		Mul(factor(classFactor)).
		Mul(factor(distance)).
		Mul(jitter(r, 0.15))
	unit = Round(unit, currency)
	fees := factor(transportServiceFee[mode]).Mul(decimal.NewFromInt(int64(partySize)))

	sku := fmt.Sprintf("TRN-%s-%s-%s-%s-%s", strings.ToUpper(mode), code(origin), code(destination), compactDate(date), strings.ToUpper(class))
	item := lineItem(sku, unit, partySize, fees, currency)
	item.Metadata = map[string]string{
		"mode":        mode,
		"route":       origin + "-" + destination,
		"origin":      origin,
		"destination": destination,
		"class":       class,
		"date":        date,
	}
	item.CancellationPolicy = transportPolicy(class)
	return item, nil
}

func transportPolicy(class string) string {
	switch class {
	case "business", "first":
		return "Free cancellation up to 24 hours before departure; 10% fee afterwards."
	default:
		return "Free cancellation up to 72 hours before departure; non-refundable afterwards."
	}
}

// code returns an upper-case, alphanumeric three-letter code for SKUs.
func code(s string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(s) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
		if b.Len() == 3 {
			break
		}
	}
	if b.Len() == 0 {
		return "XXX"
	}
	return b.String()
}

func compactDate(date string) string {
	d := strings.ReplaceAll(date, "-", "")
	if d == "" {
		return "OPEN"
	}
	return d
}
