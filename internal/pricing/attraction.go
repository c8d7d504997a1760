package pricing

import (
	"fmt"
	"strconv"
	"strings"

	"trip-provider/internal/domain"
)

const (
	attractionBase           = 38
	attractionBookingFeeRate = 0.03
	attractionExtraHourRate  = 0.35
)

var popularityBands = []float64{0.8, 1.0, 1.25, 1.6}

var attractionSessions = map[string]float64{
	"morning":   1.0,
	"afternoon": 1.1,
	"evening":   1.25,
}

var attractionTickets = map[string]float64{
	"standard": 1.0,
	"vip":      1.8,
}

// Attraction prices one admission per traveller.
//
// Params: name, date, session (morning|afternoon|evening, default morning),
// ticketClass (standard|vip, default standard), durationHours (default 1,
// at most 24).
// Fees are a 3% booking fee.
func Attraction(currency string, partySize int, p Params) (domain.QuoteLineItem, error) {
	name := p.String("", "name", "attractionName", "title")
	if name == "" {
		return domain.QuoteLineItem{}, domain.Validationf("attraction requires a name")
	}
	date := p.String("", "date", "visitDate")
	session := p.Lower("morning", "session", "timeSlot")
	sessionFactor, ok := attractionSessions[session]
	if !ok {
		session, sessionFactor = "morning", attractionSessions["morning"]
	}
	ticket := p.Lower("standard", "ticketClass", "ticketType")
	ticketFactor, ok := attractionTickets[ticket]
	if !ok {
		ticket, ticketFactor = "standard", attractionTickets["standard"]
	}
	hours, err := bounded(p.Int(1, "durationHours", "duration"), MaxDurationHours, "duration hours")
	if err != nil {
		return domain.QuoteLineItem{}, err
	}
	partySize = atLeastOne(partySize)

	n := strings.ToLower(name)
	r := seeded("attraction", n, date, session, ticket, strconv.Itoa(hours), strconv.Itoa(partySize))
	popularity := popularityBands[band(len(popularityBands), "attraction", n)]
	durationFactor := 1 + attractionExtraHourRate*float64(hours-1)

	unit := factor(attractionBase).
		Mul(factor(popularity)).
		Mul(factor(sessionFactor)).
		Mul(factor(ticketFactor)).
		Mul(factor(durationFactor)).
		Mul(jitter(r, 0.10))
	unit = Round(unit, currency)
	subtotal := unit.Mul(factor(float64(partySize)))
	fees := subtotal.Mul(factor(attractionBookingFeeRate))

	sku := fmt.Sprintf("ATT-%s-%s-%s-%s", slug(name), compactDate(date), strings.ToUpper(session), strings.ToUpper(ticket))
	item := lineItem(sku, unit, partySize, fees, currency)
	item.Metadata = map[string]string{
		"name":          name,
		"date":          date,
		"session":       session,
		"ticketClass":   ticket,
		"durationHours": strconv.Itoa(hours),
	}
	item.CancellationPolicy = "Non-refundable within 24 hours of the session; full refund before."
	return item, nil
}

func slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToUpper(s) {
		switch {
		case (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
		if b.Len() >= 16 {
			break
		}
	}
	return strings.TrimRight(b.String(), "-")
}
