package pricing

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"trip-provider/internal/domain"
)

const (
	hotelCityTaxPerNight = 200
	hotelServiceFeeRate  = 0.07
)

var hotelStarBase = map[int]float64{
	1: 45,
	2: 70,
	3: 110,
	4: 165,
	5: 260,
}

type roomSpec struct {
	multiplier float64
	capacity   int
}

var hotelRooms = map[string]roomSpec{
	"single": {0.8, 1},
	"double": {1.0, 2},
	"twin":   {1.05, 2},
	"family": {1.45, 4},
	"suite":  {1.9, 3},
}

var cityBands = []float64{0.85, 1.0, 1.15, 1.3}

var hotelNames = []string{"Grand %s Hotel", "%s Central Inn", "The %s Residence", "%s Harbour Suites", "Park View %s"}

// Hotel prices a stay; quantity is the number of nights.
//
// Params: city, hotelName (derived when missing), roomType (single|double|
// twin|family|suite, default double), stars (1-5, default 3), nights
// (default 1, at most 365), checkIn.
//
// Fees are a city tax of 200 per night plus a 7% service fee on the nights
// subtotal.
func Hotel(currency string, partySize int, p Params) (domain.QuoteLineItem, error) {
	city := p.String("", "city", "location")
	if city == "" {
		return domain.QuoteLineItem{}, domain.Validationf("hotel requires a city")
	}
	roomType := p.Lower("double", "roomType", "room")
	room, ok := hotelRooms[roomType]
	if !ok {
		roomType, room = "double", hotelRooms["double"]
	}
	stars := p.Int(3, "stars", "starRating")
	if stars < 1 {
		stars = 1
	}
	if stars > 5 {
		stars = 5
	}
	nights, err := bounded(p.Int(1, "nights"), MaxNights, "nights")
	if err != nil {
		return domain.QuoteLineItem{}, err
	}
	checkIn := p.String("", "checkIn", "date")
	partySize = atLeastOne(partySize)
	rooms := (partySize + room.capacity - 1) / room.capacity

	c := strings.ToLower(city)
	name := p.String("", "hotelName", "name")
	r := seeded("hotel", c, strings.ToLower(name), roomType, strconv.Itoa(stars), strconv.Itoa(nights), checkIn, strconv.Itoa(partySize))
	if name == "" {
		name = fmt.Sprintf(pick(r, hotelNames), city)
	}
	cityFactor := cityBands[band(len(cityBands), "city", c)]

	nightly := factor(hotelStarBase[stars]).
		Mul(factor(room.multiplier)).
		Mul(factor(cityFactor)).
		Mul(jitter(r, 0.10))
	unit := Round(Round(nightly, currency).Mul(decimal.NewFromInt(int64(rooms))), currency)

	subtotal := unit.Mul(decimal.NewFromInt(int64(nights)))
	cityTax := decimal.NewFromInt(hotelCityTaxPerNight * int64(nights))
	serviceFee := Round(subtotal.Mul(factor(hotelServiceFeeRate)), currency)
	fees := cityTax.Add(serviceFee)

	sku := fmt.Sprintf("HTL-%s-%dS-%s-%dN", code(city), stars, strings.ToUpper(roomType), nights)
	item := lineItem(sku, unit, nights, fees, currency)
	item.Metadata = map[string]string{
		"hotelName": name,
		"city":      city,
		"roomType":  roomType,
		"stars":     strconv.Itoa(stars),
		"nights":    strconv.Itoa(nights),
		"rooms":     strconv.Itoa(rooms),
		"checkIn":   checkIn,
	}
	item.CancellationPolicy = hotelPolicy(stars)
	return item, nil
}

func hotelPolicy(stars int) string {
	if stars >= 4 {
		return "Free cancellation until 48 hours before check-in; first night charged afterwards."
	}
	return "Free cancellation until 7 days before check-in; non-refundable afterwards."
}
