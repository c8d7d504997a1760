package pricing

import (
	"crypto/sha256"
	"encoding/binary"
	"math/rand/v2"
	"strings"

	"github.com/shopspring/decimal"
)

func digest(parts ...string) [32]byte {
	return sha256.Sum256([]byte(strings.Join(parts, "|")))
}

// seeded returns a generator whose sequence depends only on parts. Pricing
// never touches the global source.
func seeded(parts ...string) *rand.Rand {
	sum := digest(parts...)
	return rand.New(rand.NewPCG(
		binary.BigEndian.Uint64(sum[0:8]),
		binary.BigEndian.Uint64(sum[8:16]),
	))
}

// band maps parts onto [0, n).
func band(n int, parts ...string) int {
	sum := digest(parts...)
	return int(binary.BigEndian.Uint32(sum[16:20]) % uint32(n))
}

// jitter draws a factor in [1-spread, 1+spread), rounded to 4 places.
func jitter(r *rand.Rand, spread float64) decimal.Decimal {
	f := 1 + spread*(2*r.Float64()-1)
	return decimal.NewFromFloat(f).Round(4)
}

func pick(r *rand.Rand, options []string) string {
	return options[r.IntN(len(options))]
}

func factor(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}
