package settlement

import (
	"time"

	"github.com/cockroachdb/apd/v3"
)

// DefaultPriceTolerance bounds how far an oracle update may sit from the
// deadline and from the time of resolution.
const DefaultPriceTolerance = 5 * time.Minute

// Quote is a typed oracle reading.
type Quote struct {
	Asset     string
	Price     apd.Decimal
	UpdatedAt time.Time
}

// CheckQuote validates a quote before it is used to resolve a market with the
// given deadline. The update must not predate the deadline by more than
// tolerance and must not be older than tolerance at now.
func CheckQuote(q *Quote, deadline, now time.Time, tolerance time.Duration) error {
	if q == nil || q.UpdatedAt.IsZero() {
		return ErrNoPriceData
	}
	if q.Price.Sign() <= 0 {
		return ErrInvalidResponse
	}
	if q.UpdatedAt.Before(deadline.Add(-tolerance)) {
		return ErrNoPriceData
	}
	if now.Sub(q.UpdatedAt) > tolerance {
		return ErrNoPriceData
	}
	return nil
}
