package settlement

import "errors"

// Precondition failures. Every operation checks all of its preconditions
// before touching state, so a returned error means nothing was changed.
var (
	ErrMarketClosed    = errors.New("market closed")
	ErrBetTooSmall     = errors.New("bet below market minimum")
	ErrAlreadyResolved = errors.New("market already resolved")
	ErrNotYetExpired   = errors.New("market deadline not reached")
	ErrNoPriceData     = errors.New("no usable price data")
	ErrInvalidResponse = errors.New("invalid price oracle response")
	ErrAlreadyClaimed  = errors.New("winnings already claimed")
	ErrNothingToClaim  = errors.New("nothing to claim")
	ErrNotResolved     = errors.New("market not resolved")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrInvalidSide     = errors.New("invalid side: must be YES or NO")
	ErrInvalidAmount   = errors.New("invalid amount")
)
