package storage

import (
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrMarketNotFound    = errors.New("market not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// Account is a custody balance in stablecoin base units. Stakes are debited
// from it and payouts credited to it.
type Account struct {
	Address   common.Address `json:"address"`
	Balance   int64          `json:"balance"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// EventType classifies an activity log entry.
type EventType string

const (
	EventWelcomeGrant     EventType = "WELCOME_GRANT"
	EventCredit           EventType = "CREDIT"
	EventMarketCreated    EventType = "MARKET_CREATED"
	EventBetPlaced        EventType = "BET_PLACED"
	EventMarketResolved   EventType = "MARKET_RESOLVED"
	EventWinningsClaimed  EventType = "WINNINGS_CLAIMED"
	EventStakeForfeited   EventType = "STAKE_FORFEITED"
	EventFeesWithdrawn    EventType = "FEES_WITHDRAWN"
	EventForfeitWithdrawn EventType = "FORFEITED_WITHDRAWN"
	EventPriceFeedUpdated EventType = "PRICE_FEED_UPDATED"
)

// Event is one entry of the activity log.
type Event struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	MarketID  int64          `json:"market_id,omitempty"`
	Address   common.Address `json:"address"`
	Amount    int64          `json:"amount"`
	Details   string         `json:"details,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// PriceFeed maps an asset symbol to its on-chain aggregator.
type PriceFeed struct {
	Asset     string         `json:"asset"`
	Address   common.Address `json:"address"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// MarketFilter narrows ListMarkets. A nil Resolved returns both states.
type MarketFilter struct {
	Resolved *bool
	Creator  *common.Address
	Limit    int
	Offset   int
}
