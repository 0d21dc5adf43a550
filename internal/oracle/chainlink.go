package oracle

import (
	"context"
	"math/big"
	"strings"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"

	"predictionmarket/internal/settlement"
)

// aggregatorABI covers the two AggregatorV3Interface views we read.
const aggregatorABI = `[
	{"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"latestRoundData","outputs":[
		{"name":"roundId","type":"uint80"},
		{"name":"answer","type":"int256"},
		{"name":"startedAt","type":"uint256"},
		{"name":"updatedAt","type":"uint256"},
		{"name":"answeredInRound","type":"uint80"}
	],"stateMutability":"view","type":"function"}
]`

// contractCaller is the read-only part of ethclient.Client we need.
type contractCaller interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Chainlink reads prices from Chainlink aggregator contracts over JSON-RPC.
type Chainlink struct {
	caller contractCaller
	feeds  Feeds
	abi    abi.ABI
	client *ethclient.Client
}

// DialChainlink connects to an Ethereum JSON-RPC endpoint.
func DialChainlink(ctx context.Context, rpcURL string, feeds Feeds) (*Chainlink, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, errors.Wrap(err, "dial rpc")
	}
	c, err := NewChainlink(client, feeds)
	if err != nil {
		client.Close()
		return nil, err
	}
	c.client = client
	return c, nil
}

// NewChainlink builds a reader on top of any contract caller.
func NewChainlink(caller contractCaller, feeds Feeds) (*Chainlink, error) {
	parsed, err := abi.JSON(strings.NewReader(aggregatorABI))
	if err != nil {
		return nil, errors.Wrap(err, "parse aggregator abi")
	}
	return &Chainlink{caller: caller, feeds: feeds, abi: parsed}, nil
}

// Close releases the RPC connection if Chainlink owns one.
func (c *Chainlink) Close() {
	if c.client != nil {
		c.client.Close()
	}
}

// LatestPrice reads latestRoundData from the asset's aggregator and scales the
// answer by the feed's decimals.
func (c *Chainlink) LatestPrice(ctx context.Context, asset string) (settlement.Quote, error) {
	asset = NormalizeAsset(asset)
	feed, err := c.feeds.FeedAddress(ctx, asset)
	if err != nil {
		return settlement.Quote{}, err
	}

	out, err := c.call(ctx, feed, "decimals")
	if err != nil {
		return settlement.Quote{}, err
	}
	decimals, ok := out[0].(uint8)
	if !ok {
		return settlement.Quote{}, errors.Wrapf(settlement.ErrInvalidResponse, "decimals: unexpected %T", out[0])
	}

	out, err = c.call(ctx, feed, "latestRoundData")
	if err != nil {
		return settlement.Quote{}, err
	}
	answer, ok1 := out[1].(*big.Int)
	updatedAt, ok2 := out[3].(*big.Int)
	if !ok1 || !ok2 {
		return settlement.Quote{}, errors.Wrapf(settlement.ErrInvalidResponse, "latestRoundData: unexpected %T, %T", out[1], out[3])
	}
	if answer.Sign() <= 0 {
		return settlement.Quote{}, errors.Wrapf(settlement.ErrInvalidResponse, "%s: non-positive answer %s", asset, answer)
	}
	if updatedAt.Sign() <= 0 || !updatedAt.IsInt64() {
		return settlement.Quote{}, errors.Wrapf(settlement.ErrInvalidResponse, "%s: bad updatedAt %s", asset, updatedAt)
	}

	q := settlement.Quote{
		Asset:     asset,
		UpdatedAt: time.Unix(updatedAt.Int64(), 0).UTC(),
	}
	q.Price.Set(scaleAnswer(answer, decimals))
	return q, nil
}

// call packs method, runs it against the latest block and unpacks the result.
// Transport failures surface as ErrNoPriceData, decode failures as
// ErrInvalidResponse.
func (c *Chainlink) call(ctx context.Context, to common.Address, method string) ([]any, error) {
	input, err := c.abi.Pack(method)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	data, err := c.caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: input}, nil)
	if err != nil {
		return nil, errors.Wrapf(settlement.ErrNoPriceData, "%s on %s: %v", method, to.Hex(), err)
	}
	out, err := c.abi.Unpack(method, data)
	if err != nil || len(out) == 0 {
		return nil, errors.Wrapf(settlement.ErrInvalidResponse, "%s on %s: %v", method, to.Hex(), err)
	}
	return out, nil
}

func scaleAnswer(answer *big.Int, decimals uint8) *apd.Decimal {
	coeff := new(apd.BigInt).SetMathBigInt(answer)
	return apd.NewWithBigInt(coeff, -int32(decimals))
}
