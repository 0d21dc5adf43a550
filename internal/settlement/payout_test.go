package settlement

import (
	"testing"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestComputePayout_PureAndUnresolved(t *testing.T) {
	m := newMarket(true)
	pos := &Position{User: alice}
	bet(t, m, pos, SideYes, 100*usdc)

	require.Equal(t, Payout{}, ComputePayout(m, pos))

	_, err := m.Resolve(apd.New(140000, 0), afterDeadline(m))
	require.NoError(t, err)

	first := ComputePayout(m, pos)
	second := ComputePayout(m, pos)
	require.Equal(t, first, second)
	require.False(t, pos.Claimed)
	require.Zero(t, m.AccumulatedFees)
	require.Equal(t, Payout{}, ComputePayout(m, nil))
}

func TestComputePayout_HedgedPosition(t *testing.T) {
	m := newMarket(true)
	hedger := &Position{User: alice}
	other := &Position{User: bob}
	bet(t, m, hedger, SideYes, 50*usdc)
	bet(t, m, hedger, SideNo, 50*usdc)
	bet(t, m, other, SideNo, 100*usdc)

	_, err := m.Resolve(apd.New(100000, 0), afterDeadline(m))
	require.NoError(t, err)
	require.False(t, m.Outcome)

	// NO wins: winning pool 150, losing pool 50. Hedger's NO stake 50 earns 50/150*50.
	p := ComputePayout(m, hedger)
	require.Equal(t, int64(50*usdc), p.Principal)
	require.Equal(t, int64(16_666_666), p.Winnings)
	require.Equal(t, int64(166_666), p.Fee)
	require.Equal(t, int64(50*usdc+16_666_666-166_666), p.Amount)
}

func TestComputePayout_CustomFee(t *testing.T) {
	m := newMarket(true)
	m.FeeBps = 0
	yes := &Position{User: alice}
	no := &Position{User: bob}
	bet(t, m, yes, SideYes, 100*usdc)
	bet(t, m, no, SideNo, 150*usdc)
	_, err := m.Resolve(apd.New(140000, 0), afterDeadline(m))
	require.NoError(t, err)

	require.Equal(t, int64(250*usdc), ComputePayout(m, yes).Amount)
}

func TestPotentialWinnings(t *testing.T) {
	m := newMarket(true)
	yes := &Position{User: alice}
	no := &Position{User: bob}

	require.Zero(t, PotentialWinnings(m, yes))
	require.Zero(t, PotentialWinnings(m, nil))

	bet(t, m, yes, SideYes, 100*usdc)
	require.Equal(t, int64(100*usdc), PotentialWinnings(m, yes))

	bet(t, m, no, SideNo, 150*usdc)
	require.Equal(t, int64(248_500_000), PotentialWinnings(m, yes))
	require.Equal(t, int64(150*usdc+99*usdc), PotentialWinnings(m, no))
}

func TestCalculateOdds(t *testing.T) {
	tests := []struct {
		name            string
		yesPool, noPool int64
		wantYes, wantNo int
	}{
		{"empty", 0, 0, 50, 50},
		{"inverse of own share", 100, 300, 75, 25},
		{"balanced", 200, 200, 50, 50},
		{"only yes", 100, 0, 0, 100},
		{"only no", 0, 100, 100, 0},
		{"rounds half up", 1, 1, 50, 50},
		{"rounds to nearest", 2, 1, 33, 67},
		{"thirds other way", 1, 2, 67, 33},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			yes, no := CalculateOdds(tt.yesPool, tt.noPool)
			require.Equal(t, tt.wantYes, yes)
			require.Equal(t, tt.wantNo, no)
			require.Equal(t, 100, yes+no)
		})
	}
}

func TestLedger_OwnerOnlyWithdrawals(t *testing.T) {
	owner := common.HexToAddress("0x0000000000000000000000000000000000000001")
	l := &Ledger{Owner: owner}
	l.CreditFees(1_500_000)
	l.CreditFees(-5)
	l.CreditForfeited(100 * usdc)

	_, err := l.WithdrawFees(alice)
	require.ErrorIs(t, err, ErrUnauthorized)
	_, err = l.WithdrawForfeited(alice)
	require.ErrorIs(t, err, ErrUnauthorized)
	require.Equal(t, int64(1_500_000), l.FeeBalance)

	amount, err := l.WithdrawFees(owner)
	require.NoError(t, err)
	require.Equal(t, int64(1_500_000), amount)
	require.Zero(t, l.FeeBalance)

	amount, err = l.WithdrawForfeited(owner)
	require.NoError(t, err)
	require.Equal(t, int64(100*usdc), amount)
	require.Zero(t, l.ForfeitedBalance)

	amount, err = l.WithdrawFees(owner)
	require.NoError(t, err)
	require.Zero(t, amount)
}

func TestLedger_NoOwnerRejectsEveryone(t *testing.T) {
	l := &Ledger{}
	require.ErrorIs(t, l.Authorize(common.Address{}), ErrUnauthorized)
}

func TestCheckQuote(t *testing.T) {
	deadline := t0
	fresh := func(at time.Time) *Quote {
		q := &Quote{Asset: "BTC", UpdatedAt: at}
		q.Price.Set(apd.New(130000, 0))
		return q
	}

	tests := []struct {
		name  string
		quote *Quote
		now   time.Time
		want  error
	}{
		{"at deadline", fresh(deadline), deadline.Add(time.Minute), nil},
		{"shortly before deadline", fresh(deadline.Add(-4 * time.Minute)), deadline.Add(time.Minute), nil},
		{"well after deadline but fresh", fresh(deadline.Add(time.Hour)), deadline.Add(time.Hour + time.Minute), nil},
		{"too early", fresh(deadline.Add(-6 * time.Minute)), deadline, ErrNoPriceData},
		{"stale at resolution", fresh(deadline), deadline.Add(10 * time.Minute), ErrNoPriceData},
		{"missing", nil, deadline, ErrNoPriceData},
		{"zero time", &Quote{Asset: "BTC"}, deadline, ErrNoPriceData},
		{"non-positive price", &Quote{Asset: "BTC", UpdatedAt: deadline}, deadline, ErrInvalidResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckQuote(tt.quote, deadline, tt.now, DefaultPriceTolerance)
			if tt.want == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestFormatUSDC(t *testing.T) {
	tests := map[int64]string{
		0:           "0.00 USDC",
		1_000_000:   "1.00 USDC",
		248_500_000: "248.50 USDC",
		1_999_999:   "1.99 USDC",
		-1_500_000:  "-1.50 USDC",
	}
	for in, want := range tests {
		require.Equal(t, want, FormatUSDC(in), in)
	}
}
