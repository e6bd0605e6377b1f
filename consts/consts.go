package consts

import (
	"math/big"
	"time"
)

// commonly used constants that can be used anywhere, without ambiguity
const (
	// ChannelTimeout is how long a proposed on-chain operation stays valid.
	// A pending state carries blocktime+ChannelTimeout and may only be
	// invalidated once the chain tip passes it.
	ChannelTimeout = int64(5 * 60) // seconds

	// PendingUpdateTTL is how long an unsigned hub proposal waits in the
	// staging cache for the user's countersignature.
	PendingUpdateTTL = 5 * time.Minute

	// CollateralDebounce keeps overlapping maintenance cycles from
	// re-proposing collateral while a fresh proposal is already staged.
	CollateralDebounce = 60 * time.Second

	// CustodialTimeout is how long an optimistic payment may wait for
	// channel collateral before it gets settled custodially.
	CustodialTimeout = 30 * time.Second

	// OptimisticPollInterval is the reconciler tick.
	OptimisticPollInterval = time.Second

	// RateMaxAge is the oldest exchange rate snapshot any calculation
	// will accept.
	RateMaxAge = 24 * time.Hour

	// RateMaxDeviationPct is how far (in percent) a client-proposed rate
	// may drift from the hub's current rate.
	RateMaxDeviationPct = 2

	// RecentTipperWindow is the lookback for counting tippers when
	// sizing collateral.
	RecentTipperWindow = 10 * time.Minute
)

var (
	// MinWithdrawalBei is the smallest pending amount worth putting on
	// chain.  A withdrawal whose resulting pending fields all fall below
	// this is dropped instead of staged.
	MinWithdrawalBei = bigPow10(13)

	// BeiPerToken is the token's base-unit precision, same scale as wei.
	BeiPerToken = bigPow10(18)
)

func bigPow10(n int64) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(n), nil)
}
