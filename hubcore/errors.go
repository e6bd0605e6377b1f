package hubcore

import "errors"

// The hard failure taxonomy.  Hard errors abort the enclosing apply and
// surface to the caller; soft conditions (debounces, below-threshold
// withdrawals, stale cache misses) come back as nil results instead.
var (
	ErrChannelNotOpen       = errors.New("channel is not open")
	ErrInvalidSignature     = errors.New("signature does not verify")
	ErrStaleExchangeRate    = errors.New("exchange rate snapshot is more than 24 hours old")
	ErrRateDeviation        = errors.New("proposed exchange rate too far from current rate")
	ErrTxCountMismatch      = errors.New("update txCount does not follow the current state")
	ErrPendingOpsExist      = errors.New("channel has pending on-chain operations")
	ErrPendingRequestExists = errors.New("an unsigned request is already staged for this user")
	ErrUnreachableState     = errors.New("hub-originated update reason arrived from a client")
)
