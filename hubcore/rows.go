package hubcore

import (
	"math/big"
	"time"

	"github.com/spilman/hub/chanstate"
)

// ChannelRow is the current aggregate view of one user's channel.
type ChannelRow struct {
	User   string                 `json:"user"`
	Status chanstate.ChannelStatus `json:"status"`
	State  chanstate.ChannelState  `json:"state"`
}

// ChannelUpdateRow is one persisted, append-only ledger entry.
type ChannelUpdateRow struct {
	ID        int64                  `json:"id"`
	User      string                 `json:"user"`
	Reason    chanstate.UpdateReason `json:"reason"`
	Args      chanstate.UpdateArgs   `json:"-"`
	RawArgs   []byte                 `json:"args"`
	State     chanstate.ChannelState `json:"state"`
	CreatedOn time.Time              `json:"createdon"`

	// Invalid is set when a later Invalidation supersedes this row.
	Invalid bool `json:"invalid"`

	// OnchainTxID links the row to the settlement transaction that was
	// dispatched with it, zero if none.
	OnchainTxID int64 `json:"onchaintxid"`
}

// ThreadUpdateRow is one persisted thread ledger entry.
type ThreadUpdateRow struct {
	ID        int64                 `json:"id"`
	Sender    string                `json:"sender"`
	Receiver  string                `json:"receiver"`
	Closed    bool                  `json:"closed"`
	State     chanstate.ThreadState `json:"state"`
	CreatedOn time.Time             `json:"createdon"`
}

// ExchangeRateSnapshot is the hub's view of the coin/token rate at one
// point in time.  Any calculation must refuse a snapshot older than the
// staleness window.
type ExchangeRateSnapshot struct {
	RateUSD     string    `json:"rateusd"`
	RetrievedAt time.Time `json:"retrievedat"`
}

// OptimisticPaymentStatus tracks a speculative payment through the
// reconciler.
type OptimisticPaymentStatus uint8

const (
	OpStatusNew OptimisticPaymentStatus = iota
	OpStatusRedeemed
	OpStatusCustodial
	OpStatusFailed
)

func (s OptimisticPaymentStatus) String() string {
	switch s {
	case OpStatusNew:
		return "OP_NEW"
	case OpStatusRedeemed:
		return "OP_REDEEMED"
	case OpStatusCustodial:
		return "OP_CUSTODIAL"
	case OpStatusFailed:
		return "OP_FAILED"
	}
	return "OP_UNKNOWN"
}

// OptimisticPaymentRow is a payment accepted before the recipient's
// channel had collateral to cover it.
type OptimisticPaymentRow struct {
	PaymentID       int64                   `json:"paymentid"`
	ChannelUpdateID int64                   `json:"channelupdateid"`
	Recipient       string                  `json:"recipient"`
	AmountWei       *big.Int                `json:"amountwei"`
	AmountToken     *big.Int                `json:"amounttoken"`
	Status          OptimisticPaymentStatus `json:"status"`
	RedemptionID    int64                   `json:"redemptionid"`
	CustodialID     int64                   `json:"custodialid"`
	CreatedOn       time.Time               `json:"createdon"`
}
