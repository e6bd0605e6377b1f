package chanstate

import (
	"encoding/json"
	"fmt"
	"math/big"
)

// UpdateReason is the closed set of channel update kinds.  The apply
// machinery switches over it exhaustively; anything it doesn't list can't
// be represented at all.
type UpdateReason uint8

const (
	RsnPayment UpdateReason = iota
	RsnProposePendingDeposit
	RsnProposePendingWithdrawal
	RsnExchange
	RsnInvalidation
	RsnOpenThread
	RsnCloseThread
	RsnConfirmPending
)

var reasonNames = map[UpdateReason]string{
	RsnPayment:                  "Payment",
	RsnProposePendingDeposit:    "ProposePendingDeposit",
	RsnProposePendingWithdrawal: "ProposePendingWithdrawal",
	RsnExchange:                 "Exchange",
	RsnInvalidation:             "Invalidation",
	RsnOpenThread:               "OpenThread",
	RsnCloseThread:              "CloseThread",
	RsnConfirmPending:           "ConfirmPending",
}

func (r UpdateReason) String() string {
	if n, ok := reasonNames[r]; ok {
		return n
	}
	return fmt.Sprintf("Reason(%d)", uint8(r))
}

// MarshalJSON stores reasons by name so db rows stay readable.
func (r UpdateReason) MarshalJSON() ([]byte, error) {
	n, ok := reasonNames[r]
	if !ok {
		return nil, fmt.Errorf("unknown update reason %d", uint8(r))
	}
	return json.Marshal(n)
}

func (r *UpdateReason) UnmarshalJSON(b []byte) error {
	var n string
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	for k, v := range reasonNames {
		if v == n {
			*r = k
			return nil
		}
	}
	return fmt.Errorf("unknown update reason %q", n)
}

// UpdateArgs is the payload that goes with an UpdateReason.
type UpdateArgs interface {
	isUpdateArgs()
}

// PaymentArgs moves balance inside the channel.  Recipient says which
// party receives: "hub" or "user".
type PaymentArgs struct {
	AmountWei   *big.Int `json:"amountwei"`
	AmountToken *big.Int `json:"amounttoken"`
	Recipient   string   `json:"recipient"`
}

// DepositArgs proposes on-chain deposits for one or both parties.
type DepositArgs struct {
	DepositWeiHub    *big.Int `json:"depositweihub"`
	DepositWeiUser   *big.Int `json:"depositweiuser"`
	DepositTokenHub  *big.Int `json:"deposittokenhub"`
	DepositTokenUser *big.Int `json:"deposittokenuser"`
	Timeout          int64    `json:"timeout"`
	SigUser          string   `json:"siguser,omitempty"`
}

// WithdrawalArgs drives the channel toward the listed target balances,
// selling the user's tokens back to the hub at ExchangeRate on the way.
type WithdrawalArgs struct {
	Seller       string   `json:"seller"` // only "user" supported
	ExchangeRate string   `json:"exchangerate"`
	TokensToSell *big.Int `json:"tokenstosell"`
	WeiToSell    *big.Int `json:"weitosell"`

	Recipient string `json:"recipient"`

	TargetWeiUser   *big.Int `json:"targetweiuser"`
	TargetTokenUser *big.Int `json:"targettokenuser"`
	TargetWeiHub    *big.Int `json:"targetweihub"`
	TargetTokenHub  *big.Int `json:"targettokenhub"`

	AdditionalWeiHubToUser   *big.Int `json:"additionalweihubtouser"`
	AdditionalTokenHubToUser *big.Int `json:"additionaltokenhubtouser"`

	Timeout int64 `json:"timeout"`
}

// ExchangeArgs swaps wei against tokens entirely off-chain.
type ExchangeArgs struct {
	Seller       string   `json:"seller"` // only "user" supported
	ExchangeRate string   `json:"exchangerate"`
	WeiToSell    *big.Int `json:"weitosell"`
	TokensToSell *big.Int `json:"tokenstosell"`
}

// InvalidationArgs rolls the channel back past a failed on-chain leg.
type InvalidationArgs struct {
	LastInvalidTxCount   uint64 `json:"lastinvalidtxcount"`
	PreviousValidTxCount uint64 `json:"previousvalidtxcount"`
	Reason               string `json:"reason"`
	Message              string `json:"message"`
}

// ConfirmPendingArgs records the on-chain transaction that confirmed a
// pending field set.  Only ever hub-originated.
type ConfirmPendingArgs struct {
	TransactionHash string `json:"transactionhash"`
}

func (PaymentArgs) isUpdateArgs()        {}
func (DepositArgs) isUpdateArgs()        {}
func (WithdrawalArgs) isUpdateArgs()     {}
func (ExchangeArgs) isUpdateArgs()       {}
func (InvalidationArgs) isUpdateArgs()   {}
func (ConfirmPendingArgs) isUpdateArgs() {}
func (ThreadState) isUpdateArgs()        {}

// DecodeArgs turns stored raw args back into the typed payload for the
// given reason.
func DecodeArgs(reason UpdateReason, raw []byte) (UpdateArgs, error) {
	var (
		args UpdateArgs
		err  error
	)
	switch reason {
	case RsnPayment:
		var a PaymentArgs
		err = json.Unmarshal(raw, &a)
		args = a
	case RsnProposePendingDeposit:
		var a DepositArgs
		err = json.Unmarshal(raw, &a)
		args = a
	case RsnProposePendingWithdrawal:
		var a WithdrawalArgs
		err = json.Unmarshal(raw, &a)
		args = a
	case RsnExchange:
		var a ExchangeArgs
		err = json.Unmarshal(raw, &a)
		args = a
	case RsnInvalidation:
		var a InvalidationArgs
		err = json.Unmarshal(raw, &a)
		args = a
	case RsnOpenThread, RsnCloseThread:
		var a ThreadState
		err = json.Unmarshal(raw, &a)
		args = a
	case RsnConfirmPending:
		var a ConfirmPendingArgs
		err = json.Unmarshal(raw, &a)
		args = a
	default:
		return nil, fmt.Errorf("cannot decode args for reason %s", reason)
	}
	return args, err
}
