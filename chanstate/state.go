package chanstate

import (
	"bytes"
	"math/big"

	"github.com/getlantern/deepcopy"

	"github.com/spilman/hub/hubutil"
)

// ChannelStatus is the lifecycle state of a channel row.
type ChannelStatus uint8

const (
	// CStatusOpen is the only status that admits new updates.
	CStatusOpen ChannelStatus = 0

	// CStatusDispute means the channel is in the on-chain exit game and
	// the engine won't touch it.
	CStatusDispute ChannelStatus = 1

	// CStatusClosed means the channel has settled and is done.
	CStatusClosed ChannelStatus = 2
)

func (s ChannelStatus) String() string {
	switch s {
	case CStatusOpen:
		return "CS_OPEN"
	case CStatusDispute:
		return "CS_DISPUTE"
	case CStatusClosed:
		return "CS_CLOSED"
	}
	return "CS_UNKNOWN"
}

// ChannelState is the authoritative bilateral ledger snapshot for one user.
// All amounts are base units (wei for the coin, bei for the token) and are
// never negative.  The pending fields are nonzero only while an on-chain
// operation is in flight.
type ChannelState struct {
	User      string `json:"user"`
	Recipient string `json:"recipient"`

	BalanceWeiHub    *big.Int `json:"balanceweihub"`
	BalanceWeiUser   *big.Int `json:"balanceweiuser"`
	BalanceTokenHub  *big.Int `json:"balancetokenhub"`
	BalanceTokenUser *big.Int `json:"balancetokenuser"`

	PendingDepositWeiHub      *big.Int `json:"pendingdepositweihub"`
	PendingDepositWeiUser     *big.Int `json:"pendingdepositweiuser"`
	PendingDepositTokenHub    *big.Int `json:"pendingdeposittokenhub"`
	PendingDepositTokenUser   *big.Int `json:"pendingdeposittokenuser"`
	PendingWithdrawalWeiHub   *big.Int `json:"pendingwithdrawalweihub"`
	PendingWithdrawalWeiUser  *big.Int `json:"pendingwithdrawalweiuser"`
	PendingWithdrawalTokenHub *big.Int `json:"pendingwithdrawaltokenhub"`
	PendingWithdrawalTokenUser *big.Int `json:"pendingwithdrawaltokenuser"`

	TxCountGlobal uint64 `json:"txcountglobal"`
	TxCountChain  uint64 `json:"txcountchain"`

	ThreadRoot  string `json:"threadroot"`
	ThreadCount uint64 `json:"threadcount"`

	// Timeout is UNIX seconds, nonzero only while an update's on-chain
	// leg is outstanding.  Compared against chain block time, not the
	// wall clock.
	Timeout int64 `json:"timeout"`

	SigHub  string `json:"sighub"`
	SigUser string `json:"siguser"`
}

// NewEmptyChannelState is the synthesized initial state for a user who has
// no channel row yet.
func NewEmptyChannelState(user string) ChannelState {
	z := func() *big.Int { return big.NewInt(0) }
	return ChannelState{
		User:      user,
		Recipient: user,

		BalanceWeiHub:    z(),
		BalanceWeiUser:   z(),
		BalanceTokenHub:  z(),
		BalanceTokenUser: z(),

		PendingDepositWeiHub:       z(),
		PendingDepositWeiUser:      z(),
		PendingDepositTokenHub:     z(),
		PendingDepositTokenUser:    z(),
		PendingWithdrawalWeiHub:    z(),
		PendingWithdrawalWeiUser:   z(),
		PendingWithdrawalTokenHub:  z(),
		PendingWithdrawalTokenUser: z(),

		ThreadRoot: EmptyThreadRoot,
	}
}

// EmptyThreadRoot is the thread-set commitment of a channel with no open
// threads.
const EmptyThreadRoot = "0000000000000000000000000000000000000000000000000000000000000000"

// HasPendingOps says whether any on-chain operation is still in flight.
// No new deposit, withdrawal or exchange may be proposed while it's true.
func (s *ChannelState) HasPendingOps() bool {
	for _, p := range s.pendingFields() {
		if p.Sign() != 0 {
			return true
		}
	}
	return false
}

// PendingFields returns the eight pending amounts in canonical order.
func (s *ChannelState) PendingFields() []*big.Int {
	return s.pendingFields()
}

func (s *ChannelState) pendingFields() []*big.Int {
	return []*big.Int{
		s.PendingDepositWeiHub,
		s.PendingDepositWeiUser,
		s.PendingDepositTokenHub,
		s.PendingDepositTokenUser,
		s.PendingWithdrawalWeiHub,
		s.PendingWithdrawalWeiUser,
		s.PendingWithdrawalTokenHub,
		s.PendingWithdrawalTokenUser,
	}
}

// Clone deep-copies the state so generators never alias ledger-owned values.
func (s ChannelState) Clone() ChannelState {
	var out ChannelState
	err := deepcopy.Copy(&out, &s)
	if err != nil {
		// only fires on a marshal bug in the struct itself
		panic(err)
	}
	return out
}

// Bytes is the canonical signing encoding: every field except the two
// signatures, fixed width, fixed order.  Both parties sign exactly this.
func (s *ChannelState) Bytes() []byte {
	var buf bytes.Buffer
	buf.WriteString(s.User)
	buf.WriteString(s.Recipient)

	for _, a := range []*big.Int{
		s.BalanceWeiHub, s.BalanceWeiUser,
		s.BalanceTokenHub, s.BalanceTokenUser,
	} {
		buf.Write(hubutil.BigtB32(a))
	}
	for _, a := range s.pendingFields() {
		buf.Write(hubutil.BigtB32(a))
	}

	buf.Write(hubutil.U64tB(s.TxCountGlobal))
	buf.Write(hubutil.U64tB(s.TxCountChain))
	buf.WriteString(s.ThreadRoot)
	buf.Write(hubutil.U64tB(s.ThreadCount))
	buf.Write(hubutil.I64tB(s.Timeout))
	return buf.Bytes()
}

// WeiTotal is hub + user wei balance plus in-flight deposits minus
// in-flight withdrawals; payments must keep it constant.
func (s *ChannelState) WeiTotal() *big.Int {
	t := new(big.Int).Add(s.BalanceWeiHub, s.BalanceWeiUser)
	t.Add(t, s.PendingDepositWeiHub)
	t.Add(t, s.PendingDepositWeiUser)
	t.Sub(t, s.PendingWithdrawalWeiHub)
	t.Sub(t, s.PendingWithdrawalWeiUser)
	return t
}

// TokenTotal is WeiTotal for the token side.
func (s *ChannelState) TokenTotal() *big.Int {
	t := new(big.Int).Add(s.BalanceTokenHub, s.BalanceTokenUser)
	t.Add(t, s.PendingDepositTokenHub)
	t.Add(t, s.PendingDepositTokenUser)
	t.Sub(t, s.PendingWithdrawalTokenHub)
	t.Sub(t, s.PendingWithdrawalTokenUser)
	return t
}
