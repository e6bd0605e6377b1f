package chanstate

import (
	"bytes"
	"math/big"

	"github.com/spilman/hub/hubutil"
)

// ThreadState is a unidirectional sub-ledger from Sender to Receiver.
// Value only ever moves sender -> receiver; the thread is opened and
// closed via channel-level updates in both parties' channels.
type ThreadState struct {
	ContractAddress string `json:"contractaddress"`
	Sender          string `json:"sender"`
	Receiver        string `json:"receiver"`
	ThreadID        uint64 `json:"threadid"`

	BalanceWeiSender     *big.Int `json:"balanceweisender"`
	BalanceWeiReceiver   *big.Int `json:"balanceweireceiver"`
	BalanceTokenSender   *big.Int `json:"balancetokensender"`
	BalanceTokenReceiver *big.Int `json:"balancetokenreceiver"`

	TxCount uint64 `json:"txcount"`

	// SigA is the sender's signature; threads are single-signed.
	SigA string `json:"siga"`
}

// Bytes is the canonical signing encoding of the thread state.
func (t *ThreadState) Bytes() []byte {
	var buf bytes.Buffer
	buf.WriteString(t.ContractAddress)
	buf.WriteString(t.Sender)
	buf.WriteString(t.Receiver)
	buf.Write(hubutil.U64tB(t.ThreadID))
	for _, a := range []*big.Int{
		t.BalanceWeiSender, t.BalanceWeiReceiver,
		t.BalanceTokenSender, t.BalanceTokenReceiver,
	} {
		buf.Write(hubutil.BigtB32(a))
	}
	buf.Write(hubutil.U64tB(t.TxCount))
	return buf.Bytes()
}
