package chanstate

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"math/big"

	"golang.org/x/crypto/ed25519"

	"github.com/spilman/hub/hubutil"
)

// Pure transition functions.  Given a prior state and typed args they
// deterministically compute the next unsigned state, or error if the
// transition would create, destroy or overdraw money.  Nothing in here
// touches storage or the clock.

// VerifySig checks sigHex over msg against the hex-encoded ed25519 public
// key that doubles as the party's address.
func VerifySig(addr string, msg []byte, sigHex string) error {
	pub, err := hex.DecodeString(addr)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return fmt.Errorf("bad signer address %q", addr)
	}
	sig, err := hex.DecodeString(sigHex)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return fmt.Errorf("bad signature encoding")
	}
	if !ed25519.Verify(ed25519.PublicKey(pub), msg, sig) {
		return fmt.Errorf("signature by %s does not verify", addr)
	}
	return nil
}

// AssertChannelSigner verifies the user signature carried on the state.
func AssertChannelSigner(state ChannelState) error {
	if state.SigUser == "" {
		return fmt.Errorf("state at txCount %d has no user signature", state.TxCountGlobal)
	}
	return VerifySig(state.User, state.Bytes(), state.SigUser)
}

// AssertThreadSigner verifies the sender signature on a thread state.
func AssertThreadSigner(ts ThreadState) error {
	if ts.SigA == "" {
		return fmt.Errorf("thread %s->%s has no sender signature", ts.Sender, ts.Receiver)
	}
	return VerifySig(ts.Sender, ts.Bytes(), ts.SigA)
}

// DepositRequestBytes is the message a user signs when asking to deposit.
func DepositRequestBytes(user string, amountWei, amountToken *big.Int) []byte {
	var buf bytes.Buffer
	buf.WriteString("deposit:")
	buf.WriteString(user)
	buf.Write(hubutil.BigtB32(amountWei))
	buf.Write(hubutil.BigtB32(amountToken))
	return buf.Bytes()
}

// AssertDepositRequestSigner verifies the user signed exactly the amounts
// they're asking to deposit.
func AssertDepositRequestSigner(user string, amountWei, amountToken *big.Int, sigUser string) error {
	return VerifySig(user, DepositRequestBytes(user, amountWei, amountToken), sigUser)
}

func sub(dst *big.Int, amt *big.Int, what string) error {
	if dst.Cmp(amt) < 0 {
		return fmt.Errorf("%s balance %s cannot cover %s", what, dst, amt)
	}
	dst.Sub(dst, amt)
	return nil
}

// GenerateChannelPayment moves AmountWei/AmountToken between the two
// parties.  Conservation: totals are untouched.
func GenerateChannelPayment(prev ChannelState, args PaymentArgs) (ChannelState, error) {
	next := prev.Clone()
	next.SigHub, next.SigUser = "", ""

	wei := hubutil.OrZero(args.AmountWei)
	token := hubutil.OrZero(args.AmountToken)

	switch args.Recipient {
	case "hub":
		if err := sub(next.BalanceWeiUser, wei, "user wei"); err != nil {
			return next, err
		}
		if err := sub(next.BalanceTokenUser, token, "user token"); err != nil {
			return next, err
		}
		next.BalanceWeiHub.Add(next.BalanceWeiHub, wei)
		next.BalanceTokenHub.Add(next.BalanceTokenHub, token)
	case "user":
		if err := sub(next.BalanceWeiHub, wei, "hub wei"); err != nil {
			return next, err
		}
		if err := sub(next.BalanceTokenHub, token, "hub token"); err != nil {
			return next, err
		}
		next.BalanceWeiUser.Add(next.BalanceWeiUser, wei)
		next.BalanceTokenUser.Add(next.BalanceTokenUser, token)
	default:
		return next, fmt.Errorf("payment recipient must be hub or user, got %q", args.Recipient)
	}

	next.TxCountGlobal++
	return next, nil
}

// GenerateProposePendingDeposit stages on-chain deposits.  Balances don't
// move until the chain confirms; only the pending fields and the timeout
// are set.
func GenerateProposePendingDeposit(prev ChannelState, args DepositArgs) (ChannelState, error) {
	if prev.HasPendingOps() {
		return prev, fmt.Errorf("cannot propose deposit over existing pending ops (txCount %d)", prev.TxCountGlobal)
	}
	next := prev.Clone()
	next.SigHub, next.SigUser = "", ""

	next.PendingDepositWeiHub = hubutil.OrZero(args.DepositWeiHub)
	next.PendingDepositWeiUser = hubutil.OrZero(args.DepositWeiUser)
	next.PendingDepositTokenHub = hubutil.OrZero(args.DepositTokenHub)
	next.PendingDepositTokenUser = hubutil.OrZero(args.DepositTokenUser)

	next.Timeout = args.Timeout
	next.TxCountGlobal++
	next.TxCountChain++
	return next, nil
}

// GenerateExchange swaps wei against tokens off-chain at args.ExchangeRate.
func GenerateExchange(prev ChannelState, args ExchangeArgs) (ChannelState, error) {
	if args.Seller != "user" {
		return prev, fmt.Errorf("hub cannot be the exchange seller")
	}
	rate, err := hubutil.ParseRate(args.ExchangeRate)
	if err != nil {
		return prev, err
	}
	next := prev.Clone()
	next.SigHub, next.SigUser = "", ""

	weiToSell := hubutil.OrZero(args.WeiToSell)
	tokensToSell := hubutil.OrZero(args.TokensToSell)

	if weiToSell.Sign() > 0 {
		tokensOut := hubutil.MulRatFloor(weiToSell, rate)
		if err := sub(next.BalanceWeiUser, weiToSell, "user wei"); err != nil {
			return next, err
		}
		if err := sub(next.BalanceTokenHub, tokensOut, "hub token"); err != nil {
			return next, err
		}
		next.BalanceWeiHub.Add(next.BalanceWeiHub, weiToSell)
		next.BalanceTokenUser.Add(next.BalanceTokenUser, tokensOut)
	}
	if tokensToSell.Sign() > 0 {
		weiOut := hubutil.DivRatFloor(tokensToSell, rate)
		if err := sub(next.BalanceTokenUser, tokensToSell, "user token"); err != nil {
			return next, err
		}
		if err := sub(next.BalanceWeiHub, weiOut, "hub wei"); err != nil {
			return next, err
		}
		next.BalanceTokenHub.Add(next.BalanceTokenHub, tokensToSell)
		next.BalanceWeiUser.Add(next.BalanceWeiUser, weiOut)
	}

	next.TxCountGlobal++
	return next, nil
}

// GenerateProposePendingWithdrawal drives the channel toward the target
// balances in args.  The user's remaining wei draw and the wei owed for
// sold tokens leave as pending withdrawals; hub-side shortfalls arrive as
// pending deposits.  Balances the chain hasn't touched move immediately.
func GenerateProposePendingWithdrawal(prev ChannelState, args WithdrawalArgs) (ChannelState, error) {
	if prev.HasPendingOps() {
		return prev, fmt.Errorf("cannot propose withdrawal over existing pending ops (txCount %d)", prev.TxCountGlobal)
	}
	if args.Seller != "user" {
		return prev, fmt.Errorf("hub cannot be the withdrawal seller")
	}
	rate, err := hubutil.ParseRate(args.ExchangeRate)
	if err != nil {
		return prev, err
	}

	next := prev.Clone()
	next.SigHub, next.SigUser = "", ""

	tokensToSell := hubutil.OrZero(args.TokensToSell)
	targetWeiUser := hubutil.OrZero(args.TargetWeiUser)
	targetTokenUser := hubutil.OrZero(args.TargetTokenUser)
	targetWeiHub := hubutil.OrZero(args.TargetWeiHub)
	targetTokenHub := hubutil.OrZero(args.TargetTokenHub)

	// user wei: everything above the target leaves on chain
	userWeiDraw := new(big.Int).Sub(prev.BalanceWeiUser, targetWeiUser)
	if userWeiDraw.Sign() < 0 {
		return next, fmt.Errorf("target user wei %s above balance %s", targetWeiUser, prev.BalanceWeiUser)
	}

	// user tokens: the gap to the target must be covered by the sale
	userTokenDraw := new(big.Int).Sub(prev.BalanceTokenUser, targetTokenUser)
	if userTokenDraw.Sign() < 0 {
		return next, fmt.Errorf("target user token %s above balance %s", targetTokenUser, prev.BalanceTokenUser)
	}
	if userTokenDraw.Cmp(tokensToSell) < 0 {
		return next, fmt.Errorf("tokensToSell %s exceeds user token draw %s", tokensToSell, userTokenDraw)
	}
	// tokens drawn beyond the sale would be a raw token withdrawal
	next.PendingWithdrawalTokenUser = new(big.Int).Sub(userTokenDraw, tokensToSell)
	next.BalanceTokenUser = new(big.Int).Set(targetTokenUser)

	// the sale: tokens go to the hub now, wei owed goes out on chain
	weiOwed := hubutil.DivRatFloor(tokensToSell, rate)
	hubToken := new(big.Int).Add(prev.BalanceTokenHub, tokensToSell)

	// hub wei covers the owed wei where it can; the rest passes through
	// the user's pending deposit and straight back out
	weiCover := hubutil.BigMin(prev.BalanceWeiHub, weiOwed)
	shortfall := new(big.Int).Sub(weiOwed, weiCover)
	hubWei := new(big.Int).Sub(prev.BalanceWeiHub, weiCover)
	next.PendingDepositWeiUser = shortfall

	next.PendingWithdrawalWeiUser = new(big.Int).Add(userWeiDraw, weiOwed)
	next.BalanceWeiUser = new(big.Int).Set(targetWeiUser)

	// hub wei toward its target
	if hubWei.Cmp(targetWeiHub) >= 0 {
		next.PendingWithdrawalWeiHub = new(big.Int).Sub(hubWei, targetWeiHub)
		next.BalanceWeiHub = new(big.Int).Set(targetWeiHub)
	} else {
		next.PendingDepositWeiHub = new(big.Int).Sub(targetWeiHub, hubWei)
		next.BalanceWeiHub = hubWei
	}

	// hub token toward its target
	if hubToken.Cmp(targetTokenHub) >= 0 {
		next.PendingWithdrawalTokenHub = new(big.Int).Sub(hubToken, targetTokenHub)
		next.BalanceTokenHub = new(big.Int).Set(targetTokenHub)
	} else {
		next.PendingDepositTokenHub = new(big.Int).Sub(targetTokenHub, hubToken)
		next.BalanceTokenHub = hubToken
	}

	next.Timeout = args.Timeout
	next.TxCountGlobal++
	next.TxCountChain++
	return next, nil
}

// GenerateInvalidation rolls forward from the last on-chain-confirmed
// state, superseding everything up to LastInvalidTxCount.  Balances come
// straight from lastValid; the pending fields and timeout are wiped.
func GenerateInvalidation(lastValid ChannelState, args InvalidationArgs) (ChannelState, error) {
	if args.PreviousValidTxCount != lastValid.TxCountGlobal {
		return lastValid, fmt.Errorf(
			"invalidation previousValidTxCount %d does not match last valid state %d",
			args.PreviousValidTxCount, lastValid.TxCountGlobal)
	}
	if args.LastInvalidTxCount <= lastValid.TxCountGlobal {
		return lastValid, fmt.Errorf(
			"invalidation lastInvalidTxCount %d not past last valid state %d",
			args.LastInvalidTxCount, lastValid.TxCountGlobal)
	}

	next := lastValid.Clone()
	next.SigHub, next.SigUser = "", ""

	z := big.NewInt(0)
	next.PendingDepositWeiHub = new(big.Int).Set(z)
	next.PendingDepositWeiUser = new(big.Int).Set(z)
	next.PendingDepositTokenHub = new(big.Int).Set(z)
	next.PendingDepositTokenUser = new(big.Int).Set(z)
	next.PendingWithdrawalWeiHub = new(big.Int).Set(z)
	next.PendingWithdrawalWeiUser = new(big.Int).Set(z)
	next.PendingWithdrawalTokenHub = new(big.Int).Set(z)
	next.PendingWithdrawalTokenUser = new(big.Int).Set(z)

	next.Timeout = 0
	next.TxCountGlobal = args.LastInvalidTxCount + 1
	return next, nil
}

// GenerateFromRequest recomputes the unsigned state for a staged proposal
// and checks it lands on the expected sequence number.
func GenerateFromRequest(prev ChannelState, reason UpdateReason, args UpdateArgs, txCount uint64) (ChannelState, error) {
	var (
		next ChannelState
		err  error
	)
	switch reason {
	case RsnPayment:
		next, err = GenerateChannelPayment(prev, args.(PaymentArgs))
	case RsnProposePendingDeposit:
		next, err = GenerateProposePendingDeposit(prev, args.(DepositArgs))
	case RsnProposePendingWithdrawal:
		next, err = GenerateProposePendingWithdrawal(prev, args.(WithdrawalArgs))
	case RsnExchange:
		next, err = GenerateExchange(prev, args.(ExchangeArgs))
	default:
		return prev, fmt.Errorf("cannot generate state for reason %s", reason)
	}
	if err != nil {
		return next, err
	}
	if next.TxCountGlobal != txCount {
		return next, fmt.Errorf("generated state at txCount %d, wanted %d", next.TxCountGlobal, txCount)
	}
	return next, nil
}
