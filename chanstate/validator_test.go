package chanstate

import (
	"crypto/rand"
	"encoding/hex"
	"math/big"
	"testing"

	"golang.org/x/crypto/ed25519"
)

func testParty(t *testing.T) (string, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	return hex.EncodeToString(pub), priv
}

func signHex(priv ed25519.PrivateKey, msg []byte) string {
	return hex.EncodeToString(ed25519.Sign(priv, msg))
}

func fundedState(user string, hubWei, userWei, hubToken, userToken int64) ChannelState {
	st := NewEmptyChannelState(user)
	st.BalanceWeiHub = big.NewInt(hubWei)
	st.BalanceWeiUser = big.NewInt(userWei)
	st.BalanceTokenHub = big.NewInt(hubToken)
	st.BalanceTokenUser = big.NewInt(userToken)
	return st
}

func eq(t *testing.T, what string, got *big.Int, want int64) {
	t.Helper()
	if got.Cmp(big.NewInt(want)) != 0 {
		t.Fatalf("%s: got %s, want %d", what, got, want)
	}
}

func TestPaymentMovesAndConserves(t *testing.T) {
	prev := fundedState("alice", 10, 90, 20, 80)

	next, err := GenerateChannelPayment(prev, PaymentArgs{
		AmountWei: big.NewInt(30), AmountToken: big.NewInt(5), Recipient: "hub",
	})
	if err != nil {
		t.Fatal(err)
	}
	eq(t, "hub wei", next.BalanceWeiHub, 40)
	eq(t, "user wei", next.BalanceWeiUser, 60)
	eq(t, "hub token", next.BalanceTokenHub, 25)
	eq(t, "user token", next.BalanceTokenUser, 75)
	if next.TxCountGlobal != 1 || next.TxCountChain != 0 {
		t.Fatalf("txCounts %d/%d", next.TxCountGlobal, next.TxCountChain)
	}
	if prev.WeiTotal().Cmp(next.WeiTotal()) != 0 || prev.TokenTotal().Cmp(next.TokenTotal()) != 0 {
		t.Fatal("payment changed the channel totals")
	}
	// the generator must not alias the previous state's values
	eq(t, "prev user wei untouched", prev.BalanceWeiUser, 90)
}

func TestPaymentOverdraw(t *testing.T) {
	prev := fundedState("alice", 0, 10, 0, 0)
	if _, err := GenerateChannelPayment(prev, PaymentArgs{
		AmountWei: big.NewInt(11), Recipient: "hub",
	}); err == nil {
		t.Fatal("overdraw must be rejected")
	}
	if _, err := GenerateChannelPayment(prev, PaymentArgs{
		AmountWei: big.NewInt(1), Recipient: "nobody",
	}); err == nil {
		t.Fatal("unknown recipient must be rejected")
	}
}

func TestExchangeBothDirections(t *testing.T) {
	prev := fundedState("alice", 100, 100, 100, 100)

	// 10 wei at rate 2.5 buys floor(25) tokens
	next, err := GenerateExchange(prev, ExchangeArgs{
		Seller: "user", ExchangeRate: "2.5", WeiToSell: big.NewInt(10),
	})
	if err != nil {
		t.Fatal(err)
	}
	eq(t, "user token", next.BalanceTokenUser, 125)
	eq(t, "hub token", next.BalanceTokenHub, 75)
	eq(t, "user wei", next.BalanceWeiUser, 90)
	eq(t, "hub wei", next.BalanceWeiHub, 110)

	// selling 7 tokens at rate 2.5 yields floor(7/2.5) = 2 wei
	next, err = GenerateExchange(prev, ExchangeArgs{
		Seller: "user", ExchangeRate: "2.5", TokensToSell: big.NewInt(7),
	})
	if err != nil {
		t.Fatal(err)
	}
	eq(t, "user wei", next.BalanceWeiUser, 102)
	eq(t, "hub token", next.BalanceTokenHub, 107)

	if _, err := GenerateExchange(prev, ExchangeArgs{
		Seller: "hub", ExchangeRate: "1", WeiToSell: big.NewInt(1),
	}); err == nil {
		t.Fatal("hub-side exchange must be rejected")
	}
}

func TestWithdrawalShortfallPassesThrough(t *testing.T) {
	// hub holds 3 wei but owes 10 for the token sale: 7 arrive as a
	// pending user deposit and go straight back out
	prev := fundedState("alice", 3, 50, 0, 10)

	next, err := GenerateProposePendingWithdrawal(prev, WithdrawalArgs{
		Seller:       "user",
		ExchangeRate: "1",
		TokensToSell: big.NewInt(10),
		Timeout:      1300,
	})
	if err != nil {
		t.Fatal(err)
	}
	eq(t, "pending user wei deposit", next.PendingDepositWeiUser, 7)
	// full user balance (50) plus the 10 wei owed leave on chain
	eq(t, "pending user wei withdrawal", next.PendingWithdrawalWeiUser, 60)
	eq(t, "user wei", next.BalanceWeiUser, 0)
	eq(t, "user token", next.BalanceTokenUser, 0)
	eq(t, "hub token", next.BalanceTokenHub, 0)
	eq(t, "pending hub token withdrawal", next.PendingWithdrawalTokenHub, 10)
	eq(t, "hub wei", next.BalanceWeiHub, 0)
	if next.Timeout != 1300 {
		t.Fatalf("timeout %d", next.Timeout)
	}
	if next.TxCountGlobal != 1 || next.TxCountChain != 1 {
		t.Fatalf("txCounts %d/%d, want 1/1", next.TxCountGlobal, next.TxCountChain)
	}
	if !next.HasPendingOps() {
		t.Fatal("withdrawal proposal must flag pending ops")
	}

	// a second proposal over the pending fields is rejected
	if _, err := GenerateProposePendingWithdrawal(next, WithdrawalArgs{
		Seller: "user", ExchangeRate: "1",
	}); err == nil {
		t.Fatal("stacked proposals must be rejected")
	}
}

func TestWithdrawalTargetsAboveBalance(t *testing.T) {
	prev := fundedState("alice", 0, 5, 0, 5)
	if _, err := GenerateProposePendingWithdrawal(prev, WithdrawalArgs{
		Seller: "user", ExchangeRate: "1", TargetWeiUser: big.NewInt(6),
	}); err == nil {
		t.Fatal("wei target above balance must be rejected")
	}
	if _, err := GenerateProposePendingWithdrawal(prev, WithdrawalArgs{
		Seller: "user", ExchangeRate: "1", TokensToSell: big.NewInt(6),
	}); err == nil {
		t.Fatal("selling more tokens than held must be rejected")
	}
}

func TestInvalidationRollsForward(t *testing.T) {
	last := fundedState("alice", 10, 90, 0, 0)
	last.TxCountGlobal = 4
	last.TxCountChain = 2

	staged, err := GenerateProposePendingDeposit(last, DepositArgs{
		DepositWeiUser: big.NewInt(100), Timeout: 1300,
	})
	if err != nil {
		t.Fatal(err)
	}
	if staged.TxCountGlobal != 5 {
		t.Fatalf("staged at %d", staged.TxCountGlobal)
	}

	next, err := GenerateInvalidation(last, InvalidationArgs{
		LastInvalidTxCount:   5,
		PreviousValidTxCount: 4,
		Reason:               "CU_INVALID_ERROR",
	})
	if err != nil {
		t.Fatal(err)
	}
	if next.TxCountGlobal != 6 {
		t.Fatalf("invalidation lands at %d, want lastInvalid+1", next.TxCountGlobal)
	}
	if next.HasPendingOps() || next.Timeout != 0 {
		t.Fatal("invalidation must wipe pending fields and timeout")
	}
	eq(t, "user wei back at last valid", next.BalanceWeiUser, 90)

	// both sequence guards
	if _, err := GenerateInvalidation(last, InvalidationArgs{
		LastInvalidTxCount: 5, PreviousValidTxCount: 3,
	}); err == nil {
		t.Fatal("previousValid mismatch must be rejected")
	}
	if _, err := GenerateInvalidation(last, InvalidationArgs{
		LastInvalidTxCount: 4, PreviousValidTxCount: 4,
	}); err == nil {
		t.Fatal("lastInvalid at or before last valid must be rejected")
	}
}

func TestGenerateFromRequestSequenceCheck(t *testing.T) {
	prev := fundedState("alice", 0, 100, 0, 0)
	args := PaymentArgs{AmountWei: big.NewInt(1), Recipient: "hub"}

	if _, err := GenerateFromRequest(prev, RsnPayment, args, 1); err != nil {
		t.Fatal(err)
	}
	if _, err := GenerateFromRequest(prev, RsnPayment, args, 2); err == nil {
		t.Fatal("wrong expected txCount must be rejected")
	}
	if _, err := GenerateFromRequest(prev, RsnConfirmPending, ConfirmPendingArgs{}, 1); err == nil {
		t.Fatal("confirm-pending cannot be generated from a request")
	}
}

func TestChannelAndDepositSignatures(t *testing.T) {
	user, priv := testParty(t)
	st := fundedState(user, 0, 100, 0, 0)

	st.SigUser = signHex(priv, st.Bytes())
	if err := AssertChannelSigner(st); err != nil {
		t.Fatal(err)
	}

	// signing bytes must exclude the signatures themselves
	st.SigHub = "ffff"
	if err := AssertChannelSigner(st); err != nil {
		t.Fatal("hub signature must not change the signed bytes")
	}

	tampered := st.Clone()
	tampered.BalanceWeiUser = big.NewInt(101)
	if err := AssertChannelSigner(tampered); err == nil {
		t.Fatal("tampered state must not verify")
	}

	amt := big.NewInt(50)
	sig := signHex(priv, DepositRequestBytes(user, amt, big.NewInt(0)))
	if err := AssertDepositRequestSigner(user, amt, big.NewInt(0), sig); err != nil {
		t.Fatal(err)
	}
	if err := AssertDepositRequestSigner(user, big.NewInt(51), big.NewInt(0), sig); err == nil {
		t.Fatal("deposit signature must bind the amounts")
	}
}
