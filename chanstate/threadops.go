package chanstate

import (
	"fmt"
	"math/big"

	"github.com/spilman/hub/hubutil"
)

// GenerateOpenThread bonds the thread's opening balances out of the
// sender's channel.  Only the sender's channel takes an open-thread
// update; the hub's stake toward the receiver is maintained through
// receiver-side collateral instead.
func GenerateOpenThread(prev ChannelState, ts ThreadState, user, newRoot string) (ChannelState, error) {
	if ts.Sender == ts.Receiver {
		return prev, fmt.Errorf("thread sender and receiver are both %s", ts.Sender)
	}
	if user != ts.Sender {
		return prev, fmt.Errorf("open-thread update for %s but thread sender is %s", user, ts.Sender)
	}
	if ts.TxCount != 0 {
		return prev, fmt.Errorf("threads open at txCount 0, got %d", ts.TxCount)
	}

	weiBond := new(big.Int).Add(hubutil.OrZero(ts.BalanceWeiSender), hubutil.OrZero(ts.BalanceWeiReceiver))
	tokenBond := new(big.Int).Add(hubutil.OrZero(ts.BalanceTokenSender), hubutil.OrZero(ts.BalanceTokenReceiver))

	next := prev.Clone()
	next.SigHub, next.SigUser = "", ""

	if err := sub(next.BalanceWeiUser, weiBond, "user wei"); err != nil {
		return next, err
	}
	if err := sub(next.BalanceTokenUser, tokenBond, "user token"); err != nil {
		return next, err
	}

	next.ThreadRoot = newRoot
	next.ThreadCount++
	next.TxCountGlobal++
	return next, nil
}

// GenerateCloseThread folds a thread's final balances back into one
// party's channel.  The sender gets their unspent bond back and the hub
// collects what was spent; on the receiver side the hub forwards the
// received amount out of its own balance.
func GenerateCloseThread(prev ChannelState, ts ThreadState, user, newRoot string) (ChannelState, error) {
	next := prev.Clone()
	next.SigHub, next.SigUser = "", ""

	sw := hubutil.OrZero(ts.BalanceWeiSender)
	rw := hubutil.OrZero(ts.BalanceWeiReceiver)
	st := hubutil.OrZero(ts.BalanceTokenSender)
	rt := hubutil.OrZero(ts.BalanceTokenReceiver)

	switch user {
	case ts.Sender:
		if next.ThreadCount == 0 {
			return next, fmt.Errorf("channel for %s has no open threads", user)
		}
		next.BalanceWeiUser.Add(next.BalanceWeiUser, sw)
		next.BalanceTokenUser.Add(next.BalanceTokenUser, st)
		next.BalanceWeiHub.Add(next.BalanceWeiHub, rw)
		next.BalanceTokenHub.Add(next.BalanceTokenHub, rt)
		next.ThreadCount--
		next.ThreadRoot = newRoot
	case ts.Receiver:
		if err := sub(next.BalanceWeiHub, rw, "hub wei"); err != nil {
			return next, err
		}
		if err := sub(next.BalanceTokenHub, rt, "hub token"); err != nil {
			return next, err
		}
		next.BalanceWeiUser.Add(next.BalanceWeiUser, rw)
		next.BalanceTokenUser.Add(next.BalanceTokenUser, rt)
	default:
		return next, fmt.Errorf("thread %s->%s does not involve %s", ts.Sender, ts.Receiver, user)
	}

	next.TxCountGlobal++
	return next, nil
}
