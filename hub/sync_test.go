package hub

import (
	"math/big"
	"testing"
	"time"

	"github.com/spilman/hub/chanstate"
	"github.com/spilman/hub/hubcore"
)

func TestSyncMergeOrderingAndStagedTail(t *testing.T) {
	r := newTestRig(t)
	t0 := time.Now().Add(-time.Minute)

	ts := chanstate.ThreadState{
		Sender:               r.user,
		Receiver:             "receiver",
		BalanceWeiSender:     big.NewInt(5),
		BalanceWeiReceiver:   big.NewInt(0),
		BalanceTokenSender:   big.NewInt(0),
		BalanceTokenReceiver: big.NewInt(0),
	}

	// hand-build the ledger: a payment row, then an open-thread channel
	// row whose thread row got booked an instant earlier
	st1 := chanstate.NewEmptyChannelState(r.user)
	st1.BalanceWeiUser = big.NewInt(100)
	st1.TxCountGlobal = 1
	st2 := st1.Clone()
	st2.BalanceWeiUser = big.NewInt(95)
	st2.TxCountGlobal = 2
	st2.ThreadCount = 1

	r.store.updates[r.user] = map[uint64]*hubcore.ChannelUpdateRow{
		1: {ID: 1, User: r.user, Reason: chanstate.RsnPayment, State: st1, CreatedOn: t0},
		2: {ID: 2, User: r.user, Reason: chanstate.RsnOpenThread, Args: ts, State: st2,
			CreatedOn: t0.Add(2 * time.Second)},
	}
	r.store.threadRows = []hubcore.ThreadUpdateRow{
		{ID: 1, Sender: r.user, Receiver: "receiver", State: ts,
			CreatedOn: t0.Add(1 * time.Second)},
	}
	r.store.seedChannel(r.user, st2)

	// plus a staged, uncommitted proposal
	r.hub.pending.Set(r.user, chanstate.RsnProposePendingDeposit, chanstate.DepositArgs{
		DepositTokenHub: big.NewInt(100),
		Timeout:         1300,
	})

	sync, err := r.hub.GetChannelAndThreadUpdatesForSync(r.user, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if sync.Status != chanstate.CStatusOpen {
		t.Fatalf("status %s", sync.Status)
	}
	if len(sync.Updates) != 4 {
		t.Fatalf("%d updates, want 4", len(sync.Updates))
	}

	// the open-thread channel row must precede the thread row it booked,
	// even though the thread row's timestamp is older
	wantTypes := []string{"channel", "channel", "thread", "channel"}
	for i, w := range wantTypes {
		if sync.Updates[i].Type != w {
			t.Fatalf("update %d is %s, want %s", i, sync.Updates[i].Type, w)
		}
	}
	if sync.Updates[1].Channel.Reason != chanstate.RsnOpenThread {
		t.Fatalf("update 1 reason %s", sync.Updates[1].Channel.Reason)
	}

	tail := sync.Updates[3].Channel
	if tail.ID >= 0 {
		t.Fatalf("staged tail id %d, want negative synthetic id", tail.ID)
	}
	if tail.TxCount != nil {
		t.Fatal("staged tail must report no txCount")
	}
	if tail.State.TxCountGlobal != 3 {
		t.Fatalf("staged tail regenerated at %d, want head+1", tail.State.TxCountGlobal)
	}
}

func TestSyncSinceFilters(t *testing.T) {
	r := newTestRig(t)
	seeded := r.seed(0, 100, 0, 0)

	args := chanstate.PaymentArgs{AmountWei: big.NewInt(10), AmountToken: big.NewInt(0), Recipient: "hub"}
	next, err := chanstate.GenerateChannelPayment(seeded, args)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.hub.DoUpdates(r.user, []UpdateRequest{{
		Reason: chanstate.RsnPayment, Args: args,
		SigUser: r.userSign(next.Bytes()), TxCount: 1,
	}}); err != nil {
		t.Fatal(err)
	}

	sync, err := r.hub.GetChannelAndThreadUpdatesForSync(r.user, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(sync.Updates) != 1 {
		t.Fatalf("%d updates from zero, want 1", len(sync.Updates))
	}

	// a client already at txCount 1 has nothing to replay
	sync, err = r.hub.GetChannelAndThreadUpdatesForSync(r.user, 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(sync.Updates) != 0 {
		t.Fatalf("%d updates past head, want 0", len(sync.Updates))
	}
}
