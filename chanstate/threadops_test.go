package chanstate

import (
	"math/big"
	"testing"
)

func testThread(sender, receiver string, weiBond int64) ThreadState {
	return ThreadState{
		Sender:               sender,
		Receiver:             receiver,
		ThreadID:             1,
		BalanceWeiSender:     big.NewInt(weiBond),
		BalanceWeiReceiver:   big.NewInt(0),
		BalanceTokenSender:   big.NewInt(0),
		BalanceTokenReceiver: big.NewInt(0),
	}
}

func TestOpenThreadBondsSender(t *testing.T) {
	prev := fundedState("alice", 0, 100, 0, 0)
	ts := testThread("alice", "bob", 40)

	next, err := GenerateOpenThread(prev, ts, "alice", "aaaa")
	if err != nil {
		t.Fatal(err)
	}
	eq(t, "user wei after bond", next.BalanceWeiUser, 60)
	if next.ThreadCount != 1 || next.ThreadRoot != "aaaa" {
		t.Fatalf("thread commitment %d/%s", next.ThreadCount, next.ThreadRoot)
	}
	if next.TxCountGlobal != 1 {
		t.Fatalf("txCount %d", next.TxCountGlobal)
	}
}

func TestOpenThreadGuards(t *testing.T) {
	prev := fundedState("alice", 0, 100, 0, 0)

	if _, err := GenerateOpenThread(prev, testThread("alice", "alice", 1), "alice", "r"); err == nil {
		t.Fatal("self-thread must be rejected")
	}
	if _, err := GenerateOpenThread(prev, testThread("bob", "carol", 1), "alice", "r"); err == nil {
		t.Fatal("only the sender's channel opens the thread")
	}
	advanced := testThread("alice", "bob", 1)
	advanced.TxCount = 3
	if _, err := GenerateOpenThread(prev, advanced, "alice", "r"); err == nil {
		t.Fatal("threads must open at txCount 0")
	}
	if _, err := GenerateOpenThread(prev, testThread("alice", "bob", 101), "alice", "r"); err == nil {
		t.Fatal("bond above balance must be rejected")
	}
}

func TestCloseThreadSenderSide(t *testing.T) {
	// alice bonded 40, spent 15 of it in the thread
	prev := fundedState("alice", 0, 60, 0, 0)
	prev.ThreadCount = 1
	prev.ThreadRoot = "aaaa"
	prev.TxCountGlobal = 1

	final := testThread("alice", "bob", 25)
	final.BalanceWeiReceiver = big.NewInt(15)

	next, err := GenerateCloseThread(prev, final, "alice", EmptyThreadRoot)
	if err != nil {
		t.Fatal(err)
	}
	eq(t, "unspent bond returned", next.BalanceWeiUser, 85)
	eq(t, "spent amount to hub", next.BalanceWeiHub, 15)
	if next.ThreadCount != 0 || next.ThreadRoot != EmptyThreadRoot {
		t.Fatalf("thread commitment %d/%s", next.ThreadCount, next.ThreadRoot)
	}

	bare := fundedState("alice", 0, 0, 0, 0)
	if _, err := GenerateCloseThread(bare, final, "alice", EmptyThreadRoot); err == nil {
		t.Fatal("sender close with no open threads must be rejected")
	}
}

func TestCloseThreadReceiverSide(t *testing.T) {
	// bob's channel: the hub forwards what the thread delivered
	prev := fundedState("bob", 50, 0, 0, 0)

	final := testThread("alice", "bob", 25)
	final.BalanceWeiReceiver = big.NewInt(15)

	next, err := GenerateCloseThread(prev, final, "bob", prev.ThreadRoot)
	if err != nil {
		t.Fatal(err)
	}
	eq(t, "received amount", next.BalanceWeiUser, 15)
	eq(t, "hub wei", next.BalanceWeiHub, 35)
	if next.ThreadCount != 0 {
		t.Fatal("receiver close must not touch the thread count")
	}

	broke := fundedState("bob", 10, 0, 0, 0)
	big15 := testThread("alice", "bob", 0)
	big15.BalanceWeiReceiver = big.NewInt(15)
	if _, err := GenerateCloseThread(broke, big15, "bob", broke.ThreadRoot); err == nil {
		t.Fatal("hub cannot forward more than it holds")
	}

	if _, err := GenerateCloseThread(prev, final, "carol", prev.ThreadRoot); err == nil {
		t.Fatal("a stranger cannot close the thread")
	}
}
