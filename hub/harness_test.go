package hub

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"testing"
	"time"

	"golang.org/x/crypto/ed25519"

	"github.com/spilman/hub/chanstate"
	"github.com/spilman/hub/config"
	"github.com/spilman/hub/eventbus"
	"github.com/spilman/hub/hubcore"
	"github.com/spilman/hub/logging"
	"github.com/spilman/hub/sign"
)

// captureSender records settlement submissions instead of sending them.
type captureSender struct {
	subs []hubcore.TxSubmission
	fail bool
}

func (s *captureSender) Submit(logicalID int64, sub hubcore.TxSubmission) error {
	if s.fail {
		return fmt.Errorf("chain unreachable")
	}
	s.subs = append(s.subs, sub)
	return nil
}

type testRig struct {
	hub    *Hub
	store  *memStore
	blocks *sign.CachedBlockReader
	sender *captureSender
	bus    *eventbus.EventBus

	userPriv ed25519.PrivateKey
	user     string
}

func newTestRig(t *testing.T) *testRig {
	logging.SetupTestLogs()

	cfg := &config.Config{
		BeiDeposit:    big.NewInt(1000000),
		BeiLimit:      big.NewInt(1000000),
		ThreadLimit:   big.NewInt(10),
		MinCollateral: big.NewInt(100),
		MaxCollateral: big.NewInt(1000),

		HotWalletAddress:      "hotwallet",
		ChannelManagerAddress: "chanmanager",
	}

	_, hubPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	_, userPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	userAddr, _ := sign.SignAsUser(userPriv, []byte{})

	store := newMemStore()
	store.Record(hubcore.ExchangeRateSnapshot{RateUSD: "1", RetrievedAt: time.Now()})

	blocks := sign.NewCachedBlockReader()
	blocks.SetTip(hubcore.Block{Height: 1, Timestamp: 1000})

	bus := eventbus.NewEventBus()
	sender := &captureSender{}
	coord := NewEventCoordinator(bus, sender)

	return &testRig{
		hub:      NewHub(cfg, store, sign.NewSigner(hubPriv), blocks, coord, bus),
		store:    store,
		blocks:   blocks,
		sender:   sender,
		bus:      bus,
		userPriv: userPriv,
		user:     userAddr,
	}
}

func (r *testRig) userSign(msg []byte) string {
	_, sig := sign.SignAsUser(r.userPriv, msg)
	return sig
}

// seed installs a funded channel for the rig's user at txCount 0.
func (r *testRig) seed(hubWei, userWei, hubToken, userToken int64) chanstate.ChannelState {
	st := chanstate.NewEmptyChannelState(r.user)
	st.BalanceWeiHub = big.NewInt(hubWei)
	st.BalanceWeiUser = big.NewInt(userWei)
	st.BalanceTokenHub = big.NewInt(hubToken)
	st.BalanceTokenUser = big.NewInt(userToken)
	r.store.seedChannel(r.user, st)
	return st
}

func (r *testRig) headState(t *testing.T) chanstate.ChannelState {
	row, err := r.store.GetChannelOrInitialState(r.user)
	if err != nil {
		t.Fatal(err)
	}
	return row.State
}

func wantBig(t *testing.T, what string, got *big.Int, want int64) {
	t.Helper()
	if got.Cmp(big.NewInt(want)) != 0 {
		t.Fatalf("%s: got %s, want %d", what, got.String(), want)
	}
}
