package hub

import (
	"fmt"
	"math/big"
	"time"

	"github.com/spilman/hub/config"
	"github.com/spilman/hub/consts"
	"github.com/spilman/hub/eventbus"
	"github.com/spilman/hub/hubcore"
	"github.com/spilman/hub/hubutil"
	"github.com/spilman/hub/sign"
)

// Storage is everything the engine needs from the durable layer.  The
// bolt db implements all of it in one value; tests swap in fakes.
type Storage interface {
	hubcore.ChannelStorage
	hubcore.ThreadStorage
	hubcore.RateStorage
	hubcore.OptimisticStorage
	hubcore.CustodialStorage
}

// Hub is the channel engine.  It is the sole writer of channel state and
// of the pending-update cache; per-user mutation is serialized by the
// keyed lock, so two requests for different users never wait on each
// other.
type Hub struct {
	Channels   hubcore.ChannelStorage
	Threads    hubcore.ThreadStorage
	Rates      hubcore.RateStorage
	Optimistic hubcore.OptimisticStorage
	Custodial  hubcore.CustodialStorage

	Signer *sign.Signer
	Blocks hubcore.BlockReader
	Coord  hubcore.TxCoordinator
	Bus    *eventbus.EventBus
	Cfg    *config.Config

	pending  *PendingCache
	userLock keyedMutex

	// now is swappable so tests can move the clock
	now func() time.Time
}

// NewHub wires the engine and registers its settlement-resolution
// handler on the bus.
func NewHub(cfg *config.Config, store Storage, signer *sign.Signer,
	blocks hubcore.BlockReader, coord hubcore.TxCoordinator, bus *eventbus.EventBus) *Hub {

	h := &Hub{
		Channels:   store,
		Threads:    store,
		Rates:      store,
		Optimistic: store,
		Custodial:  store,
		Signer:     signer,
		Blocks:     blocks,
		Coord:      coord,
		Bus:        bus,
		Cfg:        cfg,
		pending:    NewPendingCache(consts.PendingUpdateTTL),
		now:        time.Now,
	}
	h.userLock.init()
	bus.RegisterHandler(TxResolvedEventName, h.handleTxResolved)
	return h
}

// GetChannel returns the user's channel row, nil if they have none.
func (h *Hub) GetChannel(user string) (*hubcore.ChannelRow, error) {
	return h.Channels.GetChannelByUser(user)
}

// GetChannelUpdateByTxCount exposes a single ledger row to the API layer.
func (h *Hub) GetChannelUpdateByTxCount(user string, txCount uint64) (*hubcore.ChannelUpdateRow, error) {
	return h.Channels.GetChannelUpdateByTxCount(user, txCount)
}

// PendingCacheEntry exposes the staged unsigned proposal, for tests and
// the sync path.
func (h *Hub) PendingCacheEntry(user string) *PendingUpdate {
	return h.pending.Get(user)
}

// currentRate returns the latest exchange rate, refusing anything past
// the staleness window.
func (h *Hub) currentRate() (*big.Rat, *hubcore.ExchangeRateSnapshot, error) {
	snap, err := h.Rates.Latest()
	if err != nil {
		return nil, nil, err
	}
	if snap == nil {
		return nil, nil, fmt.Errorf("%w: no rate snapshot recorded", hubcore.ErrStaleExchangeRate)
	}
	if h.now().Sub(snap.RetrievedAt) > consts.RateMaxAge {
		return nil, nil, fmt.Errorf("%w: retrieved %s", hubcore.ErrStaleExchangeRate,
			snap.RetrievedAt.Format(time.RFC3339))
	}
	rate, err := hubutil.ParseRate(snap.RateUSD)
	if err != nil {
		return nil, nil, err
	}
	return rate, snap, nil
}
