package hub

import (
	"math/big"
	"time"

	"github.com/spilman/hub/chanstate"
	"github.com/spilman/hub/consts"
	"github.com/spilman/hub/hubcore"
	"github.com/spilman/hub/hubutil"
	"github.com/spilman/hub/logging"
)

// Reconciler drives speculative payments to a terminal state: forwarded
// through the channel once collateral covers them, or settled
// custodially after the timeout.  One loop, one tick at a time.
type Reconciler struct {
	hub      *Hub
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
}

// NewReconciler makes a stopped reconciler with the standard interval.
func NewReconciler(h *Hub) *Reconciler {
	return &Reconciler{
		hub:      h,
		interval: consts.OptimisticPollInterval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the poll loop.
func (r *Reconciler) Start() {
	go r.loop()
}

// Stop ends the loop and waits for the in-flight tick to finish.
func (r *Reconciler) Stop() {
	close(r.stop)
	<-r.done
}

func (r *Reconciler) loop() {
	defer close(r.done)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			if err := r.hub.PollOnce(); err != nil {
				logging.Errorf("optimistic reconciler tick: %s\n", err.Error())
			}
		}
	}
}

// QueueOptimisticPayment accepts a payment toward a recipient whose
// channel may not hold collateral for it yet.  sourceUpdateID links the
// sender-side ledger row that funded it.
func (h *Hub) QueueOptimisticPayment(recipient string, amountWei, amountToken *big.Int, sourceUpdateID int64) (int64, error) {
	id, err := h.Optimistic.Create(hubcore.OptimisticPaymentRow{
		ChannelUpdateID: sourceUpdateID,
		Recipient:       recipient,
		AmountWei:       hubutil.OrZero(amountWei),
		AmountToken:     hubutil.OrZero(amountToken),
		CreatedOn:       h.now(),
	})
	if err != nil {
		return 0, err
	}
	logging.Infof("queued optimistic payment %d for %s\n", id, recipient)
	return id, nil
}

// PollOnce is one reconciler tick over every unresolved payment.
// Per-payment failures are logged, never fatal to the tick.
func (h *Hub) PollOnce() error {
	rows, err := h.Optimistic.GetNewOptimisticPayments()
	if err != nil {
		return err
	}

	for _, p := range rows {
		chanRow, err := h.Channels.GetChannelOrInitialState(p.Recipient)
		if err != nil {
			return err
		}
		if chanRow.Status != chanstate.CStatusOpen {
			continue
		}

		if h.now().Sub(p.CreatedOn) > consts.CustodialTimeout {
			h.settleCustodially(p)
			continue
		}

		// wait for collateral to arrive rather than bouncing the payment
		if chanRow.State.BalanceWeiHub.Cmp(p.AmountWei) < 0 ||
			chanRow.State.BalanceTokenHub.Cmp(p.AmountToken) < 0 {
			continue
		}

		applied, err := h.RedeemOptimisticPayment(p)
		if err != nil {
			logging.Errorf("redeeming optimistic payment %d: %s\n", p.PaymentID, err.Error())
			continue
		}
		if err := h.Optimistic.AddRedemption(p.PaymentID, applied.ID); err != nil {
			logging.Errorf("linking redemption %d: %s\n", p.PaymentID, err.Error())
		}
	}
	return nil
}

// settleCustodially books the payment outside the channel ledger.  If
// even that fails the payment is marked permanently failed.
func (h *Hub) settleCustodially(p hubcore.OptimisticPaymentRow) {
	cid, err := h.Custodial.CreateCustodialPayment(p.PaymentID, p.ChannelUpdateID)
	if err != nil {
		logging.Errorf("custodial settlement of payment %d: %s\n", p.PaymentID, err.Error())
		if err := h.Optimistic.MarkFailed(p.PaymentID); err != nil {
			logging.Errorf("failing payment %d: %s\n", p.PaymentID, err.Error())
		}
		return
	}
	if err := h.Optimistic.AddCustodial(p.PaymentID, cid); err != nil {
		logging.Errorf("linking custodial %d: %s\n", p.PaymentID, err.Error())
	}
	logging.Infof("payment %d settled custodially after timeout\n", p.PaymentID)
}

// RedeemOptimisticPayment forwards the payment into the recipient's
// channel as a hub-signed Payment row; the recipient countersigns it on
// their next sync.
func (h *Hub) RedeemOptimisticPayment(p hubcore.OptimisticPaymentRow) (*hubcore.ChannelUpdateRow, error) {
	h.userLock.lock(p.Recipient)
	defer h.userLock.unlock(p.Recipient)

	row, err := h.Channels.GetChannelOrInitialState(p.Recipient)
	if err != nil {
		return nil, err
	}
	args := chanstate.PaymentArgs{
		AmountWei:   p.AmountWei,
		AmountToken: p.AmountToken,
		Recipient:   "user",
	}
	next, err := chanstate.GenerateChannelPayment(row.State, args)
	if err != nil {
		return nil, err
	}
	next = h.Signer.SignChannelState(next)
	return h.Channels.ApplyUpdateByUser(p.Recipient, chanstate.RsnPayment,
		h.Signer.Address(), next, args, 0)
}
