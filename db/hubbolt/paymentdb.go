package hubbolt

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/boltdb/bolt"

	"github.com/spilman/hub/hubcore"
	"github.com/spilman/hub/hubutil"
)

// Create queues a speculative payment for the reconciler.
func (hdb *HubDB) Create(row hubcore.OptimisticPaymentRow) (int64, error) {
	var id int64
	err := hdb.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(optimisticLabel)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		row.PaymentID = int64(seq)
		row.Status = hubcore.OpStatusNew
		if row.CreatedOn.IsZero() {
			row.CreatedOn = time.Now()
		}
		v, err := json.Marshal(row)
		if err != nil {
			return err
		}
		if err := b.Put(hubutil.I64tB(row.PaymentID), v); err != nil {
			return err
		}
		id = row.PaymentID
		return nil
	})
	return id, err
}

// GetNewOptimisticPayments returns unresolved payments in queue order.
func (hdb *HubDB) GetNewOptimisticPayments() ([]hubcore.OptimisticPaymentRow, error) {
	out := make([]hubcore.OptimisticPaymentRow, 0)
	err := hdb.db.View(func(tx *bolt.Tx) error {
		cur := tx.Bucket(optimisticLabel).Cursor()
		for k, v := cur.First(); k != nil; k, v = cur.Next() {
			var r hubcore.OptimisticPaymentRow
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			if r.Status != hubcore.OpStatusNew {
				continue
			}
			out = append(out, r)
		}
		return nil
	})
	return out, err
}

func (hdb *HubDB) mutatePayment(paymentID int64, f func(*hubcore.OptimisticPaymentRow)) error {
	return hdb.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(optimisticLabel)
		v := b.Get(hubutil.I64tB(paymentID))
		if v == nil {
			return fmt.Errorf("optimistic payment %d does not exist", paymentID)
		}
		var r hubcore.OptimisticPaymentRow
		if err := json.Unmarshal(v, &r); err != nil {
			return err
		}
		f(&r)
		nv, err := json.Marshal(r)
		if err != nil {
			return err
		}
		return b.Put(hubutil.I64tB(paymentID), nv)
	})
}

// AddRedemption links the channel update that redeemed the payment.
func (hdb *HubDB) AddRedemption(paymentID, redemptionID int64) error {
	return hdb.mutatePayment(paymentID, func(r *hubcore.OptimisticPaymentRow) {
		r.Status = hubcore.OpStatusRedeemed
		r.RedemptionID = redemptionID
	})
}

// AddCustodial links the custodial entry that settled the payment.
func (hdb *HubDB) AddCustodial(paymentID, custodialID int64) error {
	return hdb.mutatePayment(paymentID, func(r *hubcore.OptimisticPaymentRow) {
		r.Status = hubcore.OpStatusCustodial
		r.CustodialID = custodialID
	})
}

// MarkFailed permanently fails the payment.
func (hdb *HubDB) MarkFailed(paymentID int64) error {
	return hdb.mutatePayment(paymentID, func(r *hubcore.OptimisticPaymentRow) {
		r.Status = hubcore.OpStatusFailed
	})
}

type custodialRow struct {
	ID              int64     `json:"id"`
	PaymentID       int64     `json:"paymentid"`
	ChannelUpdateID int64     `json:"channelupdateid"`
	CreatedOn       time.Time `json:"createdon"`
}

// CreateCustodialPayment books a payment settled outside the channel
// ledger and returns its id.
func (hdb *HubDB) CreateCustodialPayment(paymentID, channelUpdateID int64) (int64, error) {
	var id int64
	err := hdb.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(custodialLabel)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		row := custodialRow{
			ID:              int64(seq),
			PaymentID:       paymentID,
			ChannelUpdateID: channelUpdateID,
			CreatedOn:       time.Now(),
		}
		v, err := json.Marshal(row)
		if err != nil {
			return err
		}
		if err := b.Put(hubutil.I64tB(row.ID), v); err != nil {
			return err
		}
		id = row.ID
		return nil
	})
	return id, err
}
