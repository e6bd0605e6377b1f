package hubbolt

import (
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/boltdb/bolt"

	"github.com/spilman/hub/chanstate"
	"github.com/spilman/hub/consts"
	"github.com/spilman/hub/hubcore"
	"github.com/spilman/hub/hubutil"
)

func marshalUpdateRow(row *hubcore.ChannelUpdateRow) ([]byte, error) {
	if row.Args != nil {
		raw, err := json.Marshal(row.Args)
		if err != nil {
			return nil, err
		}
		row.RawArgs = raw
	}
	return json.Marshal(row)
}

func unmarshalUpdateRow(raw []byte) (*hubcore.ChannelUpdateRow, error) {
	var row hubcore.ChannelUpdateRow
	if err := json.Unmarshal(raw, &row); err != nil {
		return nil, err
	}
	if len(row.RawArgs) > 0 {
		args, err := chanstate.DecodeArgs(row.Reason, row.RawArgs)
		if err != nil {
			return nil, err
		}
		row.Args = args
	}
	return &row, nil
}

// GetChannelOrInitialState returns the current channel row, synthesizing
// an all-zero OPEN row for users the hub hasn't seen yet.
func (hdb *HubDB) GetChannelOrInitialState(user string) (hubcore.ChannelRow, error) {
	row, err := hdb.GetChannelByUser(user)
	if err != nil {
		return hubcore.ChannelRow{}, err
	}
	if row != nil {
		return *row, nil
	}
	return hubcore.ChannelRow{
		User:   user,
		Status: chanstate.CStatusOpen,
		State:  chanstate.NewEmptyChannelState(user),
	}, nil
}

// GetChannelByUser returns nil if the user has no channel yet.
func (hdb *HubDB) GetChannelByUser(user string) (*hubcore.ChannelRow, error) {
	var row *hubcore.ChannelRow
	err := hdb.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(channelsLabel).Get([]byte(user))
		if v == nil {
			return nil
		}
		var r hubcore.ChannelRow
		if err := json.Unmarshal(v, &r); err != nil {
			return err
		}
		row = &r
		return nil
	})
	return row, err
}

func userUpdates(tx *bolt.Tx, user string, create bool) (*bolt.Bucket, error) {
	top := tx.Bucket(chanUpdatesLabel)
	if create {
		return top.CreateBucketIfNotExists([]byte(user))
	}
	return top.Bucket([]byte(user)), nil
}

// GetChannelUpdateByTxCount returns nil if the hub has nothing at that
// sequence number.
func (hdb *HubDB) GetChannelUpdateByTxCount(user string, txCount uint64) (*hubcore.ChannelUpdateRow, error) {
	var row *hubcore.ChannelUpdateRow
	err := hdb.db.View(func(tx *bolt.Tx) error {
		b, _ := userUpdates(tx, user, false)
		if b == nil {
			return nil
		}
		v := b.Get(hubutil.U64tB(txCount))
		if v == nil {
			return nil
		}
		r, err := unmarshalUpdateRow(v)
		if err != nil {
			return err
		}
		row = r
		return nil
	})
	return row, err
}

// GetChannelUpdatesForSync returns every non-invalidated update past
// sinceTxCount, in sequence order (which is also creation order).
func (hdb *HubDB) GetChannelUpdatesForSync(user string, sinceTxCount uint64) ([]hubcore.ChannelUpdateRow, error) {
	out := make([]hubcore.ChannelUpdateRow, 0)
	err := hdb.db.View(func(tx *bolt.Tx) error {
		b, _ := userUpdates(tx, user, false)
		if b == nil {
			return nil
		}
		cur := b.Cursor()
		for k, v := cur.Seek(hubutil.U64tB(sinceTxCount + 1)); k != nil; k, v = cur.Next() {
			r, err := unmarshalUpdateRow(v)
			if err != nil {
				return err
			}
			if r.Invalid {
				continue
			}
			out = append(out, *r)
		}
		return nil
	})
	return out, err
}

// GetLastStateNoPendingOps walks backwards to the most recent update with
// no in-flight on-chain operation.
func (hdb *HubDB) GetLastStateNoPendingOps(user string) (*hubcore.ChannelUpdateRow, error) {
	var row *hubcore.ChannelUpdateRow
	err := hdb.db.View(func(tx *bolt.Tx) error {
		b, _ := userUpdates(tx, user, false)
		if b == nil {
			return nil
		}
		cur := b.Cursor()
		for k, v := cur.Last(); k != nil; k, v = cur.Prev() {
			r, err := unmarshalUpdateRow(v)
			if err != nil {
				return err
			}
			if r.Invalid || r.State.HasPendingOps() {
				continue
			}
			row = r
			return nil
		}
		return nil
	})
	return row, err
}

// GetTotalChannelTokensPlusThreadBonds is the user's channel token
// balance plus everything bonded into their open outgoing threads.
func (hdb *HubDB) GetTotalChannelTokensPlusThreadBonds(user string) (*big.Int, error) {
	total := big.NewInt(0)

	chanRow, err := hdb.GetChannelOrInitialState(user)
	if err != nil {
		return nil, err
	}
	total.Add(total, chanRow.State.BalanceTokenUser)

	threads, err := hdb.GetOpenThreads()
	if err != nil {
		return nil, err
	}
	for _, t := range threads {
		if t.Sender != user {
			continue
		}
		total.Add(total, t.BalanceTokenSender)
		total.Add(total, t.BalanceTokenReceiver)
	}
	return total, nil
}

// GetRecentTippers counts distinct senders with thread activity toward
// the user inside the tipper window.  Channel payments forwarded by the
// hub hide the original sender, so any recent forwarded payment counts
// as one more tipper.
func (hdb *HubDB) GetRecentTippers(user string) (int, error) {
	cutoff := time.Now().Add(-consts.RecentTipperWindow)
	senders := map[string]bool{}
	forwarded := false

	err := hdb.db.View(func(tx *bolt.Tx) error {
		cur := tx.Bucket(threadsLabel).Cursor()
		for k, v := cur.Last(); k != nil; k, v = cur.Prev() {
			var r hubcore.ThreadUpdateRow
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			if r.CreatedOn.Before(cutoff) {
				break
			}
			if r.Receiver == user {
				senders[r.Sender] = true
			}
		}

		b, _ := userUpdates(tx, user, false)
		if b == nil {
			return nil
		}
		ucur := b.Cursor()
		for k, v := ucur.Last(); k != nil; k, v = ucur.Prev() {
			r, err := unmarshalUpdateRow(v)
			if err != nil {
				return err
			}
			if r.CreatedOn.Before(cutoff) {
				break
			}
			if r.Reason != chanstate.RsnPayment || r.Invalid {
				continue
			}
			if pa, ok := r.Args.(chanstate.PaymentArgs); ok && pa.Recipient == "user" {
				forwarded = true
				break
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	n := len(senders)
	if forwarded {
		n++
	}
	return n, nil
}

// ApplyUpdateByUser appends one ledger row and advances the aggregate
// channel row.  Re-signing the head row (the user countersign path)
// overwrites it in place; anything else must be exactly head+1.
func (hdb *HubDB) ApplyUpdateByUser(user string, reason chanstate.UpdateReason, signer string,
	state chanstate.ChannelState, args chanstate.UpdateArgs, txnID int64) (*hubcore.ChannelUpdateRow, error) {

	var out *hubcore.ChannelUpdateRow
	err := hdb.db.Update(func(tx *bolt.Tx) error {
		cb := tx.Bucket(channelsLabel)

		chanRow := hubcore.ChannelRow{
			User:   user,
			Status: chanstate.CStatusOpen,
			State:  chanstate.NewEmptyChannelState(user),
		}
		if v := cb.Get([]byte(user)); v != nil {
			if err := json.Unmarshal(v, &chanRow); err != nil {
				return err
			}
		}

		head := chanRow.State.TxCountGlobal
		b, err := userUpdates(tx, user, true)
		if err != nil {
			return err
		}

		row := &hubcore.ChannelUpdateRow{
			User:        user,
			Reason:      reason,
			Args:        args,
			State:       state,
			CreatedOn:   time.Now(),
			OnchainTxID: txnID,
		}

		switch {
		case head != 0 && state.TxCountGlobal == head:
			// countersign of the head row: keep its identity
			old := b.Get(hubutil.U64tB(head))
			if old == nil {
				return fmt.Errorf("aggregate at %d but no head row for %s", head, user)
			}
			oldRow, err := unmarshalUpdateRow(old)
			if err != nil {
				return err
			}
			row.ID = oldRow.ID
			row.CreatedOn = oldRow.CreatedOn
			if row.OnchainTxID == 0 {
				row.OnchainTxID = oldRow.OnchainTxID
			}
		case state.TxCountGlobal == head+1:
			seq, err := b.NextSequence()
			if err != nil {
				return err
			}
			row.ID = int64(seq)
		default:
			return fmt.Errorf("%w: applying txCount %d onto head %d for %s",
				hubcore.ErrTxCountMismatch, state.TxCountGlobal, head, user)
		}

		raw, err := marshalUpdateRow(row)
		if err != nil {
			return err
		}
		if err := b.Put(hubutil.U64tB(state.TxCountGlobal), raw); err != nil {
			return err
		}

		chanRow.State = state
		cv, err := json.Marshal(chanRow)
		if err != nil {
			return err
		}
		if err := cb.Put([]byte(user), cv); err != nil {
			return err
		}

		out = row
		return nil
	})
	return out, err
}

// InvalidateUpdates flags every row the invalidation superseded.
func (hdb *HubDB) InvalidateUpdates(user string, args chanstate.InvalidationArgs) error {
	return hdb.db.Update(func(tx *bolt.Tx) error {
		b, _ := userUpdates(tx, user, false)
		if b == nil {
			return nil
		}
		for tc := args.PreviousValidTxCount + 1; tc <= args.LastInvalidTxCount; tc++ {
			v := b.Get(hubutil.U64tB(tc))
			if v == nil {
				continue
			}
			r, err := unmarshalUpdateRow(v)
			if err != nil {
				return err
			}
			r.Invalid = true
			raw, err := marshalUpdateRow(r)
			if err != nil {
				return err
			}
			if err := b.Put(hubutil.U64tB(tc), raw); err != nil {
				return err
			}
		}
		return nil
	})
}
