package hubbolt

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/boltdb/bolt"

	"github.com/spilman/hub/chanstate"
	"github.com/spilman/hub/hubcore"
	"github.com/spilman/hub/hubutil"
)

func threadKey(sender, receiver string) []byte {
	return []byte(sender + "|" + receiver)
}

// Open validates the sender's signature and books the thread.  A thread
// between the same pair can't be opened twice.
func (hdb *HubDB) Open(state chanstate.ThreadState, sigUser string) (*hubcore.ThreadUpdateRow, error) {
	if state.SigA == "" {
		state.SigA = sigUser
	}
	if err := chanstate.AssertThreadSigner(state); err != nil {
		return nil, err
	}

	var out *hubcore.ThreadUpdateRow
	err := hdb.db.Update(func(tx *bolt.Tx) error {
		ob := tx.Bucket(openThreadsLabel)
		key := threadKey(state.Sender, state.Receiver)
		if ob.Get(key) != nil {
			return fmt.Errorf("thread %s->%s already open", state.Sender, state.Receiver)
		}

		sv, err := json.Marshal(state)
		if err != nil {
			return err
		}
		if err := ob.Put(key, sv); err != nil {
			return err
		}

		row, err := hdb.appendThreadRow(tx, state, false)
		if err != nil {
			return err
		}
		out = row
		return nil
	})
	return out, err
}

// retiredThread keeps a thread's booked state around after the first
// close so the other party can still fold their side.
type retiredThread struct {
	State        chanstate.ThreadState `json:"state"`
	SenderClosed bool                  `json:"senderclosed"`
}

func assertCloseSigner(state chanstate.ThreadState, sigUser string, senderSigning bool) error {
	signer := state.Receiver
	if senderSigning {
		signer = state.Sender
	}
	return chanstate.VerifySig(signer, state.Bytes(), sigUser)
}

// Close folds one side of a thread.  The first close checks the closing
// party's signature over the booked state and retires the open entry;
// the other side gets exactly one more close against the retired state.
func (hdb *HubDB) Close(sender, receiver, sigUser string, senderSigning bool) (*hubcore.ThreadUpdateRow, error) {
	var out *hubcore.ThreadUpdateRow
	err := hdb.db.Update(func(tx *bolt.Tx) error {
		ob := tx.Bucket(openThreadsLabel)
		rb := tx.Bucket(retiredThreadsLabel)
		key := threadKey(sender, receiver)

		var state chanstate.ThreadState
		if v := ob.Get(key); v != nil {
			if err := json.Unmarshal(v, &state); err != nil {
				return err
			}
			if err := assertCloseSigner(state, sigUser, senderSigning); err != nil {
				return err
			}
			if err := ob.Delete(key); err != nil {
				return err
			}
			rv, err := json.Marshal(retiredThread{State: state, SenderClosed: senderSigning})
			if err != nil {
				return err
			}
			if err := rb.Put(key, rv); err != nil {
				return err
			}
		} else if v := rb.Get(key); v != nil {
			var rt retiredThread
			if err := json.Unmarshal(v, &rt); err != nil {
				return err
			}
			if rt.SenderClosed == senderSigning {
				return fmt.Errorf("thread %s->%s already closed on that side", sender, receiver)
			}
			state = rt.State
			if err := assertCloseSigner(state, sigUser, senderSigning); err != nil {
				return err
			}
			if err := rb.Delete(key); err != nil {
				return err
			}
		} else {
			return fmt.Errorf("no open thread %s->%s", sender, receiver)
		}

		row, err := hdb.appendThreadRow(tx, state, true)
		if err != nil {
			return err
		}
		out = row
		return nil
	})
	return out, err
}

// GetRetiredThread returns the booked state awaiting the second side's
// close, nil when the pair has none.
func (hdb *HubDB) GetRetiredThread(sender, receiver string) (*chanstate.ThreadState, error) {
	var out *chanstate.ThreadState
	err := hdb.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(retiredThreadsLabel).Get(threadKey(sender, receiver))
		if v == nil {
			return nil
		}
		var rt retiredThread
		if err := json.Unmarshal(v, &rt); err != nil {
			return err
		}
		out = &rt.State
		return nil
	})
	return out, err
}

func (hdb *HubDB) appendThreadRow(tx *bolt.Tx, state chanstate.ThreadState, closed bool) (*hubcore.ThreadUpdateRow, error) {
	tb := tx.Bucket(threadsLabel)
	seq, err := tb.NextSequence()
	if err != nil {
		return nil, err
	}
	row := hubcore.ThreadUpdateRow{
		ID:        int64(seq),
		Sender:    state.Sender,
		Receiver:  state.Receiver,
		Closed:    closed,
		State:     state,
		CreatedOn: time.Now(),
	}
	rv, err := json.Marshal(row)
	if err != nil {
		return nil, err
	}
	if err := tb.Put(hubutil.I64tB(row.ID), rv); err != nil {
		return nil, err
	}
	return &row, nil
}

// GetThreadUpdatesForSync returns the user's thread rows past sinceID in
// creation order.
func (hdb *HubDB) GetThreadUpdatesForSync(user string, sinceID int64) ([]hubcore.ThreadUpdateRow, error) {
	out := make([]hubcore.ThreadUpdateRow, 0)
	err := hdb.db.View(func(tx *bolt.Tx) error {
		cur := tx.Bucket(threadsLabel).Cursor()
		for k, v := cur.Seek(hubutil.I64tB(sinceID + 1)); k != nil; k, v = cur.Next() {
			var r hubcore.ThreadUpdateRow
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			if r.Sender != user && r.Receiver != user {
				continue
			}
			out = append(out, r)
		}
		return nil
	})
	return out, err
}

// GetOpenThreads lists all currently open threads.
func (hdb *HubDB) GetOpenThreads() ([]chanstate.ThreadState, error) {
	out := make([]chanstate.ThreadState, 0)
	err := hdb.db.View(func(tx *bolt.Tx) error {
		cur := tx.Bucket(openThreadsLabel).Cursor()
		for k, v := cur.First(); k != nil; k, v = cur.Next() {
			var t chanstate.ThreadState
			if err := json.Unmarshal(v, &t); err != nil {
				return err
			}
			out = append(out, t)
		}
		return nil
	})
	return out, err
}
