package hub

import (
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/spilman/hub/chanstate"
	"github.com/spilman/hub/hubcore"
)

// memStore is an in-memory Storage with the same apply semantics as the
// bolt implementation, so engine tests don't need a db file.
type memStore struct {
	mtx sync.Mutex

	channels map[string]*hubcore.ChannelRow
	updates  map[string]map[uint64]*hubcore.ChannelUpdateRow
	nextID   int64

	openThreads    map[string]chanstate.ThreadState
	retiredThreads map[string]memRetiredThread
	threadRows     []hubcore.ThreadUpdateRow
	nextTID        int64

	rates []hubcore.ExchangeRateSnapshot

	payments  map[int64]*hubcore.OptimisticPaymentRow
	nextPID   int64
	nextCID   int64
	failCusto bool

	// tippers overrides the recent-tipper count per user
	tippers map[string]int
}

func newMemStore() *memStore {
	return &memStore{
		channels:    make(map[string]*hubcore.ChannelRow),
		updates:     make(map[string]map[uint64]*hubcore.ChannelUpdateRow),
		openThreads:    make(map[string]chanstate.ThreadState),
		retiredThreads: make(map[string]memRetiredThread),
		payments:       make(map[int64]*hubcore.OptimisticPaymentRow),
		tippers:        make(map[string]int),
	}
}

// seedChannel installs an aggregate row directly, bypassing the ledger.
func (m *memStore) seedChannel(user string, state chanstate.ChannelState) {
	m.mtx.Lock()
	m.channels[user] = &hubcore.ChannelRow{User: user, Status: chanstate.CStatusOpen, State: state}
	m.mtx.Unlock()
}

func (m *memStore) GetChannelOrInitialState(user string) (hubcore.ChannelRow, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	if r, ok := m.channels[user]; ok {
		return *r, nil
	}
	return hubcore.ChannelRow{
		User:   user,
		Status: chanstate.CStatusOpen,
		State:  chanstate.NewEmptyChannelState(user),
	}, nil
}

func (m *memStore) GetChannelByUser(user string) (*hubcore.ChannelRow, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	if r, ok := m.channels[user]; ok {
		cp := *r
		return &cp, nil
	}
	return nil, nil
}

func (m *memStore) GetChannelUpdateByTxCount(user string, txCount uint64) (*hubcore.ChannelUpdateRow, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	if r, ok := m.updates[user][txCount]; ok {
		cp := *r
		return &cp, nil
	}
	return nil, nil
}

func (m *memStore) sortedTxCounts(user string) []uint64 {
	tcs := make([]uint64, 0, len(m.updates[user]))
	for tc := range m.updates[user] {
		tcs = append(tcs, tc)
	}
	sort.Slice(tcs, func(i, j int) bool { return tcs[i] < tcs[j] })
	return tcs
}

func (m *memStore) GetChannelUpdatesForSync(user string, sinceTxCount uint64) ([]hubcore.ChannelUpdateRow, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	out := make([]hubcore.ChannelUpdateRow, 0)
	for _, tc := range m.sortedTxCounts(user) {
		r := m.updates[user][tc]
		if tc <= sinceTxCount || r.Invalid {
			continue
		}
		out = append(out, *r)
	}
	return out, nil
}

func (m *memStore) GetLastStateNoPendingOps(user string) (*hubcore.ChannelUpdateRow, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	tcs := m.sortedTxCounts(user)
	for i := len(tcs) - 1; i >= 0; i-- {
		r := m.updates[user][tcs[i]]
		if r.Invalid || r.State.HasPendingOps() {
			continue
		}
		cp := *r
		return &cp, nil
	}
	return nil, nil
}

func (m *memStore) GetTotalChannelTokensPlusThreadBonds(user string) (*big.Int, error) {
	row, err := m.GetChannelOrInitialState(user)
	if err != nil {
		return nil, err
	}
	m.mtx.Lock()
	defer m.mtx.Unlock()
	total := new(big.Int).Set(row.State.BalanceTokenUser)
	for _, t := range m.openThreads {
		if t.Sender != user {
			continue
		}
		total.Add(total, t.BalanceTokenSender)
		total.Add(total, t.BalanceTokenReceiver)
	}
	return total, nil
}

func (m *memStore) GetRecentTippers(user string) (int, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return m.tippers[user], nil
}

func (m *memStore) ApplyUpdateByUser(user string, reason chanstate.UpdateReason, signer string,
	state chanstate.ChannelState, args chanstate.UpdateArgs, txnID int64) (*hubcore.ChannelUpdateRow, error) {

	m.mtx.Lock()
	defer m.mtx.Unlock()

	chanRow, ok := m.channels[user]
	if !ok {
		chanRow = &hubcore.ChannelRow{
			User:   user,
			Status: chanstate.CStatusOpen,
			State:  chanstate.NewEmptyChannelState(user),
		}
		m.channels[user] = chanRow
	}
	head := chanRow.State.TxCountGlobal

	if m.updates[user] == nil {
		m.updates[user] = make(map[uint64]*hubcore.ChannelUpdateRow)
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
		old, ok := m.updates[user][head]
		if !ok {
			return nil, fmt.Errorf("aggregate at %d but no head row for %s", head, user)
		}
		row.ID = old.ID
		row.CreatedOn = old.CreatedOn
		if row.OnchainTxID == 0 {
			row.OnchainTxID = old.OnchainTxID
		}
	case state.TxCountGlobal == head+1:
		m.nextID++
		row.ID = m.nextID
	default:
		return nil, fmt.Errorf("%w: applying txCount %d onto head %d for %s",
			hubcore.ErrTxCountMismatch, state.TxCountGlobal, head, user)
	}

	m.updates[user][state.TxCountGlobal] = row
	chanRow.State = state
	cp := *row
	return &cp, nil
}

func (m *memStore) InvalidateUpdates(user string, args chanstate.InvalidationArgs) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	for tc := args.PreviousValidTxCount + 1; tc <= args.LastInvalidTxCount; tc++ {
		if r, ok := m.updates[user][tc]; ok {
			r.Invalid = true
		}
	}
	return nil
}

func memThreadKey(sender, receiver string) string {
	return sender + "|" + receiver
}

func (m *memStore) Open(state chanstate.ThreadState, sigUser string) (*hubcore.ThreadUpdateRow, error) {
	if state.SigA == "" {
		state.SigA = sigUser
	}
	if err := chanstate.AssertThreadSigner(state); err != nil {
		return nil, err
	}
	m.mtx.Lock()
	defer m.mtx.Unlock()
	key := memThreadKey(state.Sender, state.Receiver)
	if _, ok := m.openThreads[key]; ok {
		return nil, fmt.Errorf("thread %s->%s already open", state.Sender, state.Receiver)
	}
	m.openThreads[key] = state
	return m.appendThreadRow(state, false), nil
}

type memRetiredThread struct {
	state        chanstate.ThreadState
	senderClosed bool
}

func memCloseSigCheck(state chanstate.ThreadState, sigUser string, senderSigning bool) error {
	signer := state.Receiver
	if senderSigning {
		signer = state.Sender
	}
	return chanstate.VerifySig(signer, state.Bytes(), sigUser)
}

func (m *memStore) Close(sender, receiver, sigUser string, senderSigning bool) (*hubcore.ThreadUpdateRow, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	key := memThreadKey(sender, receiver)

	var state chanstate.ThreadState
	if st, ok := m.openThreads[key]; ok {
		state = st
		if err := memCloseSigCheck(state, sigUser, senderSigning); err != nil {
			return nil, err
		}
		delete(m.openThreads, key)
		m.retiredThreads[key] = memRetiredThread{state: state, senderClosed: senderSigning}
	} else if rt, ok := m.retiredThreads[key]; ok {
		if rt.senderClosed == senderSigning {
			return nil, fmt.Errorf("thread %s->%s already closed on that side", sender, receiver)
		}
		state = rt.state
		if err := memCloseSigCheck(state, sigUser, senderSigning); err != nil {
			return nil, err
		}
		delete(m.retiredThreads, key)
	} else {
		return nil, fmt.Errorf("no open thread %s->%s", sender, receiver)
	}
	return m.appendThreadRow(state, true), nil
}

func (m *memStore) GetRetiredThread(sender, receiver string) (*chanstate.ThreadState, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	if rt, ok := m.retiredThreads[memThreadKey(sender, receiver)]; ok {
		cp := rt.state
		return &cp, nil
	}
	return nil, nil
}

func (m *memStore) appendThreadRow(state chanstate.ThreadState, closed bool) *hubcore.ThreadUpdateRow {
	m.nextTID++
	row := hubcore.ThreadUpdateRow{
		ID:        m.nextTID,
		Sender:    state.Sender,
		Receiver:  state.Receiver,
		Closed:    closed,
		State:     state,
		CreatedOn: time.Now(),
	}
	m.threadRows = append(m.threadRows, row)
	cp := row
	return &cp
}

func (m *memStore) GetThreadUpdatesForSync(user string, sinceID int64) ([]hubcore.ThreadUpdateRow, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	out := make([]hubcore.ThreadUpdateRow, 0)
	for _, r := range m.threadRows {
		if r.ID <= sinceID || (r.Sender != user && r.Receiver != user) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (m *memStore) GetOpenThreads() ([]chanstate.ThreadState, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	out := make([]chanstate.ThreadState, 0, len(m.openThreads))
	for _, t := range m.openThreads {
		out = append(out, t)
	}
	return out, nil
}

func (m *memStore) Latest() (*hubcore.ExchangeRateSnapshot, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	if len(m.rates) == 0 {
		return nil, nil
	}
	cp := m.rates[len(m.rates)-1]
	return &cp, nil
}

func (m *memStore) Record(snap hubcore.ExchangeRateSnapshot) error {
	m.mtx.Lock()
	m.rates = append(m.rates, snap)
	m.mtx.Unlock()
	return nil
}

func (m *memStore) Create(row hubcore.OptimisticPaymentRow) (int64, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.nextPID++
	row.PaymentID = m.nextPID
	row.Status = hubcore.OpStatusNew
	if row.CreatedOn.IsZero() {
		row.CreatedOn = time.Now()
	}
	m.payments[row.PaymentID] = &row
	return row.PaymentID, nil
}

func (m *memStore) GetNewOptimisticPayments() ([]hubcore.OptimisticPaymentRow, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	ids := make([]int64, 0, len(m.payments))
	for id := range m.payments {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]hubcore.OptimisticPaymentRow, 0)
	for _, id := range ids {
		if m.payments[id].Status == hubcore.OpStatusNew {
			out = append(out, *m.payments[id])
		}
	}
	return out, nil
}

func (m *memStore) mutatePayment(id int64, f func(*hubcore.OptimisticPaymentRow)) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	r, ok := m.payments[id]
	if !ok {
		return fmt.Errorf("optimistic payment %d does not exist", id)
	}
	f(r)
	return nil
}

func (m *memStore) AddRedemption(paymentID, redemptionID int64) error {
	return m.mutatePayment(paymentID, func(r *hubcore.OptimisticPaymentRow) {
		r.Status = hubcore.OpStatusRedeemed
		r.RedemptionID = redemptionID
	})
}

func (m *memStore) AddCustodial(paymentID, custodialID int64) error {
	return m.mutatePayment(paymentID, func(r *hubcore.OptimisticPaymentRow) {
		r.Status = hubcore.OpStatusCustodial
		r.CustodialID = custodialID
	})
}

func (m *memStore) MarkFailed(paymentID int64) error {
	return m.mutatePayment(paymentID, func(r *hubcore.OptimisticPaymentRow) {
		r.Status = hubcore.OpStatusFailed
	})
}

func (m *memStore) CreateCustodialPayment(paymentID, channelUpdateID int64) (int64, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	if m.failCusto {
		return 0, fmt.Errorf("custodial ledger unavailable")
	}
	m.nextCID++
	return m.nextCID, nil
}
