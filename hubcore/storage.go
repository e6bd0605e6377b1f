package hubcore

import (
	"math/big"

	"github.com/spilman/hub/chanstate"
)

// ChannelStorage is the durable channel ledger: a per-user append-only
// sequence of update rows plus the current aggregate row.  The engine is
// its only writer.
type ChannelStorage interface {
	// GetChannelOrInitialState returns the current row, or a synthesized
	// all-zero OPEN row if the user has no channel yet.
	GetChannelOrInitialState(user string) (ChannelRow, error)

	// GetChannelByUser returns nil if the channel doesn't exist.
	GetChannelByUser(user string) (*ChannelRow, error)

	// GetChannelUpdateByTxCount returns nil if the hub has no update at
	// that sequence number.
	GetChannelUpdateByTxCount(user string, txCount uint64) (*ChannelUpdateRow, error)

	// GetChannelUpdatesForSync returns all valid updates with
	// txCountGlobal > sinceTxCount, ordered by creation.
	GetChannelUpdatesForSync(user string, sinceTxCount uint64) ([]ChannelUpdateRow, error)

	// GetLastStateNoPendingOps returns the most recent update whose
	// state has every pending field zero.
	GetLastStateNoPendingOps(user string) (*ChannelUpdateRow, error)

	// GetTotalChannelTokensPlusThreadBonds is the user's token balance
	// in the channel plus everything bonded into their open threads.
	GetTotalChannelTokensPlusThreadBonds(user string) (*big.Int, error)

	// GetRecentTippers counts distinct users who paid this user inside
	// the recent-payment window.
	GetRecentTippers(user string) (int, error)

	// ApplyUpdateByUser appends a ledger row and advances the aggregate
	// row to state.  txnID links a dispatched settlement transaction.
	ApplyUpdateByUser(user string, reason chanstate.UpdateReason, signer string,
		state chanstate.ChannelState, args chanstate.UpdateArgs, txnID int64) (*ChannelUpdateRow, error)

	// InvalidateUpdates marks every row with
	// previousValidTxCount < txCount <= lastInvalidTxCount invalid.
	InvalidateUpdates(user string, args chanstate.InvalidationArgs) error
}

// ThreadStorage owns the unidirectional sub-ledgers.  Open/Close carry
// their own validation; the channel engine only routes to them.
type ThreadStorage interface {
	Open(state chanstate.ThreadState, sigUser string) (*ThreadUpdateRow, error)

	// Close folds one party's side.  The first close retires the open
	// entry; the other side gets exactly one more close against the
	// retired state, after which the thread is gone.
	Close(sender, receiver, sigUser string, senderSigning bool) (*ThreadUpdateRow, error)

	// GetRetiredThread returns the booked state of a thread one side
	// has already folded, nil when no side remains to close.
	GetRetiredThread(sender, receiver string) (*chanstate.ThreadState, error)

	// GetThreadUpdatesForSync returns rows with ID > sinceID where the
	// user is sender or receiver, ordered by creation.
	GetThreadUpdatesForSync(user string, sinceID int64) ([]ThreadUpdateRow, error)

	// GetOpenThreads lists currently open threads, for the graph and
	// for the channel thread-count commitment.
	GetOpenThreads() ([]chanstate.ThreadState, error)
}

// RateStorage holds exchange rate snapshots.
type RateStorage interface {
	Latest() (*ExchangeRateSnapshot, error)
	Record(snap ExchangeRateSnapshot) error
}

// OptimisticStorage queues speculative payments for the reconciler.
type OptimisticStorage interface {
	Create(row OptimisticPaymentRow) (int64, error)
	GetNewOptimisticPayments() ([]OptimisticPaymentRow, error)
	AddRedemption(paymentID, redemptionID int64) error
	AddCustodial(paymentID, custodialID int64) error
	MarkFailed(paymentID int64) error
}

// CustodialStorage books payments settled outside the channel ledger.
type CustodialStorage interface {
	CreateCustodialPayment(paymentID, channelUpdateID int64) (int64, error)
}
