package hub

import (
	"time"

	"github.com/spilman/hub/chanstate"
	"github.com/spilman/hub/hubcore"
	"github.com/spilman/hub/logging"
)

// SyncChannelUpdate is one channel row in a sync replay.  TxCount is nil
// for a staged proposal that has not been committed yet.
type SyncChannelUpdate struct {
	ID        int64                  `json:"id"`
	Reason    chanstate.UpdateReason `json:"reason"`
	Args      chanstate.UpdateArgs   `json:"args"`
	State     chanstate.ChannelState `json:"state"`
	TxCount   *uint64                `json:"txcount"`
	CreatedOn time.Time              `json:"createdon"`
}

// SyncResult tags each replayed update with the stream it came from.
type SyncResult struct {
	Type    string                   `json:"type"` // "channel" or "thread"
	Channel *SyncChannelUpdate       `json:"channel,omitempty"`
	Thread  *hubcore.ThreadUpdateRow `json:"thread,omitempty"`
}

// Sync is the full catch-up payload for one user.
type Sync struct {
	Status  chanstate.ChannelStatus `json:"status"`
	Updates []SyncResult            `json:"updates"`
}

// GetChannelAndThreadUpdatesForSync merges the channel and thread update
// streams past the client's last known positions into one replay,
// ordered by creation time.  On equal timestamps the channel row goes
// first, so an OpenThread channel update always precedes the thread row
// it introduced.  A staged uncommitted proposal rides last under a
// negative synthetic id.
func (h *Hub) GetChannelAndThreadUpdatesForSync(user string, sinceTxCount uint64, sinceThreadID int64) (*Sync, error) {
	row, err := h.Channels.GetChannelOrInitialState(user)
	if err != nil {
		return nil, err
	}
	chans, err := h.Channels.GetChannelUpdatesForSync(user, sinceTxCount)
	if err != nil {
		return nil, err
	}
	threads, err := h.Threads.GetThreadUpdatesForSync(user, sinceThreadID)
	if err != nil {
		return nil, err
	}

	out := make([]SyncResult, 0, len(chans)+len(threads)+1)
	ci, ti := 0, 0
	for ci < len(chans) && ti < len(threads) {
		if chans[ci].CreatedOn.After(threads[ti].CreatedOn) &&
			!threadRowIntroducedBy(&chans[ci], &threads[ti]) {
			out = append(out, SyncResult{Type: "thread", Thread: &threads[ti]})
			ti++
		} else {
			out = append(out, channelResult(&chans[ci]))
			ci++
		}
	}
	for ; ci < len(chans); ci++ {
		out = append(out, channelResult(&chans[ci]))
	}
	for ; ti < len(threads); ti++ {
		out = append(out, SyncResult{Type: "thread", Thread: &threads[ti]})
	}

	if staged := h.pending.Get(user); staged != nil {
		next, err := chanstate.GenerateFromRequest(row.State, staged.Reason, staged.Args,
			row.State.TxCountGlobal+1)
		if err != nil {
			// head moved since staging; the entry is stale and will age out
			logging.Infof("staged %s for %s no longer applies: %s\n",
				staged.Reason, user, err.Error())
		} else {
			out = append(out, SyncResult{Type: "channel", Channel: &SyncChannelUpdate{
				ID:        -(staged.Timestamp.UnixNano() / int64(time.Millisecond)),
				Reason:    staged.Reason,
				Args:      staged.Args,
				State:     next,
				CreatedOn: staged.Timestamp,
			}})
		}
	}

	return &Sync{Status: row.Status, Updates: out}, nil
}

// threadRowIntroducedBy says whether the thread row was booked by this
// channel update.  The registry writes its row an instant before the
// channel row commits, so the pair needs an explicit tie-break to keep
// the channel update first in the replay.
func threadRowIntroducedBy(c *hubcore.ChannelUpdateRow, t *hubcore.ThreadUpdateRow) bool {
	if c.Reason != chanstate.RsnOpenThread && c.Reason != chanstate.RsnCloseThread {
		return false
	}
	ts, ok := c.Args.(chanstate.ThreadState)
	if !ok {
		return false
	}
	return ts.Sender == t.Sender && ts.Receiver == t.Receiver &&
		(c.Reason == chanstate.RsnCloseThread) == t.Closed
}

func channelResult(r *hubcore.ChannelUpdateRow) SyncResult {
	tc := r.State.TxCountGlobal
	return SyncResult{Type: "channel", Channel: &SyncChannelUpdate{
		ID:        r.ID,
		Reason:    r.Reason,
		Args:      r.Args,
		State:     r.State,
		TxCount:   &tc,
		CreatedOn: r.CreatedOn,
	}}
}
