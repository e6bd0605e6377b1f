package hubcore

// Block is the chain tip metadata the engine needs: timeout comparisons
// use block time, never the wall clock.
type Block struct {
	Height    uint64 `json:"height"`
	Timestamp int64  `json:"timestamp"`
}

// BlockReader reads the latest observed block.
type BlockReader interface {
	LatestBlock() (Block, error)
}

// TxMeta rides along with a dispatched settlement transaction and comes
// back with its completion event, so the handler knows which proposal the
// transaction was carrying.
type TxMeta struct {
	User               string `json:"user"`
	LastInvalidTxCount uint64 `json:"lastinvalidtxcount"`
}

// TxSubmission is one settlement transaction handed to the coordinator.
type TxSubmission struct {
	From string `json:"from"`
	To   string `json:"to"`
	Data []byte `json:"data"`
	Meta TxMeta `json:"meta"`
}

// TxCoordinator submits settlement transactions asynchronously.
// SendTransaction returns as soon as the transaction is queued with a
// logical id; resolution arrives later as a TxResolvedEvent on the bus
// the coordinator was built with.
type TxCoordinator interface {
	SendTransaction(sub TxSubmission) (int64, error)
}
