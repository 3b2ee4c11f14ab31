package types

// Receipt records the outcome of a committed transaction. Failed transactions
// revert completely and never produce a receipt.
type Receipt struct {
	TxHash    []byte   `json:"txHash"`
	Sender    []byte   `json:"sender"`
	Type      TxType   `json:"type"`
	Nonce     uint64   `json:"nonce"`
	Timestamp uint64   `json:"timestamp"`
	Events    []*Event `json:"events"`
}
