package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/big"
	"sync"
	"time"

	"dinechain/core/events"
	"dinechain/core/genesis"
	chainstate "dinechain/core/state"
	"dinechain/core/types"
	"dinechain/native/bank"
	"dinechain/native/common"
	"dinechain/native/discount"
	"dinechain/storage"
)

var (
	// ErrNonceMismatch is returned when a transaction nonce differs from the
	// sender's next expected nonce.
	ErrNonceMismatch = errors.New("nonce mismatch")
	// ErrInvalidTransaction covers malformed transaction payloads.
	ErrInvalidTransaction = errors.New("invalid transaction")
	// ErrReceiptNotFound is returned when no committed transaction has the hash.
	ErrReceiptNotFound = errors.New("receipt not found")
)

const (
	noncePrefix   = "account/nonce/"
	receiptPrefix = "receipt/"
)

// Node is the single writer of the ledger. Transactions are applied one at a
// time inside a state journal that commits atomically or not at all; queries
// read committed state only.
type Node struct {
	mu      sync.RWMutex
	db      storage.Database
	state   *chainstate.Manager
	token   *bank.Token
	ledger  *discount.Engine
	stream  *EventStream
	emitter events.Emitter
	clock   func() time.Time
	logger  *slog.Logger
	chainID uint64

	quota      common.Quota
	quotaUsage map[[20]byte]common.QuotaUsage
	quotaEpoch uint64
	pauses     common.PauseView
}

// txState adapts a journal to the state interfaces of the native modules.
// Events are buffered until the journal commits.
type txState struct {
	*chainstate.Journal
	token  *bank.Token
	buffer *events.Buffer
	pauses common.PauseView
}

func (s *txState) Emit(e events.Event) { s.buffer.Emit(e) }

func (s *txState) TransferFrom(spender, from, to [20]byte, amount *big.Int) error {
	if err := common.Guard(s.pauses, common.ModuleToken); err != nil {
		return err
	}
	return s.token.TransferFrom(s, spender, from, to, amount)
}

// NewNode opens the ledger stored in db. When the database holds no genesis
// yet, spec is applied first; otherwise the stored configuration wins and spec
// is ignored.
func NewNode(db storage.Database, spec *genesis.Spec, logger *slog.Logger) (*Node, error) {
	if db == nil {
		return nil, fmt.Errorf("database must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	n := &Node{
		db:         db,
		state:      chainstate.NewManager(db),
		token:      bank.NewToken(),
		stream:     NewEventStream(0),
		emitter:    events.NoopEmitter{},
		clock:      time.Now,
		logger:     logger,
		quotaUsage: make(map[[20]byte]common.QuotaUsage),
	}
	applied, err := genesis.Applied(n.state)
	if err != nil {
		return nil, err
	}
	if !applied {
		if spec == nil {
			return nil, fmt.Errorf("database has no genesis and no genesis spec was provided")
		}
		if err := n.applyGenesis(spec); err != nil {
			return nil, err
		}
	}
	chainID, err := genesis.StoredChainID(n.state)
	if err != nil {
		return nil, err
	}
	n.chainID = chainID
	cfg, err := discount.LoadConfig(n.state)
	if err != nil {
		return nil, err
	}
	ledger, err := discount.NewEngine(*cfg)
	if err != nil {
		return nil, err
	}
	n.ledger = ledger
	if spec != nil && applied {
		if !sameParams(spec.Params(), cfg.Params) || spec.AdminAddress() != cfg.Admin || spec.ChainIDValue() != chainID {
			logger.Warn("genesis spec differs from stored ledger configuration; stored values win")
		}
	}
	return n, nil
}

func sameParams(a, b discount.Params) bool {
	return a.BaseRatio.Cmp(b.BaseRatio) == 0 &&
		a.DecayFactor.Cmp(b.DecayFactor) == 0 &&
		a.MinRatio.Cmp(b.MinRatio) == 0 &&
		a.TimeWindow == b.TimeWindow
}

func (n *Node) applyGenesis(spec *genesis.Spec) error {
	buffer := &events.Buffer{}
	st := &txState{Journal: n.state.Begin(), token: n.token, buffer: buffer}
	if err := genesis.Apply(st, spec); err != nil {
		st.Discard()
		return fmt.Errorf("apply genesis: %w", err)
	}
	if err := st.Commit(); err != nil {
		return fmt.Errorf("commit genesis: %w", err)
	}
	n.logger.Info("genesis applied",
		slog.Time("genesis_time", spec.GenesisTimestamp()),
		slog.Int("events", len(buffer.Events())))
	return nil
}

// SetEmitter wires the downstream consumer of committed events. The node's own
// event stream always receives them as well.
func (n *Node) SetEmitter(em events.Emitter) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if em == nil {
		em = events.NoopEmitter{}
	}
	n.emitter = em
}

// SetClock overrides the block time source.
func (n *Node) SetClock(clock func() time.Time) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if clock != nil {
		n.clock = clock
	}
}

// SetPauses wires the operator pause switches into the native modules.
func (n *Node) SetPauses(p common.PauseView) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pauses = p
	n.ledger.SetPauses(p)
}

// SetQuota configures the per-sender transaction quota.
func (n *Node) SetQuota(q common.Quota) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.quota = q
	n.quotaUsage = make(map[[20]byte]common.QuotaUsage)
	n.quotaEpoch = 0
}

// ChainID identifies this deployment in transaction signatures.
func (n *Node) ChainID() uint64 { return n.chainID }

// Events exposes the committed event stream.
func (n *Node) Events() *EventStream { return n.stream }

// SubmitTransaction verifies, executes and commits a signed transaction. Any
// failure leaves state untouched and does not consume the nonce.
func (n *Node) SubmitTransaction(tx *types.Transaction) (*types.Receipt, error) {
	if tx == nil {
		return nil, fmt.Errorf("%w: nil transaction", ErrInvalidTransaction)
	}
	if !tx.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown type %d", ErrInvalidTransaction, tx.Type)
	}
	if tx.ChainID != n.chainID {
		return nil, fmt.Errorf("%w: chain id %d, want %d", ErrInvalidTransaction, tx.ChainID, n.chainID)
	}
	hash, err := tx.Hash()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTransaction, err)
	}
	fromBytes, err := tx.From()
	if err != nil {
		return nil, err
	}
	var sender [20]byte
	copy(sender[:], fromBytes)

	n.mu.Lock()
	defer n.mu.Unlock()

	expected, err := n.nonce(n.state, sender)
	if err != nil {
		return nil, err
	}
	if tx.Nonce != expected {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrNonceMismatch, expected, tx.Nonce)
	}
	now := uint64(n.clock().Unix())
	usage, err := n.checkQuota(sender, tx, now)
	if err != nil {
		return nil, err
	}

	buffer := &events.Buffer{}
	st := &txState{Journal: n.state.Begin(), token: n.token, buffer: buffer, pauses: n.pauses}
	if err := n.execute(st, sender, tx, now); err != nil {
		st.Discard()
		return nil, err
	}
	receipt := &types.Receipt{
		TxHash:    hash,
		Sender:    append([]byte(nil), sender[:]...),
		Type:      tx.Type,
		Nonce:     tx.Nonce,
		Timestamp: now,
		Events:    events.ToWire(buffer.Events()),
	}
	encoded, err := json.Marshal(receipt)
	if err != nil {
		st.Discard()
		return nil, err
	}
	if err := st.KVPut(receiptKey(hash), encoded); err != nil {
		st.Discard()
		return nil, err
	}
	if err := st.KVPut(nonceKey(sender), tx.Nonce+1); err != nil {
		st.Discard()
		return nil, err
	}
	if err := st.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	if n.quota.Enabled() {
		n.recordQuota(sender, usage)
	}
	buffer.Flush(events.Fanout{n.stream.Emitter(hash, now), n.emitter})
	return receipt, nil
}

func (n *Node) execute(st *txState, sender [20]byte, tx *types.Transaction, now uint64) error {
	switch tx.Type {
	case types.TxTypeRegisterRestaurant:
		_, err := n.ledger.RegisterRestaurant(st, sender, string(tx.Data), now)
		return err
	case types.TxTypeRemoveRestaurant:
		target, err := recipient(tx)
		if err != nil {
			return err
		}
		return n.ledger.RemoveRestaurant(st, sender, target, now)
	case types.TxTypePay:
		target, err := recipient(tx)
		if err != nil {
			return err
		}
		_, err = n.ledger.Pay(st, sender, target, tx.Value, now)
		return err
	case types.TxTypeApprove:
		spender, err := recipient(tx)
		if err != nil {
			return err
		}
		if err := common.Guard(n.pauses, common.ModuleToken); err != nil {
			return err
		}
		return n.token.Approve(st, sender, spender, valueOrZero(tx.Value))
	case types.TxTypeTransfer:
		to, err := recipient(tx)
		if err != nil {
			return err
		}
		if err := common.Guard(n.pauses, common.ModuleToken); err != nil {
			return err
		}
		return n.token.Transfer(st, sender, to, valueOrZero(tx.Value))
	default:
		return fmt.Errorf("%w: unsupported type %s", ErrInvalidTransaction, tx.Type)
	}
}

func (n *Node) checkQuota(sender [20]byte, tx *types.Transaction, now uint64) (common.QuotaUsage, error) {
	if !n.quota.Enabled() {
		return common.QuotaUsage{}, nil
	}
	var volume uint64
	if tx.Type == types.TxTypePay && tx.Value != nil && tx.Value.Sign() > 0 {
		volume = math.MaxUint64
		if tx.Value.IsUint64() {
			volume = tx.Value.Uint64()
		}
	}
	return common.CheckQuota(n.quota, n.quota.Epoch(now), n.quotaUsage[sender], 1, volume)
}

// recordQuota stores usage for sender. When the epoch advances, usage from
// earlier epochs is dropped.
func (n *Node) recordQuota(sender [20]byte, usage common.QuotaUsage) {
	if usage.EpochID > n.quotaEpoch {
		for addr, prev := range n.quotaUsage {
			if prev.EpochID < usage.EpochID {
				delete(n.quotaUsage, addr)
			}
		}
		n.quotaEpoch = usage.EpochID
	}
	n.quotaUsage[sender] = usage
}

func recipient(tx *types.Transaction) ([20]byte, error) {
	var out [20]byte
	if len(tx.To) != 20 {
		return out, fmt.Errorf("%w: recipient must be 20 bytes, got %d", ErrInvalidTransaction, len(tx.To))
	}
	copy(out[:], tx.To)
	return out, nil
}

func valueOrZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}

func nonceKey(addr [20]byte) []byte {
	return append([]byte(noncePrefix), addr[:]...)
}

func receiptKey(hash []byte) []byte {
	return append([]byte(receiptPrefix), hash...)
}

func (n *Node) nonce(st discount.Reader, addr [20]byte) (uint64, error) {
	var nonce uint64
	if _, err := st.KVGet(nonceKey(addr), &nonce); err != nil {
		return 0, err
	}
	return nonce, nil
}

// Now returns the current block time used for queries.
func (n *Node) Now() uint64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return uint64(n.clock().Unix())
}

// Nonce returns the next expected nonce of addr.
func (n *Node) Nonce(addr [20]byte) (uint64, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.nonce(n.state, addr)
}

// Receipt returns the receipt of a committed transaction.
func (n *Node) Receipt(hash []byte) (*types.Receipt, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	var encoded []byte
	ok, err := n.state.KVGet(receiptKey(hash), &encoded)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrReceiptNotFound
	}
	receipt := new(types.Receipt)
	if err := json.Unmarshal(encoded, receipt); err != nil {
		return nil, fmt.Errorf("decode receipt: %w", err)
	}
	return receipt, nil
}

// Restaurant returns the stored registration record of addr.
func (n *Node) Restaurant(addr [20]byte) (*discount.Restaurant, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.ledger.Restaurant(n.state, addr)
}

// RestaurantByPlaceID resolves the active restaurant bound to placeID.
func (n *Node) RestaurantByPlaceID(placeID string) (*discount.Restaurant, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.ledger.RestaurantByPlaceID(n.state, placeID)
}

// CalculateCustomRatio returns the current ratio of restaurant.
func (n *Node) CalculateCustomRatio(restaurant [20]byte) (*big.Int, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.ledger.CalculateCustomRatio(n.state, restaurant, uint64(n.clock().Unix()))
}

// PreviewPayment prices amount against restaurant's current window.
func (n *Node) PreviewPayment(restaurant [20]byte, amount *big.Int) (*discount.Quote, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.ledger.PreviewPayment(n.state, restaurant, amount, uint64(n.clock().Unix()))
}

// RestaurantsByRatio lists active restaurants, deepest discount first.
func (n *Node) RestaurantsByRatio() ([]discount.RestaurantRatio, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.ledger.RestaurantsByRatio(n.state, uint64(n.clock().Unix()))
}

// LedgerConfig returns the immutable pricing parameters and admin.
func (n *Node) LedgerConfig() discount.Config {
	return discount.Config{Params: n.ledger.Params(), Admin: n.ledger.Admin()}
}

// TokenMetadata returns the settlement token description.
func (n *Node) TokenMetadata() (*bank.TokenMetadata, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.token.Metadata(n.state)
}

// Balance returns the settlement token balance of addr.
func (n *Node) Balance(addr [20]byte) (*big.Int, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.token.Balance(n.state, addr)
}

// Allowance returns how much spender may pull from owner.
func (n *Node) Allowance(owner, spender [20]byte) (*big.Int, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.token.Allowance(n.state, owner, spender)
}

// TotalSupply returns the minted supply of the settlement token.
func (n *Node) TotalSupply() (*big.Int, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.token.TotalSupply(n.state)
}
