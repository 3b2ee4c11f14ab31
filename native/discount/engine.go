package discount

import (
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/holiman/uint256"

	"dinechain/core/events"
	"dinechain/native/common"
)

// Reader is the read-only view of chain state the ledger queries need.
type Reader interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVGetList(key []byte, out interface{}) error
}

// State describes the minimal functionality the ledger needs from the
// surrounding state implementation during a mutation. TransferFrom settles in
// the payment token and must leave no trace when it fails.
type State interface {
	Reader
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
	KVAppend(key []byte, value []byte) error
	TransferFrom(spender, from, to [20]byte, amount *big.Int) error
	Emit(events.Event)
}

// Engine applies the discount ledger rules. It keeps no mutable state of its
// own; every record lives in the State passed to each call, so the caller
// controls atomicity and ordering.
type Engine struct {
	params Params
	fixed  fixedParams
	admin  [20]byte
	pauses common.PauseView
}

// NewEngine validates the configuration and returns an engine for it.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Params.Validate(); err != nil {
		return nil, err
	}
	params := cfg.Params.Clone()
	return &Engine{params: params, fixed: params.fixed(), admin: cfg.Admin}, nil
}

// SetPauses wires the pause view consulted before every mutation.
func (e *Engine) SetPauses(p common.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// Params returns a copy of the pricing parameters.
func (e *Engine) Params() Params { return e.params.Clone() }

// Admin returns the administrative identity allowed to remove restaurants.
func (e *Engine) Admin() [20]byte { return e.admin }

// StoreConfig persists the ledger configuration. Genesis calls it exactly once.
func StoreConfig(st State, cfg Config) error {
	if err := cfg.Params.Validate(); err != nil {
		return err
	}
	return st.KVPut(configKey, &cfg)
}

// LoadConfig reads the persisted ledger configuration.
func LoadConfig(st Reader) (*Config, error) {
	cfg := new(Config)
	ok, err := st.KVGet(configKey, cfg)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotConfigured
	}
	return cfg, nil
}

// RegisterRestaurant registers caller as a restaurant bound to placeID.
func (e *Engine) RegisterRestaurant(st State, caller [20]byte, placeID string, now uint64) (*Restaurant, error) {
	if err := common.Guard(e.pauses, common.ModuleDiscount); err != nil {
		return nil, err
	}
	record, err := e.Restaurant(st, caller)
	if err != nil {
		return nil, err
	}
	if record.Registered {
		return nil, ErrAlreadyRegistered
	}
	placeID = strings.TrimSpace(placeID)
	if placeID == "" {
		return nil, ErrInvalidPlaceID
	}
	var bound [20]byte
	ok, err := st.KVGet(placeKey(placeID), &bound)
	if err != nil {
		return nil, err
	}
	if ok && bound != caller {
		return nil, fmt.Errorf("%w: %s", ErrPlaceIDBound, placeID)
	}
	seq, err := nextSequence(st)
	if err != nil {
		return nil, err
	}
	record = &Restaurant{
		Address:      caller,
		PlaceID:      placeID,
		Registered:   true,
		Sequence:     seq,
		RegisteredAt: now,
	}
	if err := st.KVPut(recordKey(caller), record); err != nil {
		return nil, err
	}
	if err := st.KVPut(placeKey(placeID), caller); err != nil {
		return nil, err
	}
	if err := st.KVAppend(registryKey, caller[:]); err != nil {
		return nil, err
	}
	if err := st.KVDelete(historyKey(caller)); err != nil {
		return nil, err
	}
	st.Emit(events.RestaurantRegistered{Restaurant: caller, PlaceID: placeID, Sequence: seq})
	return record, nil
}

// RemoveRestaurant clears the registration of target. Only the admin may call
// it. The place id binding and payment history are released.
func (e *Engine) RemoveRestaurant(st State, caller, target [20]byte, now uint64) error {
	if err := common.Guard(e.pauses, common.ModuleDiscount); err != nil {
		return err
	}
	if caller != e.admin {
		return ErrUnauthorized
	}
	record, err := e.Restaurant(st, target)
	if err != nil {
		return err
	}
	if !record.Registered {
		return ErrNotRegistered
	}
	placeID := record.PlaceID
	record.Registered = false
	record.PlaceID = ""
	if err := st.KVPut(recordKey(target), record); err != nil {
		return err
	}
	if placeID != "" {
		if err := st.KVDelete(placeKey(placeID)); err != nil {
			return err
		}
	}
	if err := st.KVDelete(historyKey(target)); err != nil {
		return err
	}
	st.Emit(events.RestaurantRemoved{Restaurant: target, PlaceID: placeID, Caller: caller})
	return nil
}

// Pay settles a discounted payment from payer to restaurant. The discount is
// priced on the volume of the rolling window before this payment, and the
// requested amount (not the settled one) joins the window afterwards.
func (e *Engine) Pay(st State, payer, restaurant [20]byte, amount *big.Int, now uint64) (*Quote, error) {
	if err := common.Guard(e.pauses, common.ModuleDiscount); err != nil {
		return nil, err
	}
	record, err := e.Restaurant(st, restaurant)
	if err != nil {
		return nil, err
	}
	if !record.Registered {
		return nil, ErrNotRegistered
	}
	requested, err := positiveAmount(amount)
	if err != nil {
		return nil, err
	}
	history, err := e.window(st, restaurant, now)
	if err != nil {
		return nil, err
	}
	q := quote(e.fixed, history, requested)
	if err := st.TransferFrom(ModuleAddress, payer, restaurant, q.AdjustedAmount); err != nil {
		return nil, err
	}
	history = append(history, Payment{Timestamp: now, Amount: new(big.Int).Set(amount)})
	if err := st.KVPut(historyKey(restaurant), history); err != nil {
		return nil, err
	}
	st.Emit(events.PaymentProcessed{
		Payer:          payer,
		Restaurant:     restaurant,
		OriginalAmount: new(big.Int).Set(amount),
		AdjustedAmount: new(big.Int).Set(q.AdjustedAmount),
		CustomRatio:    new(big.Int).Set(q.CustomRatio),
		Timestamp:      now,
	})
	return q, nil
}

// CalculateCustomRatio returns the ratio a payment to restaurant would receive
// at time now.
func (e *Engine) CalculateCustomRatio(st Reader, restaurant [20]byte, now uint64) (*big.Int, error) {
	q, err := e.preview(st, restaurant, nil, now)
	if err != nil {
		return nil, err
	}
	return q.CustomRatio, nil
}

// PreviewPayment prices amount exactly as Pay would at time now without
// touching state.
func (e *Engine) PreviewPayment(st Reader, restaurant [20]byte, amount *big.Int, now uint64) (*Quote, error) {
	requested, err := positiveAmount(amount)
	if err != nil {
		return nil, err
	}
	return e.preview(st, restaurant, requested, now)
}

func (e *Engine) preview(st Reader, restaurant [20]byte, amount *uint256.Int, now uint64) (*Quote, error) {
	record, err := e.Restaurant(st, restaurant)
	if err != nil {
		return nil, err
	}
	if !record.Registered {
		return nil, ErrNotRegistered
	}
	history, err := e.window(st, restaurant, now)
	if err != nil {
		return nil, err
	}
	return quote(e.fixed, history, amount), nil
}

// RestaurantsByRatio lists active restaurants ordered by ascending ratio, so
// the deepest discounts come first. Equal ratios keep registration order.
func (e *Engine) RestaurantsByRatio(st Reader, now uint64) ([]RestaurantRatio, error) {
	var addrs [][]byte
	if err := st.KVGetList(registryKey, &addrs); err != nil {
		return nil, err
	}
	out := make([]RestaurantRatio, 0, len(addrs))
	for _, raw := range addrs {
		var addr [20]byte
		copy(addr[:], raw)
		record, err := e.Restaurant(st, addr)
		if err != nil {
			return nil, err
		}
		if !record.Registered {
			continue
		}
		history, err := e.window(st, addr, now)
		if err != nil {
			return nil, err
		}
		out = append(out, RestaurantRatio{
			Address:  addr,
			PlaceID:  record.PlaceID,
			Ratio:    customRatio(e.fixed, recentVolume(history)).ToBig(),
			Sequence: record.Sequence,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if c := out[i].Ratio.Cmp(out[j].Ratio); c != 0 {
			return c < 0
		}
		return out[i].Sequence < out[j].Sequence
	})
	return out, nil
}

// Restaurant returns the stored record for addr. Unknown addresses yield an
// empty, unregistered record.
func (e *Engine) Restaurant(st Reader, addr [20]byte) (*Restaurant, error) {
	record := new(Restaurant)
	ok, err := st.KVGet(recordKey(addr), record)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &Restaurant{Address: addr}, nil
	}
	return record, nil
}

// RestaurantByPlaceID resolves the active restaurant bound to placeID.
func (e *Engine) RestaurantByPlaceID(st Reader, placeID string) (*Restaurant, error) {
	placeID = strings.TrimSpace(placeID)
	if placeID == "" {
		return nil, ErrInvalidPlaceID
	}
	var addr [20]byte
	ok, err := st.KVGet(placeKey(placeID), &addr)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotRegistered
	}
	record, err := e.Restaurant(st, addr)
	if err != nil {
		return nil, err
	}
	if !record.Registered {
		return nil, ErrNotRegistered
	}
	return record, nil
}

// window returns the unexpired payments of restaurant at time now.
func (e *Engine) window(st Reader, restaurant [20]byte, now uint64) ([]Payment, error) {
	var history []Payment
	if err := st.KVGetList(historyKey(restaurant), &history); err != nil {
		return nil, err
	}
	return pruneExpired(history, now, e.params.TimeWindow), nil
}

func nextSequence(st State) (uint64, error) {
	var seq uint64
	if _, err := st.KVGet(sequenceKey, &seq); err != nil {
		return 0, err
	}
	seq++
	if err := st.KVPut(sequenceKey, seq); err != nil {
		return 0, err
	}
	return seq, nil
}

func positiveAmount(amount *big.Int) (*uint256.Int, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	value, overflow := uint256.FromBig(amount)
	if overflow {
		return nil, fmt.Errorf("%w: exceeds 256 bits", ErrInvalidAmount)
	}
	return value, nil
}
