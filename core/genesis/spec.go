package genesis

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"os"
	"sort"
	"strings"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"gopkg.in/yaml.v3"

	"dinechain/crypto"
	"dinechain/native/bank"
	"dinechain/native/discount"
)

// Spec is the YAML genesis document of a dinechain deployment.
type Spec struct {
	// ChainID separates deployments in transaction signatures. When omitted
	// it is derived from the genesis document itself.
	ChainID     *uint64           `yaml:"chainId"`
	GenesisTime string            `yaml:"genesisTime"`
	Admin       string            `yaml:"admin"`
	Pricing     PricingSpec       `yaml:"pricing"`
	Token       TokenSpec         `yaml:"token"`
	Alloc       map[string]string `yaml:"alloc"` // addr -> amount in base units
	Restaurants []RestaurantSpec  `yaml:"restaurants"`

	chainID          uint64
	genesisTimestamp time.Time
	admin            [20]byte
	params           discount.Params
	alloc            []allocation
	restaurants      []seedRestaurant
}

// PricingSpec carries the discount parameters as decimal strings so 1e18
// scale values survive YAML untouched.
type PricingSpec struct {
	BaseRatio   string `yaml:"baseRatio"`
	DecayFactor string `yaml:"decayFactor"`
	MinRatio    string `yaml:"minRatio"`
	TimeWindow  string `yaml:"timeWindow"`
}

type TokenSpec struct {
	Symbol   string `yaml:"symbol"`
	Name     string `yaml:"name"`
	Decimals uint8  `yaml:"decimals"`
}

type RestaurantSpec struct {
	Address string `yaml:"address"`
	PlaceID string `yaml:"placeId"`
}

type allocation struct {
	addr   [20]byte
	amount *big.Int
}

type seedRestaurant struct {
	addr    [20]byte
	placeID string
}

// LoadSpec reads and validates the genesis file at path.
func LoadSpec(path string) (*Spec, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("genesis spec path must be provided")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis spec %q: %w", path, err)
	}
	spec, err := ParseSpec(raw)
	if err != nil {
		return nil, fmt.Errorf("genesis spec %q: %w", path, err)
	}
	return spec, nil
}

// ParseSpec decodes and validates a YAML genesis document. Unknown fields are
// rejected.
func ParseSpec(raw []byte) (*Spec, error) {
	var spec Spec
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if err := spec.validate(); err != nil {
		return nil, fmt.Errorf("invalid: %w", err)
	}
	if spec.ChainID != nil {
		if *spec.ChainID == 0 {
			return nil, fmt.Errorf("invalid: chainId must be positive")
		}
		spec.chainID = *spec.ChainID
	} else {
		spec.chainID = deriveChainID(raw)
	}
	return &spec, nil
}

// maxDerivedChainID keeps derived ids exact in JSON number consumers.
const maxDerivedChainID = 1<<53 - 1

func deriveChainID(raw []byte) uint64 {
	digest := ethcrypto.Keccak256(bytes.TrimSpace(raw))
	id := binary.BigEndian.Uint64(digest[:8]) & maxDerivedChainID
	if id == 0 {
		id = 1
	}
	return id
}

// ChainIDValue returns the explicit or derived deployment identifier.
func (s *Spec) ChainIDValue() uint64 { return s.chainID }

func (s *Spec) GenesisTimestamp() time.Time { return s.genesisTimestamp }

// AdminAddress returns the resolved administrative identity.
func (s *Spec) AdminAddress() [20]byte { return s.admin }

// Params returns the validated pricing parameters.
func (s *Spec) Params() discount.Params { return s.params.Clone() }

func (s *Spec) validate() error {
	ts, err := parseGenesisTime(s.GenesisTime)
	if err != nil {
		return err
	}
	s.genesisTimestamp = ts

	if strings.TrimSpace(s.Admin) == "" {
		return fmt.Errorf("admin must be provided")
	}
	admin, err := parseAccount(s.Admin)
	if err != nil {
		return fmt.Errorf("admin: %w", err)
	}
	s.admin = admin

	params, err := s.Pricing.params()
	if err != nil {
		return fmt.Errorf("pricing: %w", err)
	}
	s.params = params

	if strings.TrimSpace(s.Token.Symbol) == "" {
		return fmt.Errorf("token: symbol must be provided")
	}
	if s.Token.Decimals > 18 {
		return fmt.Errorf("token: decimals must be 18 or fewer")
	}

	s.alloc = s.alloc[:0]
	for rawAddr, rawAmount := range s.Alloc {
		addr, err := parseAccount(rawAddr)
		if err != nil {
			return fmt.Errorf("alloc[%s]: %w", rawAddr, err)
		}
		amount, err := parseAmountString(rawAmount)
		if err != nil {
			return fmt.Errorf("alloc[%s]: %w", rawAddr, err)
		}
		s.alloc = append(s.alloc, allocation{addr: addr, amount: amount})
	}
	// Map iteration order is random; state writes must not be.
	sort.Slice(s.alloc, func(i, j int) bool {
		return bytes.Compare(s.alloc[i].addr[:], s.alloc[j].addr[:]) < 0
	})

	s.restaurants = s.restaurants[:0]
	seenAddr := make(map[[20]byte]struct{}, len(s.Restaurants))
	seenPlace := make(map[string]struct{}, len(s.Restaurants))
	for i, r := range s.Restaurants {
		addr, err := parseAccount(r.Address)
		if err != nil {
			return fmt.Errorf("restaurants[%d]: %w", i, err)
		}
		placeID := strings.TrimSpace(r.PlaceID)
		if placeID == "" {
			return fmt.Errorf("restaurants[%d]: placeId must be provided", i)
		}
		if _, dup := seenAddr[addr]; dup {
			return fmt.Errorf("restaurants[%d]: duplicate address %s", i, r.Address)
		}
		if _, dup := seenPlace[placeID]; dup {
			return fmt.Errorf("restaurants[%d]: duplicate placeId %q", i, placeID)
		}
		seenAddr[addr] = struct{}{}
		seenPlace[placeID] = struct{}{}
		s.restaurants = append(s.restaurants, seedRestaurant{addr: addr, placeID: placeID})
	}
	return nil
}

func (p PricingSpec) params() (discount.Params, error) {
	params := discount.DefaultParams()
	if v := strings.TrimSpace(p.BaseRatio); v != "" {
		amount, err := parseAmountString(v)
		if err != nil {
			return params, fmt.Errorf("baseRatio: %w", err)
		}
		params.BaseRatio = amount
	}
	if v := strings.TrimSpace(p.DecayFactor); v != "" {
		amount, err := parseAmountString(v)
		if err != nil {
			return params, fmt.Errorf("decayFactor: %w", err)
		}
		params.DecayFactor = amount
	}
	if v := strings.TrimSpace(p.MinRatio); v != "" {
		amount, err := parseAmountString(v)
		if err != nil {
			return params, fmt.Errorf("minRatio: %w", err)
		}
		params.MinRatio = amount
	}
	if v := strings.TrimSpace(p.TimeWindow); v != "" {
		window, err := time.ParseDuration(v)
		if err != nil {
			return params, fmt.Errorf("timeWindow: %w", err)
		}
		if window <= 0 || window%time.Second != 0 {
			return params, fmt.Errorf("timeWindow must be a positive whole number of seconds")
		}
		params.TimeWindow = uint64(window / time.Second)
	}
	if err := params.Validate(); err != nil {
		return params, err
	}
	return params, nil
}

func parseAccount(value string) ([20]byte, error) {
	addr, err := crypto.DecodeAddress(value)
	if err != nil {
		return [20]byte{}, err
	}
	return addr.Array(), nil
}

func parseAmountString(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("amount must not be negative")
	}
	return amount, nil
}

func parseGenesisTime(value string) (time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return time.Time{}, fmt.Errorf("genesisTime must be provided")
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts, nil
	}
	return time.Time{}, fmt.Errorf("invalid genesisTime %q", value)
}

var (
	appliedKey = []byte("genesis/applied")
	chainIDKey = []byte("genesis/chainId")
)

// ErrAlreadyApplied is returned by Apply when state already holds a genesis.
var ErrAlreadyApplied = errors.New("genesis: already applied")

// Applied reports whether a genesis has been written to st.
func Applied(st discount.Reader) (bool, error) {
	var ts uint64
	return st.KVGet(appliedKey, &ts)
}

// StoredChainID returns the chain id recorded when the genesis was applied.
func StoredChainID(st discount.Reader) (uint64, error) {
	var id uint64
	ok, err := st.KVGet(chainIDKey, &id)
	if err != nil {
		return 0, err
	}
	if !ok || id == 0 {
		return 0, fmt.Errorf("genesis: chain id not recorded")
	}
	return id, nil
}

// Apply writes the genesis state: token metadata, allocations, the ledger
// configuration and any seed restaurants. It runs once per database.
func Apply(st discount.State, spec *Spec) error {
	if spec == nil {
		return fmt.Errorf("genesis spec must not be nil")
	}
	applied, err := Applied(st)
	if err != nil {
		return err
	}
	if applied {
		return ErrAlreadyApplied
	}
	ts := uint64(spec.genesisTimestamp.Unix())
	if spec.chainID == 0 {
		return fmt.Errorf("genesis spec has no chain id")
	}
	if err := st.KVPut(chainIDKey, spec.chainID); err != nil {
		return err
	}

	token := bank.NewToken()
	if err := token.Configure(st, bank.TokenMetadata{
		Symbol:   spec.Token.Symbol,
		Name:     spec.Token.Name,
		Decimals: spec.Token.Decimals,
	}); err != nil {
		return fmt.Errorf("configure token: %w", err)
	}
	for _, a := range spec.alloc {
		if err := token.Mint(st, a.addr, a.amount); err != nil {
			return fmt.Errorf("mint: %w", err)
		}
	}

	cfg := discount.Config{Params: spec.params.Clone(), Admin: spec.admin}
	if err := discount.StoreConfig(st, cfg); err != nil {
		return fmt.Errorf("store ledger config: %w", err)
	}
	engine, err := discount.NewEngine(cfg)
	if err != nil {
		return err
	}
	for _, r := range spec.restaurants {
		if _, err := engine.RegisterRestaurant(st, r.addr, r.placeID, ts); err != nil {
			return fmt.Errorf("seed restaurant %x: %w", r.addr, err)
		}
	}
	return st.KVPut(appliedKey, ts)
}
