package genesis

import (
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"dinechain/core/events"
	"dinechain/core/state"
	"dinechain/native/bank"
	"dinechain/native/discount"
	"dinechain/storage"
)

const sampleGenesis = `
genesisTime: "2024-05-01T00:00:00Z"
admin: "0x00000000000000000000000000000000000000aa"
pricing:
  baseRatio: "1000000000000000000"
  decayFactor: "500000000000000000"
  minRatio: "900000000000000000"
  timeWindow: 1h
token:
  symbol: usdt
  name: Tether USD
  decimals: 6
alloc:
  "0x0000000000000000000000000000000000000001": "5000000"
  "0x0000000000000000000000000000000000000002": "7"
restaurants:
  - address: "0x0000000000000000000000000000000000000011"
    placeId: ChIJN1t_tDeuEmsRUsoyG83frY4
`

type genesisState struct {
	*state.Journal
	emitted []events.Event
}

func (s *genesisState) Emit(e events.Event) { s.emitted = append(s.emitted, e) }

func (s *genesisState) TransferFrom(spender, from, to [20]byte, amount *big.Int) error {
	return bank.NewToken().TransferFrom(s, spender, from, to, amount)
}

func TestLoadSpecAndApply(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "genesis.yaml")
	if err := os.WriteFile(path, []byte(sampleGenesis), 0o600); err != nil {
		t.Fatalf("write genesis: %v", err)
	}
	spec, err := LoadSpec(path)
	if err != nil {
		t.Fatalf("load spec: %v", err)
	}
	if spec.Params().TimeWindow != 3600 {
		t.Fatalf("unexpected window %d", spec.Params().TimeWindow)
	}
	if spec.AdminAddress()[19] != 0xaa {
		t.Fatalf("unexpected admin %x", spec.AdminAddress())
	}

	mgr := state.NewManager(storage.NewMemDB())
	st := &genesisState{Journal: mgr.Begin()}
	if err := Apply(st, spec); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := st.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	applied, err := Applied(mgr)
	if err != nil || !applied {
		t.Fatalf("expected genesis marker, got %v %v", applied, err)
	}
	var holder [20]byte
	holder[19] = 0x01
	balance, err := bank.NewToken().Balance(mgr, holder)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Cmp(big.NewInt(5_000_000)) != 0 {
		t.Fatalf("unexpected balance %s", balance)
	}
	meta, err := bank.NewToken().Metadata(mgr)
	if err != nil || meta.Symbol != "USDT" || meta.Decimals != 6 {
		t.Fatalf("unexpected token metadata %+v %v", meta, err)
	}
	cfg, err := discount.LoadConfig(mgr)
	if err != nil {
		t.Fatalf("load ledger config: %v", err)
	}
	engine, err := discount.NewEngine(*cfg)
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	record, err := engine.RestaurantByPlaceID(mgr, "ChIJN1t_tDeuEmsRUsoyG83frY4")
	if err != nil {
		t.Fatalf("seed restaurant: %v", err)
	}
	if record.RegisteredAt != uint64(spec.GenesisTimestamp().Unix()) {
		t.Fatalf("unexpected registration time %d", record.RegisteredAt)
	}

	again := &genesisState{Journal: mgr.Begin()}
	if err := Apply(again, spec); !errors.Is(err, ErrAlreadyApplied) {
		t.Fatalf("expected ErrAlreadyApplied, got %v", err)
	}
}

func TestParseSpecDefaultsPricing(t *testing.T) {
	doc := `
genesisTime: "2024-05-01T00:00:00Z"
admin: "0x00000000000000000000000000000000000000aa"
token:
  symbol: USDT
`
	spec, err := ParseSpec([]byte(doc))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := discount.DefaultParams()
	got := spec.Params()
	if got.BaseRatio.Cmp(want.BaseRatio) != 0 || got.MinRatio.Cmp(want.MinRatio) != 0 || got.TimeWindow != want.TimeWindow {
		t.Fatalf("unexpected default params %+v", got)
	}
}

func TestParseSpecRejectsInvalid(t *testing.T) {
	base := strings.Replace(sampleGenesis, "timeWindow: 1h", "timeWindow: %s", 1)
	cases := map[string]string{
		"unknown field":   sampleGenesis + "extra: true\n",
		"missing admin":   strings.Replace(sampleGenesis, `admin: "0x00000000000000000000000000000000000000aa"`, "", 1),
		"bad window":      strings.Replace(base, "%s", "1500ms", 1),
		"min above base":  strings.Replace(sampleGenesis, `minRatio: "900000000000000000"`, `minRatio: "2000000000000000000"`, 1),
		"negative alloc":  strings.Replace(sampleGenesis, `"7"`, `"-7"`, 1),
		"empty place id":  strings.Replace(sampleGenesis, "placeId: ChIJN1t_tDeuEmsRUsoyG83frY4", `placeId: " "`, 1),
		"bad genesisTime": strings.Replace(sampleGenesis, "2024-05-01T00:00:00Z", "yesterday", 1),
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseSpec([]byte(doc)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestSpecChainID(t *testing.T) {
	explicit, err := ParseSpec([]byte("chainId: 4242\n" + sampleGenesis))
	if err != nil {
		t.Fatalf("parse explicit: %v", err)
	}
	if explicit.ChainIDValue() != 4242 {
		t.Fatalf("unexpected explicit chain id %d", explicit.ChainIDValue())
	}

	derived, err := ParseSpec([]byte(sampleGenesis))
	if err != nil {
		t.Fatalf("parse derived: %v", err)
	}
	again, err := ParseSpec([]byte(sampleGenesis))
	if err != nil {
		t.Fatalf("parse derived: %v", err)
	}
	if derived.ChainIDValue() == 0 || derived.ChainIDValue() != again.ChainIDValue() {
		t.Fatalf("derived chain id not stable: %d vs %d", derived.ChainIDValue(), again.ChainIDValue())
	}
	if derived.ChainIDValue() > maxDerivedChainID {
		t.Fatalf("derived chain id %d exceeds bound", derived.ChainIDValue())
	}
	shifted, err := ParseSpec([]byte(strings.Replace(sampleGenesis, "2024-05-01", "2024-06-01", 1)))
	if err != nil {
		t.Fatalf("parse shifted: %v", err)
	}
	if shifted.ChainIDValue() == derived.ChainIDValue() {
		t.Fatalf("different genesis documents share chain id %d", derived.ChainIDValue())
	}

	if _, err := ParseSpec([]byte("chainId: 0\n" + sampleGenesis)); err == nil {
		t.Fatalf("expected zero chain id to be rejected")
	}

	mgr := state.NewManager(storage.NewMemDB())
	st := &genesisState{Journal: mgr.Begin()}
	if err := Apply(st, explicit); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := st.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	stored, err := StoredChainID(mgr)
	if err != nil || stored != 4242 {
		t.Fatalf("unexpected stored chain id %d %v", stored, err)
	}
	if _, err := StoredChainID(state.NewManager(storage.NewMemDB())); err == nil {
		t.Fatalf("expected error without genesis")
	}
}
