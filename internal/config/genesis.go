// Package config loads the genesis file: the governor and the initial
// protocol configuration, expressed as decimal strings.
package config

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"PerpVault/internal/event"
	fpmath "PerpVault/internal/math"
	"PerpVault/internal/state"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Genesis mirrors the YAML file.
type Genesis struct {
	Governor    uuid.UUID     `yaml:"governor"`
	Params      ParamsSpec    `yaml:"params"`
	Vault       *VaultSpec    `yaml:"vault"`
	Products    []ProductSpec `yaml:"products"`
	Managers    []uuid.UUID   `yaml:"managers"`
	Liquidators []uuid.UUID   `yaml:"liquidators"`
}

// ParamsSpec overrides protocol defaults. Empty fields keep the default.
type ParamsSpec struct {
	MaxShift              string        `yaml:"max_shift"`
	MinProfitTime         time.Duration `yaml:"min_profit_time"`
	MinMargin             string        `yaml:"min_margin"`
	LiquidationBounty     string        `yaml:"liquidation_bounty"`
	ExposureMultiplier    string        `yaml:"exposure_multiplier"`
	AllowPublicLiquidator bool          `yaml:"allow_public_liquidator"`
	AllowPublicStake      bool          `yaml:"allow_public_stake"`
	ProtocolRewardRatio   string        `yaml:"protocol_reward_ratio"`
	StakingRewardRatio    string        `yaml:"staking_reward_ratio"`
	VaultRewardRatio      string        `yaml:"vault_reward_ratio"`
}

type VaultSpec struct {
	Cap      string        `yaml:"cap"`
	Cooldown time.Duration `yaml:"cooldown"`
}

type ProductSpec struct {
	ID                   uint32 `yaml:"id"`
	Feed                 string `yaml:"feed"`
	MaxLeverage          string `yaml:"max_leverage"`
	Fee                  string `yaml:"fee"`
	LiquidationThreshold string `yaml:"liquidation_threshold"`
	MinPriceChange       string `yaml:"min_price_change"`
	Weight               int64  `yaml:"weight"`
	MaxExposure          string `yaml:"max_exposure"`
	Reserve              string `yaml:"reserve"`
	Active               *bool  `yaml:"active"`
}

// Load reads and validates a genesis file.
func Load(path string) (*Genesis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis: %w", err)
	}
	return Parse(data)
}

// Parse decodes a genesis document. Unknown keys are rejected.
func Parse(data []byte) (*Genesis, error) {
	var g Genesis
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&g); err != nil {
		return nil, fmt.Errorf("decode genesis: %w", err)
	}
	if g.Governor == uuid.Nil {
		return nil, errors.New("genesis: governor is required")
	}
	// Resolve everything up front so a bad file fails at startup.
	if _, err := g.Commands(time.Unix(0, 0)); err != nil {
		return nil, err
	}
	return &g, nil
}

// ToParams applies the overrides to state.DefaultParams.
func (p ParamsSpec) ToParams() (state.Params, error) {
	out := state.DefaultParams()
	fields := []struct {
		name string
		raw  string
		dc   fpmath.DecimalConfig
		dst  func(int64)
	}{
		{"max_shift", p.MaxShift, fpmath.PriceConfig, func(v int64) { out.MaxShift = v }},
		{"min_margin", p.MinMargin, fpmath.AmountConfig, func(v int64) { out.MinMargin = fpmath.Amount(v) }},
		{"liquidation_bounty", p.LiquidationBounty, fpmath.BPSConfig, func(v int64) { out.LiquidationBounty = fpmath.BPS(v) }},
		{"exposure_multiplier", p.ExposureMultiplier, fpmath.BPSConfig, func(v int64) { out.ExposureMultiplier = fpmath.BPS(v) }},
		{"protocol_reward_ratio", p.ProtocolRewardRatio, fpmath.BPSConfig, func(v int64) { out.ProtocolRewardRatio = fpmath.BPS(v) }},
		{"staking_reward_ratio", p.StakingRewardRatio, fpmath.BPSConfig, func(v int64) { out.StakingRewardRatio = fpmath.BPS(v) }},
		{"vault_reward_ratio", p.VaultRewardRatio, fpmath.BPSConfig, func(v int64) { out.VaultRewardRatio = fpmath.BPS(v) }},
	}
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		v, err := fpmath.ParseFixed(f.raw, f.dc)
		if err != nil {
			return state.Params{}, fmt.Errorf("params.%s: %w", f.name, err)
		}
		f.dst(v)
	}
	if p.MinProfitTime != 0 {
		out.MinProfitTime = int64(p.MinProfitTime / time.Second)
	}
	out.AllowPublicLiquidator = p.AllowPublicLiquidator
	out.AllowPublicStake = p.AllowPublicStake

	if err := state.ValidateParams(out); err != nil {
		return state.Params{}, fmt.Errorf("params: %w", err)
	}
	return out, nil
}

// ToConfig converts a product entry. Products are active unless the file
// says otherwise.
func (p ProductSpec) ToConfig() (state.ProductConfig, error) {
	if p.ID == 0 {
		return state.ProductConfig{}, errors.New("product id must be > 0")
	}
	cfg := state.ProductConfig{Feed: p.Feed, Weight: p.Weight, Active: p.Active == nil || *p.Active}

	fields := []struct {
		name string
		raw  string
		dc   fpmath.DecimalConfig
		dst  func(int64)
	}{
		{"max_leverage", p.MaxLeverage, fpmath.LeverageConfig, func(v int64) { cfg.MaxLeverage = fpmath.Leverage(v) }},
		{"fee", p.Fee, fpmath.BPSConfig, func(v int64) { cfg.Fee = fpmath.BPS(v) }},
		{"liquidation_threshold", p.LiquidationThreshold, fpmath.BPSConfig, func(v int64) { cfg.LiquidationThreshold = fpmath.BPS(v) }},
		{"min_price_change", p.MinPriceChange, fpmath.BPSConfig, func(v int64) { cfg.MinPriceChange = fpmath.BPS(v) }},
		{"max_exposure", p.MaxExposure, fpmath.AmountConfig, func(v int64) { cfg.MaxExposure = fpmath.Amount(v) }},
		{"reserve", p.Reserve, fpmath.AmountConfig, func(v int64) { cfg.Reserve = fpmath.Amount(v) }},
	}
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		v, err := fpmath.ParseFixed(f.raw, f.dc)
		if err != nil {
			return state.ProductConfig{}, fmt.Errorf("product %d %s: %w", p.ID, f.name, err)
		}
		f.dst(v)
	}
	if err := state.ValidateProduct(cfg); err != nil {
		return state.ProductConfig{}, fmt.Errorf("product %d: %w", p.ID, err)
	}
	return cfg, nil
}

// Commands turns the file into governor commands stamped at.
//
// Request ids are derived from each command's content, so restarting with
// an unchanged file is deduplicated by the core while an edited entry is
// applied as a new update.
func (g *Genesis) Commands(at time.Time) ([]event.Event, error) {
	params, err := g.Params.ToParams()
	if err != nil {
		return nil, err
	}

	var cmds []event.Event
	add := func(name string, body any, build func(event.Header) event.Event) error {
		content, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("genesis %s: %w", name, err)
		}
		hdr := event.Header{
			RequestID: requestID(g.Governor, name, content),
			Caller:    g.Governor,
			Timestamp: at.UTC(),
		}
		cmds = append(cmds, build(hdr))
		return nil
	}

	if err := add("params", params, func(h event.Header) event.Event {
		return &event.ParametersUpdate{Header: h, Params: params}
	}); err != nil {
		return nil, err
	}

	if g.Vault != nil {
		vaultCap, err := fpmath.ParseFixed(g.Vault.Cap, fpmath.AmountConfig)
		if err != nil {
			return nil, fmt.Errorf("vault.cap: %w", err)
		}
		cooldown := int64(g.Vault.Cooldown / time.Second)
		if vaultCap < 0 || cooldown < 0 {
			return nil, errors.New("vault: cap and cooldown must be >= 0")
		}
		if err := add("vault", [2]int64{vaultCap, cooldown}, func(h event.Header) event.Event {
			return &event.VaultConfigUpdate{Header: h, Cap: fpmath.Amount(vaultCap), Cooldown: cooldown}
		}); err != nil {
			return nil, err
		}
	}

	seen := make(map[uint32]bool, len(g.Products))
	for _, p := range g.Products {
		cfg, err := p.ToConfig()
		if err != nil {
			return nil, err
		}
		if seen[p.ID] {
			return nil, fmt.Errorf("product %d listed twice", p.ID)
		}
		seen[p.ID] = true
		id := p.ID
		if err := add(fmt.Sprintf("product/%d", id), cfg, func(h event.Header) event.Event {
			return &event.ProductUpsert{Header: h, Product: id, Config: cfg}
		}); err != nil {
			return nil, err
		}
	}

	for _, m := range g.Managers {
		if err := add("manager/"+m.String(), true, func(h event.Header) event.Event {
			return &event.ManagerUpdate{Header: h, Manager: m, Enabled: true}
		}); err != nil {
			return nil, err
		}
	}
	for _, l := range g.Liquidators {
		if err := add("liquidator/"+l.String(), true, func(h event.Header) event.Event {
			return &event.LiquidatorUpdate{Header: h, Liquidator: l, Enabled: true}
		}); err != nil {
			return nil, err
		}
	}
	return cmds, nil
}

var genesisNamespace = uuid.MustParse("6f1c7c2e-55a8-4b0e-9d7e-3c1f0b8a9e42")

func requestID(gov uuid.UUID, name string, content []byte) uuid.UUID {
	h := sha256.New()
	h.Write(gov[:])
	h.Write([]byte(name))
	h.Write(content)
	return uuid.NewSHA1(genesisNamespace, h.Sum(nil))
}
