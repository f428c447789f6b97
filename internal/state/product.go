package state

import (
	"fmt"

	fpmath "PerpVault/internal/math"
)

// ProductConfig is the admin-set configuration of a tradable instrument.
type ProductConfig struct {
	Feed                 string          `json:"feed"`
	MaxLeverage          fpmath.Leverage `json:"max_leverage"`
	Fee                  fpmath.BPS      `json:"fee"`                   // trading fee on notional
	LiquidationThreshold fpmath.BPS      `json:"liquidation_threshold"` // equity/margin floor
	MinPriceChange       fpmath.BPS      `json:"min_price_change"`      // profit floor inside minProfitTime
	Weight               int64           `json:"weight"`
	MaxExposure          fpmath.Amount   `json:"max_exposure"` // per-side open interest cap
	Reserve              fpmath.Amount   `json:"reserve"`      // virtual AMM depth; 0 = vault balance
	Active               bool            `json:"active"`
}

// Product is a configured instrument.
type Product struct {
	ID uint32 `json:"id"`
	ProductConfig
}

// ValidateProduct checks that product configuration is within valid ranges:
// 0 < liquidation threshold < 100%, max leverage >= 1x, fee < 100%, exposure > 0.
func ValidateProduct(cfg ProductConfig) error {
	if cfg.Feed == "" {
		return fmt.Errorf("feed must be set")
	}
	if cfg.MaxLeverage < fpmath.OneX {
		return fmt.Errorf("max_leverage must be >= 1x, got %s", cfg.MaxLeverage)
	}
	if cfg.LiquidationThreshold <= 0 || cfg.LiquidationThreshold >= fpmath.FullBPS {
		return fmt.Errorf("liquidation_threshold must be in (0, %d), got %d",
			fpmath.FullBPS, cfg.LiquidationThreshold)
	}
	if cfg.Fee < 0 || cfg.Fee >= fpmath.FullBPS {
		return fmt.Errorf("fee must be in [0, %d), got %d", fpmath.FullBPS, cfg.Fee)
	}
	if cfg.MinPriceChange < 0 {
		return fmt.Errorf("min_price_change must be >= 0, got %d", cfg.MinPriceChange)
	}
	if cfg.MaxExposure <= 0 {
		return fmt.Errorf("max_exposure must be > 0, got %d", cfg.MaxExposure)
	}
	if cfg.Reserve < 0 {
		return fmt.Errorf("reserve must be >= 0, got %d", cfg.Reserve)
	}
	return nil
}

// Params are protocol-wide settings.
type Params struct {
	MaxShift              int64         `json:"max_shift"`       // 1e8 scale
	MinProfitTime         int64         `json:"min_profit_time"` // seconds
	MinMargin             fpmath.Amount `json:"min_margin"`
	LiquidationBounty     fpmath.BPS    `json:"liquidation_bounty"`  // share of remaining equity
	ExposureMultiplier    fpmath.BPS    `json:"exposure_multiplier"` // side OI <= vault * m; 0 disables
	AllowPublicLiquidator bool          `json:"allow_public_liquidator"`
	AllowPublicStake      bool          `json:"allow_public_stake"`
	ProtocolRewardRatio   fpmath.BPS    `json:"protocol_reward_ratio"`
	StakingRewardRatio    fpmath.BPS    `json:"staking_reward_ratio"`
	VaultRewardRatio      fpmath.BPS    `json:"vault_reward_ratio"`
}

// DefaultParams mirrors the launch configuration: 0.3% max shift, 12h
// minimum profit time, 20/30/50 fee split.
func DefaultParams() Params {
	return Params{
		MaxShift:            300_000,
		MinProfitTime:       12 * 3600,
		LiquidationBounty:   5_000,
		ProtocolRewardRatio: 2_000,
		StakingRewardRatio:  3_000,
		VaultRewardRatio:    5_000,
	}
}

// ValidateParams checks protocol-wide settings.
func ValidateParams(p Params) error {
	if p.MaxShift < 0 {
		return fmt.Errorf("max_shift must be >= 0, got %d", p.MaxShift)
	}
	if p.MinProfitTime < 0 {
		return fmt.Errorf("min_profit_time must be >= 0, got %d", p.MinProfitTime)
	}
	if p.MinMargin < 0 {
		return fmt.Errorf("min_margin must be >= 0, got %d", p.MinMargin)
	}
	if p.LiquidationBounty < 0 || p.LiquidationBounty > fpmath.FullBPS {
		return fmt.Errorf("liquidation_bounty must be in [0, %d], got %d", fpmath.FullBPS, p.LiquidationBounty)
	}
	if p.ExposureMultiplier < 0 {
		return fmt.Errorf("exposure_multiplier must be >= 0, got %d", p.ExposureMultiplier)
	}
	for name, r := range map[string]fpmath.BPS{
		"protocol_reward_ratio": p.ProtocolRewardRatio,
		"staking_reward_ratio":  p.StakingRewardRatio,
		"vault_reward_ratio":    p.VaultRewardRatio,
	} {
		if r < 0 {
			return fmt.Errorf("%s must be >= 0, got %d", name, r)
		}
	}
	if sum := p.ProtocolRewardRatio + p.StakingRewardRatio + p.VaultRewardRatio; sum != fpmath.FullBPS {
		return fmt.Errorf("reward ratios must sum to %d, got %d", fpmath.FullBPS, sum)
	}
	return nil
}
