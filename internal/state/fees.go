package state

import fpmath "PerpVault/internal/math"

// FeePools are the pending, unclaimed balances of the three fee destinations.
type FeePools struct {
	Protocol fpmath.Amount `json:"protocol"`
	Staking  fpmath.Amount `json:"staking"`
	Vault    fpmath.Amount `json:"vault"`
}

// FeeSplit is one fee divided across the pools.
type FeeSplit struct {
	Protocol fpmath.Amount
	Staking  fpmath.Amount
	Vault    fpmath.Amount
}

// Total returns the sum of the split.
func (s FeeSplit) Total() fpmath.Amount {
	return s.Protocol + s.Staking + s.Vault
}

// SplitFee divides a trading fee by the configured ratios. The vault pool
// takes the rounding residue so the parts always sum to fee.
func SplitFee(fee fpmath.Amount, p Params) FeeSplit {
	protocol := fee.MulBPS(p.ProtocolRewardRatio)
	staking := fee.MulBPS(p.StakingRewardRatio)
	return FeeSplit{
		Protocol: protocol,
		Staking:  staking,
		Vault:    fee - protocol - staking,
	}
}

// Add credits a fee split and any funding to the pools.
func (fp FeePools) Add(split FeeSplit, funding fpmath.Amount) FeePools {
	return FeePools{
		Protocol: fp.Protocol + split.Protocol,
		Staking:  fp.Staking + split.Staking,
		Vault:    fp.Vault + split.Vault + funding,
	}
}
