package state

import (
	"errors"

	fpmath "PerpVault/internal/math"

	"github.com/google/uuid"
)

var ErrVaultDepleted = errors.New("vault has shares outstanding but no balance")

// Vault is the collateral pool backing every position.
type Vault struct {
	Balance  fpmath.Amount `json:"balance"` // depositor-owned collateral, net of settled PnL
	Staked   fpmath.Amount `json:"staked"`  // principal staked and not yet redeemed
	Shares   fpmath.Amount `json:"shares"`
	Cap      fpmath.Amount `json:"cap"`
	Cooldown int64         `json:"cooldown"` // seconds between last stake and redeem
}

// SharesFor returns the shares minted for a deposit of amount.
// The first depositor receives shares 1:1.
func (v Vault) SharesFor(amount fpmath.Amount) (fpmath.Amount, error) {
	if v.Shares == 0 {
		return amount, nil
	}
	if v.Balance <= 0 {
		return 0, ErrVaultDepleted
	}
	s, err := fpmath.MulDiv(int64(amount), int64(v.Shares), int64(v.Balance), fpmath.RoundDown)
	return fpmath.Amount(s), err
}

// PayoutFor returns the collateral owed for burning shares.
func (v Vault) PayoutFor(shares fpmath.Amount) (fpmath.Amount, error) {
	if v.Shares <= 0 {
		return 0, errors.New("vault has no shares")
	}
	p, err := fpmath.MulDiv(int64(shares), int64(v.Balance), int64(v.Shares), fpmath.RoundDown)
	return fpmath.Amount(p), err
}

// Stake is one depositor's position in the vault.
type Stake struct {
	Owner     uuid.UUID     `json:"owner"`
	Amount    fpmath.Amount `json:"amount"` // principal
	Shares    fpmath.Amount `json:"shares"`
	Timestamp int64         `json:"timestamp"` // unix seconds of last stake
}

// CooldownEnds returns the first unix second at which redeem is allowed.
func (s Stake) CooldownEnds(cooldown int64) int64 {
	return s.Timestamp + cooldown
}

// PrincipalFor returns the share of principal attributable to shares.
func (s Stake) PrincipalFor(shares fpmath.Amount) (fpmath.Amount, error) {
	if s.Shares <= 0 {
		return 0, nil
	}
	if shares >= s.Shares {
		return s.Amount, nil
	}
	p, err := fpmath.MulDiv(int64(s.Amount), int64(shares), int64(s.Shares), fpmath.RoundDown)
	return fpmath.Amount(p), err
}
