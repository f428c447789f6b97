package core

import (
	"errors"
	"fmt"

	"PerpVault/internal/event"
	"PerpVault/internal/ledger"
	fpmath "PerpVault/internal/math"
	"PerpVault/internal/state"
)

func (e *Engine) applyStake(tx *txn, cmd *event.Stake) error {
	s := tx.store
	params := s.Params()
	if !params.AllowPublicStake && cmd.Caller != s.Governor() {
		return fmt.Errorf("%w: staking is restricted", ErrUnauthorized)
	}
	if cmd.Amount <= 0 {
		return fmt.Errorf("%w: stake %d", ErrInvalidAmount, cmd.Amount)
	}
	vault := s.Vault()
	if vault.Staked+cmd.Amount > vault.Cap {
		return fmt.Errorf("%w: staked %s + %s > cap %s", ErrDepositCapExceeded, vault.Staked, cmd.Amount, vault.Cap)
	}
	if have := tx.collateral(cmd.Caller); have < cmd.Amount {
		return fmt.Errorf("%w: need %s, have %s", ErrInsufficientCollateral, cmd.Amount, have)
	}

	shares, err := vault.SharesFor(cmd.Amount)
	if err != nil {
		if errors.Is(err, state.ErrVaultDepleted) {
			return fmt.Errorf("%w: %v", ErrVaultInsolvent, err)
		}
		return fmt.Errorf("shares: %w", err)
	}
	if shares <= 0 {
		return fmt.Errorf("%w: %s mints no shares", ErrInvalidAmount, cmd.Amount)
	}

	stake, _ := s.Stake(cmd.Beneficiary)
	stake.Owner = cmd.Beneficiary
	stake.Amount += cmd.Amount
	stake.Shares += shares
	stake.Timestamp = tx.now

	vault.Balance += cmd.Amount
	vault.Staked += cmd.Amount
	vault.Shares += shares

	tx.cs.SetVault(vault)
	tx.cs.PutStake(stake)
	tx.gen.Stake(cmd.Caller, int64(cmd.Amount))
	tx.emit(&event.Staked{
		Payer:       cmd.Caller,
		Beneficiary: cmd.Beneficiary,
		Amount:      cmd.Amount,
		Shares:      shares,
	})
	return nil
}

func (e *Engine) applyRedeem(tx *txn, cmd *event.Redeem) error {
	s := tx.store
	if !state.CanActFor(s, cmd.Beneficiary, cmd.Caller) {
		return fmt.Errorf("%w: %s cannot redeem for %s", ErrUnauthorized, cmd.Caller, cmd.Beneficiary)
	}
	if cmd.Shares <= 0 {
		return fmt.Errorf("%w: shares %d", ErrInvalidAmount, cmd.Shares)
	}
	stake, ok := s.Stake(cmd.Beneficiary)
	if !ok {
		return fmt.Errorf("%w: %s", ErrStakeNotFound, cmd.Beneficiary)
	}
	if cmd.Shares > stake.Shares {
		return fmt.Errorf("%w: redeem %s of %s", ErrInsufficientShares, cmd.Shares, stake.Shares)
	}
	vault := s.Vault()
	if ends := stake.CooldownEnds(vault.Cooldown); tx.now < ends {
		return fmt.Errorf("%w: until %d", ErrCooldownActive, ends)
	}

	payout, err := vault.PayoutFor(cmd.Shares)
	if err != nil {
		return fmt.Errorf("payout: %w", err)
	}
	principal, err := stake.PrincipalFor(cmd.Shares)
	if err != nil {
		return fmt.Errorf("principal: %w", err)
	}

	vault.Balance -= payout
	vault.Staked -= principal
	vault.Shares -= cmd.Shares
	stake.Amount -= principal
	stake.Shares -= cmd.Shares

	tx.cs.SetVault(vault)
	tx.cs.PutStake(stake)
	tx.gen.Redeem(cmd.Recipient, int64(payout))
	tx.emit(&event.Redeemed{
		Beneficiary: cmd.Beneficiary,
		Recipient:   cmd.Recipient,
		Shares:      cmd.Shares,
		Payout:      payout,
	})
	return nil
}

func (e *Engine) applyFeeClaim(tx *txn, cmd *event.FeeClaim) error {
	s := tx.store
	if cmd.Caller != s.Governor() {
		return fmt.Errorf("%w: fee claims are governor-only", ErrUnauthorized)
	}
	pools := s.FeePools()
	var (
		account ledger.AccountKey
		amount  fpmath.Amount
	)
	switch cmd.Pool {
	case event.FeePoolProtocol:
		account, amount = ledger.ProtocolFeeAccount, pools.Protocol
		pools.Protocol = 0
	case event.FeePoolStaking:
		account, amount = ledger.StakingFeeAccount, pools.Staking
		pools.Staking = 0
	case event.FeePoolVault:
		account, amount = ledger.VaultFeeAccount, pools.Vault
		pools.Vault = 0
	default:
		return fmt.Errorf("%w: fee pool %d", ErrInvalidConfig, cmd.Pool)
	}

	tx.cs.SetFeePools(pools)
	tx.gen.ClaimFees(account, int64(amount))
	tx.emit(&event.FeesClaimed{Pool: cmd.Pool, Amount: amount})
	return nil
}
