package query

import (
	"context"
	"database/sql"
	"errors"

	"PerpVault/internal/ledger"
	fpmath "PerpVault/internal/math"

	"github.com/google/uuid"
)

// BalanceResponse represents a trader's collateral as projected from the
// journal.
type BalanceResponse struct {
	Owner        uuid.UUID `json:"owner"`
	Available    string    `json:"available"` // free collateral
	Margin       string    `json:"margin"`    // posted to open positions
	Total        string    `json:"total"`
	AsOfSequence int64     `json:"as_of_sequence"`
}

// VaultResponse summarizes the liquidity vault.
type VaultResponse struct {
	Balance      string `json:"balance"`
	Staked       string `json:"staked"`
	Shares       string `json:"shares"`
	Stakers      int64  `json:"stakers"`
	AsOfSequence int64  `json:"as_of_sequence"`
}

// FeePoolsResponse holds unclaimed fees per pool.
type FeePoolsResponse struct {
	Protocol     string `json:"protocol"`
	Staking      string `json:"staking"`
	Vault        string `json:"vault"`
	AsOfSequence int64  `json:"as_of_sequence"`
}

// GetBalance returns a trader's free and posted collateral.
func (qs *QueryService) GetBalance(ctx context.Context, owner uuid.UUID) (resp *BalanceResponse, err error) {
	defer qs.observe("balance", &err)()

	asOf, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}
	free, err := qs.getProjectedBalance(ctx, ledger.NewUserAccountKey(owner, ledger.SubTypeCollateral))
	if err != nil {
		return nil, err
	}
	margin, err := qs.getProjectedBalance(ctx, ledger.NewUserAccountKey(owner, ledger.SubTypeMargin))
	if err != nil {
		return nil, err
	}
	return &BalanceResponse{
		Owner:        owner,
		Available:    fpmath.Amount(free).String(),
		Margin:       fpmath.Amount(margin).String(),
		Total:        fpmath.Amount(free + margin).String(),
		AsOfSequence: asOf,
	}, nil
}

// GetVault returns vault totals from the balance and stake projections.
func (qs *QueryService) GetVault(ctx context.Context) (resp *VaultResponse, err error) {
	defer qs.observe("vault", &err)()

	asOf, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}
	balance, err := qs.getProjectedBalance(ctx, ledger.VaultAccount)
	if err != nil {
		return nil, err
	}
	var staked, shares, stakers int64
	if err := qs.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(staked - redeemed), 0), COALESCE(SUM(shares), 0), COUNT(*) FILTER (WHERE shares > 0)
		FROM projections.stakes
	`).Scan(&staked, &shares, &stakers); err != nil {
		return nil, err
	}
	return &VaultResponse{
		Balance:      fpmath.Amount(balance).String(),
		Staked:       fpmath.Amount(staked).String(),
		Shares:       fpmath.Amount(shares).String(),
		Stakers:      stakers,
		AsOfSequence: asOf,
	}, nil
}

// GetFeePools returns the unclaimed fee pools.
func (qs *QueryService) GetFeePools(ctx context.Context) (resp *FeePoolsResponse, err error) {
	defer qs.observe("fee_pools", &err)()

	asOf, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}
	var pools [3]int64
	for i, acct := range []ledger.AccountKey{
		ledger.ProtocolFeeAccount, ledger.StakingFeeAccount, ledger.VaultFeeAccount,
	} {
		if pools[i], err = qs.getProjectedBalance(ctx, acct); err != nil {
			return nil, err
		}
	}
	return &FeePoolsResponse{
		Protocol:     fpmath.Amount(pools[0]).String(),
		Staking:      fpmath.Amount(pools[1]).String(),
		Vault:        fpmath.Amount(pools[2]).String(),
		AsOfSequence: asOf,
	}, nil
}

func (qs *QueryService) getProjectedBalance(ctx context.Context, key ledger.AccountKey) (int64, error) {
	var balance int64
	err := qs.db.QueryRowContext(ctx, `
		SELECT balance FROM projections.balances WHERE account_path = $1
	`, key.AccountPath()).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return balance, err
}
