package ledger

import (
	"strconv"

	"github.com/google/uuid"
)

// batchNamespace seeds deterministic batch and journal ids so that replaying
// the event log reproduces byte-identical journals.
var batchNamespace = uuid.MustParse("6d1c2b0e-3f1a-4c59-9d57-5b6a8f0e7c21")

// JournalGenerator accumulates the legs of one command into a Batch.
type JournalGenerator struct {
	batch *Batch
}

// NewJournalGenerator starts an empty batch for the command identified by eventRef.
func NewJournalGenerator(eventRef string, timestamp int64) *JournalGenerator {
	return &JournalGenerator{
		batch: &Batch{
			BatchID:   uuid.NewSHA1(batchNamespace, []byte(eventRef)),
			EventRef:  eventRef,
			Timestamp: timestamp,
		},
	}
}

// Transfer moves amount from `from` to `to`. Zero amounts are dropped.
func (jg *JournalGenerator) Transfer(from, to AccountKey, amount int64, jt JournalType) *JournalGenerator {
	if amount == 0 {
		return jg
	}
	if amount < 0 {
		from, to, amount = to, from, -amount
	}
	idx := len(jg.batch.Journals)
	jg.batch.Journals = append(jg.batch.Journals, Journal{
		JournalID:     uuid.NewSHA1(jg.batch.BatchID, []byte(strconv.Itoa(idx))),
		BatchID:       jg.batch.BatchID,
		EventRef:      jg.batch.EventRef,
		DebitAccount:  to,
		CreditAccount: from,
		Amount:        amount,
		JournalType:   jt,
		Timestamp:     jg.batch.Timestamp,
	})
	return jg
}

// Batch returns the accumulated batch.
func (jg *JournalGenerator) Batch() *Batch {
	return jg.batch
}

// Deposit: external:deposits → user:collateral
func (jg *JournalGenerator) Deposit(user uuid.UUID, amount int64) *JournalGenerator {
	return jg.Transfer(ExternalDeposits, NewUserAccountKey(user, SubTypeCollateral), amount, JournalTypeDeposit)
}

// Withdraw: user:collateral → external:withdrawals
func (jg *JournalGenerator) Withdraw(user uuid.UUID, amount int64) *JournalGenerator {
	return jg.Transfer(NewUserAccountKey(user, SubTypeCollateral), ExternalWithdrawals, amount, JournalTypeWithdrawal)
}

// PostMargin: user:collateral → user:margin
func (jg *JournalGenerator) PostMargin(user uuid.UUID, amount int64) *JournalGenerator {
	return jg.Transfer(
		NewUserAccountKey(user, SubTypeCollateral),
		NewUserAccountKey(user, SubTypeMargin),
		amount, JournalTypeMarginPost)
}

// ReleaseMargin: user:margin → user:collateral
func (jg *JournalGenerator) ReleaseMargin(user uuid.UUID, amount int64) *JournalGenerator {
	return jg.Transfer(
		NewUserAccountKey(user, SubTypeMargin),
		NewUserAccountKey(user, SubTypeCollateral),
		amount, JournalTypeMarginRelease)
}

// ChargeTradeFee: user:collateral → the three fee pools
func (jg *JournalGenerator) ChargeTradeFee(user uuid.UUID, protocol, staking, vault int64) *JournalGenerator {
	from := NewUserAccountKey(user, SubTypeCollateral)
	jg.Transfer(from, ProtocolFeeAccount, protocol, JournalTypeTradeFee)
	jg.Transfer(from, StakingFeeAccount, staking, JournalTypeTradeFee)
	return jg.Transfer(from, VaultFeeAccount, vault, JournalTypeTradeFee)
}

// ChargeFunding: user:collateral → system:vault_fees
func (jg *JournalGenerator) ChargeFunding(user uuid.UUID, amount int64) *JournalGenerator {
	return jg.Transfer(NewUserAccountKey(user, SubTypeCollateral), VaultFeeAccount, amount, JournalTypeFunding)
}

// SettlePnL moves a realized trade result between the trader and the vault.
// Positive pnl is paid by the vault; negative pnl is paid to it.
func (jg *JournalGenerator) SettlePnL(user uuid.UUID, pnl int64) *JournalGenerator {
	collateral := NewUserAccountKey(user, SubTypeCollateral)
	if pnl >= 0 {
		return jg.Transfer(VaultAccount, collateral, pnl, JournalTypeTradeProfit)
	}
	return jg.Transfer(collateral, VaultAccount, -pnl, JournalTypeTradeLoss)
}

// Liquidate splits a forfeited margin: funding to the vault fee pool, the
// reward to the liquidator's collateral and the remainder to the vault.
func (jg *JournalGenerator) Liquidate(user, liquidator uuid.UUID, margin, funding, reward int64) *JournalGenerator {
	from := NewUserAccountKey(user, SubTypeMargin)
	jg.Transfer(from, VaultFeeAccount, funding, JournalTypeFunding)
	jg.Transfer(from, NewUserAccountKey(liquidator, SubTypeCollateral), reward, JournalTypeLiquidatorReward)
	return jg.Transfer(from, VaultAccount, margin-funding-reward, JournalTypeLiquidationForfeit)
}

// Stake: payer:collateral → system:vault
func (jg *JournalGenerator) Stake(payer uuid.UUID, amount int64) *JournalGenerator {
	return jg.Transfer(NewUserAccountKey(payer, SubTypeCollateral), VaultAccount, amount, JournalTypeStake)
}

// Redeem: system:vault → recipient:collateral
func (jg *JournalGenerator) Redeem(recipient uuid.UUID, amount int64) *JournalGenerator {
	return jg.Transfer(VaultAccount, NewUserAccountKey(recipient, SubTypeCollateral), amount, JournalTypeRedeem)
}

// ClaimFees: fee pool → external:fee_claims
func (jg *JournalGenerator) ClaimFees(pool AccountKey, amount int64) *JournalGenerator {
	return jg.Transfer(pool, ExternalFeeClaims, amount, JournalTypeFeeClaim)
}
