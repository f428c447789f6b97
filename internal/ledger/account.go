package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// AccountScope represents the top-level account namespace
type AccountScope uint8

const (
	AccountScopeUser AccountScope = iota
	AccountScopeSystem
	AccountScopeExternal
)

// AccountSubType represents the account purpose
type AccountSubType uint8

const (
	// User sub-types
	SubTypeCollateral AccountSubType = iota // free collateral, usable for margin, fees and stakes
	SubTypeMargin                           // collateral posted to open positions

	// System sub-types
	SubTypeVault
	SubTypeProtocolFees
	SubTypeStakingFees
	SubTypeVaultFees

	// External sub-types
	SubTypeExternalDeposits
	SubTypeExternalWithdrawals
	SubTypeExternalFeeClaims
)

// AccountKey is the in-memory key for balance tracking
type AccountKey struct {
	Scope    AccountScope
	EntityID [16]byte // user UUID; zero for system and external accounts
	SubType  AccountSubType
}

// NewUserAccountKey creates a key for user accounts
func NewUserAccountKey(userID uuid.UUID, subType AccountSubType) AccountKey {
	return AccountKey{
		Scope:    AccountScopeUser,
		EntityID: userID,
		SubType:  subType,
	}
}

// NewSystemAccountKey creates a key for system accounts
func NewSystemAccountKey(subType AccountSubType) AccountKey {
	return AccountKey{
		Scope:   AccountScopeSystem,
		SubType: subType,
	}
}

// NewExternalAccountKey creates a key for external boundary accounts
func NewExternalAccountKey(subType AccountSubType) AccountKey {
	return AccountKey{
		Scope:   AccountScopeExternal,
		SubType: subType,
	}
}

var (
	VaultAccount        = NewSystemAccountKey(SubTypeVault)
	ProtocolFeeAccount  = NewSystemAccountKey(SubTypeProtocolFees)
	StakingFeeAccount   = NewSystemAccountKey(SubTypeStakingFees)
	VaultFeeAccount     = NewSystemAccountKey(SubTypeVaultFees)
	ExternalDeposits    = NewExternalAccountKey(SubTypeExternalDeposits)
	ExternalWithdrawals = NewExternalAccountKey(SubTypeExternalWithdrawals)
	ExternalFeeClaims   = NewExternalAccountKey(SubTypeExternalFeeClaims)
)

// AccountPath returns the string representation for storage/logging
func (k AccountKey) AccountPath() string {
	switch k.Scope {
	case AccountScopeUser:
		uid := uuid.UUID(k.EntityID)
		return fmt.Sprintf("user:%s:%s", uid.String(), k.subTypeName())
	case AccountScopeSystem:
		return fmt.Sprintf("system:%s", k.subTypeName())
	case AccountScopeExternal:
		return fmt.Sprintf("external:%s", k.subTypeName())
	}
	return "unknown"
}

func (k AccountKey) subTypeName() string {
	switch k.SubType {
	case SubTypeCollateral:
		return "collateral"
	case SubTypeMargin:
		return "margin"
	case SubTypeVault:
		return "vault"
	case SubTypeProtocolFees:
		return "protocol_fees"
	case SubTypeStakingFees:
		return "staking_fees"
	case SubTypeVaultFees:
		return "vault_fees"
	case SubTypeExternalDeposits:
		return "deposits"
	case SubTypeExternalWithdrawals:
		return "withdrawals"
	case SubTypeExternalFeeClaims:
		return "fee_claims"
	default:
		return "unknown"
	}
}
