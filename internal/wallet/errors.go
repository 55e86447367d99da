package wallet

import "errors"

var (
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrInsufficientBalance = errors.New("insufficient wallet balance")
	ErrRecoveryMode        = errors.New("wallet is in recovery mode")
	ErrInvalidTDS          = errors.New("TDS must be between zero and the gross bonus")
	ErrNoDiscrepancy       = errors.New("stored balance matches the transaction log")
	ErrHoldExceeded        = errors.New("amount exceeds the held balance")
)
