package errors

// Raised by IncrementBalance when the guarded update matches no wallet row.
var (
	ErrInsufficientBalance = &DomainError{
		Code:    "INSUFFICIENT_BALANCE",
		Message: "balance would drop below zero",
	}
	ErrWalletNotFound = &DomainError{
		Code:    "WALLET_NOT_FOUND",
		Message: "no wallet for this user",
	}
)
