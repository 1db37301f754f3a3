package errors

var (
	ErrNotFound = &DomainError{
		Code:    "NOT_FOUND",
		Message: "resource not found",
	}
	ErrInvalidState = &DomainError{
		Code:    "INVALID_STATE",
		Message: "already resolved by another operator",
	}
	ErrInvalidAction = &DomainError{
		Code:    "INVALID_ACTION",
		Message: "action is not allowed for this alert",
	}
	ErrInvalidAmount = &DomainError{
		Code:    "INVALID_AMOUNT",
		Message: "invalid amount",
	}
	ErrAlreadyResolved = &DomainError{
		Code:    "ALREADY_RESOLVED",
		Message: "dispute has already been resolved",
	}
	ErrPartialFailure = &DomainError{
		Code:    "PARTIAL_FAILURE",
		Message: "refund recorded and pending reconciliation",
	}
	ErrDependencyUnavailable = &DomainError{
		Code:    "DEPENDENCY_UNAVAILABLE",
		Message: "a required dependency is unavailable",
	}
)
