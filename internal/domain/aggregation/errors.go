package aggregation

import (
	"errors"
	"fmt"
)

var (
	// ErrProviderUnavailable is matched by every fatal provider failure.
	// Its message is safe to show to end users.
	ErrProviderUnavailable = errors.New("unable to load accounts right now")
	ErrUnauthenticated     = errors.New("no authenticated user")
)

// ProviderUnavailableError is returned when the account list could not be
// fetched at all. No view is produced.
type ProviderUnavailableError struct {
	UserID      string
	Err         error
	Diagnostics []Diagnostic
}

func (e *ProviderUnavailableError) Error() string {
	return fmt.Sprintf("%v: user %s: %v", ErrProviderUnavailable, e.UserID, e.Err)
}

func (e *ProviderUnavailableError) Unwrap() []error {
	return []error{ErrProviderUnavailable, e.Err}
}

// TransactionFetchDegradedError records that the active account's
// transactions could not be fetched; the view is returned without them.
type TransactionFetchDegradedError struct {
	AccountID string
	Err       error
}

func (e *TransactionFetchDegradedError) Error() string {
	return fmt.Sprintf("transactions for account %s unavailable: %v", e.AccountID, e.Err)
}

func (e *TransactionFetchDegradedError) Unwrap() error {
	return e.Err
}
