package trading

import "fmt"

// ErrorKind classifies trade pipeline failures. Every error leaving the
// executor or ledger carries exactly one kind.
type ErrorKind string

const (
	ErrInvalidAddress        ErrorKind = "InvalidAddress"
	ErrNoPriceAvailable      ErrorKind = "NoPriceAvailable"
	ErrRateLimited           ErrorKind = "RateLimited"
	ErrInsufficientFunds     ErrorKind = "InsufficientFunds"
	ErrNoRoute               ErrorKind = "NoRoute"
	ErrBuildFailed           ErrorKind = "BuildFailed"
	ErrBroadcastFailed       ErrorKind = "BroadcastFailed"
	ErrTransactionRejected   ErrorKind = "TransactionRejected"
	ErrConfirmationTimeout   ErrorKind = "ConfirmationTimeout"
	ErrPositionLimitExceeded ErrorKind = "PositionLimitExceeded"
	ErrDuplicateExposure     ErrorKind = "DuplicateExposure"
	ErrPersistence           ErrorKind = "PersistenceError"
)

// TradeError is a classified pipeline failure.
type TradeError struct {
	Kind ErrorKind
	Mint string
	Err  error
}

func (e *TradeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s (%s): %v", e.Kind, e.Mint, e.Err)
	}
	return fmt.Sprintf("%s (%s)", e.Kind, e.Mint)
}

func (e *TradeError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match on a bare kind-only TradeError.
func (e *TradeError) Is(target error) bool {
	t, ok := target.(*TradeError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Mint == "" || t.Mint == e.Mint)
}

func tradeErr(kind ErrorKind, mint string, err error) *TradeError {
	return &TradeError{Kind: kind, Mint: mint, Err: err}
}

// KindOf extracts the ErrorKind from any error in the chain, or "".
func KindOf(err error) ErrorKind {
	for err != nil {
		if te, ok := err.(*TradeError); ok {
			return te.Kind
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return ""
		}
		err = u.Unwrap()
	}
	return ""
}
