package domain

import "errors"

var (
	ErrUnknownItem       = errors.New("unknown item")
	ErrUnknownWorker     = errors.New("unknown worker")
	ErrInvalidQuantity   = errors.New("invalid quantity")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrNoOpenCustody     = errors.New("no open custody")
	ErrExcessReturn      = errors.New("return exceeds open custody")
	ErrDuplicateWorker   = errors.New("duplicate worker")
	ErrUnitMismatch      = errors.New("unit mismatch")
)

var requestErrors = []error{
	ErrUnknownItem,
	ErrUnknownWorker,
	ErrInvalidQuantity,
	ErrInsufficientStock,
	ErrNoOpenCustody,
	ErrExcessReturn,
	ErrDuplicateWorker,
	ErrUnitMismatch,
}

// IsRequestError reports whether err is a rejected-request error rather than
// a storage failure. Rejected requests leave state unchanged and are never
// retried.
func IsRequestError(err error) bool {
	for _, e := range requestErrors {
		if errors.Is(err, e) {
			return true
		}
	}
	return false
}
