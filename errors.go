package tagcache

import (
	"errors"
	"fmt"

	platformerrors "github.com/jmgilman/go/errors"

	"github.com/unkn0wn-root/tagcache/store"
)

// Error kinds. Every failure returned by a Backend wraps exactly one of these,
// so callers can branch with errors.Is or read the code with
// platformerrors.GetCode.
var (
	// ErrConnection means the store could not be reached. Retryable.
	ErrConnection = platformerrors.New(platformerrors.CodeUnavailable, "cache store unavailable")
	// ErrSaveFailed means a write reached the store and was rejected.
	ErrSaveFailed = platformerrors.New(platformerrors.CodeDatabase, "cache save failed")
	// ErrQueryFailed means a read, delete or aggregation failed.
	ErrQueryFailed = platformerrors.New(platformerrors.CodeDatabase, "cache query failed")
	// ErrInvalidCleanMode is returned by Clean before anything is deleted.
	ErrInvalidCleanMode = platformerrors.New(platformerrors.CodeInvalidInput, "invalid clean mode")
	// ErrInvalidLifetime rejects negative lifetimes on Save.
	ErrInvalidLifetime = platformerrors.New(platformerrors.CodeInvalidInput, "invalid lifetime")
	// ErrInvalidConfig is returned by Config.Validate and New.
	ErrInvalidConfig = platformerrors.New(platformerrors.CodeInvalidConfig, "invalid cache configuration")
)

// OpError describes a failed Backend operation.
type OpError struct {
	Op   string // "save", "load", "clean", ...
	Key  string // empty for operations not bound to one key
	Kind error  // one of the Err* kinds above
	Err  error  // underlying cause, may be nil
}

func (e *OpError) Error() string {
	var where string
	if e.Key != "" {
		where = fmt.Sprintf("tagcache: %s %q", e.Op, e.Key)
	} else {
		where = "tagcache: " + e.Op
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", where, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", where, e.Kind, e.Err)
}

func (e *OpError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// opErr classifies a store error. Connection failures become ErrConnection and
// everything else becomes fallback.
func opErr(op, key string, fallback, err error) error {
	kind := fallback
	if errors.Is(err, store.ErrUnavailable) {
		kind = ErrConnection
	}
	return &OpError{Op: op, Key: key, Kind: kind, Err: err}
}
