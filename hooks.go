package tagcache

import "time"

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking.
// The backend calls them inline with the operation that raised them.
type Hooks interface {
	// Ensuring an index on field failed after a successful write.
	// The write itself is kept; the index is retried per IndexPolicy.
	IndexEnsureFailed(field string, err error)

	// The store could not be reached. op is the backend operation.
	ConnectFailed(op string, err error)

	// Touch refused to extend key because the remaining lifetime plus the
	// extension was not positive.
	TouchRejected(key string, newLifetime time.Duration)

	// Clean removed entries. tags is nil for CleanAll and CleanOld.
	Cleaned(mode CleanMode, tags []string, removed int64)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) IndexEnsureFailed(string, error)     {}
func (NopHooks) ConnectFailed(string, error)         {}
func (NopHooks) TouchRejected(string, time.Duration) {}
func (NopHooks) Cleaned(CleanMode, []string, int64)  {}
