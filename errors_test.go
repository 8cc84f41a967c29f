package tagcache

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/unkn0wn-root/tagcache/store"
)

func TestOpErrorMessage(t *testing.T) {
	err := &OpError{Op: "save", Key: "k", Kind: ErrSaveFailed, Err: errors.New("disk full")}
	assert.Equal(t, `tagcache: save "k": [DATABASE_ERROR] cache save failed: disk full`, err.Error())

	err = &OpError{Op: "clean", Kind: ErrInvalidCleanMode}
	assert.Equal(t, "tagcache: clean: [INVALID_INPUT] invalid clean mode", err.Error())
}

func TestOpErrClassifiesUnavailable(t *testing.T) {
	cause := errors.Join(store.ErrUnavailable, errors.New("refused"))
	err := opErr("load", "k", ErrQueryFailed, cause)
	assert.ErrorIs(t, err, ErrConnection)
	assert.NotErrorIs(t, err, ErrQueryFailed)
	assert.ErrorIs(t, err, store.ErrUnavailable)

	err = opErr("load", "k", ErrQueryFailed, errors.New("bad query"))
	assert.ErrorIs(t, err, ErrQueryFailed)
	assert.NotErrorIs(t, err, ErrConnection)
}
