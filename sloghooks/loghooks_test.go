package sloghooks

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/tagcache"
)

func newHooks(opts Options) (*Hooks, *bytes.Buffer) {
	var buf bytes.Buffer
	l := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return New(l, opts), &buf
}

func TestEventsAreLogged(t *testing.T) {
	h, buf := newHooks(Options{})

	h.IndexEnsureFailed("t", errors.New("no index"))
	h.ConnectFailed("save", errors.New("refused"))
	h.TouchRejected("user:1", -time.Second)
	h.Cleaned(tagcache.CleanMatchingTag, []string{"a"}, 4)

	out := buf.String()
	assert.Contains(t, out, "tagcache.index_ensure_failed")
	assert.Contains(t, out, `err="no index"`)
	assert.Contains(t, out, "tagcache.connect_failed")
	assert.Contains(t, out, "op=save")
	assert.Contains(t, out, "tagcache.touch_rejected")
	assert.NotContains(t, out, "user:1", "keys are redacted")
	assert.Contains(t, out, "mode=matching_tag")
	assert.Contains(t, out, "removed=4")
}

func TestCustomRedact(t *testing.T) {
	h, buf := newHooks(Options{Redact: func(string) string { return "REDACTED" }})
	h.TouchRejected("secret", 0)
	assert.Contains(t, buf.String(), "key=REDACTED")
}

func TestSampling(t *testing.T) {
	h, buf := newHooks(Options{CleanedEvery: 3})
	for i := 0; i < 9; i++ {
		h.Cleaned(tagcache.CleanOld, nil, 1)
	}
	require.Equal(t, 3, strings.Count(buf.String(), "tagcache.cleaned"))
}

func TestNilLoggerIsSilent(t *testing.T) {
	h := New(nil, Options{})
	h.IndexEnsureFailed("t", errors.New("x"))
	h.ConnectFailed("load", errors.New("x"))
	h.TouchRejected("k", 0)
	h.Cleaned(tagcache.CleanAll, nil, 0)
}
