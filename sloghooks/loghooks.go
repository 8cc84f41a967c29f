// Package sloghooks implements tagcache.Hooks by logging to a *slog.Logger.
package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/tagcache"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	TouchRejectEvery uint64
	CleanedEvery     uint64
	// Optional key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	touchCtr atomic.Uint64
	cleanCtr atomic.Uint64
}

var _ tagcache.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) IndexEnsureFailed(field string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("tagcache.index_ensure_failed",
		"field", field,
		"err", err)
}

func (h *Hooks) ConnectFailed(op string, err error) {
	if h.l == nil {
		return
	}
	h.l.Error("tagcache.connect_failed",
		"op", op,
		"err", err)
}

func (h *Hooks) TouchRejected(key string, newLifetime time.Duration) {
	if h.l == nil || !sample(h.opts.TouchRejectEvery, &h.touchCtr) {
		return
	}
	h.l.Debug("tagcache.touch_rejected",
		"key", h.redact(key),
		"new_lifetime", newLifetime)
}

func (h *Hooks) Cleaned(mode tagcache.CleanMode, tags []string, removed int64) {
	if h.l == nil || !sample(h.opts.CleanedEvery, &h.cleanCtr) {
		return
	}
	h.l.Info("tagcache.cleaned",
		"mode", mode.String(),
		"tags", tags,
		"removed", removed)
}
