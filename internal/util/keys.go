package util

import "strings"

// Key joins a namespace and parts with ':'.
func Key(ns string, parts ...string) string {
	var b strings.Builder
	n := len(ns)
	for _, p := range parts {
		n += 1 + len(p)
	}
	b.Grow(n)
	b.WriteString(ns)
	for _, p := range parts {
		b.WriteByte(':')
		b.WriteString(p)
	}
	return b.String()
}

// EscapeGlob escapes the Redis glob metacharacters in s so it matches
// literally inside a MATCH pattern.
func EscapeGlob(s string) string {
	if !strings.ContainsAny(s, `*?[]\^-`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 4)
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\', '^', '-':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
