package util

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	require.Equal(t, "ns", Key("ns"))
	require.Equal(t, "ns:t:red", Key("ns", "t", "red"))
	require.Equal(t, "Db_Cache:C_Cache:e:a:b", Key("Db_Cache:C_Cache", "e", "a:b"))
}

func TestEscapeGlob(t *testing.T) {
	require.Equal(t, "plain:ns", EscapeGlob("plain:ns"))
	require.Equal(t, `a\*b\?c\[d\]`, EscapeGlob("a*b?c[d]"))
	require.Equal(t, `x\\y`, EscapeGlob(`x\y`))
}
