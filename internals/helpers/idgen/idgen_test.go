package idgen

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaymentRefsAreUniqueAndPrefixed(t *testing.T) {
	g, err := New(7)
	require.NoError(t, err)

	seen := map[string]bool{}
	for i := 0; i < 5000; i++ {
		ref := g.PaymentRef()
		require.True(t, strings.HasPrefix(ref, PaymentPrefix))
		require.False(t, seen[ref], "duplicate %s", ref)
		seen[ref] = true
	}
}

func TestInvalidNode(t *testing.T) {
	_, err := New(5000)
	assert.Error(t, err)
	assert.GreaterOrEqual(t, NodeFromHostname(), int64(0))
	assert.Less(t, NodeFromHostname(), int64(1024))
}
