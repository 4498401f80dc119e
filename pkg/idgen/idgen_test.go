package idgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSonyflakeGenerator_Monotonic(t *testing.T) {
	gen, err := NewSonyflakeGenerator(7)
	require.NoError(t, err)

	var prev int64
	for i := 0; i < 100; i++ {
		id, err := gen.NextInt64()
		require.NoError(t, err)
		assert.Greater(t, id, prev)
		prev = id
	}

	s, err := gen.NextID()
	require.NoError(t, err)
	assert.NotEmpty(t, s)
}

func TestNewConnId_Unique(t *testing.T) {
	assert.NotEqual(t, NewConnId(), NewConnId())
}
