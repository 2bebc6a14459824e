package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPickReplayTarget(t *testing.T) {
	kind, ref, err := pickReplayTarget("123", "", "")
	require.NoError(t, err)
	assert.Equal(t, "payment", kind)
	assert.Equal(t, "123", ref)

	kind, ref, err = pickReplayTarget("", "", "ORD-9")
	require.NoError(t, err)
	assert.Equal(t, "order", kind)
	assert.Equal(t, "ORD-9", ref)

	_, _, err = pickReplayTarget("", "", "")
	assert.Error(t, err)

	_, _, err = pickReplayTarget("1", "2", "")
	assert.Error(t, err)
}
