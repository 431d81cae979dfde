package config

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeps_Close(t *testing.T) {
	var nilDeps *Deps
	require.NotPanics(t, func() { assert.NoError(t, nilDeps.Close()) })

	var order []int
	boom := errors.New("boom")
	deps := &Deps{Closers: []func() error{
		func() error { order = append(order, 1); return nil },
		func() error { order = append(order, 2); return boom },
	}}
	err := deps.Close()
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []int{2, 1}, order)
	assert.Empty(t, deps.Closers)
	assert.NoError(t, deps.Close())
}
