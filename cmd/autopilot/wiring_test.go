package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSessionClose_ReverseOrder(t *testing.T) {
	var order []int
	rt := &session{}
	for i := 1; i <= 3; i++ {
		rt.closers = append(rt.closers, func() { order = append(order, i) })
	}

	rt.Close()
	assert.Equal(t, []int{3, 2, 1}, order)

	// A second Close is a no-op.
	rt.Close()
	assert.Len(t, order, 3)
}

func TestFirstNonEmpty(t *testing.T) {
	assert.Equal(t, "go test ./...", firstNonEmpty("", "go test ./...", "npm test"))
	assert.Empty(t, firstNonEmpty("", ""))
	assert.Empty(t, firstNonEmpty())
}
