package goid_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/metric-relay/pkg/goid"
)

func TestGetGID(t *testing.T) {
	main := goid.GetGID()
	assert.NotZero(t, main)

	other := make(chan uint64)
	go func() { other <- goid.GetGID() }()
	assert.NotEqual(t, main, <-other)
}

func TestField(t *testing.T) {
	f := goid.Field()
	assert.Equal(t, "goid", f.Key)
	assert.Equal(t, int64(goid.GetGID()), f.Integer)
}
