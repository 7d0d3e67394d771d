package models

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func TestPairKey(t *testing.T) {
	assert.Equal(t, "1:2", PairKey(1, 2))
	assert.Equal(t, "1:2", PairKey(2, 1))
	assert.Equal(t, "7:7", PairKey(7, 7))
}

func TestProperty_PairKeySymmetric(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("key is independent of argument order", prop.ForAll(
		func(a uint32, b uint32) bool {
			return PairKey(uint(a), uint(b)) == PairKey(uint(b), uint(a))
		},
		gen.UInt32(),
		gen.UInt32(),
	))

	properties.Property("distinct pairs get distinct keys", prop.ForAll(
		func(a uint32, b uint32, c uint32, d uint32) bool {
			samePair := (a == c && b == d) || (a == d && b == c)
			if samePair {
				return PairKey(uint(a), uint(b)) == PairKey(uint(c), uint(d))
			}
			return PairKey(uint(a), uint(b)) != PairKey(uint(c), uint(d))
		},
		gen.UInt32(),
		gen.UInt32(),
		gen.UInt32(),
		gen.UInt32(),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
