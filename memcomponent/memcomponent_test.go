package memcomponent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStringNames(t *testing.T) {
	assert.Equal(t, "core", Core.String())
	assert.Equal(t, "dram", DRAM.String())
	assert.Equal(t, "unknown", Component(200).String())
}

func TestSharerSetAddRemoveHas(t *testing.T) {
	var s SharerSet
	s = s.Add(L1D)
	s = s.Add(LLC)

	assert.True(t, s.Has(L1D))
	assert.True(t, s.Has(LLC))
	assert.False(t, s.Has(L2))
	assert.Equal(t, 2, s.Count())

	s = s.Remove(L1D)
	assert.False(t, s.Has(L1D))
	assert.Equal(t, 1, s.Count())
}

func TestSharerSetEmpty(t *testing.T) {
	var s SharerSet
	assert.True(t, s.Empty())
	s = s.Add(Core)
	assert.False(t, s.Empty())
}

func TestMaxStaysBelow32(t *testing.T) {
	assert.Less(t, int(Max), 32)
}
