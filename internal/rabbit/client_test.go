package rabbit

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDelayHeader(t *testing.T) {
	_, ok := DelayHeader(0)
	assert.False(t, ok)

	_, ok = DelayHeader(-time.Minute)
	assert.False(t, ok)

	ms, ok := DelayHeader(90 * time.Second)
	assert.True(t, ok)
	assert.Equal(t, int32(90000), ms)

	ms, ok = DelayHeader(60 * 24 * time.Hour)
	assert.True(t, ok)
	assert.Equal(t, int32(math.MaxInt32), ms)
}
