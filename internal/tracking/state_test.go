package tracking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFiredSet(t *testing.T) {
	s := NewFiredSet()

	assert.True(t, s.Add("start"))
	assert.False(t, s.Add("start"))
	assert.True(t, s.Add("midpoint"))
	assert.True(t, s.Has("start"))
	assert.False(t, s.Has("complete"))
	assert.Equal(t, []string{"start", "midpoint"}, s.Events())
	assert.Equal(t, 2, s.Len())

	events := s.Events()
	events[0] = "mutated"
	assert.Equal(t, "start", s.Events()[0])
}
