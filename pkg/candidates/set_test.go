package candidates

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAddReturnsTrueOnce(t *testing.T) {
	s := NewSet()

	assert.True(t, s.Add("https://a.example/1.jpg"))
	assert.False(t, s.Add("https://a.example/1.jpg"))
	assert.True(t, s.Add("https://a.example/1.jpg?x=1"), "raw string is the identity")
	assert.Equal(t, 2, s.Len())
}

func TestAddAll(t *testing.T) {
	s := NewSet()
	s.Add("u1")

	added := s.AddAll([]string{"u1", "u2", "u3", "u2"})
	assert.Equal(t, 2, added)
	assert.Equal(t, []string{"u1", "u2", "u3"}, s.URLs())
}

func TestContains(t *testing.T) {
	s := NewSet()
	s.Add("u1")
	assert.True(t, s.Contains("u1"))
	assert.False(t, s.Contains("u2"))
}

func TestURLsIsACopy(t *testing.T) {
	s := NewSet()
	s.AddAll([]string{"a", "b"})

	urls := s.URLs()
	urls[0] = "mutated"
	assert.Equal(t, []string{"a", "b"}, s.URLs())
}

func TestLenMatchesDistinctCount(t *testing.T) {
	s := NewSet()
	for i := 0; i < 100; i++ {
		s.Add(fmt.Sprintf("https://img.example/%d.jpg", i%37))
	}
	assert.Equal(t, 37, s.Len())
}
