package debounce

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func ms(n int64) int64 { return n * int64(time.Millisecond) }

func TestGate(t *testing.T) {
	t.Run("first sample always accepted", func(t *testing.T) {
		g := NewGate(300 * time.Millisecond)
		assert.True(t, g.Accept(0))
	})

	t.Run("drops inside interval without moving the window", func(t *testing.T) {
		g := NewGate(300 * time.Millisecond)
		assert.True(t, g.Accept(ms(1000)))
		assert.False(t, g.Accept(ms(1050)))
		assert.False(t, g.Accept(ms(1100)))
		assert.False(t, g.Accept(ms(1299)))

		// 300ms after the last accepted, not after the last dropped.
		assert.True(t, g.Accept(ms(1300)))
		assert.False(t, g.Accept(ms(1599)))
		assert.True(t, g.Accept(ms(1600)))
	})

	t.Run("older timestamps are dropped", func(t *testing.T) {
		g := NewGate(100 * time.Millisecond)
		assert.True(t, g.Accept(ms(500)))
		assert.False(t, g.Accept(ms(100)))
	})

	t.Run("zero interval accepts everything in order", func(t *testing.T) {
		g := NewGate(0)
		assert.True(t, g.Accept(1))
		assert.True(t, g.Accept(1))
		assert.True(t, g.Accept(2))
	})

	t.Run("new gate per session", func(t *testing.T) {
		g := NewGate(time.Second)
		assert.True(t, g.Accept(ms(10)))
		assert.False(t, g.Accept(ms(20)))
		assert.True(t, NewGate(time.Second).Accept(ms(20)))
	})
}
