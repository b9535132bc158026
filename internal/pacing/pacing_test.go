package pacing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHumanKeystrokeWithinBounds(t *testing.T) {
	h := DefaultHuman()
	for range 200 {
		d := h.Keystroke()
		assert.GreaterOrEqual(t, d, h.Min)
		assert.LessOrEqual(t, d, h.Max)
	}
}

func TestHumanKeystrokeDegenerateRange(t *testing.T) {
	h := Human{Min: 50 * time.Millisecond, Max: 10 * time.Millisecond}
	assert.Equal(t, 50*time.Millisecond, h.Keystroke())
}

func TestFixed(t *testing.T) {
	assert.Equal(t, 50*time.Millisecond, Fixed(50*time.Millisecond).Keystroke())
}

func TestSleepHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := Sleep(ctx, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestSleepCompletes(t *testing.T) {
	assert.NoError(t, Sleep(context.Background(), time.Millisecond))
	assert.NoError(t, Sleep(context.Background(), 0))
}

func TestNoWait(t *testing.T) {
	var p Policy = NoWait{}
	assert.Zero(t, p.Keystroke())
	assert.NoError(t, p.Sleep(context.Background(), time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.Sleep(ctx, time.Hour), context.Canceled)
}
