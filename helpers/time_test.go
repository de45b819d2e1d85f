package helpers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIntSecondDefault(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 3*time.Second, IntSecondDefault(0, 3*time.Second))
	assert.Equal(t, 7*time.Second, IntSecondDefault(7, 3*time.Second))
}

func TestSleepContext(t *testing.T) {
	t.Parallel()

	assert.NoError(t, SleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	begin := time.Now()
	assert.Equal(t, context.Canceled, SleepContext(ctx, time.Hour))
	assert.True(t, time.Since(begin) < time.Second)
	assert.Equal(t, context.Canceled, SleepContext(ctx, 0))
}

func TestSleepRecorder(t *testing.T) {
	t.Parallel()
	r := &SleepRecorder{}
	r.Sleep(time.Second)
	assert.NoError(t, r.SleepContext(context.Background(), 2*time.Second))
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, r.Calls)
	assert.Equal(t, 3*time.Second, r.Total)
}
