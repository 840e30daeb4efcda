package date

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueFormat(t *testing.T) {
	ts := time.Date(2024, time.March, 5, 7, 8, 9, 0, time.FixedZone("X", 3600))
	c := newWithClock(func() time.Time { return ts })

	assert.Equal(t, "Tue, 05 Mar 2024 06:08:09 GMT", c.Value())
	_, err := time.Parse(Layout, c.Value())
	require.NoError(t, err)
}

func TestStartRefreshes(t *testing.T) {
	var calls atomic.Int64
	base := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	c := newWithClock(func() time.Time {
		n := calls.Add(1)
		return base.Add(time.Duration(n) * time.Second)
	})
	first := c.Value()

	stop := c.Start(time.Millisecond)
	defer stop()

	require.Eventually(t, func() bool { return c.Value() != first }, time.Second, time.Millisecond)
	stop()
	stop()
}
