package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestManualClock_NowStandsStill(t *testing.T) {
	c := NewManualClock(epoch)
	assert.Equal(t, epoch, c.Now())
	assert.Equal(t, epoch, c.Now())
}

func TestManualClock_AfterFiresOnAdvance(t *testing.T) {
	c := NewManualClock(epoch)

	ch := c.After(5 * time.Second)
	assert.Equal(t, 1, c.PendingCount())

	c.Advance(4 * time.Second)
	select {
	case <-ch:
		t.Fatal("timer fired early")
	default:
	}

	c.Advance(time.Second)
	select {
	case got := <-ch:
		assert.Equal(t, epoch.Add(5*time.Second), got)
	default:
		t.Fatal("timer did not fire")
	}
	assert.Zero(t, c.PendingCount())
}

func TestManualClock_NonPositiveFiresImmediately(t *testing.T) {
	c := NewManualClock(epoch)

	select {
	case <-c.After(0):
	default:
		t.Fatal("zero duration must fire immediately")
	}
	assert.Zero(t, c.PendingCount())
}

func TestManualClock_WaitForTimers(t *testing.T) {
	c := NewManualClock(epoch)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-c.After(time.Minute)
	}()

	c.WaitForTimers(1)
	require.Equal(t, []time.Duration{time.Minute}, c.PendingDurations())
	c.Advance(time.Minute)
	wg.Wait()
}
