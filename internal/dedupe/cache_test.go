// ABOUTME: Tests for the event-ID dedupe window.
// ABOUTME: Validates duplicate detection, TTL expiry, size bounds, and concurrent use.

package dedupe

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWindow_MarkDetectsDuplicates(t *testing.T) {
	w := New(time.Minute, 10)

	assert.False(t, w.Mark("$event1"))
	assert.True(t, w.Mark("$event1"))
	assert.False(t, w.Mark("$event2"))
	assert.True(t, w.Mark("$event2"))
	assert.Equal(t, 2, w.Len())
}

func TestWindow_EmptyKeyNeverStored(t *testing.T) {
	w := New(time.Minute, 10)

	assert.False(t, w.Mark(""))
	assert.False(t, w.Mark(""))
	assert.Equal(t, 0, w.Len())
}

func TestWindow_Expiry(t *testing.T) {
	w := New(time.Minute, 10)
	now := time.Unix(1000, 0)
	w.now = func() time.Time { return now }

	w.Mark("a")
	now = now.Add(30 * time.Second)
	assert.True(t, w.Mark("a"), "duplicate does not refresh the timestamp")

	now = now.Add(31 * time.Second)
	assert.False(t, w.Mark("a"), "expired key is new again")
	assert.Equal(t, 1, w.Len())
}

func TestWindow_SizeBound(t *testing.T) {
	w := New(time.Hour, 3)

	for i := range 5 {
		w.Mark(fmt.Sprintf("k%d", i))
	}

	assert.Equal(t, 3, w.Len())
	assert.NotContains(t, w.index, "k0")
	assert.NotContains(t, w.index, "k1")
	assert.Contains(t, w.index, "k4")
}

func TestWindow_Concurrent(t *testing.T) {
	w := New(time.Hour, 1000)

	var wg sync.WaitGroup
	dups := make([]int, 8)
	for g := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 100 {
				if w.Mark(fmt.Sprintf("k%d", i)) {
					dups[g]++
				}
			}
		}()
	}
	wg.Wait()

	total := 0
	for _, d := range dups {
		total += d
	}
	// Every key is new exactly once across all goroutines.
	assert.Equal(t, 7*100, total)
}
