package api

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewSubjectLimiter_Disabled(t *testing.T) {
	l := NewSubjectLimiter(0, 5)
	assert.Nil(t, l)
	for range 100 {
		assert.True(t, l.Allow("alice"))
	}
}

func TestSubjectLimiter_Burst(t *testing.T) {
	l := NewSubjectLimiter(0.001, 3)

	for range 3 {
		assert.True(t, l.Allow("alice"))
	}
	assert.False(t, l.Allow("alice"))
	assert.True(t, l.Allow("bob"))
}

func TestSubjectLimiter_NonPositiveBurst(t *testing.T) {
	l := NewSubjectLimiter(0.001, 0)
	assert.True(t, l.Allow("alice"))
	assert.False(t, l.Allow("alice"))
}

func TestSubjectLimiter_Concurrent(t *testing.T) {
	l := NewSubjectLimiter(0.001, 10)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Allow("alice") {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, allowed)
}
