package latest

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCoordinator_NewerTicketInvalidatesOlder(t *testing.T) {
	var c Coordinator

	first := c.Begin()
	assert.True(t, c.IsLatest(first))

	second := c.Begin()
	assert.False(t, c.IsLatest(first))
	assert.True(t, c.IsLatest(second))
}

func TestCoordinator_CompletionOrderDoesNotMatter(t *testing.T) {
	var c Coordinator
	state := ""

	slow := c.Begin()
	fast := c.Begin()

	// fast finishes first
	if c.IsLatest(fast) {
		state = "fast"
	}
	// slow finishes afterwards and must not overwrite
	if c.IsLatest(slow) {
		state = "slow"
	}

	assert.Equal(t, "fast", state)
}

func TestCoordinator_ConcurrentBegin(t *testing.T) {
	var c Coordinator
	var wg sync.WaitGroup
	tickets := make([]Ticket, 100)

	for i := range tickets {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tickets[i] = c.Begin()
		}(i)
	}
	wg.Wait()

	seen := make(map[Ticket]bool)
	latestCount := 0
	for _, tk := range tickets {
		assert.False(t, seen[tk], "tickets must be unique")
		seen[tk] = true
		if c.IsLatest(tk) {
			latestCount++
		}
	}
	assert.Equal(t, 1, latestCount)
}
