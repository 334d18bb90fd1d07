package testutil

import (
	"sync"
	"testing"
)

// RunConcurrent executes fn from n goroutines and waits for all of them.
// Panics are reported as test failures.
func RunConcurrent(t *testing.T, n int, fn func(workerID int)) {
	t.Helper()

	var wg sync.WaitGroup

	wg.Add(n)

	for i := range n {
		go func(workerID int) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					t.Errorf("worker %d panicked: %v", workerID, r)
				}
			}()

			fn(workerID)
		}(i)
	}

	wg.Wait()
}
