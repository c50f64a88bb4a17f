package detector

import (
	"sync"
	"time"
)

// stopTimeout bounds how long Stop waits for a detector's background work to
// join before proceeding anyway.
const stopTimeout = 5 * time.Second

// waitTimeout waits for wg up to d and returns whether it finished in time.
func waitTimeout(wg *sync.WaitGroup, d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(d):
		return false
	}
}
