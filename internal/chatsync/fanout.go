package chatsync

import "sync"

// broadcastWrite issues one logical write for every member
// concurrently. All writes are started before any result is awaited
// and none is cancelled mid-flight; the first failure becomes the
// returned error only after every write has finished. Completed writes
// are never rolled back, so a failed fan-out leaves partially
// converged state that read-time filtering masks.
func broadcastWrite(members []string, write func(userID string) error) error {
	errs := make(chan error, len(members))
	var wg sync.WaitGroup
	for _, userID := range members {
		wg.Add(1)
		go func(u string) {
			defer wg.Done()
			errs <- write(u)
		}(userID)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
