package train

import (
	"sync"

	"github.com/cheggaaa/pb/v3"
)

// runPool fans the node jobs out over a fixed worker count. The first
// error wins; remaining jobs still drain so the WaitGroup joins
// cleanly before anything is serialized.
func runPool(jobs []int, workers int, progress bool, fn func(id int) error) error {

	if workers < 1 {
		workers = 1
	}

	var bar *pb.ProgressBar
	if progress {
		bar = pb.StartNew(len(jobs))
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)

	ch := make(chan int)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range ch {
				if err := fn(id); err != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					mu.Unlock()
				}
				if bar != nil {
					bar.Increment()
				}
			}
		}()
	}

	for _, id := range jobs {
		ch <- id
	}
	close(ch)
	wg.Wait()

	if bar != nil {
		bar.Finish()
	}

	return firstErr
}
