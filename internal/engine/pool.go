package engine

import (
	"runtime"
	"sync"
)

// Pool is a bounded set of worker goroutines owned by a single job.
type Pool struct {
	size int
}

// NewPool returns a pool of n workers; n <= 0 means one per CPU.
func NewPool(n int) *Pool {
	if n <= 0 {
		n = runtime.NumCPU()
	}
	return &Pool{size: n}
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return p.size
}

// Run starts Size workers, each calling fn with its worker id, and blocks
// until all of them return.
func (p *Pool) Run(fn func(worker int)) {
	var wg sync.WaitGroup
	wg.Add(p.size)
	for i := range p.size {
		go func() {
			defer wg.Done()
			fn(i)
		}()
	}
	wg.Wait()
}
