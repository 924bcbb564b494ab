package sched

import (
	"log"
	"sync"
)

// A workerPool runs activations for the stages of a tick. The pool holds a
// fixed number of workers, numbered from 1; worker 0 is the goroutine that
// called Progress, which dispatches stages and runs the pinned activations
// itself.
type workerPool struct {
	size      int
	tasks     chan func(worker int)
	waitGroup sync.WaitGroup

	closeOnce sync.Once
}

// newWorkerPool starts size workers. A size of 0 gives a pool where every
// activation runs on the main worker.
func newWorkerPool(size int) *workerPool {
	if size < 0 {
		log.Panicf("invalid worker pool size %d", size)
	}

	p := new(workerPool)
	p.size = size
	p.tasks = make(chan func(worker int), 1024)

	for i := 1; i <= size; i++ {
		go p.work(i)
	}

	return p
}

func (p *workerPool) work(index int) {
	for task := range p.tasks {
		task(index)
		p.waitGroup.Done()
	}
}

// submit hands a task to the pool. With no workers, the task runs inline on
// the caller.
func (p *workerPool) submit(task func(worker int)) {
	if p.size == 0 {
		task(0)
		return
	}

	p.waitGroup.Add(1)
	p.tasks <- task
}

// barrier blocks until every submitted task of the stage has finished.
func (p *workerPool) barrier() {
	p.waitGroup.Wait()
}

// shutdown stops the workers. Only call it after the last barrier.
func (p *workerPool) shutdown() {
	p.closeOnce.Do(func() {
		close(p.tasks)
	})
}
