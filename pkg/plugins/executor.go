package plugins

import (
	"runtime"
	"sync"
)

// executor runs every native call of a single-threaded plugin on one locked
// OS thread
type executor struct {
	tasks chan func()
	done  chan struct{}
	once  sync.Once
}

func newExecutor() *executor {
	e := &executor{
		tasks: make(chan func()),
		done:  make(chan struct{}),
	}
	go e.loop()
	return e
}

func (e *executor) loop() {
	// The thread is never unlocked, so it exits with the goroutine and takes
	// any thread-local plugin state with it.
	runtime.LockOSThread()
	defer close(e.done)

	for task := range e.tasks {
		task()
	}
}

// run executes fn on the executor thread and waits for it. A panic in fn is
// re-raised on the calling goroutine.
func (e *executor) run(fn func()) {
	var recovered any
	finished := make(chan struct{})

	e.tasks <- func() {
		defer func() {
			recovered = recover()
			close(finished)
		}()
		fn()
	}
	<-finished

	if recovered != nil {
		panic(recovered)
	}
}

// stop ends the executor goroutine once queued work is done
func (e *executor) stop() {
	e.once.Do(func() {
		close(e.tasks)
	})
	<-e.done
}
