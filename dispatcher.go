package openbilling

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
)

// dispatcher is the Helper's designated callback context: a single goroutine
// consuming queued thunks. Every caller-supplied listener is invoked here,
// so listeners see a consistent, serialized view of the helper.
type dispatcher struct {
	tasks     chan func()
	done      chan struct{}
	closeOnce sync.Once
	gid       atomic.Int64
}

func newDispatcher() *dispatcher {
	d := &dispatcher{
		tasks: make(chan func(), 64),
		done:  make(chan struct{}),
	}
	go d.loop()
	return d
}

func (d *dispatcher) loop() {
	d.gid.Store(currentGoroutineID())
	for {
		select {
		case <-d.done:
			return
		case task := <-d.tasks:
			task()
		}
	}
}

// post queues a thunk for execution on the dispatcher goroutine. Tasks
// posted after close are dropped; disposal wins over late completions.
func (d *dispatcher) post(task func()) {
	select {
	case <-d.done:
	case d.tasks <- task:
	}
}

// onDispatcher reports whether the calling goroutine is the dispatcher
// goroutine. Used to reject blocking calls that would starve callback
// delivery.
func (d *dispatcher) onDispatcher() bool {
	return currentGoroutineID() == d.gid.Load()
}

func (d *dispatcher) close() {
	d.closeOnce.Do(func() { close(d.done) })
}

var goroutinePrefix = []byte("goroutine ")

// currentGoroutineID parses the goroutine id out of the runtime stack
// header. There is no supported API for this; the header format has been
// stable since Go 1.0 and only the id is read.
func currentGoroutineID() int64 {
	buf := make([]byte, 64)
	buf = buf[:runtime.Stack(buf, false)]
	buf = bytes.TrimPrefix(buf, goroutinePrefix)
	if i := bytes.IndexByte(buf, ' '); i >= 0 {
		buf = buf[:i]
	}
	id, err := strconv.ParseInt(string(buf), 10, 64)
	if err != nil {
		return -1
	}
	return id
}
