package host

import (
	"sync"

	"github.com/roach88/tillsync/internal/model"
)

// CommandType distinguishes between command kinds.
type CommandType int

const (
	// CommandSwapLock replaces the active driver.
	CommandSwapLock CommandType = iota + 1
	// CommandOpenLock activates the lock for its open duration.
	CommandOpenLock
	// CommandCloseLock deactivates the lock if it is still the same opening.
	CommandCloseLock
	// CommandRestart stops the host so the process can start over.
	CommandRestart
)

// Command is a request posted to the host goroutine.
type Command struct {
	Type CommandType

	// Lock is the new configuration for CommandSwapLock (nil = no lock).
	Lock *model.LockConfig

	// Reason describes who or what requested an open, for logs.
	Reason string

	// opening identifies the open a CommandCloseLock belongs to.
	opening uint64
}

// commandQueue is a thread-safe FIFO queue for commands.
//
// The queue is unbounded so posting never blocks a background task.
//
// The queue uses a channel for signaling to enable context-aware waiting
// in the Run loop.
type commandQueue struct {
	mu       sync.Mutex
	commands []Command
	closed   bool
	signal   chan struct{} // Signals command availability (buffered, size 1)
}

// newCommandQueue creates an empty command queue.
func newCommandQueue() *commandQueue {
	return &commandQueue{
		commands: make([]Command, 0, 8),
		signal:   make(chan struct{}, 1),
	}
}

// Enqueue adds a command to the back of the queue.
// Thread-safe: may be called from any goroutine.
// Returns false if the queue is closed.
func (q *commandQueue) Enqueue(c Command) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.commands = append(q.commands, c)

	// Signal availability (non-blocking - buffer of 1 coalesces multiple signals)
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue attempts to dequeue without blocking.
// Returns (Command{}, false) if queue is empty.
func (q *commandQueue) TryDequeue() (Command, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.commands) == 0 {
		return Command{}, false
	}

	c := q.commands[0]

	// Nil out the slot so the array does not retain the lock config.
	q.commands[0] = Command{}

	if len(q.commands) == 1 {
		q.commands = q.commands[:0]
	} else {
		q.commands = q.commands[1:]
	}

	return c, true
}

// Wait returns a channel that signals when commands may be available.
func (q *commandQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *commandQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.commands)
}

// Close signals that no more commands will be enqueued.
// Wakes any blocked waiters by closing the signal channel.
func (q *commandQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}
