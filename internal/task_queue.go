package internal

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// TaskPriority orders work on the TaskQueue
type TaskPriority int

const (
	// PriorityImmediate is user-initiated work, run ahead of everything.
	PriorityImmediate TaskPriority = iota
	// PriorityHeadInvalidate holds user-facing and background work until
	// the next HEAD reset.
	PriorityHeadInvalidate
	// PriorityHeadReset replaces HEAD and releases held work.
	PriorityHeadReset
	// PriorityUserFacing is the default.
	PriorityUserFacing
	// PriorityBackground is cache maintenance, GC and persistence.
	PriorityBackground

	priorityCount
)

var priorityNames = map[TaskPriority]string{
	PriorityImmediate:      "immediate",
	PriorityHeadInvalidate: "head_invalidate",
	PriorityHeadReset:      "head_reset",
	PriorityUserFacing:     "user_facing",
	PriorityBackground:     "background",
}

func (p TaskPriority) String() string {
	if name, ok := priorityNames[p]; ok {
		return name
	}
	return "unknown"
}

type workerKey struct{}

// withWorker marks ctx as running on the queue worker
func withWorker(ctx context.Context) context.Context {
	return context.WithValue(ctx, workerKey{}, true)
}

// OnWorker reports whether ctx belongs to a task run by a TaskQueue
func OnWorker(ctx context.Context) bool {
	v, _ := ctx.Value(workerKey{}).(bool)
	return v
}

// assertWorker logs when a worker-only operation runs elsewhere
func assertWorker(ctx context.Context, op string) {
	if !OnWorker(ctx) {
		logError("%s must run on the task queue worker", op)
	}
}

type queuedTask struct {
	name     string
	priority TaskPriority
	fn       Task
	queuedAt time.Time
}

// TaskQueue runs every task on one worker goroutine, which is what makes
// session mutation single-writer.
type TaskQueue struct {
	mu       sync.Mutex
	idle     *sync.Cond
	queues   [priorityCount][]queuedTask
	running  bool
	closed   bool
	wake     chan struct{}
	done     chan struct{}
	baseCtx  context.Context
	cancel   context.CancelFunc
	resetTTL time.Duration
	now      func() time.Time
	log      componentLog

	// set while a HEAD invalidation holds user-facing and background work
	waitingSince time.Time
	waiting      bool

	executed     [priorityCount]int64
	panics       int64
	resetTimeout int64
	maxDepth     int
}

// NewTaskQueue starts a queue worker. resetTimeout bounds how long a HEAD
// invalidation may hold work; zero disables the bound.
func NewTaskQueue(resetTimeout time.Duration) *TaskQueue {
	ctx, cancel := context.WithCancel(context.Background())
	q := &TaskQueue{
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
		baseCtx:  withWorker(ctx),
		cancel:   cancel,
		resetTTL: resetTimeout,
		now:      time.Now,
		log:      newComponentLog("TaskQueue"),
	}
	q.idle = sync.NewCond(&q.mu)
	go q.run()
	return q
}

// Execute enqueues fn. Tasks never block the caller.
func (q *TaskQueue) Execute(name string, priority TaskPriority, fn Task) {
	if priority < 0 || priority >= priorityCount {
		priority = PriorityUserFacing
	}
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		q.log.warnf("Dropping task %s, queue closed", name)
		return
	}
	q.queues[priority] = append(q.queues[priority], queuedTask{
		name: name, priority: priority, fn: fn, queuedAt: q.now(),
	})
	if depth := q.depthLocked(); depth > q.maxDepth {
		q.maxDepth = depth
	}
	q.mu.Unlock()
	q.signal()
}

// RunAndWait enqueues fn and blocks until it has run or ctx is done
func (q *TaskQueue) RunAndWait(ctx context.Context, name string, priority TaskPriority, fn Task) error {
	finished := make(chan struct{})
	q.Execute(name, priority, func(taskCtx context.Context) {
		defer close(finished)
		fn(taskCtx)
	})
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for %s: %w", name, ctx.Err())
	}
}

// Flush blocks until no runnable task is queued and the worker is idle.
// Work held by a pending HEAD invalidation does not count as runnable.
func (q *TaskQueue) Flush() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for !q.closed && (q.running || q.hasRunnableLocked()) {
		q.idle.Wait()
	}
}

// Close stops the worker once the current task returns. Queued tasks are dropped.
func (q *TaskQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.idle.Broadcast()
	q.mu.Unlock()
	q.cancel()
	q.signal()
	<-q.done
}

func (q *TaskQueue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *TaskQueue) run() {
	defer close(q.done)
	for {
		task, wait, ok := q.next()
		if !ok {
			return
		}
		if task == nil {
			q.sleep(wait)
			continue
		}
		q.execute(*task)
	}
}

func (q *TaskQueue) sleep(wait time.Duration) {
	if wait <= 0 {
		<-q.wake
		return
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-q.wake:
	case <-timer.C:
	}
}

// next pops the next runnable task. A nil task with ok=true means the
// worker should sleep for wait (zero: until signalled).
func (q *TaskQueue) next() (*queuedTask, time.Duration, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, 0, false
	}

	if q.waiting && q.resetTTL > 0 {
		if elapsed := q.now().Sub(q.waitingSince); elapsed >= q.resetTTL {
			q.log.warnf("HEAD reset not seen after %s, releasing held tasks", elapsed)
			q.waiting = false
			q.resetTimeout++
		}
	}

	for p := TaskPriority(0); p < priorityCount; p++ {
		if q.waiting && (p == PriorityUserFacing || p == PriorityBackground) {
			break
		}
		if len(q.queues[p]) == 0 {
			continue
		}
		task := q.queues[p][0]
		q.queues[p] = q.queues[p][1:]
		q.running = true
		return &task, 0, true
	}

	q.idle.Broadcast()
	if q.waiting && q.resetTTL > 0 {
		return nil, q.resetTTL - q.now().Sub(q.waitingSince), true
	}
	return nil, 0, true
}

func (q *TaskQueue) execute(task queuedTask) {
	defer func() {
		if r := recover(); r != nil {
			q.log.errorf("Task %s panicked: %v", task.name, r)
			q.mu.Lock()
			q.panics++
			q.mu.Unlock()
		}
		q.mu.Lock()
		q.running = false
		q.executed[task.priority]++
		switch task.priority {
		case PriorityHeadInvalidate:
			if !q.waiting {
				q.waiting = true
				q.waitingSince = q.now()
			}
		case PriorityHeadReset:
			q.waiting = false
		}
		q.idle.Broadcast()
		q.mu.Unlock()
	}()

	q.log.debugf("Running %s [%s] after %s", task.name, task.priority, q.now().Sub(task.queuedAt))
	task.fn(q.baseCtx)
}

func (q *TaskQueue) hasRunnableLocked() bool {
	for p := TaskPriority(0); p < priorityCount; p++ {
		if q.waiting && (p == PriorityUserFacing || p == PriorityBackground) {
			return false
		}
		if len(q.queues[p]) > 0 {
			return true
		}
	}
	return false
}

func (q *TaskQueue) depthLocked() int {
	n := 0
	for _, tasks := range q.queues {
		n += len(tasks)
	}
	return n
}

// TaskQueueStats is a diagnostics snapshot
type TaskQueueStats struct {
	Executed      map[string]int64 `json:"executed"`
	Pending       int              `json:"pending"`
	MaxDepth      int              `json:"max_depth"`
	Panics        int64            `json:"panics"`
	ResetTimeouts int64            `json:"reset_timeouts"`
	WaitingReset  bool             `json:"waiting_for_reset"`
}

// Stats returns the queue counters
func (q *TaskQueue) Stats() TaskQueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	executed := make(map[string]int64, priorityCount)
	for p := TaskPriority(0); p < priorityCount; p++ {
		executed[p.String()] = q.executed[p]
	}
	return TaskQueueStats{
		Executed:      executed,
		Pending:       q.depthLocked(),
		MaxDepth:      q.maxDepth,
		Panics:        q.panics,
		ResetTimeouts: q.resetTimeout,
		WaitingReset:  q.waiting,
	}
}
