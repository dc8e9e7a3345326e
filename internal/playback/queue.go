package playback

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"macrokit/internal/model"
)

var (
	ErrQueueRunning = errors.New("queue already running")
	ErrQueueEmpty   = errors.New("queue is empty")
)

// Queue plays an ordered list of macro ids back-to-back. Individual macros'
// loop settings are ignored during queue playback; only the queue's own loop
// applies. Cancellation is cooperative and checked between macro plays,
// never mid-macro.
type Queue struct {
	mu          sync.Mutex
	ctrl        *Controller
	resolve     Resolver
	items       []string
	loopEnabled bool
	loopDelayMs int64
	running     bool
	cancel      *atomic.Bool
	loopTimer   *time.Timer
	onChange    func(model.QueueState)
}

func NewQueue(ctrl *Controller, resolve Resolver) *Queue {
	return &Queue{ctrl: ctrl, resolve: resolve}
}

// OnChange registers the hook invoked (without the queue lock held) after
// every state mutation. All broadcast paths funnel through it.
func (q *Queue) OnChange(fn func(model.QueueState)) {
	q.mu.Lock()
	q.onChange = fn
	q.mu.Unlock()
}

// Enqueue appends a macro id.
func (q *Queue) Enqueue(id string) {
	q.mu.Lock()
	q.items = append(q.items, id)
	q.mu.Unlock()
	q.notify()
}

// RemoveAt deletes the item at index i, ignoring out-of-range indexes.
func (q *Queue) RemoveAt(i int) {
	q.mu.Lock()
	if i < 0 || i >= len(q.items) {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items[:i], q.items[i+1:]...)
	q.mu.Unlock()
	q.notify()
}

// SetLoop updates the queue's own loop settings.
func (q *Queue) SetLoop(enabled bool, delayMs int64) {
	if delayMs < 0 {
		delayMs = 0
	}
	q.mu.Lock()
	q.loopEnabled = enabled
	q.loopDelayMs = delayMs
	q.mu.Unlock()
	q.notify()
}

// State returns a snapshot of the queue.
func (q *Queue) State() model.QueueState {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stateLocked()
}

func (q *Queue) stateLocked() model.QueueState {
	return model.QueueState{
		Items:       append([]string(nil), q.items...),
		LoopEnabled: q.loopEnabled,
		LoopDelayMs: q.loopDelayMs,
		Running:     q.running,
	}
}

// Apply overwrites queue contents and loop settings from a remote snapshot.
// The running flag is informational from another process and does not start
// or stop a local run. The change hook fires like any other mutation; the
// synchronizer's suppress flag keeps the applied value from echoing back.
func (q *Queue) Apply(st model.QueueState) {
	q.mu.Lock()
	q.items = append([]string(nil), st.Items...)
	q.loopEnabled = st.LoopEnabled
	q.loopDelayMs = st.LoopDelayMs
	q.mu.Unlock()
	q.notify()
}

// Play snapshots the current order and plays each resolvable macro
// sequentially with looping suppressed. Dangling ids (macro deleted
// mid-queue) are skipped. No-op errors: ErrQueueRunning, ErrQueueEmpty.
func (q *Queue) Play() error {
	q.mu.Lock()
	if q.running {
		q.mu.Unlock()
		return ErrQueueRunning
	}
	if len(q.items) == 0 {
		q.mu.Unlock()
		return ErrQueueEmpty
	}
	snapshot := append([]string(nil), q.items...)
	flag := &atomic.Bool{}
	q.cancel = flag
	q.running = true
	q.mu.Unlock()
	q.notify()

	go q.run(snapshot, flag)
	return nil
}

func (q *Queue) run(snapshot []string, flag *atomic.Bool) {
	for _, id := range snapshot {
		if flag.Load() {
			break
		}
		seq, ok := q.resolve(id)
		if !ok || len(seq.Events) == 0 {
			continue
		}
		_, done, err := q.ctrl.Play(seq.Events, Options{
			Speed:   seq.PlaybackSpeed,
			Loops:   1,
			MacroID: id,
		})
		if err != nil {
			continue
		}
		<-done
	}

	q.mu.Lock()
	rearm := q.loopEnabled && !flag.Load()
	delay := q.loopDelayMs
	if rearm {
		if q.loopTimer != nil {
			q.loopTimer.Stop()
		}
		q.loopTimer = time.AfterFunc(time.Duration(delay)*time.Millisecond, func() {
			q.mu.Lock()
			q.loopTimer = nil
			cancelled := flag.Load()
			q.running = false
			q.mu.Unlock()
			if !cancelled {
				q.notify()
				_ = q.Play()
			}
		})
		q.mu.Unlock()
		return
	}
	q.running = false
	q.mu.Unlock()
	q.notify()
}

// Stop sets the cancellation flag, clears any pending loop timer, and asks
// the controller to cancel whatever macro is mid-playback. Items already
// played stay played; items not yet started will not start.
func (q *Queue) Stop() {
	q.mu.Lock()
	if q.cancel != nil {
		q.cancel.Store(true)
	}
	if q.loopTimer != nil {
		q.loopTimer.Stop()
		q.loopTimer = nil
	}
	wasRunning := q.running
	q.running = false
	q.mu.Unlock()

	if wasRunning {
		q.ctrl.Cancel()
		q.notify()
	}
}

// Clear empties the queue and force-stops any running or looping playback.
func (q *Queue) Clear() {
	q.Stop()
	q.mu.Lock()
	q.items = nil
	q.mu.Unlock()
	q.notify()
}

func (q *Queue) notify() {
	q.mu.Lock()
	fn := q.onChange
	st := q.stateLocked()
	q.mu.Unlock()
	if fn != nil {
		fn(st)
	}
}
