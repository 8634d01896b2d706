package frame

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gogpu/passrec/gpucore"
)

// Defaults for Config.
const (
	DefaultFrameCount = 3
	DefaultTimeout    = 5 * time.Second
)

var (
	// ErrSyncTimeout is returned when a fence wait does not complete in time.
	// It usually means the device was lost.
	ErrSyncTimeout = errors.New("frame: fence wait timed out")

	// ErrClosed is returned by operations on a closed pacer.
	ErrClosed = errors.New("frame: pacer closed")
)

// Config configures a Pacer.
type Config struct {
	// FrameCount is the number of command lists in flight. Must be >= 2.
	// Zero means DefaultFrameCount.
	FrameCount int

	// Timeout bounds every fence wait. Zero means DefaultTimeout.
	Timeout time.Duration

	// Label prefixes the command list labels.
	Label string

	// Logger receives debug records about stalls and releases.
	Logger *slog.Logger
}

// Stats counts pacer activity.
type Stats struct {
	Submits  uint64
	Stalls   uint64
	Released uint64
	Pending  int
}

type retained struct {
	value   uint64
	bound   bool // false until the submission it waits for is known
	release func()
}

// Pacer multi-buffers command lists over a fence timeline.
type Pacer struct {
	q       gpucore.CommandQueue
	lists   []gpucore.CommandListID
	fences  []uint64
	index   int
	last    uint64
	timeout time.Duration
	log     *slog.Logger

	pending []retained
	stats   Stats
	closed  bool

	// dirty is set once the current list has recorded work.
	dirty bool
	// stale is set when the current list may still be executing because a
	// slot wait timed out.
	stale bool
}

// New creates a pacer with cfg.FrameCount command lists.
func New(q gpucore.CommandQueue, cfg Config) (*Pacer, error) {
	n := cfg.FrameCount
	if n == 0 {
		n = DefaultFrameCount
	}
	if n < 2 {
		return nil, fmt.Errorf("frame: frame count %d, need at least 2", n)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	p := &Pacer{
		q:       q,
		lists:   make([]gpucore.CommandListID, 0, n),
		fences:  make([]uint64, n),
		timeout: timeout,
		log:     log,
	}
	for i := 0; i < n; i++ {
		id, err := q.CreateCommandList(fmt.Sprintf("%sframe %d", cfg.Label, i))
		if err != nil {
			p.destroyLists()
			return nil, fmt.Errorf("frame: create command list %d: %w", i, err)
		}
		p.lists = append(p.lists, id)
	}
	return p, nil
}

// FrameCount returns the number of frame slots.
func (p *Pacer) FrameCount() int { return len(p.lists) }

// Index returns the current frame slot.
func (p *Pacer) Index() int { return p.index }

// Current returns the command list of the current slot. It is ready for
// recording.
func (p *Pacer) Current() gpucore.CommandListID { return p.lists[p.index] }

// Encoder returns the recorder of the current command list.
func (p *Pacer) Encoder() (gpucore.Encoder, error) {
	if p.closed {
		return nil, ErrClosed
	}
	if err := p.recoverSlot(); err != nil {
		return nil, err
	}
	enc, err := p.q.Encoder(p.Current())
	if err != nil {
		return nil, err
	}
	p.dirty = true
	return enc, nil
}

// recoverSlot finishes the slot switch of a Submit whose wait timed out.
func (p *Pacer) recoverSlot() error {
	if !p.stale {
		return nil
	}
	if err := p.wait(p.fences[p.index]); err != nil {
		return err
	}
	if err := p.q.ResetCommandList(p.Current()); err != nil {
		return fmt.Errorf("frame: reset command list: %w", err)
	}
	p.stale = false
	return nil
}

// LastSubmitted returns the fence value of the most recent submission.
func (p *Pacer) LastSubmitted() uint64 { return p.last }

// Submit submits the current list, moves to the next slot and makes that
// slot's list reusable, waiting for the GPU if it is still executing the
// slot's previous submission. It returns the fence value of the submission.
func (p *Pacer) Submit() (uint64, error) {
	if p.closed {
		return 0, ErrClosed
	}
	if err := p.recoverSlot(); err != nil {
		return 0, err
	}
	value, err := p.q.Submit(p.Current())
	if err != nil {
		return 0, fmt.Errorf("frame: submit: %w", err)
	}
	p.stats.Submits++
	p.fences[p.index] = value
	p.last = value
	p.dirty = false
	p.bind(value)

	p.index = (p.index + 1) % len(p.lists)
	if want := p.fences[p.index]; want > p.q.Completed() {
		p.stats.Stalls++
		p.log.Debug("frame: waiting for slot", "slot", p.index, "fence", want, "completed", p.q.Completed())
		if err := p.wait(want); err != nil {
			p.stale = true
			return value, err
		}
	}
	if err := p.q.ResetCommandList(p.Current()); err != nil {
		return value, fmt.Errorf("frame: reset command list: %w", err)
	}
	p.ReleaseCompleted()
	return value, nil
}

// Discard throws away everything recorded into the current list since the
// last Submit. Use it when recording fails part way.
func (p *Pacer) Discard() error {
	if p.closed {
		return ErrClosed
	}
	if err := p.recoverSlot(); err != nil {
		return err
	}
	if err := p.q.ResetCommandList(p.Current()); err != nil {
		return fmt.Errorf("frame: discard: %w", err)
	}
	p.dirty = false
	p.bind(p.last)
	return nil
}

// bind ties every unbound retained object to the submission value.
func (p *Pacer) bind(value uint64) {
	for i := range p.pending {
		if !p.pending[i].bound {
			p.pending[i].value = value
			p.pending[i].bound = true
		}
	}
}

// WaitIdle blocks until every submission has completed, then releases all
// retained objects tied to those submissions.
func (p *Pacer) WaitIdle() error {
	if p.closed {
		return ErrClosed
	}
	if p.last > p.q.Completed() {
		if err := p.wait(p.last); err != nil {
			return err
		}
	}
	p.ReleaseCompleted()
	return nil
}

// Retain defers release until the GPU no longer uses the object. While the
// current list has recorded work the release waits for its submission,
// otherwise for the last submission.
func (p *Pacer) Retain(release func()) {
	if release == nil {
		return
	}
	if p.closed {
		release()
		return
	}
	r := retained{release: release}
	if !p.dirty {
		r.value, r.bound = p.last, true
	}
	p.pending = append(p.pending, r)
}

// ReleaseCompleted runs the release of every retained object whose
// submission the GPU has completed.
func (p *Pacer) ReleaseCompleted() {
	completed := p.q.Completed()
	kept := p.pending[:0]
	var released int
	for _, r := range p.pending {
		if r.bound && r.value <= completed {
			r.release()
			released++
			continue
		}
		kept = append(kept, r)
	}
	clear(p.pending[len(kept):])
	p.pending = kept
	if released > 0 {
		p.stats.Released += uint64(released)
		p.log.Debug("frame: released deferred objects", "count", released, "completed", completed)
	}
}

// Stats returns a snapshot of pacer counters.
func (p *Pacer) Stats() Stats {
	s := p.stats
	s.Pending = len(p.pending)
	return s
}

// Close waits for the GPU, releases every retained object and destroys the
// command lists. Close is idempotent.
func (p *Pacer) Close() error {
	if p.closed {
		return nil
	}
	err := p.q.WaitIdle()
	for _, r := range p.pending {
		r.release()
	}
	p.stats.Released += uint64(len(p.pending))
	p.pending = nil
	p.destroyLists()
	p.closed = true
	if err != nil {
		return fmt.Errorf("frame: wait idle: %w", err)
	}
	return nil
}

func (p *Pacer) wait(value uint64) error {
	ok, err := p.q.Wait(value, p.timeout)
	if err != nil {
		return fmt.Errorf("frame: wait for fence %d: %w", value, err)
	}
	if !ok {
		return fmt.Errorf("%w: fence %d after %v", ErrSyncTimeout, value, p.timeout)
	}
	return nil
}

func (p *Pacer) destroyLists() {
	for _, id := range p.lists {
		p.q.DestroyCommandList(id)
	}
	p.lists = nil
}
