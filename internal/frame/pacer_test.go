package frame

import (
	"errors"
	"testing"
	"time"

	"github.com/gogpu/passrec/gpucore"
)

// testQueue completes submissions only when told to, and records every reset
// together with the fence state at that moment.
type testQueue struct {
	t         *testing.T
	nextList  gpucore.CommandListID
	submitted uint64
	completed uint64
	listFence map[gpucore.CommandListID]uint64
	resets    int
	destroyed int
	encoders  int
	stall     bool // Wait never completes
	autoWait  bool // Wait completes the requested value
}

func newTestQueue(t *testing.T) *testQueue {
	return &testQueue{t: t, listFence: make(map[gpucore.CommandListID]uint64), autoWait: true}
}

func (q *testQueue) CreateCommandList(string) (gpucore.CommandListID, error) {
	q.nextList++
	return q.nextList, nil
}

func (q *testQueue) DestroyCommandList(gpucore.CommandListID) { q.destroyed++ }

func (q *testQueue) ResetCommandList(id gpucore.CommandListID) error {
	if f := q.listFence[id]; f > q.completed {
		q.t.Errorf("reset of list %d with fence %d, completed %d", id, f, q.completed)
	}
	q.resets++
	return nil
}

func (q *testQueue) Encoder(gpucore.CommandListID) (gpucore.Encoder, error) {
	q.encoders++
	return nil, nil
}

func (q *testQueue) Submit(id gpucore.CommandListID) (uint64, error) {
	q.submitted++
	q.listFence[id] = q.submitted
	return q.submitted, nil
}

func (q *testQueue) Completed() uint64 { return q.completed }

func (q *testQueue) Wait(value uint64, _ time.Duration) (bool, error) {
	if q.stall || !q.autoWait {
		return q.completed >= value, nil
	}
	if value > q.completed {
		q.completed = value
	}
	return true, nil
}

func (q *testQueue) WaitIdle() error {
	q.completed = q.submitted
	return nil
}

func TestNewRejectsSmallFrameCount(t *testing.T) {
	tests := []struct {
		name    string
		count   int
		want    int
		wantErr bool
	}{
		{"default", 0, DefaultFrameCount, false},
		{"one", 1, 0, true},
		{"negative", -2, 0, true},
		{"two", 2, 2, false},
		{"five", 5, 5, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New(newTestQueue(t), Config{FrameCount: tt.count})
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && p.FrameCount() != tt.want {
				t.Errorf("FrameCount() = %d, want %d", p.FrameCount(), tt.want)
			}
		})
	}
}

func TestSubmitNeverResetsInFlightList(t *testing.T) {
	q := newTestQueue(t)
	p, err := New(q, Config{FrameCount: 3})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 20; i++ {
		if _, err := p.Submit(); err != nil {
			t.Fatalf("Submit() #%d error = %v", i, err)
		}
	}
	if q.resets != 20 {
		t.Errorf("resets = %d, want 20", q.resets)
	}
	// The GPU never advanced on its own, so every wrap stalled.
	if got := p.Stats().Stalls; got != 18 {
		t.Errorf("Stalls = %d, want 18", got)
	}
}

func TestSubmitNoStallWhenGPUKeepsUp(t *testing.T) {
	q := newTestQueue(t)
	p, err := New(q, Config{FrameCount: 2})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		v, err := p.Submit()
		if err != nil {
			t.Fatal(err)
		}
		q.completed = v
	}
	if got := p.Stats().Stalls; got != 0 {
		t.Errorf("Stalls = %d, want 0", got)
	}
	if p.LastSubmitted() != 5 {
		t.Errorf("LastSubmitted() = %d, want 5", p.LastSubmitted())
	}
}

func TestSubmitTimeout(t *testing.T) {
	q := newTestQueue(t)
	q.stall = true
	p, err := New(q, Config{FrameCount: 2, Timeout: time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Submit(); err != nil {
		t.Fatalf("first Submit() error = %v", err)
	}
	_, err = p.Submit()
	if !errors.Is(err, ErrSyncTimeout) {
		t.Fatalf("second Submit() error = %v, want ErrSyncTimeout", err)
	}

	// The slot still runs its first submission, so it cannot record yet.
	resets := q.resets
	if _, err := p.Encoder(); !errors.Is(err, ErrSyncTimeout) {
		t.Fatalf("Encoder() error = %v, want ErrSyncTimeout", err)
	}
	if q.encoders != 0 || q.resets != resets {
		t.Fatalf("encoders = %d, resets = %d, want the stalled list untouched", q.encoders, q.resets-resets)
	}

	q.stall = false
	q.completed = q.submitted
	if _, err := p.Encoder(); err != nil {
		t.Fatalf("Encoder() after completion error = %v", err)
	}
	if q.resets != resets+1 {
		t.Errorf("resets = %d, want the stalled list reset once", q.resets-resets)
	}
}

func TestRetainReleasedAfterCompletion(t *testing.T) {
	q := newTestQueue(t)
	p, err := New(q, Config{FrameCount: 3})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Encoder(); err != nil {
		t.Fatal(err)
	}
	released := 0
	p.Retain(func() { released++ })

	// Recorded but not submitted: nothing to release even if the GPU is idle.
	p.ReleaseCompleted()
	if released != 0 {
		t.Fatalf("released before submit")
	}

	v, err := p.Submit()
	if err != nil {
		t.Fatal(err)
	}
	if released != 0 {
		t.Fatalf("released before completion")
	}
	q.completed = v
	p.ReleaseCompleted()
	if released != 1 {
		t.Errorf("released = %d, want 1", released)
	}
	if got := p.Stats().Pending; got != 0 {
		t.Errorf("Pending = %d, want 0", got)
	}
}

func TestWaitIdleReleasesEverything(t *testing.T) {
	q := newTestQueue(t)
	q.autoWait = true
	p, err := New(q, Config{})
	if err != nil {
		t.Fatal(err)
	}
	var released []string
	if _, err := p.Encoder(); err != nil {
		t.Fatal(err)
	}
	p.Retain(func() { released = append(released, "a") })
	if _, err := p.Submit(); err != nil {
		t.Fatal(err)
	}
	// Nothing is recorded now, so b only waits for the last submission.
	p.Retain(func() { released = append(released, "b") })

	if err := p.WaitIdle(); err != nil {
		t.Fatal(err)
	}
	if len(released) != 2 || released[0] != "a" || released[1] != "b" {
		t.Errorf("released = %v, want [a b]", released)
	}
	if got := p.Stats().Pending; got != 0 {
		t.Errorf("Pending = %d, want 0", got)
	}
}

func TestRetainWhileRecording(t *testing.T) {
	q := newTestQueue(t)
	p, err := New(q, Config{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Submit(); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Encoder(); err != nil {
		t.Fatal(err)
	}
	released := 0
	p.Retain(func() { released++ })

	if err := p.WaitIdle(); err != nil {
		t.Fatal(err)
	}
	if released != 0 {
		t.Fatalf("released = %d while the list still records, want 0", released)
	}

	// Discarding the recording leaves only the submitted work to wait for.
	if err := p.Discard(); err != nil {
		t.Fatal(err)
	}
	if err := p.WaitIdle(); err != nil {
		t.Fatal(err)
	}
	if released != 1 {
		t.Errorf("released = %d after Discard, want 1", released)
	}
}

func TestCloseReleasesEverything(t *testing.T) {
	q := newTestQueue(t)
	p, err := New(q, Config{FrameCount: 4})
	if err != nil {
		t.Fatal(err)
	}
	released := 0
	p.Retain(func() { released++ })
	p.Retain(func() { released++ })

	if err := p.Close(); err != nil {
		t.Fatal(err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if released != 2 {
		t.Errorf("released = %d, want 2", released)
	}
	if q.destroyed != 4 {
		t.Errorf("destroyed lists = %d, want 4", q.destroyed)
	}
	if _, err := p.Submit(); !errors.Is(err, ErrClosed) {
		t.Errorf("Submit() after Close error = %v, want ErrClosed", err)
	}
	p.Retain(func() { released++ })
	if released != 3 {
		t.Errorf("Retain after Close should release immediately")
	}
}

func TestDiscardResetsCurrent(t *testing.T) {
	q := newTestQueue(t)
	p, err := New(q, Config{FrameCount: 2})
	if err != nil {
		t.Fatal(err)
	}
	before := p.Current()
	if err := p.Discard(); err != nil {
		t.Fatal(err)
	}
	if q.resets != 1 {
		t.Errorf("resets = %d, want 1", q.resets)
	}
	if p.Current() != before {
		t.Errorf("Discard() moved to another slot")
	}
}
