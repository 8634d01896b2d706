package native

import (
	"fmt"
	"time"

	"github.com/gogpu/passrec/gpucore"
	"github.com/gogpu/wgpu/hal"
)

// waitPollInterval is how often Wait polls the queue for completion.
const waitPollInterval = 200 * time.Microsecond

// commandList is a hal command encoder plus the command buffers of its
// submissions that the GPU may still execute.
type commandList struct {
	label     string
	encoder   hal.CommandEncoder
	recording bool
	pending   []hal.CommandBuffer
	// err is the first recording failure; Submit reports it.
	err error
}

func (l *commandList) fail(err error) {
	if l.err == nil {
		l.err = err
	}
}

func (l *commandList) destroy(device hal.Device) {
	if l.recording {
		l.encoder.DiscardEncoding()
	}
	for _, cb := range l.pending {
		device.FreeCommandBuffer(cb)
	}
	l.pending = nil
	l.encoder.Destroy()
}

func (b *Backend) list(id gpucore.CommandListID) (*commandList, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if err := b.checkOpen(); err != nil {
		return nil, err
	}
	l, ok := b.lists[id]
	if !ok {
		return nil, fmt.Errorf("%w: command list %d", ErrUnknownID, id)
	}
	return l, nil
}

func (b *Backend) CreateCommandList(label string) (gpucore.CommandListID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkOpen(); err != nil {
		return gpucore.InvalidID, err
	}
	enc, err := b.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("native: create command encoder %q: %w", label, err)
	}
	id := gpucore.CommandListID(b.id())
	b.lists[id] = &commandList{label: label, encoder: enc}
	return id, nil
}

func (b *Backend) DestroyCommandList(id gpucore.CommandListID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if l, ok := b.lists[id]; ok {
		l.destroy(b.device)
		delete(b.lists, id)
	}
}

func (b *Backend) ResetCommandList(id gpucore.CommandListID) error {
	l, err := b.list(id)
	if err != nil {
		return err
	}
	if l.recording {
		l.encoder.DiscardEncoding()
		l.recording = false
	}
	if len(l.pending) > 0 {
		l.encoder.ResetAll(l.pending)
		l.pending = nil
	}
	l.err = nil
	return nil
}

func (b *Backend) Encoder(id gpucore.CommandListID) (gpucore.Encoder, error) {
	l, err := b.list(id)
	if err != nil {
		return nil, err
	}
	if !l.recording {
		if err := l.encoder.BeginEncoding(l.label); err != nil {
			return nil, fmt.Errorf("native: begin encoding %q: %w", l.label, err)
		}
		l.recording = true
	}
	return &encoder{b: b, list: l}, nil
}

func (b *Backend) Submit(id gpucore.CommandListID) (uint64, error) {
	l, err := b.list(id)
	if err != nil {
		return 0, err
	}
	if !l.recording {
		if err := l.encoder.BeginEncoding(l.label); err != nil {
			return 0, fmt.Errorf("native: begin encoding %q: %w", l.label, err)
		}
		l.recording = true
	}
	if l.err != nil {
		l.encoder.DiscardEncoding()
		l.recording = false
		err := l.err
		l.err = nil
		return 0, fmt.Errorf("native: recording %q: %w", l.label, err)
	}
	cb, err := l.encoder.EndEncoding()
	l.recording = false
	if err != nil {
		return 0, fmt.Errorf("native: end encoding %q: %w", l.label, err)
	}
	value, err := b.queue.Submit([]hal.CommandBuffer{cb})
	if err != nil {
		b.device.FreeCommandBuffer(cb)
		return 0, fmt.Errorf("native: submit %q: %w", l.label, err)
	}
	l.pending = append(l.pending, cb)
	return value, nil
}

func (b *Backend) Completed() uint64 {
	return b.queue.PollCompleted()
}

func (b *Backend) Wait(value uint64, timeout time.Duration) (bool, error) {
	deadline := time.Now().Add(timeout)
	for {
		if b.queue.PollCompleted() >= value {
			return true, nil
		}
		if !time.Now().Before(deadline) {
			return false, nil
		}
		time.Sleep(waitPollInterval)
	}
}

func (b *Backend) WaitIdle() error {
	if err := b.device.WaitIdle(); err != nil {
		return fmt.Errorf("native: wait idle: %w", err)
	}
	return nil
}
