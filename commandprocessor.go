package rhi

import (
	"fmt"
	"slices"
	"sync"

	"github.com/gogpu/wgpu/hal"
)

// inFlight is a native command buffer the queue has not finished.
type inFlight struct {
	raw   hal.CommandBuffer
	index uint64
}

// CommandProcessor hands out command buffers and submits them to the queue.
//
// Typical frame:
//
//	cb := proc.CommandBuffer()
//	cb.Begin()
//	// ... record ...
//	cb.End()
//	cb.Commit()
//	proc.Submit()
//
// A submitted buffer returns to the processor. It is handed out again by a
// later CommandBuffer call once the queue reports its submission complete.
//
// CommandProcessor is safe for concurrent use.
type CommandProcessor struct {
	mu  sync.Mutex
	ctx *Context

	pending   []*CommandBuffer
	submitted []*CommandBuffer
	inFlight  []inFlight
	all       []*CommandBuffer

	// completed is the highest submission index known to be finished.
	completed     uint64
	lastSubmitted uint64
	created       int
	destroyed     bool
}

func newCommandProcessor(ctx *Context) *CommandProcessor {
	return &CommandProcessor{ctx: ctx}
}

// CommandBuffer returns a command buffer in the Initial state. A submitted
// buffer whose work has completed is reused before a new one is created.
func (p *CommandProcessor) CommandBuffer() *CommandBuffer {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.retireLocked(p.ctx.queue.PollCompleted())
	for i, cb := range p.submitted {
		if cb.state == CommandBufferSubmitted && cb.submission <= p.completed {
			p.submitted = slices.Delete(p.submitted, i, i+1)
			cb.reset()
			return cb
		}
	}

	p.created++
	cb := &CommandBuffer{
		processor: p,
		ctx:       p.ctx,
		label:     fmt.Sprintf("%s-cmd-%d", p.ctx.label, p.created),
	}
	p.all = append(p.all, cb)
	return cb
}

func (p *CommandProcessor) commit(cb *CommandBuffer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending = append(p.pending, cb)
}

func (p *CommandProcessor) withdraw(cb *CommandBuffer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i := slices.Index(p.pending, cb); i >= 0 {
		p.pending = slices.Delete(p.pending, i, i+1)
	}
}

// Pending returns the number of committed buffers awaiting Submit.
func (p *CommandProcessor) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// Submit enqueues every buffer committed since the previous Submit, in
// commit order, as one queue submission. Nothing committed is a no-op.
func (p *CommandProcessor) Submit() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	pending := p.pending
	p.pending = nil
	return p.submitLocked(pending)
}

// submitLocked submits buffers in order. On failure the buffers stay Ended
// and uncommitted.
func (p *CommandProcessor) submitLocked(buffers []*CommandBuffer) error {
	if len(buffers) == 0 {
		return nil
	}
	raws := make([]hal.CommandBuffer, len(buffers))
	for i, cb := range buffers {
		raws[i] = cb.raw
	}
	index, err := p.ctx.queue.Submit(raws)
	for _, cb := range buffers {
		cb.committed = false
	}
	if err != nil {
		return backendError("submit", err)
	}
	for _, cb := range buffers {
		p.inFlight = append(p.inFlight, inFlight{raw: cb.raw, index: index})
		cb.raw = nil
		cb.state = CommandBufferSubmitted
		cb.submission = index
		if !slices.Contains(p.submitted, cb) {
			p.submitted = append(p.submitted, cb)
		}
	}
	p.lastSubmitted = max(p.lastSubmitted, index)
	Logger().Debug("rhi: submit", "buffers", len(buffers), "index", index)
	return nil
}

// retireLocked frees native buffers of submissions up to completed.
func (p *CommandProcessor) retireLocked(completed uint64) {
	p.completed = max(p.completed, completed)
	p.inFlight = slices.DeleteFunc(p.inFlight, func(f inFlight) bool {
		if f.index > p.completed {
			return false
		}
		p.ctx.device.FreeCommandBuffer(f.raw)
		return true
	})
}

// WaitIdle blocks until the device has finished all submitted work, then
// treats every buffer submitted before the call as complete. Submissions
// made while the device drains stay in flight.
func (p *CommandProcessor) WaitIdle() error {
	p.mu.Lock()
	target := p.lastSubmitted
	p.mu.Unlock()
	return p.waitFor(target)
}

// waitFor drains the device and retires submissions up to target, which
// must have been submitted before the call.
func (p *CommandProcessor) waitFor(target uint64) error {
	if err := p.ctx.device.WaitIdle(); err != nil {
		return backendError("wait idle", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.retireLocked(target)
	return nil
}

// reclaim takes a submitted buffer back from the reuse list so its owner
// can record into it again, waiting for its submission if needed.
func (p *CommandProcessor) reclaim(cb *CommandBuffer) error {
	p.mu.Lock()
	p.submitted = slices.DeleteFunc(p.submitted, func(s *CommandBuffer) bool { return s == cb })
	p.retireLocked(p.ctx.queue.PollCompleted())
	done := cb.submission <= p.completed
	p.mu.Unlock()
	if done {
		return nil
	}
	if err := p.waitFor(cb.submission); err != nil {
		p.mu.Lock()
		p.submitted = append(p.submitted, cb)
		p.mu.Unlock()
		return err
	}
	return nil
}

// execute ends cb, submits it alone and waits for it to finish.
// Buffers committed by other callers are not affected.
func (p *CommandProcessor) execute(cb *CommandBuffer) error {
	if err := cb.End(); err != nil {
		return err
	}
	p.mu.Lock()
	err := p.submitLocked([]*CommandBuffer{cb})
	p.mu.Unlock()
	if err != nil {
		_ = cb.Reset()
		return err
	}
	return p.WaitIdle()
}

// Destroy waits for the device to go idle and releases every command buffer
// the processor created. A second call is a no-op.
func (p *CommandProcessor) Destroy() error {
	p.mu.Lock()
	target := p.lastSubmitted
	p.mu.Unlock()
	waitErr := p.ctx.device.WaitIdle()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.destroyed {
		return nil
	}
	p.destroyed = true
	p.retireLocked(target)
	for _, cb := range p.all {
		if cb.state == CommandBufferEnded {
			p.ctx.device.FreeCommandBuffer(cb.raw)
			cb.raw = nil
		}
		cb.destroy()
	}
	p.all, p.pending, p.submitted = nil, nil, nil
	if len(p.inFlight) > 0 {
		Logger().Warn("rhi: command buffers submitted during teardown left in flight", "count", len(p.inFlight))
	}
	if waitErr != nil {
		return backendError("destroy command processor", waitErr)
	}
	return nil
}
