// Package pipeline implements a FIFO admission queue that bounds how many
// tasks may run at the same time. A Pipeline with a limit of one doubles as a
// strictly ordered lane.
package pipeline

import (
	"container/list"
	"context"
	"sync"
)

type ticketState int

const (
	stateWaiting ticketState = iota
	stateAdmitted
	stateReleased
	stateWithdrawn
)

// Pipeline admits tickets in arrival order while at most limit of them are
// active. It is safe for concurrent use.
type Pipeline struct {
	mu      sync.Mutex
	limit   int
	active  int
	waiters list.List
	onEmpty []func()
}

// Ticket is a single reservation in a Pipeline.
type Ticket struct {
	p     *Pipeline
	elem  *list.Element
	ready chan struct{}
	state ticketState
}

// New returns a pipeline admitting at most limit concurrent tickets.
// Values below one are treated as one.
func New(limit int) *Pipeline {
	if limit < 1 {
		limit = 1
	}
	return &Pipeline{limit: limit}
}

// Enqueue reserves a place in the queue without blocking. The ticket is
// admitted immediately when capacity is free and nobody is ahead of it.
func (p *Pipeline) Enqueue() *Ticket {
	t := &Ticket{p: p, ready: make(chan struct{})}

	p.mu.Lock()
	if p.active < p.limit && p.waiters.Len() == 0 {
		p.active++
		t.state = stateAdmitted
		close(t.ready)
	} else {
		t.elem = p.waiters.PushBack(t)
	}
	p.mu.Unlock()

	return t
}

// Run enqueues fn, waits for admission and runs it. The slot is released
// when fn returns.
func (p *Pipeline) Run(ctx context.Context, fn func(context.Context) error) error {
	t := p.Enqueue()
	if err := t.Wait(ctx); err != nil {
		return err
	}
	defer t.Release()
	return fn(ctx)
}

// SetLimit changes the maximum number of active tickets. Tickets already
// running are unaffected; a larger limit admits waiters straight away.
func (p *Pipeline) SetLimit(n int) {
	if n < 1 {
		n = 1
	}
	p.mu.Lock()
	p.limit = n
	p.grantLocked()
	p.mu.Unlock()
}

// Limit reports the current admission limit.
func (p *Pipeline) Limit() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.limit
}

// Active reports how many tickets are currently admitted.
func (p *Pipeline) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// Waiting reports how many tickets are queued for admission.
func (p *Pipeline) Waiting() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.waiters.Len()
}

// Idle reports whether nothing is running or queued.
func (p *Pipeline) Idle() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.idleLocked()
}

// OnEmpty registers fn to be called every time the pipeline becomes idle.
// Callbacks run outside the pipeline lock.
func (p *Pipeline) OnEmpty(fn func()) {
	p.mu.Lock()
	p.onEmpty = append(p.onEmpty, fn)
	p.mu.Unlock()
}

// Wait blocks until the ticket is admitted or ctx is done. On cancellation a
// queued ticket is withdrawn and the context cause is returned.
func (t *Ticket) Wait(ctx context.Context) error {
	select {
	case <-t.ready:
		return nil
	case <-ctx.Done():
	}

	p := t.p
	p.mu.Lock()
	switch t.state {
	case stateWaiting:
		p.waiters.Remove(t.elem)
		t.elem = nil
		t.state = stateWithdrawn
	case stateAdmitted:
		// admitted while the context was being cancelled
		t.state = stateReleased
		p.active--
		p.grantLocked()
	}
	callbacks := p.emptyCallbacksLocked()
	p.mu.Unlock()

	notify(callbacks)
	return context.Cause(ctx)
}

// Release frees the ticket's slot and admits the next waiter. It is a no-op
// for tickets that were never admitted or were already released.
func (t *Ticket) Release() {
	p := t.p
	p.mu.Lock()
	if t.state != stateAdmitted {
		p.mu.Unlock()
		return
	}
	t.state = stateReleased
	p.active--
	p.grantLocked()
	callbacks := p.emptyCallbacksLocked()
	p.mu.Unlock()

	notify(callbacks)
}

func (p *Pipeline) grantLocked() {
	for p.active < p.limit {
		front := p.waiters.Front()
		if front == nil {
			return
		}
		t := p.waiters.Remove(front).(*Ticket)
		t.elem = nil
		t.state = stateAdmitted
		p.active++
		close(t.ready)
	}
}

func (p *Pipeline) idleLocked() bool {
	return p.active == 0 && p.waiters.Len() == 0
}

func (p *Pipeline) emptyCallbacksLocked() []func() {
	if !p.idleLocked() || len(p.onEmpty) == 0 {
		return nil
	}
	callbacks := make([]func(), len(p.onEmpty))
	copy(callbacks, p.onEmpty)
	return callbacks
}

func notify(callbacks []func()) {
	for _, fn := range callbacks {
		fn()
	}
}
