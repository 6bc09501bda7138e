package apireq

import (
	"github.com/ambiyansyah-risyal/apireq/internal/pipeline"
)

// PipelineExecutor is the default Executor: a FIFO pipeline admitting at
// most Limit transport calls at once.
type PipelineExecutor struct {
	p *pipeline.Pipeline
}

// NewPipelineExecutor returns an executor admitting up to limit calls.
func NewPipelineExecutor(limit int) *PipelineExecutor {
	return &PipelineExecutor{p: pipeline.New(limit)}
}

func (e *PipelineExecutor) Enqueue() Ticket {
	return e.p.Enqueue()
}

// SetLimit changes the admission limit. Calls already admitted keep running.
func (e *PipelineExecutor) SetLimit(n int) {
	e.p.SetLimit(n)
}

// OnEmpty registers fn to run each time the executor drains.
func (e *PipelineExecutor) OnEmpty(fn func()) {
	e.p.OnEmpty(fn)
}

func (e *PipelineExecutor) Limit() int   { return e.p.Limit() }
func (e *PipelineExecutor) Active() int  { return e.p.Active() }
func (e *PipelineExecutor) Waiting() int { return e.p.Waiting() }
