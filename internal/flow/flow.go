// Package flow implements a declarative per-user workflow engine: each
// workflow is a fixed ordered table of named steps interpreted by one generic
// engine, instead of ad hoc branching per text event.
package flow

import (
	"context"

	"groupcast/internal/session"
)

// Kind distinguishes how a step consumes input.
type Kind int

const (
	// Text steps wait for a free-text message and re-prompt on bad input.
	Text Kind = iota
	// Select steps wait for a chosen option index; bad index or ownership
	// violation aborts the workflow instead of re-prompting.
	Select
	// Run steps execute their effect immediately on entry without waiting
	// for user input (e.g. requesting a verification code).
	Run
)

// Outcome classifies the result of a step effect.
type Outcome int

const (
	// Advance moves to the step's declared successor.
	Advance Outcome = iota
	// Branch moves to the step's declared branch successor (the
	// two-factor-authentication detour).
	Branch
	// Complete ends the workflow successfully and clears the session.
	Complete
	// Abort ends the workflow with a terminal failure and clears the session.
	Abort
)

// Identity describes the acting user for one inbound event.
type Identity struct {
	ID         int64
	Name       string
	Privileged bool
}

// Context carries everything a validator, prompt, or effect may consult.
// It is only valid for the duration of one engine operation; the bag must
// not be retained past it.
type Context struct {
	Ctx   context.Context
	User  Identity
	Bag   *session.Bag
	Input string
	// Index is the chosen option index; meaningful for Select steps only.
	Index int
}

// Field returns a required string field, or ErrSessionExpired when missing.
func (fc *Context) Field(key string) (string, error) {
	if v := fc.Bag.String(key); v != "" {
		return v, nil
	}
	return "", ErrSessionExpired
}

// Result is what a step effect hands back to the engine.
type Result struct {
	Outcome Outcome
	// Reply is emitted verbatim on Complete/Abort; ignored otherwise
	// (the next step's prompt speaks instead).
	Reply string
}

// Advanced moves to the declared successor.
func Advanced() Result { return Result{Outcome: Advance} }

// Branched moves to the declared branch successor.
func Branched() Result { return Result{Outcome: Branch} }

// Completed ends the workflow with a final message.
func Completed(reply string) Result { return Result{Outcome: Complete, Reply: reply} }

// Aborted ends the workflow with a terminal failure message.
func Aborted(reply string) Result { return Result{Outcome: Abort, Reply: reply} }

// Step is one named state of a workflow.
type Step struct {
	Name string
	Kind Kind

	// Prompt produces the step's question and, for Select steps, the
	// enumerated options with stable indices. It runs under the user's
	// session lock and may stash candidate data in the bag.
	Prompt func(fc *Context) (string, []string, error)

	// Validate inspects raw input before the effect runs. A ValidationError
	// re-prompts without advancing; any other error aborts.
	Validate func(fc *Context) error

	// Effect performs the step's work: field assignment or an external
	// call. A nil effect simply advances.
	Effect func(fc *Context) (Result, error)

	// Next names the successor on Advance; empty means the effect must
	// complete or abort.
	Next string
	// BranchNext names the successor on Branch.
	BranchNext string
}

// Workflow is a fixed ordered table of steps.
type Workflow struct {
	Name  string
	Steps []Step

	// Cleanup releases resources stashed in the bag when the workflow ends
	// without completing: abort, cancel, or being displaced by entering
	// another workflow. It runs under the user's session lock, before the
	// bag is reset. Optional.
	Cleanup func(fc *Context)

	byName map[string]*Step
}

// New builds a workflow from its ordered step table.
func New(name string, steps ...Step) *Workflow {
	w := &Workflow{Name: name, Steps: steps, byName: make(map[string]*Step, len(steps))}
	for i := range w.Steps {
		w.byName[w.Steps[i].Name] = &w.Steps[i]
	}
	return w
}

// First returns the name of the initial step.
func (w *Workflow) First() string {
	if len(w.Steps) == 0 {
		return ""
	}
	return w.Steps[0].Name
}

// Lookup returns a step by name.
func (w *Workflow) Lookup(name string) (*Step, bool) {
	s, ok := w.byName[name]
	return s, ok
}
