package flow

import (
	"context"
	"errors"
	"log/slog"

	"groupcast/core/logger"
	"groupcast/internal/session"
)

// Prompter is the output channel used to emit step prompts to one user.
// Options, when present, are rendered as selectable actions whose index is
// fed back through HandleSelect.
type Prompter interface {
	Prompt(ctx context.Context, text string, options []string) error
}

// ErrIdle is returned when an event arrives for a user with no pending step.
var ErrIdle = errors.New("no workflow in progress")

// Engine drives registered workflows over a serialized session store. Every
// operation for a user runs under that user's session lock: validator,
// effect, and transition are atomic with respect to other events for the
// same user, while different users proceed fully in parallel.
type Engine struct {
	store *session.Store
	flows map[string]*Workflow
}

// NewEngine creates an engine over the given store.
func NewEngine(store *session.Store) *Engine {
	return &Engine{
		store: store,
		flows: make(map[string]*Workflow),
	}
}

// Register adds a workflow to the engine.
func (e *Engine) Register(w *Workflow) {
	e.flows[w.Name] = w
	logger.FLOW.Info("workflow registered",
		slog.String("event", "flow.register"),
		slog.String("flow", w.Name),
		slog.Int("count", len(w.Steps)),
	)
}

// InProgress reports whether the user has a pending step.
func (e *Engine) InProgress(userID int64) bool {
	return e.store.InProgress(userID)
}

// Enter starts the named workflow for the user, discarding any prior
// session, and emits the first step's prompt.
func (e *Engine) Enter(ctx context.Context, user Identity, name string, out Prompter) error {
	w, ok := e.flows[name]
	if !ok || len(w.Steps) == 0 {
		return errors.New("unknown workflow: " + name)
	}

	var err error
	e.store.Do(user.ID, func(bag *session.Bag) {
		if bag.Active() {
			e.cleanup(ctx, user, bag)
		}
		bag.Reset()
		bag.Flow = w.Name
		bag.Step = w.First()
		logger.FLOW.Info("workflow entered",
			slog.String("event", "flow.enter"),
			slog.String("flow", w.Name),
			slog.String("step", bag.Step),
			slog.Int64("user_id", user.ID),
		)
		fc := &Context{Ctx: ctx, User: user, Bag: bag}
		err = e.enterStep(fc, w, out)
	})
	return err
}

// HandleText feeds a free-text message into the user's pending step.
func (e *Engine) HandleText(ctx context.Context, user Identity, text string, out Prompter) error {
	return e.handle(ctx, user, out, func(fc *Context) {
		fc.Input = text
		fc.Index = -1
	})
}

// HandleSelect feeds a chosen option index into the user's pending step.
func (e *Engine) HandleSelect(ctx context.Context, user Identity, index int, out Prompter) error {
	return e.handle(ctx, user, out, func(fc *Context) {
		fc.Index = index
	})
}

// Cancel clears the user's session regardless of workflow and acknowledges.
func (e *Engine) Cancel(ctx context.Context, user Identity, out Prompter) error {
	had := false
	e.store.Do(user.ID, func(bag *session.Bag) {
		had = bag.Active()
		if had {
			e.cleanup(ctx, user, bag)
			logger.FLOW.Info("workflow cancelled",
				slog.String("event", "flow.cancel"),
				slog.String("flow", bag.Flow),
				slog.String("step", bag.Step),
				slog.Int64("user_id", user.ID),
			)
		}
		bag.Reset()
	})
	if !had {
		return out.Prompt(ctx, "Nothing to cancel.", nil)
	}
	return out.Prompt(ctx, "❌ Operation cancelled.", nil)
}

func (e *Engine) handle(ctx context.Context, user Identity, out Prompter, fill func(fc *Context)) error {
	var err error
	e.store.Do(user.ID, func(bag *session.Bag) {
		if !bag.Active() {
			err = ErrIdle
			return
		}
		w, ok := e.flows[bag.Flow]
		if !ok {
			// Session points at a workflow this build no longer knows.
			bag.Reset()
			err = out.Prompt(ctx, expiredText, nil)
			return
		}
		step, ok := w.Lookup(bag.Step)
		if !ok {
			e.cleanup(ctx, user, bag)
			bag.Reset()
			err = out.Prompt(ctx, expiredText, nil)
			return
		}

		fc := &Context{Ctx: ctx, User: user, Bag: bag}
		fill(fc)

		if step.Kind == Select && fc.Index < 0 {
			// Free text while options are on screen: gentle re-prompt,
			// step unchanged.
			err = e.reprompt(fc, step, out, "Please choose one of the options below.")
			return
		}

		if step.Validate != nil {
			if verr := step.Validate(fc); verr != nil {
				if IsValidation(verr) {
					logger.FLOW.Debug("input rejected",
						slog.String("event", "flow.retry"),
						slog.String("flow", w.Name),
						slog.String("step", step.Name),
						slog.Int64("user_id", user.ID),
						slog.String("err", verr.Error()),
					)
					err = e.reprompt(fc, step, out, "⚠️ "+verr.Error())
					return
				}
				err = e.abort(fc, w, step, out, verr)
				return
			}
		}

		err = e.runEffect(fc, w, step, out)
	})
	return err
}

// runEffect executes the step's effect and applies the resulting transition.
// It is only ever called with the user's session lock held.
func (e *Engine) runEffect(fc *Context, w *Workflow, step *Step, out Prompter) error {
	res := Advanced()
	if step.Effect != nil {
		var eerr error
		res, eerr = step.Effect(fc)
		if eerr != nil {
			return e.abort(fc, w, step, out, eerr)
		}
	}

	switch res.Outcome {
	case Complete:
		logger.FLOW.Info("workflow completed",
			slog.String("event", "flow.complete"),
			slog.String("flow", w.Name),
			slog.String("step", step.Name),
			slog.Int64("user_id", fc.User.ID),
		)
		fc.Bag.Reset()
		return out.Prompt(fc.Ctx, res.Reply, nil)
	case Abort:
		logger.FLOW.Warn("workflow aborted by effect",
			slog.String("event", "flow.abort"),
			slog.String("flow", w.Name),
			slog.String("step", step.Name),
			slog.Int64("user_id", fc.User.ID),
		)
		if w.Cleanup != nil {
			w.Cleanup(fc)
		}
		fc.Bag.Reset()
		return out.Prompt(fc.Ctx, res.Reply, nil)
	case Branch:
		if step.BranchNext == "" {
			return e.abort(fc, w, step, out, ErrSessionExpired)
		}
		fc.Bag.Step = step.BranchNext
	default:
		if step.Next == "" {
			// A table bug: the last step must complete or abort.
			return e.abort(fc, w, step, out, ErrSessionExpired)
		}
		fc.Bag.Step = step.Next
	}

	logger.FLOW.Debug("step advanced",
		slog.String("event", "flow.step"),
		slog.String("flow", w.Name),
		slog.String("step", fc.Bag.Step),
		slog.Int64("user_id", fc.User.ID),
	)
	return e.enterStep(fc, w, out)
}

// enterStep emits the prompt of the bag's current step, first draining any
// run-on-entry steps.
func (e *Engine) enterStep(fc *Context, w *Workflow, out Prompter) error {
	step, ok := w.Lookup(fc.Bag.Step)
	if !ok {
		return e.abort(fc, w, nil, out, ErrSessionExpired)
	}

	if step.Kind == Run {
		return e.runEffect(fc, w, step, out)
	}

	text := ""
	var options []string
	if step.Prompt != nil {
		var perr error
		text, options, perr = step.Prompt(fc)
		if perr != nil {
			return e.abort(fc, w, step, out, perr)
		}
	}
	return out.Prompt(fc.Ctx, text, options)
}

func (e *Engine) reprompt(fc *Context, step *Step, out Prompter, note string) error {
	text := note
	var options []string
	if step.Prompt != nil {
		ptext, popts, perr := step.Prompt(fc)
		if perr == nil {
			if ptext != "" {
				text = note + "\n\n" + ptext
			}
			options = popts
		}
	}
	return out.Prompt(fc.Ctx, text, options)
}

// abort clears the session and emits a terminal message derived from err.
func (e *Engine) abort(fc *Context, w *Workflow, step *Step, out Prompter, cause error) error {
	stepName := ""
	if step != nil {
		stepName = step.Name
	}
	logger.FLOW.Warn("workflow aborted",
		slog.String("event", "flow.abort"),
		slog.String("flow", w.Name),
		slog.String("step", stepName),
		slog.Int64("user_id", fc.User.ID),
		slog.String("err", cause.Error()),
	)
	if w.Cleanup != nil {
		w.Cleanup(fc)
	}
	fc.Bag.Reset()
	return out.Prompt(fc.Ctx, terminalText(cause), nil)
}

// cleanup runs the pending workflow's Cleanup hook, if any. Callers hold the
// user's session lock and reset the bag afterwards.
func (e *Engine) cleanup(ctx context.Context, user Identity, bag *session.Bag) {
	w, ok := e.flows[bag.Flow]
	if !ok || w.Cleanup == nil {
		return
	}
	w.Cleanup(&Context{Ctx: ctx, User: user, Bag: bag})
}

const expiredText = "⏰ Your session has expired. Please start the operation again."

// terminalText maps an abort cause to the message shown to the user.
func terminalText(cause error) string {
	var (
		ue *UniquenessError
		oe *OwnershipError
		ee *ExternalError
	)
	switch {
	case errors.Is(cause, ErrSessionExpired):
		return expiredText
	case errors.As(cause, &ue):
		if ue.Owned {
			return "⚠️ This phone number is already onboarded by you."
		}
		return "⚠️ This phone number is already registered by another user."
	case errors.As(cause, &oe):
		return "🚫 That option is not yours to use. Operation cancelled."
	case errors.As(cause, &ee):
		return "❌ " + ee.Op + " failed. Operation cancelled, please try again later."
	default:
		return "❌ Something went wrong. Operation cancelled."
	}
}
