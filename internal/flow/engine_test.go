package flow

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"groupcast/internal/session"
)

type promptRec struct {
	Text    string
	Options []string
}

type fakePrompter struct {
	prompts []promptRec
}

func (p *fakePrompter) Prompt(_ context.Context, text string, options []string) error {
	p.prompts = append(p.prompts, promptRec{Text: text, Options: options})
	return nil
}

func (p *fakePrompter) last(t *testing.T) promptRec {
	t.Helper()
	require.NotEmpty(t, p.prompts)
	return p.prompts[len(p.prompts)-1]
}

var user = Identity{ID: 42, Name: "tester"}

// twoStep builds a minimal text workflow: name -> color -> complete.
func twoStep() *Workflow {
	return New("twostep",
		Step{
			Name: "name",
			Kind: Text,
			Prompt: func(fc *Context) (string, []string, error) {
				return "your name?", nil, nil
			},
			Validate: func(fc *Context) error {
				if fc.Input == "" {
					return Invalid("name required")
				}
				return nil
			},
			Effect: func(fc *Context) (Result, error) {
				fc.Bag.Set("name", fc.Input)
				return Advanced(), nil
			},
			Next: "color",
		},
		Step{
			Name: "color",
			Kind: Text,
			Prompt: func(fc *Context) (string, []string, error) {
				return "favourite color?", nil, nil
			},
			Effect: func(fc *Context) (Result, error) {
				name, err := fc.Field("name")
				if err != nil {
					return Result{}, err
				}
				return Completed("hello " + name), nil
			},
		},
	)
}

func newTestEngine(flows ...*Workflow) (*Engine, *session.Store) {
	store := session.NewStore()
	e := NewEngine(store)
	for _, w := range flows {
		e.Register(w)
	}
	return e, store
}

func TestEnterResetsPriorSessionAndPromptsFirstStep(t *testing.T) {
	e, store := newTestEngine(twoStep())
	out := &fakePrompter{}

	store.Do(user.ID, func(bag *session.Bag) {
		bag.Flow = "other"
		bag.Step = "leftover"
		bag.Set("junk", true)
	})

	require.NoError(t, e.Enter(context.Background(), user, "twostep", out))

	bag := store.Get(user.ID)
	assert.Equal(t, "twostep", bag.Flow)
	assert.Equal(t, "name", bag.Step)
	_, hadJunk := bag.Value("junk")
	assert.False(t, hadJunk)
	assert.Equal(t, "your name?", out.last(t).Text)
}

func TestEnterUnknownWorkflow(t *testing.T) {
	e, _ := newTestEngine()
	err := e.Enter(context.Background(), user, "nope", &fakePrompter{})
	assert.Error(t, err)
}

func TestValidationErrorKeepsStepAndRetrySucceeds(t *testing.T) {
	e, store := newTestEngine(twoStep())
	out := &fakePrompter{}
	require.NoError(t, e.Enter(context.Background(), user, "twostep", out))

	require.NoError(t, e.HandleText(context.Background(), user, "", out))
	assert.Equal(t, "name", store.Get(user.ID).Step)
	assert.Contains(t, out.last(t).Text, "name required")

	require.NoError(t, e.HandleText(context.Background(), user, "ada", out))
	assert.Equal(t, "color", store.Get(user.ID).Step)
}

func TestCompletionClearsSessionAndReplies(t *testing.T) {
	e, store := newTestEngine(twoStep())
	out := &fakePrompter{}
	require.NoError(t, e.Enter(context.Background(), user, "twostep", out))
	require.NoError(t, e.HandleText(context.Background(), user, "ada", out))
	require.NoError(t, e.HandleText(context.Background(), user, "green", out))

	assert.False(t, store.InProgress(user.ID))
	assert.Equal(t, "hello ada", out.last(t).Text)
}

func TestIdleEventsReturnErrIdle(t *testing.T) {
	e, _ := newTestEngine(twoStep())
	err := e.HandleText(context.Background(), user, "hi", &fakePrompter{})
	assert.ErrorIs(t, err, ErrIdle)
}

func TestMissingFieldAbortsAsExpired(t *testing.T) {
	e, store := newTestEngine(twoStep())
	out := &fakePrompter{}
	require.NoError(t, e.Enter(context.Background(), user, "twostep", out))
	require.NoError(t, e.HandleText(context.Background(), user, "ada", out))

	// Simulate a lost field mid-workflow.
	store.Do(user.ID, func(bag *session.Bag) {
		bag.Fields = nil
	})

	require.NoError(t, e.HandleText(context.Background(), user, "green", out))
	assert.False(t, store.InProgress(user.ID))
	assert.Contains(t, out.last(t).Text, "session has expired")
}

func TestRunStepExecutesOnEntry(t *testing.T) {
	ran := false
	w := New("autorun",
		Step{
			Name: "ask",
			Kind: Text,
			Effect: func(fc *Context) (Result, error) {
				return Advanced(), nil
			},
			Next: "do",
		},
		Step{
			Name: "do",
			Kind: Run,
			Effect: func(fc *Context) (Result, error) {
				ran = true
				return Advanced(), nil
			},
			Next: "after",
		},
		Step{
			Name: "after",
			Kind: Text,
			Prompt: func(fc *Context) (string, []string, error) {
				return "landed", nil, nil
			},
			Effect: func(fc *Context) (Result, error) {
				return Completed("done"), nil
			},
		},
	)

	e, store := newTestEngine(w)
	out := &fakePrompter{}
	require.NoError(t, e.Enter(context.Background(), user, "autorun", out))
	require.NoError(t, e.HandleText(context.Background(), user, "go", out))

	assert.True(t, ran)
	assert.Equal(t, "after", store.Get(user.ID).Step)
	assert.Equal(t, "landed", out.last(t).Text)
}

func TestBranchOutcomeTakesBranchNext(t *testing.T) {
	w := New("branching",
		Step{
			Name: "code",
			Kind: Text,
			Effect: func(fc *Context) (Result, error) {
				if fc.Input == "branch" {
					return Branched(), nil
				}
				return Completed("straight"), nil
			},
			BranchNext: "password",
		},
		Step{
			Name: "password",
			Kind: Text,
			Prompt: func(fc *Context) (string, []string, error) {
				return "password?", nil, nil
			},
			Effect: func(fc *Context) (Result, error) {
				return Completed("after detour"), nil
			},
		},
	)

	e, store := newTestEngine(w)
	out := &fakePrompter{}
	require.NoError(t, e.Enter(context.Background(), user, "branching", out))
	require.NoError(t, e.HandleText(context.Background(), user, "branch", out))

	assert.Equal(t, "password", store.Get(user.ID).Step)
	assert.Equal(t, "password?", out.last(t).Text)

	require.NoError(t, e.HandleText(context.Background(), user, "hunter2", out))
	assert.False(t, store.InProgress(user.ID))
	assert.Equal(t, "after detour", out.last(t).Text)
}

func TestSelectStepRejectsFreeTextGently(t *testing.T) {
	w := New("choosing",
		Step{
			Name: "pick",
			Kind: Select,
			Prompt: func(fc *Context) (string, []string, error) {
				return "pick one", []string{"a", "b"}, nil
			},
			Effect: func(fc *Context) (Result, error) {
				return Completed("picked"), nil
			},
		},
	)

	e, store := newTestEngine(w)
	out := &fakePrompter{}
	require.NoError(t, e.Enter(context.Background(), user, "choosing", out))

	require.NoError(t, e.HandleText(context.Background(), user, "first please", out))
	assert.Equal(t, "pick", store.Get(user.ID).Step)
	assert.Contains(t, out.last(t).Text, "choose one of the options")
	assert.Equal(t, []string{"a", "b"}, out.last(t).Options)

	require.NoError(t, e.HandleSelect(context.Background(), user, 0, out))
	assert.False(t, store.InProgress(user.ID))
}

func TestNonValidationErrorFromValidateAborts(t *testing.T) {
	w := New("strict",
		Step{
			Name: "pick",
			Kind: Select,
			Prompt: func(fc *Context) (string, []string, error) {
				return "pick", []string{"a"}, nil
			},
			Validate: func(fc *Context) error {
				if fc.Index != 0 {
					return errors.New("index out of range")
				}
				return &OwnershipError{Resource: "account"}
			},
		},
	)

	e, store := newTestEngine(w)
	out := &fakePrompter{}
	require.NoError(t, e.Enter(context.Background(), user, "strict", out))

	require.NoError(t, e.HandleSelect(context.Background(), user, 5, out))
	assert.False(t, store.InProgress(user.ID))
	assert.Contains(t, out.last(t).Text, "Something went wrong")

	require.NoError(t, e.Enter(context.Background(), user, "strict", out))
	require.NoError(t, e.HandleSelect(context.Background(), user, 0, out))
	assert.False(t, store.InProgress(user.ID))
	assert.Contains(t, out.last(t).Text, "not yours to use")
}

func TestCancelClearsAnyWorkflow(t *testing.T) {
	e, store := newTestEngine(twoStep())
	out := &fakePrompter{}
	require.NoError(t, e.Enter(context.Background(), user, "twostep", out))

	require.NoError(t, e.Cancel(context.Background(), user, out))
	assert.False(t, store.InProgress(user.ID))
	assert.Contains(t, out.last(t).Text, "cancelled")

	require.NoError(t, e.Cancel(context.Background(), user, out))
	assert.Contains(t, out.last(t).Text, "Nothing to cancel")
}

// leaky builds a workflow whose first effect stashes a resource that must be
// released on every ending that skips the completing step.
func leaky(released *int) *Workflow {
	w := New("leaky",
		Step{
			Name: "open",
			Kind: Text,
			Effect: func(fc *Context) (Result, error) {
				fc.Bag.Set("resource", true)
				return Advanced(), nil
			},
			Next: "work",
		},
		Step{
			Name: "work",
			Kind: Text,
			Prompt: func(fc *Context) (string, []string, error) {
				return "work?", nil, nil
			},
			Effect: func(fc *Context) (Result, error) {
				if fc.Input == "fail" {
					return Result{}, External("work", errors.New("down"))
				}
				return Completed("done"), nil
			},
		},
	)
	w.Cleanup = func(fc *Context) {
		if _, ok := fc.Bag.Value("resource"); ok {
			*released++
		}
	}
	return w
}

func TestCleanupRunsOnCancel(t *testing.T) {
	released := 0
	e, store := newTestEngine(leaky(&released))
	out := &fakePrompter{}
	require.NoError(t, e.Enter(context.Background(), user, "leaky", out))
	require.NoError(t, e.HandleText(context.Background(), user, "go", out))

	require.NoError(t, e.Cancel(context.Background(), user, out))
	assert.Equal(t, 1, released)
	assert.False(t, store.InProgress(user.ID))
}

func TestCleanupRunsOnEffectAbort(t *testing.T) {
	released := 0
	e, store := newTestEngine(leaky(&released))
	out := &fakePrompter{}
	require.NoError(t, e.Enter(context.Background(), user, "leaky", out))
	require.NoError(t, e.HandleText(context.Background(), user, "go", out))

	require.NoError(t, e.HandleText(context.Background(), user, "fail", out))
	assert.Equal(t, 1, released)
	assert.False(t, store.InProgress(user.ID))
}

func TestCleanupRunsWhenDisplacedByEnter(t *testing.T) {
	released := 0
	e, _ := newTestEngine(leaky(&released), twoStep())
	out := &fakePrompter{}
	require.NoError(t, e.Enter(context.Background(), user, "leaky", out))
	require.NoError(t, e.HandleText(context.Background(), user, "go", out))

	require.NoError(t, e.Enter(context.Background(), user, "twostep", out))
	assert.Equal(t, 1, released)
}

func TestCleanupSkippedOnCompletion(t *testing.T) {
	released := 0
	e, store := newTestEngine(leaky(&released))
	out := &fakePrompter{}
	require.NoError(t, e.Enter(context.Background(), user, "leaky", out))
	require.NoError(t, e.HandleText(context.Background(), user, "go", out))
	require.NoError(t, e.HandleText(context.Background(), user, "ok", out))

	assert.Equal(t, 0, released)
	assert.False(t, store.InProgress(user.ID))
}

func TestTerminalTextByCause(t *testing.T) {
	assert.Contains(t, terminalText(&UniquenessError{Phone: "+1", Owned: true}), "already onboarded by you")
	assert.Contains(t, terminalText(&UniquenessError{Phone: "+1"}), "another user")
	assert.Contains(t, terminalText(&OwnershipError{Resource: "account"}), "not yours")
	assert.Contains(t, terminalText(&ExternalError{Op: "sign-in", Err: errors.New("x")}), "sign-in failed")
	assert.Contains(t, terminalText(ErrSessionExpired), "expired")
}
