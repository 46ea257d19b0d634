// Package flows declares the interactive workflow step tables: account
// onboarding, single / bulk / multi-account group creation, and broadcast.
// Each workflow is a fixed table interpreted by the flow engine.
package flows

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"groupcast/internal/accounts"
	"groupcast/internal/domain"
	"groupcast/internal/flow"
	"groupcast/internal/service"
)

// Workflow names, also used as command targets by the bot layer.
const (
	Onboarding  = "onboarding"
	GroupCreate = "group_create"
	BulkCreate  = "bulk_create"
	MultiCreate = "multi_create"
	Broadcast   = "broadcast"
)

// Bag field keys shared between steps.
const (
	fieldAPIID    = "api_id"
	fieldAPIHash  = "api_hash"
	fieldPhone    = "phone"
	fieldClient   = "client"
	fieldCodeHash = "code_hash"
	fieldAccounts = "accounts"
	fieldAccount  = "account"
	fieldCount    = "count"
)

var validate = validator.New()

// Flows wires the step tables to their collaborators.
type Flows struct {
	accounts *service.Accounts
	groups   *service.Groups
	dialer   accounts.Dialer
	maxBulk  int
}

// New creates the workflow set. maxBulk caps bulk group creation; values
// below 1 fall back to 50.
func New(accs *service.Accounts, groups *service.Groups, dialer accounts.Dialer, maxBulk int) *Flows {
	if maxBulk < 1 {
		maxBulk = 50
	}
	return &Flows{accounts: accs, groups: groups, dialer: dialer, maxBulk: maxBulk}
}

// RegisterAll adds every workflow to the engine.
func (f *Flows) RegisterAll(e *flow.Engine) {
	e.Register(f.OnboardingFlow())
	e.Register(f.GroupCreateFlow())
	e.Register(f.BulkCreateFlow())
	e.Register(f.MultiCreateFlow())
	e.Register(f.BroadcastFlow())
}

// accountSelectStep is the shared "choose an account" selection step. The
// prompt enumerates eligible accounts with stable indices and stashes them in
// the bag; validation enforces the index range and, for non-privileged users,
// ownership of the chosen account. Both violations abort instead of
// re-prompting.
func (f *Flows) accountSelectStep(next string) flow.Step {
	return flow.Step{
		Name: "account",
		Kind: flow.Select,
		Prompt: func(fc *flow.Context) (string, []string, error) {
			accs, err := f.accounts.Eligible(fc.Ctx)
			if err != nil {
				return "", nil, flow.External("account listing", err)
			}
			if len(accs) == 0 {
				return "", nil, errors.New("no eligible accounts")
			}
			fc.Bag.Set(fieldAccounts, accs)
			options := make([]string, len(accs))
			for i, acc := range accs {
				options[i] = "📱 " + acc.Phone
			}
			return "Choose the account to use:", options, nil
		},
		Validate: func(fc *flow.Context) error {
			accs, err := stashedAccounts(fc)
			if err != nil {
				return err
			}
			if fc.Index < 0 || fc.Index >= len(accs) {
				return fmt.Errorf("option index %d out of range", fc.Index)
			}
			chosen := accs[fc.Index]
			if chosen.OwnerID != fc.User.ID && !fc.User.Privileged {
				return &flow.OwnershipError{Resource: "account " + chosen.Phone}
			}
			return nil
		},
		Effect: func(fc *flow.Context) (flow.Result, error) {
			accs, err := stashedAccounts(fc)
			if err != nil {
				return flow.Result{}, err
			}
			fc.Bag.Set(fieldAccount, accs[fc.Index])
			return flow.Advanced(), nil
		},
		Next: next,
	}
}

func stashedAccounts(fc *flow.Context) ([]domain.Account, error) {
	v, ok := fc.Bag.Value(fieldAccounts)
	if !ok {
		return nil, flow.ErrSessionExpired
	}
	accs, ok := v.([]domain.Account)
	if !ok || len(accs) == 0 {
		return nil, flow.ErrSessionExpired
	}
	return accs, nil
}

func chosenAccount(fc *flow.Context) (domain.Account, error) {
	v, ok := fc.Bag.Value(fieldAccount)
	if !ok {
		return domain.Account{}, flow.ErrSessionExpired
	}
	acc, ok := v.(domain.Account)
	if !ok {
		return domain.Account{}, flow.ErrSessionExpired
	}
	return acc, nil
}

// reportText renders a batch report for the final workflow message.
func reportText(header string, report domain.BatchReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n✅ Succeeded: %d\n❌ Failed: %d", header, report.Success, report.Failed)
	for _, f := range report.Failures {
		fmt.Fprintf(&b, "\n  • %s: %s", f.Ref, f.Reason)
	}
	if len(report.Links) > 0 {
		b.WriteString("\n\nInvite links:")
		for _, link := range report.Links {
			b.WriteString("\n" + link)
		}
	}
	return b.String()
}
