package flows

import (
	"fmt"
	"strconv"
	"strings"

	"groupcast/internal/flow"
)

const maxTitleLen = 128

func validateTitle(input string) error {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return flow.Invalid("The title cannot be empty.")
	}
	if len(trimmed) > maxTitleLen {
		return flow.Invalid("The title is too long, %d characters max.", maxTitleLen)
	}
	return nil
}

// GroupCreateFlow creates one group through a chosen account.
func (f *Flows) GroupCreateFlow() *flow.Workflow {
	return flow.New(GroupCreate,
		f.accountSelectStep("title"),
		flow.Step{
			Name: "title",
			Kind: flow.Text,
			Prompt: func(fc *flow.Context) (string, []string, error) {
				return "✏️ Send the title for the new group.", nil, nil
			},
			Validate: func(fc *flow.Context) error {
				return validateTitle(fc.Input)
			},
			Effect: func(fc *flow.Context) (flow.Result, error) {
				acc, err := chosenAccount(fc)
				if err != nil {
					return flow.Result{}, err
				}
				title := strings.TrimSpace(fc.Input)
				res, err := f.groups.Create(fc.Ctx, acc, title)
				if err != nil {
					return flow.Result{}, err
				}
				msg := fmt.Sprintf("✅ Group %q created.", title)
				if res.InviteLink != "" {
					msg += "\n" + res.InviteLink
				}
				return flow.Completed(msg), nil
			},
		},
	)
}

// BulkCreateFlow creates a numbered series of groups through one account.
func (f *Flows) BulkCreateFlow() *flow.Workflow {
	return flow.New(BulkCreate,
		f.accountSelectStep("count"),
		flow.Step{
			Name: "count",
			Kind: flow.Text,
			Prompt: func(fc *flow.Context) (string, []string, error) {
				return fmt.Sprintf("🔢 How many groups? (1-%d)", f.maxBulk), nil, nil
			},
			Validate: func(fc *flow.Context) error {
				n, err := strconv.Atoi(fc.Input)
				if err != nil || n < 1 || n > f.maxBulk {
					return flow.Invalid("Send a number between 1 and %d.", f.maxBulk)
				}
				return nil
			},
			Effect: func(fc *flow.Context) (flow.Result, error) {
				n, _ := strconv.Atoi(fc.Input)
				fc.Bag.Set(fieldCount, n)
				return flow.Advanced(), nil
			},
			Next: "title",
		},
		flow.Step{
			Name: "title",
			Kind: flow.Text,
			Prompt: func(fc *flow.Context) (string, []string, error) {
				return "✏️ Send the base title; groups are numbered from it.", nil, nil
			},
			Validate: func(fc *flow.Context) error {
				return validateTitle(fc.Input)
			},
			Effect: func(fc *flow.Context) (flow.Result, error) {
				acc, err := chosenAccount(fc)
				if err != nil {
					return flow.Result{}, err
				}
				count, ok := fc.Bag.Int(fieldCount)
				if !ok {
					return flow.Result{}, flow.ErrSessionExpired
				}
				report, err := f.groups.CreateBatch(fc.Ctx, acc, strings.TrimSpace(fc.Input), count)
				if err != nil {
					return flow.Result{}, err
				}
				return flow.Completed(reportText("📊 Bulk creation finished.", report)), nil
			},
		},
	)
}

// MultiCreateFlow creates one identically titled group on every eligible
// account of the caller. Privileged users span all eligible accounts.
func (f *Flows) MultiCreateFlow() *flow.Workflow {
	return flow.New(MultiCreate,
		flow.Step{
			Name: "title",
			Kind: flow.Text,
			Prompt: func(fc *flow.Context) (string, []string, error) {
				return "✏️ Send the title; one group is created on every eligible account.", nil, nil
			},
			Validate: func(fc *flow.Context) error {
				return validateTitle(fc.Input)
			},
			Effect: func(fc *flow.Context) (flow.Result, error) {
				accs, err := f.accounts.Eligible(fc.Ctx)
				if err != nil {
					return flow.Result{}, flow.External("account listing", err)
				}
				if !fc.User.Privileged {
					owned := accs[:0]
					for _, acc := range accs {
						if acc.OwnerID == fc.User.ID {
							owned = append(owned, acc)
						}
					}
					accs = owned
				}
				if len(accs) == 0 {
					return flow.Completed("⚠️ There are no eligible accounts yet. Onboard one with /addaccount."), nil
				}
				report, err := f.groups.CreateAcross(fc.Ctx, accs, strings.TrimSpace(fc.Input))
				if err != nil {
					return flow.Result{}, err
				}
				return flow.Completed(reportText("📊 Multi-account creation finished.", report)), nil
			},
		},
	)
}

// BroadcastFlow sends a message to every group the chosen account created.
func (f *Flows) BroadcastFlow() *flow.Workflow {
	return flow.New(Broadcast,
		f.accountSelectStep("message"),
		flow.Step{
			Name: "message",
			Kind: flow.Text,
			Prompt: func(fc *flow.Context) (string, []string, error) {
				return "📨 Send the message to broadcast to this account's groups.", nil, nil
			},
			Validate: func(fc *flow.Context) error {
				if strings.TrimSpace(fc.Input) == "" {
					return flow.Invalid("The message cannot be empty.")
				}
				return nil
			},
			Effect: func(fc *flow.Context) (flow.Result, error) {
				acc, err := chosenAccount(fc)
				if err != nil {
					return flow.Result{}, err
				}
				report, err := f.groups.Broadcast(fc.Ctx, acc, fc.Input)
				if err != nil {
					return flow.Result{}, err
				}
				if report.Total() == 0 {
					return flow.Completed("⚠️ This account has not created any groups yet."), nil
				}
				return flow.Completed(reportText("📊 Broadcast finished.", report)), nil
			},
		},
	)
}
