package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	tg "groupcast/core/telegram"
	"groupcast/core/telegram/callbacks"
	"groupcast/core/telegram/commands"
	"groupcast/core/telegram/format"
	tghelpers "groupcast/core/telegram/helpers"
	"groupcast/internal/flow"
	"groupcast/internal/flows"
	"groupcast/internal/repository"
)

const helpText = `👋 This bot onboards Telegram accounts, creates groups through them, and broadcasts messages.

/addaccount — onboard a Telegram account
/newgroup — create one group
/bulkgroups — create a numbered series of groups
/multigroup — create a group on every eligible account
/send — broadcast a message to an account's groups
/accounts — list your onboarded accounts
/groups — list groups created for you
/cancel — cancel the current operation`

func (a *App) buildRegistry() *tg.Registry {
	reg := tg.NewRegistry()

	reg.RegisterCommand("/start", commands.Command{
		Handler:     func(c tele.Context) error { return tghelpers.SendText(c, helpText) },
		Description: "What this bot does",
	})
	reg.RegisterCommand("/help", commands.Command{
		Handler:     func(c tele.Context) error { return tghelpers.SendText(c, helpText) },
		Description: "List available commands",
	})

	reg.RegisterCommand("/addaccount", commands.Command{
		Handler:     a.enterFlow(flows.Onboarding, false),
		Description: "Onboard a Telegram account",
	})
	reg.RegisterCommand("/newgroup", commands.Command{
		Handler:     a.enterFlow(flows.GroupCreate, true),
		Description: "Create one group",
	})
	reg.RegisterCommand("/bulkgroups", commands.Command{
		Handler:     a.enterFlow(flows.BulkCreate, true),
		Description: "Create a series of groups",
	})
	reg.RegisterCommand("/multigroup", commands.Command{
		Handler:     a.enterFlow(flows.MultiCreate, false),
		Description: "Create a group on every eligible account",
	})
	reg.RegisterCommand("/send", commands.Command{
		Handler:     a.enterFlow(flows.Broadcast, true),
		Description: "Broadcast a message to an account's groups",
	})
	reg.RegisterCommand("/cancel", commands.Command{
		Handler: func(c tele.Context) error {
			return a.engine.Cancel(tghelpers.BuildContext(c), a.identity(c), newPrompter(c))
		},
		Description: "Cancel the current operation",
	})

	reg.RegisterCommand("/accounts", commands.Command{
		Handler:     a.listAccounts,
		Description: "List your onboarded accounts",
	})
	reg.RegisterCommand("/groups", commands.Command{
		Handler:     a.listGroups,
		Description: "List groups created for you",
	})

	reg.RegisterCommand("/activate", commands.Command{
		Handler:        a.setFlagHandler("activated", a.accounts.SetActive, true),
		Description:    "Activate an account by phone",
		PrivilegedOnly: true,
		Hidden:         true,
	})
	reg.RegisterCommand("/deactivate", commands.Command{
		Handler:        a.setFlagHandler("deactivated", a.accounts.SetActive, false),
		Description:    "Deactivate an account by phone",
		PrivilegedOnly: true,
		Hidden:         true,
	})
	reg.RegisterCommand("/ban", commands.Command{
		Handler:        a.setFlagHandler("banned", a.accounts.SetBanned, true),
		Description:    "Mark an account as banned by phone",
		PrivilegedOnly: true,
		Hidden:         true,
	})
	reg.RegisterCommand("/unban", commands.Command{
		Handler:        a.setFlagHandler("unbanned", a.accounts.SetBanned, false),
		Description:    "Clear an account's banned mark by phone",
		PrivilegedOnly: true,
		Hidden:         true,
	})
	reg.RegisterCommand("/idle", commands.Command{
		Handler:        a.listIdleAccounts,
		Description:    "List accounts idle for N hours (default 24)",
		PrivilegedOnly: true,
		Hidden:         true,
	})

	_ = reg.RegisterCallback(cbFlowSelect, a.handleSelect)
	_ = reg.RegisterCallback(cbFlowCancel, func(c tele.Context) error {
		return a.engine.Cancel(tghelpers.BuildContext(c), a.identity(c), newPrompter(c))
	})

	reg.SetTextFallback(func(c tele.Context) error {
		return tghelpers.SendText(c, "🤔 I don't know that command. Try /help.")
	})

	return reg
}

// enterFlow starts a workflow. Flows whose first step selects an account are
// pre-checked so the user gets a clear message instead of an aborted session
// when none exist yet.
func (a *App) enterFlow(name string, needsAccounts bool) tele.HandlerFunc {
	return func(c tele.Context) error {
		ctx := tghelpers.BuildContext(c)
		if needsAccounts {
			accs, err := a.accounts.Eligible(ctx)
			if err != nil {
				return tghelpers.SendText(c, "❌ Could not list accounts, please try again later.")
			}
			if len(accs) == 0 {
				return tghelpers.SendText(c, "⚠️ There are no eligible accounts yet. Onboard one with /addaccount.")
			}
		}
		return a.engine.Enter(ctx, a.identity(c), name, newPrompter(c))
	}
}

func (a *App) handleSelect(c tele.Context) error {
	index, err := callbacks.PayloadInt(c)
	if err != nil {
		return tghelpers.SendText(c, "⚠️ That button is no longer valid.")
	}
	ctx := tghelpers.BuildContext(c)
	herr := a.engine.HandleSelect(ctx, a.identity(c), index, newPrompter(c))
	if errors.Is(herr, flow.ErrIdle) {
		return tghelpers.SendText(c, "⏰ That selection belongs to a finished operation.")
	}
	return herr
}

func (a *App) listAccounts(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	accs, err := a.accounts.Owned(ctx, c.Sender().ID)
	if err != nil {
		return tghelpers.SendText(c, "❌ Could not list accounts, please try again later.")
	}
	if len(accs) == 0 {
		return tghelpers.SendText(c, "You have no onboarded accounts yet. Start with /addaccount.")
	}

	var b strings.Builder
	b.WriteString("📱 Your accounts:\n")
	for _, acc := range accs {
		status := "✅ active"
		if acc.Banned {
			status = "⛔ banned"
		} else if !acc.Active {
			status = "🚫 inactive"
		}
		fmt.Fprintf(&b, "\n%s — %s", acc.Phone, status)
		if acc.LastUsedAt != nil {
			fmt.Fprintf(&b, ", last used %s", acc.LastUsedAt.Format("2006-01-02 15:04"))
		}
	}
	return tghelpers.SendText(c, b.String())
}

func (a *App) listGroups(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	groups, err := a.groups.Created(ctx, c.Sender().ID)
	if err != nil {
		return tghelpers.SendText(c, "❌ Could not list groups, please try again later.")
	}
	if len(groups) == 0 {
		return tghelpers.SendText(c, "No groups have been created for you yet. Try /newgroup.")
	}

	var b strings.Builder
	b.WriteString("👥 Groups created for you:\n")
	for _, g := range groups {
		title, err := format.EscapeMarkdown(g.Title, format.MarkdownV1, "")
		if err != nil {
			title = g.Title
		}
		fmt.Fprintf(&b, "\n*%s* (via %s)", title, g.AccountPhone)
		if g.InviteLink != "" {
			b.WriteString("\n" + g.InviteLink)
		}
	}
	return tghelpers.SendMD(c, b.String())
}

// listIdleAccounts reports accounts with no action in the last N hours, the
// candidates for a warm-up or retirement pass.
func (a *App) listIdleAccounts(c tele.Context) error {
	hours := 24
	if args := c.Args(); len(args) == 1 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			return tghelpers.SendText(c, "Usage: /idle [hours], a positive number of hours.")
		}
		hours = n
	}

	cutoff := time.Now().Add(-time.Duration(hours) * time.Hour)
	accs, err := a.accounts.IdleSince(tghelpers.BuildContext(c), cutoff)
	if err != nil {
		return tghelpers.SendText(c, "❌ Could not list accounts, please try again later.")
	}
	if len(accs) == 0 {
		return tghelpers.SendText(c, fmt.Sprintf("All accounts were used within the last %dh.", hours))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "💤 Accounts idle for %dh+:\n", hours)
	for _, acc := range accs {
		if acc.LastUsedAt == nil {
			fmt.Fprintf(&b, "\n%s — never used", acc.Phone)
			continue
		}
		fmt.Fprintf(&b, "\n%s — last used %s", acc.Phone, acc.LastUsedAt.Format("2006-01-02 15:04"))
	}
	return tghelpers.SendText(c, b.String())
}

// setFlagHandler builds the privileged account-flag commands, all of which
// take a phone number argument.
func (a *App) setFlagHandler(verb string, set func(ctx context.Context, phone string, v bool) error, value bool) tele.HandlerFunc {
	return func(c tele.Context) error {
		args := c.Args()
		if len(args) != 1 {
			return tghelpers.SendText(c, "Usage: send the command followed by the account's phone number.")
		}
		phone := args[0]
		err := set(tghelpers.BuildContext(c), phone, value)
		if errors.Is(err, repository.ErrNotFound) {
			return tghelpers.SendText(c, "⚠️ No account with phone "+phone+".")
		}
		if err != nil {
			return tghelpers.SendText(c, "❌ Update failed, please try again later.")
		}
		return tghelpers.SendText(c, "✅ Account "+phone+" "+verb+".")
	}
}
