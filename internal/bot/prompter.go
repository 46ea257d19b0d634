package bot

import (
	"context"
	"strconv"

	tele "gopkg.in/telebot.v4"

	tghelpers "groupcast/core/telegram/helpers"
	"groupcast/core/telegram/keyboard"
	"groupcast/internal/flow"
)

// Callback uniques for workflow interactions.
const (
	cbFlowSelect = "flowsel"
	cbFlowCancel = "flowcancel"
)

// prompter adapts one inbound tele.Context into the engine's output channel.
// Options become inline buttons whose payload is the option index.
type prompter struct {
	c tele.Context
}

func newPrompter(c tele.Context) flow.Prompter {
	return prompter{c: c}
}

func (p prompter) Prompt(_ context.Context, text string, options []string) error {
	if len(options) == 0 {
		if text == "" {
			return nil
		}
		return tghelpers.SendText(p.c, text)
	}

	btns := make([]keyboard.InlineBtn, len(options))
	for i, opt := range options {
		btns[i] = keyboard.InlineBtn{Text: opt, Unique: cbFlowSelect, Data: strconv.Itoa(i)}
	}
	markup := keyboard.InlineButtonsNPerRow(btns, 2)
	cancel := keyboard.CancelButton(markup, cbFlowCancel)
	markup.InlineKeyboard = append(markup.InlineKeyboard, []tele.InlineButton{*cancel.Inline()})
	return tghelpers.SendText(p.c, text, &tele.SendOptions{ReplyMarkup: markup})
}
