package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"

	"finboard/internal/domain/advisor"
	"finboard/internal/domain/dashboard"
	"finboard/internal/domain/health"
	"finboard/internal/domain/integration"
	"finboard/internal/domain/ledger"
	"finboard/internal/domain/link"
	"finboard/internal/shared/messages"
)

const replHelp = `Commands:
  /accounts            show accounts and balances
  /transactions [n]    show transaction page n (default 1)
  /link                connect another bank
  /history             show the conversation
  /clear               delete the conversation
  /help                show this help
  /quit                leave
Anything else is sent to the advisor.`

// TerminalUI drives the dashboard flow on a line-based terminal.
type TerminalUI struct {
	prompt   *Prompter
	out      io.Writer
	messages *messages.Messages
	logger   logrus.FieldLogger

	degraded bool
}

var _ dashboard.UI = (*TerminalUI)(nil)

// NewTerminalUI creates a TerminalUI.
func NewTerminalUI(prompt *Prompter, out io.Writer, msgs *messages.Messages, logger logrus.FieldLogger) *TerminalUI {
	if msgs == nil {
		msgs = messages.Default()
	}
	return &TerminalUI{prompt: prompt, out: out, messages: msgs, logger: logger}
}

// HealthChanged prints each waiting attempt and the degraded notice once.
func (u *TerminalUI) HealthChanged(ev health.Event) {
	if ev.Kind == health.EventDegraded {
		if u.degraded {
			return
		}
		u.degraded = true
	}
	fmt.Fprint(u.out, formatHealth(ev, u.messages))
}

// StartLink asks whether to open the bank linking widget.
func (u *TerminalUI) StartLink(_ context.Context, status integration.Status, previous *dashboard.LinkAttempt) (bool, error) {
	if previous == nil {
		fmt.Fprintln(u.out, color.New(color.Bold).Sprint(u.messages.LinkPrompt.Title))
		fmt.Fprintln(u.out, u.messages.LinkPrompt.Body)
	}
	question := "Connect a bank now?"
	if previous != nil {
		question = "Try again?"
	}
	ok, err := u.prompt.YesNo(question, true)
	if errors.Is(err, io.EOF) {
		return false, nil
	}
	return ok, err
}

// LinkFinished prints how the round ended.
func (u *TerminalUI) LinkFinished(attempt dashboard.LinkAttempt) {
	fmt.Fprint(u.out, u.formatAttempt(attempt))
}

func (u *TerminalUI) formatAttempt(attempt dashboard.LinkAttempt) string {
	switch {
	case attempt.State == link.StateLinked && attempt.Result.Connection != nil:
		return color.GreenString("✓ Connected %s", attempt.Result.Connection.InstitutionName) + "\n"
	case attempt.State == link.StateCancelled:
		return color.YellowString(u.messages.LinkCancelled.Title) + "\n  " + u.messages.LinkCancelled.Body + "\n"
	default:
		reason := attempt.Result.Outcome.Reason
		if attempt.Err != nil {
			reason = attempt.Err.Error()
		}
		s := banner(u.messages.LinkFailed.Title, u.messages.LinkFailed.Body)
		if reason != "" {
			s += color.HiBlackString("  %s", reason) + "\n"
		}
		return s
	}
}

// Run prints the dashboard and reads commands until EOF, /quit or ctx ends.
func (u *TerminalUI) Run(ctx context.Context, d *dashboard.Dashboard) error {
	if d.Changed {
		fmt.Fprintln(u.out, color.GreenString("Bank connections updated"))
	}
	fmt.Fprint(u.out, formatStatus(d.Status))
	switch {
	case d.LedgerErr != nil:
		fmt.Fprint(u.out, banner("Couldn't load accounts", d.LedgerErr.Error()))
	case d.Ledger != nil:
		fmt.Fprint(u.out, formatAccounts(d.Ledger.Accounts))
	}
	fmt.Fprintln(u.out)
	u.printMessages(d.Session.Messages())
	fmt.Fprintln(u.out, color.HiBlackString("Type /help for commands."))

	for {
		line, err := u.prompt.Line(color.CyanString("> "))
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			return context.Cause(ctx)
		}

		quit, err := u.handle(ctx, d, strings.TrimSpace(line))
		if err != nil {
			return err
		}
		if quit {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return context.Cause(ctx)
		}
	}
}

// handle runs one REPL line. Only prompt failures are returned; everything
// else is printed.
func (u *TerminalUI) handle(ctx context.Context, d *dashboard.Dashboard, line string) (bool, error) {
	if line == "" {
		return false, nil
	}
	if !strings.HasPrefix(line, "/") {
		return false, u.ask(ctx, d.Session, line)
	}

	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		return true, nil
	case "/help":
		fmt.Fprintln(u.out, replHelp)
	case "/history":
		u.printMessages(d.Session.Messages())
	case "/clear":
		cleared, err := d.Session.Clear(ctx, u.prompt)
		switch {
		case errors.Is(err, io.EOF):
			return false, nil
		case err != nil:
			fmt.Fprint(u.out, banner("Couldn't clear history", err.Error()))
			d.Session.DismissBanner()
		case cleared:
			u.printMessages(d.Session.Messages())
		}
	case "/accounts":
		accounts, err := d.View.Accounts(ctx)
		if err != nil {
			fmt.Fprint(u.out, banner("Couldn't load accounts", err.Error()))
			return false, nil
		}
		fmt.Fprint(u.out, formatAccounts(accounts))
	case "/transactions":
		n := 1
		if len(fields) > 1 {
			v, err := strconv.Atoi(fields[1])
			if err != nil || v < 1 {
				fmt.Fprintln(u.out, color.YellowString("usage: /transactions [page]"))
				return false, nil
			}
			n = v
		}
		page, err := d.View.Transactions(ctx, ledger.Page{Number: n})
		if err != nil {
			fmt.Fprint(u.out, banner("Couldn't load transactions", err.Error()))
			return false, nil
		}
		fmt.Fprint(u.out, formatTransactions(page))
	case "/link":
		res, err := d.Links.Connect(ctx)
		u.LinkFinished(dashboard.LinkAttempt{Result: res, Err: err, State: d.Links.State()})
		if err == nil {
			fmt.Fprint(u.out, formatStatus(d.Store.Current()))
		}
	default:
		fmt.Fprintf(u.out, "Unknown command %s. Type /help for commands.\n", fields[0])
	}
	return false, nil
}

func (u *TerminalUI) ask(ctx context.Context, session *advisor.Session, question string) error {
	fmt.Fprintln(u.out, color.HiBlackString("Thinking..."))
	reply, err := session.Send(ctx, question)
	switch {
	case errors.Is(err, advisor.ErrSessionClosed):
		return nil
	case reply.ID != "":
		fmt.Fprint(u.out, formatMessage(reply))
		if err != nil {
			u.logger.WithError(err).Debug("Advisor reply failed")
			if detail := session.Banner(); detail != "" {
				fmt.Fprint(u.out, banner(u.messages.SendFailed.Title, detail))
				session.DismissBanner()
			}
		}
	case err != nil:
		fmt.Fprintln(u.out, color.YellowString(err.Error()))
	}
	return nil
}

func (u *TerminalUI) printMessages(msgs []advisor.Message) {
	for _, m := range msgs {
		fmt.Fprint(u.out, formatMessage(m))
	}
}
