package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"finboard/internal/domain/advisor"
	"finboard/internal/domain/dashboard"
	"finboard/internal/domain/health"
	"finboard/internal/domain/ledger"
	"finboard/internal/domain/link"
	"finboard/internal/domain/profile"
	"finboard/internal/infrastructure/backend"
)

// appFunc returns the App built by the root pre-run hook.
type appFunc func() *App

func runCmd(app appFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Open the dashboard (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDashboard(cmd.Context(), app())
		},
	}
}

func runDashboard(ctx context.Context, a *App) error {
	ui := NewTerminalUI(a.prompter(), a.Out, a.Messages, a.Logger)
	err := a.orchestrator().Mount(ctx, ui)
	if errors.Is(err, dashboard.ErrAborted) {
		fmt.Fprintln(a.Out, color.YellowString(a.Messages.LinkCancelled.Title))
		fmt.Fprintln(a.Out, "Run `finboard link` when you are ready.")
		return nil
	}
	return err
}

func healthCmd(app appFunc) *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Wait until the server is ready",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := app()
			cfg := a.healthConfig()

			if once {
				timeout := cfg.RequestTimeout
				if timeout <= 0 {
					timeout = health.DefaultRequestTimeout
				}
				ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
				defer cancel()
				if err := a.Client.Health(ctx); err != nil {
					return fmt.Errorf("server not ready: %w", err)
				}
				fmt.Fprintln(a.Out, color.GreenString("✓ Connected"))
				return nil
			}

			ui := NewTerminalUI(a.prompter(), a.Out, a.Messages, a.Logger)
			return health.Wait(cmd.Context(), health.NewPoller(a.Client, cfg), ui.HealthChanged)
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "Probe a single time instead of waiting")
	return cmd
}

func statusCmd(app appFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show linked banks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := app()
			// Refresh never fails; confirm the session first so a bad login is not shown as "no bank".
			if _, err := a.Credentials.Token(); err != nil {
				return fmt.Errorf("%w: %v", backend.ErrAuthExpired, err)
			}
			fmt.Fprint(a.Out, formatStatus(a.Store.Refresh(cmd.Context())))
			return nil
		},
	}
}

func linkCmd(app appFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "link",
		Short: "Connect a bank account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := app()
			links := a.linkManager()
			defer links.Close()

			ui := NewTerminalUI(a.prompter(), a.Out, a.Messages, a.Logger)
			res, err := links.Connect(cmd.Context())
			ui.LinkFinished(dashboard.LinkAttempt{Result: res, Err: err, State: links.State()})
			if err != nil {
				return err
			}
			if links.State() == link.StateFailed {
				return links.LastError()
			}
			fmt.Fprint(a.Out, formatStatus(a.Store.Current()))
			return nil
		},
	}
}

func askCmd(app appFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "ask <question...>",
		Short: "Ask the financial advisor a question",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := app()
			session := a.session()
			defer session.Close()
			session.Load(cmd.Context())

			reply, err := session.Send(cmd.Context(), strings.Join(args, " "))
			if reply.ID != "" {
				fmt.Fprint(a.Out, formatMessage(reply))
			}
			return err
		},
	}
}

func historyCmd(app appFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "Show the advisor conversation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := app()
			session := a.session()
			defer session.Close()

			for _, m := range session.Load(cmd.Context()) {
				fmt.Fprint(a.Out, formatMessage(m))
			}
			return nil
		},
	}
}

func clearCmd(app appFunc) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete the advisor conversation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := app()
			session := a.session()
			defer session.Close()
			session.Load(cmd.Context())

			var confirm advisor.Confirmer = a.prompter()
			if yes {
				confirm = alwaysConfirm{}
			}
			cleared, err := session.Clear(cmd.Context(), confirm)
			if err != nil {
				return err
			}
			if cleared {
				fmt.Fprintln(a.Out, color.GreenString("Conversation cleared"))
			} else {
				fmt.Fprintln(a.Out, "Nothing changed")
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation")
	return cmd
}

func accountsCmd(app appFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "accounts",
		Short: "List accounts and balances",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := app()
			accounts, err := a.ledgerView().Accounts(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprint(a.Out, formatAccounts(accounts))
			return nil
		},
	}
}

func transactionsCmd(app appFunc) *cobra.Command {
	var (
		page  int
		limit int
		all   bool
	)

	cmd := &cobra.Command{
		Use:     "transactions",
		Aliases: []string{"tx"},
		Short:   "List transactions",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := app()
			view := a.ledgerView()

			if !all {
				p, err := view.Transactions(cmd.Context(), ledger.Page{Number: page, Size: limit})
				if err != nil {
					return err
				}
				fmt.Fprint(a.Out, formatTransactions(p))
				return nil
			}

			pager := view.NewPager(limit)
			for {
				p, ok, err := pager.Next(cmd.Context())
				if err != nil {
					return err
				}
				if !ok {
					return nil
				}
				fmt.Fprint(a.Out, formatTransactions(p))
			}
		},
	}

	cmd.Flags().IntVarP(&page, "page", "p", 1, "Page number")
	cmd.Flags().IntVarP(&limit, "limit", "l", 0, "Transactions per page")
	cmd.Flags().BoolVar(&all, "all", false, "Fetch every page")
	return cmd
}

func loginCmd(app appFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "login [token]",
		Short: "Store the session token",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := app()

			var token string
			if len(args) == 1 {
				token = args[0]
			} else {
				t, err := a.prompter().Secret("Session token: ")
				if err != nil && !errors.Is(err, io.EOF) {
					return err
				}
				token = t
			}

			if err := a.Credentials.Save(token); err != nil {
				return fmt.Errorf("failed to save credentials: %w", err)
			}
			a.Store.Reset()

			if exp, ok := a.Credentials.Expiry(); ok {
				fmt.Fprintf(a.Out, "%s (expires %s)\n", color.GreenString("Logged in"), exp.Local().Format(time.RFC1123))
			} else {
				fmt.Fprintln(a.Out, color.GreenString("Logged in"))
			}
			return nil
		},
	}
}

func logoutCmd(app appFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the session token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := app()
			if err := a.Credentials.Clear(); err != nil {
				return err
			}
			a.Store.Reset()
			fmt.Fprintln(a.Out, "Logged out")
			return nil
		},
	}
}

func deleteAccountCmd(app appFunc) *cobra.Command {
	var confirm string

	cmd := &cobra.Command{
		Use:   "delete-account",
		Short: "Permanently delete your account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := app()

			typed := confirm
			if !cmd.Flags().Changed("confirm") {
				fmt.Fprint(a.Out, banner(a.Messages.DeleteConfirm.Title, a.Messages.DeleteConfirm.Body))
				line, err := a.prompter().Line("> ")
				if err != nil && !errors.Is(err, io.EOF) {
					return err
				}
				typed = line
			}

			if err := a.profileService().DeleteAccount(cmd.Context(), typed); err != nil {
				if errors.Is(err, profile.ErrValidationFailed) {
					fmt.Fprintln(a.Out, "Account not deleted")
				}
				return err
			}
			fmt.Fprintln(a.Out, "Account deleted")
			return nil
		},
	}

	cmd.Flags().StringVar(&confirm, "confirm", "", "Type DELETE to skip the prompt")
	return cmd
}
