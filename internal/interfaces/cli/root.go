package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"finboard/internal/infrastructure/backend"
	"finboard/internal/shared/messages"
)

// runtime owns the App for one invocation.
type runtime struct {
	build   Builder
	app     *App
	cleanup func()
}

func (r *runtime) current() *App { return r.app }

func (r *runtime) setup(cmd *cobra.Command, _ []string) error {
	a, done, err := r.build(cmd.Context())
	if err != nil {
		return err
	}
	if a.In == nil {
		a.In = cmd.InOrStdin()
	}
	if a.Out == nil {
		a.Out = cmd.OutOrStdout()
	}
	if a.Messages == nil {
		a.Messages = messages.Default()
	}
	r.app, r.cleanup = a, done
	return nil
}

func (r *runtime) close() {
	if r.cleanup != nil {
		r.cleanup()
		r.cleanup = nil
	}
}

// NewRootCommand builds the finboard command tree. build runs once before
// any subcommand.
func NewRootCommand(build Builder) *cobra.Command {
	root, _ := newRoot(build)
	return root
}

func newRoot(build Builder) (*cobra.Command, *runtime) {
	rt := &runtime{build: build}

	root := &cobra.Command{
		Use:   "finboard",
		Short: "Personal finance dashboard",
		Long: `finboard connects your bank accounts and answers questions about your
money with an AI financial advisor.

Examples:
  finboard login                 # store your session token
  finboard                       # wait for the server, link a bank, open the dashboard
  finboard ask "How much did I spend last month?"
  finboard transactions --all    # list every transaction`,
		Args:              cobra.NoArgs,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: rt.setup,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDashboard(cmd.Context(), rt.current())
		},
	}

	root.AddCommand(
		runCmd(rt.current),
		healthCmd(rt.current),
		statusCmd(rt.current),
		linkCmd(rt.current),
		askCmd(rt.current),
		historyCmd(rt.current),
		clearCmd(rt.current),
		accountsCmd(rt.current),
		transactionsCmd(rt.current),
		loginCmd(rt.current),
		logoutCmd(rt.current),
		deleteAccountCmd(rt.current),
	)
	return root, rt
}

// Execute runs the command line in args, prints a failure to errOut and
// returns the process exit code.
func Execute(ctx context.Context, build Builder, args []string, errOut io.Writer) int {
	root, rt := newRoot(build)
	defer rt.close()

	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		printError(errOut, err)
		return 1
	}
	return 0
}

func printError(w io.Writer, err error) {
	switch {
	case errors.Is(err, backend.ErrAuthExpired):
		text := messages.Default().SessionExpired
		fmt.Fprint(w, banner(text.Title, text.Body))
		fmt.Fprintln(w, "  Run `finboard login` to sign in.")
	case errors.Is(err, context.Canceled):
		fmt.Fprintln(w, color.YellowString("Interrupted"))
	default:
		fmt.Fprintf(w, "%s %v\n", color.RedString("Error:"), err)
	}
}
