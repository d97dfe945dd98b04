package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"golang.org/x/term"

	"finboard/internal/shared/messages"
)

// Prompter reads answers from the terminal.
type Prompter struct {
	in    *bufio.Reader
	out   io.Writer
	fd    int
	isTTY bool
}

// NewPrompter wraps in and out. Secret input is hidden when in is a terminal.
func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	p := &Prompter{in: bufio.NewReader(in), out: out, fd: -1}
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		p.fd = int(f.Fd())
		p.isTTY = true
	}
	return p
}

// Line prints prompt and reads one line without its newline. io.EOF is
// returned only when nothing was read.
func (p *Prompter) Line(prompt string) (string, error) {
	if prompt != "" {
		fmt.Fprint(p.out, prompt)
	}
	line, err := p.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// Secret reads a line without echo on a terminal.
func (p *Prompter) Secret(prompt string) (string, error) {
	if !p.isTTY {
		return p.Line(prompt)
	}
	fmt.Fprint(p.out, prompt)
	b, err := term.ReadPassword(p.fd)
	fmt.Fprintln(p.out)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// YesNo asks a yes/no question. An empty answer takes def.
func (p *Prompter) YesNo(prompt string, def bool) (bool, error) {
	hint := "[y/N]"
	if def {
		hint = "[Y/n]"
	}
	answer, err := p.Line(fmt.Sprintf("%s %s: ", prompt, hint))
	if err != nil {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "":
		return def, nil
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// Confirm shows a blocking confirmation that defaults to no.
func (p *Prompter) Confirm(_ context.Context, prompt messages.MessageText) (bool, error) {
	fmt.Fprintln(p.out, color.New(color.Bold).Sprint(prompt.Title))
	if prompt.Body != "" {
		fmt.Fprintln(p.out, prompt.Body)
	}
	return p.YesNo("Continue?", false)
}

// alwaysConfirm skips the prompt, for --yes.
type alwaysConfirm struct{}

func (alwaysConfirm) Confirm(context.Context, messages.MessageText) (bool, error) {
	return true, nil
}
