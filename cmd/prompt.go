package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aasubsidy/subsidyctl/internal/common"
	"github.com/aasubsidy/subsidyctl/pkg/config"
	"github.com/aasubsidy/subsidyctl/pkg/dispatch"
	"github.com/shopspring/decimal"
)

// prompter asks for comments, reasons and confirmations on the terminal.
// Answers given as flags are used instead of asking.
type prompter struct {
	in   *bufio.Reader
	out  io.Writer
	lang config.Lang

	subsidy *string
	comment *string
	yes     bool
}

func newPrompter(in io.Reader, out io.Writer, lang config.Lang) *prompter {
	return &prompter{in: bufio.NewReader(in), out: out, lang: lang}
}

// ask prints a label and reads one line. ok is false on end of input.
func (p *prompter) ask(label string) (string, bool, error) {
	fmt.Fprint(p.out, label)
	line, err := p.in.ReadString('\n')
	if errors.Is(err, io.EOF) {
		if line == "" {
			fmt.Fprintln(p.out)
			return "", false, nil
		}
	} else if err != nil {
		return "", false, err
	}
	return strings.TrimRight(line, "\r\n"), true, nil
}

// Annotate asks for the subsidy amount and a comment or reason. An empty
// subsidy answer keeps the amount currently entered on the page.
func (p *prompter) Annotate(_ context.Context, req dispatch.AnnotationRequest) (dispatch.Annotation, bool, error) {
	a := dispatch.Annotation{Subsidy: req.Subsidy, HasSubsidy: req.HasSubsidy}
	if req.Title != "" {
		fmt.Fprintf(p.out, "%s (contract %s)\n", req.Title, req.ID)
	}

	raw := ""
	if p.subsidy != nil {
		raw = *p.subsidy
	} else {
		current := ""
		if req.HasSubsidy {
			current = req.Subsidy.String()
		}
		answer, ok, err := p.ask(fmt.Sprintf("Subsidy [%s]: ", current))
		if err != nil || !ok {
			return a, false, err
		}
		raw = answer
	}
	if raw = strings.TrimSpace(raw); raw != "" {
		amount, err := decimal.NewFromString(raw)
		if err != nil {
			return a, false, common.NewUserError(fmt.Sprintf("%q is not a valid amount", raw), err)
		}
		a.Subsidy, a.HasSubsidy = amount, true
	}

	if p.comment != nil {
		a.Comment = *p.comment
		return a, true, nil
	}
	label := p.lang.EnterComment
	if req.Action == dispatch.ActionDeny {
		label = p.lang.EnterReason
	}
	answer, ok, err := p.ask(label + ": ")
	if err != nil || !ok {
		return a, false, err
	}
	a.Comment = answer
	return a, true, nil
}

// Confirm asks a yes/no question; anything but y or yes is a no.
func (p *prompter) Confirm(_ context.Context, prompt string) (bool, error) {
	if p.yes {
		return true, nil
	}
	answer, ok, err := p.ask(prompt + " [y/N] ")
	if err != nil || !ok {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}
