package tui

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/aretw0/nodeweave/pkg/domain"
	"github.com/aretw0/nodeweave/pkg/ports"
)

// Prompter reads answers from a line-oriented input such as a terminal.
// It implements ports.Confirmer and also collects values for waiting nodes.
type Prompter struct {
	mu     sync.Mutex
	out    io.Writer
	lines  chan lineResult
	render func(string) (string, error)
}

type lineResult struct {
	text string
	err  error
}

// NewPrompter starts reading lines from in. Prompts are written to out.
// render may be nil, in which case messages are printed as plain text.
func NewPrompter(in io.Reader, out io.Writer, render func(string) (string, error)) *Prompter {
	p := &Prompter{out: out, lines: make(chan lineResult), render: render}
	go p.read(in)
	return p
}

func (p *Prompter) read(in io.Reader) {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		p.lines <- lineResult{text: sc.Text()}
	}
	err := sc.Err()
	if err == nil {
		err = io.EOF
	}
	for {
		p.lines <- lineResult{err: err}
	}
}

// Ask prints question and returns the next line of input.
func (p *Prompter) Ask(ctx context.Context, question string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.out, "%s\n> ", question)
	select {
	case <-ctx.Done():
		fmt.Fprintln(p.out)
		return "", ctx.Err()
	case l := <-p.lines:
		return l.text, l.err
	}
}

var _ ports.Confirmer = (*Prompter)(nil)

// Confirm shows the value and waits for approval.
// An empty answer, "y" or "yes" approves; "n" or "no" declines; anything else
// replaces the value.
func (p *Prompter) Confirm(ctx context.Context, req ports.ConfirmRequest) (any, error) {
	msg := fmt.Sprintf("### Confirm %s: `%s`\n\n%s\n\n```\n%v\n```\n", req.Kind, req.Subject, req.Message, req.Value)
	if p.render != nil {
		if out, err := p.render(msg); err == nil {
			msg = out
		}
	}
	fmt.Fprint(p.out, msg)

	answer, err := p.Ask(ctx, "[Y]es / [n]o / or type a replacement value")
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "", "y", "yes":
		return req.Value, nil
	case "n", "no":
		return nil, domain.ErrConfirmationDeclined
	default:
		return answer, nil
	}
}
