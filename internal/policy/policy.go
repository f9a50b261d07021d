package policy

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/go-faster/errors"
)

// Policy decides whether a deployment that needs confirmation proceeds.
type Policy string

const (
	Approve Policy = "approve"
	Reject  Policy = "reject"
	Prompt  Policy = "prompt"
)

var ErrUnknownPolicy = errors.New("unknown validation policy")

type Decision struct {
	Proceed bool
	Reason  string
}

func Parse(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case Approve, Reject, Prompt:
		return p, nil
	case "":
		return Prompt, nil
	default:
		return "", errors.Wrap(ErrUnknownPolicy, s)
	}
}

// Decider asks questions on out and reads answers from in. in is never
// assumed to be a terminal.
type Decider struct {
	Policy Policy
	In     io.Reader
	Out    io.Writer

	lines chan line
}

type line struct {
	text string
	ok   bool
	err  error
}

func New(p Policy, in io.Reader, out io.Writer) *Decider {
	if out == nil {
		out = io.Discard
	}
	return &Decider{Policy: p, In: in, Out: out}
}

// Confirm resolves question according to the policy. A prompt gives up with
// ctx.Err() when ctx is done before an answer arrives.
func (d *Decider) Confirm(ctx context.Context, question string) (Decision, error) {
	switch d.Policy {
	case Approve:
		return Decision{Proceed: true, Reason: "approved by policy"}, nil
	case Reject:
		return Decision{Proceed: false, Reason: "rejected by policy"}, nil
	case Prompt:
	default:
		return Decision{}, errors.Wrap(ErrUnknownPolicy, string(d.Policy))
	}

	if d.In == nil {
		return Decision{Proceed: false, Reason: "no input"}, nil
	}
	if d.lines == nil {
		d.lines = make(chan line)
		go d.read()
	}

	for {
		fmt.Fprintf(d.Out, "%s [y/N]: ", question)

		var l line
		select {
		case <-ctx.Done():
			fmt.Fprintln(d.Out)
			return Decision{}, ctx.Err()
		case l = <-d.lines:
		}
		if l.err != nil {
			return Decision{}, errors.Wrap(l.err, "read answer")
		}
		if !l.ok {
			fmt.Fprintln(d.Out)
			return Decision{Proceed: false, Reason: "no answer"}, nil
		}

		switch strings.ToLower(strings.TrimSpace(l.text)) {
		case "y", "yes":
			return Decision{Proceed: true, Reason: "confirmed"}, nil
		case "", "n", "no":
			return Decision{Proceed: false, Reason: "declined"}, nil
		}
	}
}

// read feeds answers to Confirm. It outlives a cancelled prompt, so the next
// Confirm picks up where the last one left off.
func (d *Decider) read() {
	s := bufio.NewScanner(d.In)
	for s.Scan() {
		d.lines <- line{text: s.Text(), ok: true}
	}
	if err := s.Err(); err != nil {
		d.lines <- line{err: err}
	}
	close(d.lines)
}
