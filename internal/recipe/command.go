// SPDX-License-Identifier: MPL-2.0

package recipe

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/syntax"
)

// ErrInvalidCommand is the sentinel for malformed entrypoints and installer commands.
var ErrInvalidCommand = errors.New("invalid command")

type (
	// Command is an exec-form argument vector.
	Command []string

	// InvalidCommandError reports a shell-form command that cannot be turned
	// into a fixed argv.
	InvalidCommandError struct {
		Input  string
		Reason string
	}
)

func (e *InvalidCommandError) Error() string {
	return fmt.Sprintf("invalid command %q: %s", e.Input, e.Reason)
}

func (e *InvalidCommandError) Unwrap() error { return ErrInvalidCommand }

// ParseShellForm splits a shell-form command into argv with POSIX word rules.
// Only a single simple command of literal words is accepted: no pipes, lists,
// redirections, assignments or expansions, since the result runs without a
// shell.
func ParseShellForm(s string) (Command, error) {
	fail := func(reason string) (Command, error) {
		return nil, &InvalidCommandError{Input: s, Reason: reason}
	}

	f, err := syntax.NewParser(syntax.Variant(syntax.LangPOSIX)).Parse(strings.NewReader(s), "")
	if err != nil {
		return fail(err.Error())
	}
	if len(f.Stmts) != 1 {
		return fail("must be exactly one command")
	}

	st := f.Stmts[0]
	if st.Negated || st.Background || st.Coprocess || len(st.Redirs) > 0 {
		return fail("operators and redirections need a shell")
	}
	call, ok := st.Cmd.(*syntax.CallExpr)
	if !ok {
		return fail("pipelines and compound commands need a shell")
	}
	if len(call.Assigns) > 0 {
		return fail("variable assignments belong in run_env")
	}

	argv := make(Command, 0, len(call.Args))
	for _, w := range call.Args {
		if reason := dynamicPart(w); reason != "" {
			return fail(reason)
		}
		lit, err := expand.Literal(nil, w)
		if err != nil {
			return fail(err.Error())
		}
		argv = append(argv, lit)
	}
	if len(argv) == 0 {
		return fail("empty command")
	}
	return argv, nil
}

// dynamicPart returns why w cannot be expanded without a shell, or "".
func dynamicPart(w *syntax.Word) string {
	reason := ""
	syntax.Walk(w, func(node syntax.Node) bool {
		if reason != "" {
			return false
		}
		switch n := node.(type) {
		case *syntax.ParamExp:
			reason = "parameter expansion needs a shell"
		case *syntax.CmdSubst, *syntax.ProcSubst:
			reason = "command substitution needs a shell"
		case *syntax.ArithmExp:
			reason = "arithmetic expansion needs a shell"
		case *syntax.ExtGlob:
			reason = "glob patterns need a shell"
		case *syntax.Lit:
			if n == w.Parts[0] && strings.HasPrefix(n.Value, "~") {
				reason = "tilde expansion needs a shell"
			}
		}
		return true
	})
	return reason
}

// CommandFrom converts a decoded CUE/TOML value (a string or a list of
// strings) into a Command.
func CommandFrom(v any) (Command, error) {
	switch val := v.(type) {
	case string:
		return ParseShellForm(val)
	case []string:
		return Command(val), nil
	case []any:
		out := make(Command, 0, len(val))
		for i, e := range val {
			s, ok := e.(string)
			if !ok {
				return nil, &InvalidCommandError{Input: fmt.Sprint(v), Reason: fmt.Sprintf("element %d is not a string", i)}
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, &InvalidCommandError{Input: fmt.Sprint(v), Reason: "must be a string or a list of strings"}
	}
}

// Validate checks the command can be executed.
func (c Command) Validate() error {
	if len(c) == 0 || strings.TrimSpace(c[0]) == "" {
		return &InvalidCommandError{Input: c.String(), Reason: "program must not be empty"}
	}
	for _, a := range c {
		if strings.ContainsRune(a, 0) {
			return &InvalidCommandError{Input: c.String(), Reason: "arguments must not contain NUL"}
		}
	}
	return nil
}

// With returns a copy of c with args appended.
func (c Command) With(args ...string) Command {
	out := make(Command, 0, len(c)+len(args))
	out = append(out, c...)
	return append(out, args...)
}

// JSON renders c as a Dockerfile exec-form array.
func (c Command) JSON() string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode([]string(c)); err != nil {
		return "[]"
	}
	// One space after commas, matching hand-written Dockerfiles.
	var out strings.Builder
	raw := strings.TrimSuffix(buf.String(), "\n")
	inString := false
	escaped := false
	for _, r := range raw {
		out.WriteRune(r)
		switch {
		case escaped:
			escaped = false
		case r == '\\' && inString:
			escaped = true
		case r == '"':
			inString = !inString
		case r == ',' && !inString:
			out.WriteByte(' ')
		}
	}
	return out.String()
}

// String renders c as a shell command line for display.
func (c Command) String() string {
	parts := make([]string, 0, len(c))
	for _, a := range c {
		q, err := syntax.Quote(a, syntax.LangBash)
		if err != nil {
			q = strconv.Quote(a)
		}
		parts = append(parts, q)
	}
	return strings.Join(parts, " ")
}
