// SPDX-License-Identifier: MPL-2.0

package cueutil

import (
	"errors"
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
)

// ErrFileTooLarge is returned when input exceeds the configured size limit.
var ErrFileTooLarge = errors.New("file too large")

// Result holds a decoded value and the unified CUE value it came from.
type Result[T any] struct {
	Value   T
	Unified cue.Value
}

// CheckFileSize rejects data larger than limit bytes.
func CheckFileSize(data []byte, limit int64, name string) error {
	if int64(len(data)) > limit {
		if name == "" {
			name = "input"
		}
		return fmt.Errorf("%w: %s is %d bytes, exceeds maximum of %d", ErrFileTooLarge, name, len(data), limit)
	}
	return nil
}

// ParseAndDecode compiles schema, unifies definition with data and decodes the
// result into T.
func ParseAndDecode[T any](schema, data []byte, definition string, opts ...Option) (*Result[T], error) {
	o := newOptions(opts)
	if err := CheckFileSize(data, o.maxFileSize, o.filename); err != nil {
		return nil, err
	}

	ctx := cuecontext.New()
	schemaValue := ctx.CompileBytes(schema)
	if schemaValue.Err() != nil {
		return nil, fmt.Errorf("internal error: failed to compile schema: %w", schemaValue.Err())
	}

	def := schemaValue.LookupPath(cue.ParsePath(definition))
	if !def.Exists() {
		return nil, fmt.Errorf("internal error: schema has no definition %s", definition)
	}

	var compileOpts []cue.BuildOption
	if o.filename != "" {
		compileOpts = append(compileOpts, cue.Filename(o.filename))
	}
	userValue := ctx.CompileBytes(data, compileOpts...)
	if userValue.Err() != nil {
		return nil, FormatError(userValue.Err(), o.filename)
	}

	return decode[T](def.Unify(userValue), o)
}

// ParseAndDecodeString is ParseAndDecode with a string schema.
func ParseAndDecodeString[T any](schema string, data []byte, definition string, opts ...Option) (*Result[T], error) {
	return ParseAndDecode[T]([]byte(schema), data, definition, opts...)
}

// DecodeValue unifies definition with an already-built CUE value (for example
// one encoded from TOML) and decodes the result into T.
func DecodeValue[T any](schema string, value func(*cue.Context) cue.Value, definition string, opts ...Option) (*Result[T], error) {
	o := newOptions(opts)
	ctx := cuecontext.New()
	schemaValue := ctx.CompileString(schema)
	if schemaValue.Err() != nil {
		return nil, fmt.Errorf("internal error: failed to compile schema: %w", schemaValue.Err())
	}
	def := schemaValue.LookupPath(cue.ParsePath(definition))
	if !def.Exists() {
		return nil, fmt.Errorf("internal error: schema has no definition %s", definition)
	}

	v := value(ctx)
	if v.Err() != nil {
		return nil, FormatError(v.Err(), o.filename)
	}
	return decode[T](def.Unify(v), o)
}

func decode[T any](unified cue.Value, o parseOptions) (*Result[T], error) {
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, FormatError(err, o.filename)
	}

	var out T
	if err := unified.Decode(&out); err != nil {
		return nil, FormatError(err, o.filename)
	}
	return &Result[T]{Value: out, Unified: unified}, nil
}

// FormatError flattens a CUE error list into one error whose lines carry
// the path and position of each problem.
func FormatError(err error, filename string) error {
	if err == nil {
		return nil
	}

	list := cueerrors.Errors(err)
	if len(list) == 0 {
		if filename == "" {
			return err
		}
		return fmt.Errorf("%s: %w", filename, err)
	}

	lines := make([]string, 0, len(list))
	for _, e := range list {
		msg := cueerrors.Details(e, nil)
		msg = strings.TrimSpace(msg)
		if p := e.Path(); len(p) > 0 {
			prefix := strings.Join(p, ".") + ": "
			if !strings.HasPrefix(msg, prefix) {
				msg = prefix + msg
			}
		}
		lines = append(lines, msg)
	}

	joined := strings.Join(lines, "\n")
	if filename != "" && !strings.Contains(joined, filename) {
		joined = filename + ": " + joined
	}
	return &SchemaError{File: filename, Detail: joined, cause: err}
}

// SchemaError reports a value that does not satisfy its schema.
type SchemaError struct {
	File   string
	Detail string
	cause  error
}

func (e *SchemaError) Error() string { return e.Detail }

func (e *SchemaError) Unwrap() error { return e.cause }
