// SPDX-License-Identifier: MPL-2.0

package manifest

import (
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"
)

var (
	// ErrInvalidRequirement is the sentinel wrapped by InvalidRequirementError.
	ErrInvalidRequirement = errors.New("invalid requirement")

	// ErrLocalReference is returned for requirements that point into the
	// host filesystem (editable installs, relative or file: paths).
	ErrLocalReference = errors.New("local requirement reference")

	namePattern      = regexp.MustCompile(`(?i)^([a-z0-9]|[a-z0-9][a-z0-9._-]*[a-z0-9])$`)
	nameRunPattern   = regexp.MustCompile(`[-_.]+`)
	leadNamePattern  = regexp.MustCompile(`^[A-Za-z0-9._-]+`)
	extraPattern     = regexp.MustCompile(`(?i)^[a-z0-9][a-z0-9._-]*$`)
	versionClause    = regexp.MustCompile(`^(===|~=|==|!=|<=|>=|<|>)\s*([A-Za-z0-9.*+!_-]+)$`)
	eggFragmentMatch = regexp.MustCompile(`[#&]egg=([A-Za-z0-9._-]+)`)
	schemePrefix     = regexp.MustCompile(`(?i)^[a-z][a-z0-9+.-]*://`)
	sdistStem        = regexp.MustCompile(`^(.+?)-[0-9][^-]*$`)

	sdistExtensions = []string{".tar.gz", ".tar.bz2", ".tar.xz", ".tgz", ".zip"}
)

type (
	// Requirement is one parsed requirement specifier.
	Requirement struct {
		// Name is the distribution name as written. It is empty for a bare URL
		// whose name only pip can determine.
		Name string
		// Extras are the optional feature names inside [...].
		Extras []string
		// Specifier is the version constraint, e.g. ">=2.3,<3".
		Specifier string
		// URL is set for direct references ("name @ https://...", "git+https://...").
		URL string
		// Marker is the environment marker after ';'.
		Marker string
		// Line is the 1-based line number in the originating file (0 for pyproject).
		Line int
		// Raw is the specifier text as it appeared, without comments.
		Raw string
	}

	// InvalidRequirementError describes a requirement pip would reject.
	InvalidRequirementError struct {
		Source string
		Line   int
		Raw    string
		Reason string
	}
)

// Error implements the error interface.
func (e *InvalidRequirementError) Error() string {
	loc := e.Source
	if e.Line > 0 {
		loc = fmt.Sprintf("%s:%d", e.Source, e.Line)
	}
	return fmt.Sprintf("%s: invalid requirement %q: %s", loc, e.Raw, e.Reason)
}

// Unwrap returns ErrInvalidRequirement for errors.Is() compatibility.
func (e *InvalidRequirementError) Unwrap() error { return ErrInvalidRequirement }

// NormalizeName returns the PEP 503 normalized form of a distribution name.
func NormalizeName(name string) string {
	return strings.ToLower(nameRunPattern.ReplaceAllString(name, "-"))
}

// Key returns the normalized name used for duplicate detection. It is empty
// for a URL whose distribution name is only known to pip.
func (r Requirement) Key() string { return NormalizeName(r.Name) }

// String renders the requirement in canonical pip syntax.
func (r Requirement) String() string {
	if r.Name == "" {
		return r.URL
	}
	var sb strings.Builder
	sb.WriteString(r.Name)
	if len(r.Extras) > 0 {
		sb.WriteString("[" + strings.Join(r.Extras, ",") + "]")
	}
	switch {
	case r.URL != "":
		sb.WriteString(" @ " + r.URL)
	case r.Specifier != "":
		sb.WriteString(r.Specifier)
	}
	if r.Marker != "" {
		sb.WriteString("; " + r.Marker)
	}
	return sb.String()
}

// ParseRequirement parses a single PEP 508 style requirement. source and line
// only decorate errors.
func ParseRequirement(source string, line int, raw string) (Requirement, error) {
	text := strings.TrimSpace(raw)
	fail := func(reason string) (Requirement, error) {
		return Requirement{}, &InvalidRequirementError{Source: source, Line: line, Raw: text, Reason: reason}
	}
	if text == "" {
		return fail("empty requirement")
	}
	if isLocalReference(text) {
		return Requirement{}, fmt.Errorf("%s:%d: %q: %w", source, line, text, ErrLocalReference)
	}

	req := Requirement{Line: line, Raw: text}

	// Bare VCS/archive URL, named through #egg= or the archive file name.
	// pip resolves the name of anything else itself.
	if schemePrefix.MatchString(text) {
		req.URL = text
		if m := eggFragmentMatch.FindStringSubmatch(text); m != nil {
			req.Name = m[1]
		} else {
			req.Name = archiveName(text)
		}
		return req, nil
	}

	rest := text
	if idx := strings.Index(rest, ";"); idx >= 0 {
		req.Marker = strings.TrimSpace(rest[idx+1:])
		rest = strings.TrimSpace(rest[:idx])
		if req.Marker == "" {
			return fail("empty environment marker")
		}
	}

	name := leadNamePattern.FindString(rest)
	if name == "" || !namePattern.MatchString(name) {
		return fail("missing or malformed distribution name")
	}
	req.Name = name
	rest = strings.TrimSpace(rest[len(name):])

	if strings.HasPrefix(rest, "[") {
		end := strings.Index(rest, "]")
		if end < 0 {
			return fail("unterminated extras")
		}
		for extra := range strings.SplitSeq(rest[1:end], ",") {
			extra = strings.TrimSpace(extra)
			if extra == "" {
				continue
			}
			if !extraPattern.MatchString(extra) {
				return fail(fmt.Sprintf("malformed extra %q", extra))
			}
			req.Extras = append(req.Extras, extra)
		}
		rest = strings.TrimSpace(rest[end+1:])
	}

	if strings.HasPrefix(rest, "@") {
		req.URL = strings.TrimSpace(rest[1:])
		if req.URL == "" {
			return fail("empty direct reference")
		}
		if isLocalReference(req.URL) {
			return Requirement{}, fmt.Errorf("%s:%d: %q: %w", source, line, text, ErrLocalReference)
		}
		return req, nil
	}

	// Parenthesized specifiers are legal PEP 508: "name (>=1.0)".
	if strings.HasPrefix(rest, "(") && strings.HasSuffix(rest, ")") {
		rest = strings.TrimSpace(rest[1 : len(rest)-1])
	}
	if rest == "" {
		return req, nil
	}

	clauses := strings.Split(rest, ",")
	normalized := make([]string, 0, len(clauses))
	for _, clause := range clauses {
		clause = strings.TrimSpace(clause)
		m := versionClause.FindStringSubmatch(clause)
		if m == nil {
			return fail(fmt.Sprintf("malformed version clause %q", clause))
		}
		if strings.Contains(m[2], "*") && m[1] != "==" && m[1] != "!=" {
			return fail(fmt.Sprintf("wildcard only allowed with == or != in %q", clause))
		}
		normalized = append(normalized, m[1]+m[2])
	}
	req.Specifier = strings.Join(normalized, ",")

	return req, nil
}

// isLocalReference reports whether a requirement points at host files, which
// would make dependency installation depend on the application tree.
func isLocalReference(s string) bool {
	switch {
	case strings.HasPrefix(s, "."), strings.HasPrefix(s, "/"), strings.HasPrefix(s, "~"):
		return true
	case strings.HasPrefix(s, "file:"):
		return true
	default:
		return false
	}
}

// archiveName derives the distribution name from a wheel or sdist URL, e.g.
// "pkg" from ".../pkg-1.0-py3-none-any.whl" or ".../pkg-1.0.tar.gz". It
// returns "" when the file name does not follow either convention.
func archiveName(rawURL string) string {
	u := rawURL
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	base := path.Base(u)

	var name string
	if stem, ok := strings.CutSuffix(base, ".whl"); ok {
		name, _, _ = strings.Cut(stem, "-")
	} else {
		for _, ext := range sdistExtensions {
			stem, ok := strings.CutSuffix(base, ext)
			if !ok {
				continue
			}
			if m := sdistStem.FindStringSubmatch(stem); m != nil {
				name = m[1]
			}
			break
		}
	}
	if !namePattern.MatchString(name) {
		return ""
	}
	return name
}
