// SPDX-License-Identifier: MPL-2.0

package manifest

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
)

const (
	// FormatRequirements is a pip requirements file.
	FormatRequirements Format = "requirements"
	// FormatPyProject is a PEP 621 pyproject.toml.
	FormatPyProject Format = "pyproject"

	// DefaultFileName is the manifest file used when a recipe names none.
	DefaultFileName = "requirements.txt"

	// maxIncludeDepth bounds nested -r/-c chains.
	maxIncludeDepth = 16
)

var (
	// ErrManifestNotFound is returned when the manifest file does not exist.
	ErrManifestNotFound = errors.New("dependency manifest not found")
	// ErrDuplicateRequirement is returned when a distribution is required twice with different constraints.
	ErrDuplicateRequirement = errors.New("conflicting duplicate requirement")
	// ErrIncludeEscapes is returned when -r/-c points outside the manifest directory.
	ErrIncludeEscapes = errors.New("manifest include escapes manifest directory")
	// ErrIncludeCycle is returned when includes form a cycle or nest too deeply.
	ErrIncludeCycle = errors.New("manifest include cycle")

	// requirementOption finds the first per-requirement option ("pkg==1 --hash=...").
	requirementOption = regexp.MustCompile(`\s--`)
)

type (
	// Format identifies the manifest syntax.
	Format string

	// File is one file that must be present in the dependency build context.
	File struct {
		// Path is slash-separated and relative to the manifest directory.
		Path string
		Data []byte
	}

	// IncludeFunc reads a file referenced by -r/-c, relative to the manifest directory.
	IncludeFunc func(rel string) ([]byte, error)

	// Manifest is a parsed dependency manifest.
	Manifest struct {
		// Source is the path the manifest was read from (for messages).
		Source string
		Format Format
		// Requirements are in file order, includes expanded in place.
		Requirements []Requirement
		// Options are installer option lines (--index-url, --pre, ...).
		Options []string

		files       []File
		installPath string
	}
)

// FormatFor returns the manifest format implied by a file name.
func FormatFor(name string) Format {
	if strings.EqualFold(filepath.Base(name), "pyproject.toml") {
		return FormatPyProject
	}
	return FormatRequirements
}

// Load reads and parses the manifest at path. Includes are resolved relative
// to the manifest's directory.
func Load(p string) (*Manifest, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrManifestNotFound, p)
		}
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	dir := filepath.Dir(p)
	include := func(rel string) ([]byte, error) {
		return os.ReadFile(filepath.Join(dir, filepath.FromSlash(rel)))
	}

	return Parse(p, data, include)
}

// Parse parses manifest bytes. name selects the format and decorates errors.
// include may be nil when the manifest has no -r/-c lines.
func Parse(name string, data []byte, include IncludeFunc) (*Manifest, error) {
	switch FormatFor(name) {
	case FormatPyProject:
		return parsePyProject(name, data)
	default:
		return parseRequirements(name, data, include)
	}
}

// Files returns the files to place in the dependency build context, the
// install file first. A pyproject manifest has none.
func (m *Manifest) Files() []File {
	out := make([]File, len(m.files))
	copy(out, m.files)
	return out
}

// InstallPath is the context-relative file handed to "pip install -r".
// It is empty for pyproject manifests.
func (m *Manifest) InstallPath() string { return m.installPath }

// InstallArgs returns the arguments appended to the installer's install
// command. dir is the slash-separated manifest directory inside the image.
// An empty result means there is nothing to install.
func (m *Manifest) InstallArgs(dir string) []string {
	if m.Format == FormatPyProject {
		args := make([]string, 0, len(m.Requirements))
		for _, r := range m.Requirements {
			args = append(args, r.String())
		}
		return args
	}
	return []string{"-r", path.Join(dir, m.installPath)}
}

// Empty reports whether the manifest declares no requirements.
func (m *Manifest) Empty() bool { return len(m.Requirements) == 0 }

// Digest returns a SHA-256 over every file that reaches the build context
// and the install arguments.
// Two manifests with the same digest install the same package set.
func (m *Manifest) Digest() string {
	h := sha256.New()
	for _, f := range m.files {
		fmt.Fprintf(h, "%s\x00%d\x00", f.Path, len(f.Data))
		h.Write(f.Data)
	}
	for _, a := range m.InstallArgs("") {
		fmt.Fprintf(h, "%s\x00", a)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Names returns the normalized requirement names in order. Unnamed URL
// requirements are listed by URL.
func (m *Manifest) Names() []string {
	names := make([]string, 0, len(m.Requirements))
	for _, r := range m.Requirements {
		if key := r.Key(); key != "" {
			names = append(names, key)
		} else {
			names = append(names, r.URL)
		}
	}
	return names
}

type requirementsParser struct {
	include IncludeFunc
	m       *Manifest
	seen    map[string]Requirement
	active  map[string]bool
}

func parseRequirements(name string, data []byte, include IncludeFunc) (*Manifest, error) {
	root := path.Base(filepath.ToSlash(name))
	p := &requirementsParser{
		include: include,
		m: &Manifest{
			Source:      name,
			Format:      FormatRequirements,
			installPath: root,
		},
		seen:   make(map[string]Requirement),
		active: make(map[string]bool),
	}
	if err := p.parseFile(root, data, 0); err != nil {
		return nil, err
	}
	return p.m, nil
}

func (p *requirementsParser) parseFile(rel string, data []byte, depth int) error {
	if depth > maxIncludeDepth || p.active[rel] {
		return fmt.Errorf("%w: %s", ErrIncludeCycle, rel)
	}
	p.active[rel] = true
	defer delete(p.active, rel)

	p.m.files = append(p.m.files, File{Path: rel, Data: data})

	for _, ll := range logicalLines(data) {
		text := stripComment(ll.text)
		if text == "" {
			continue
		}
		if strings.HasPrefix(text, "-") {
			if err := p.parseOption(rel, ll.line, text, depth); err != nil {
				return err
			}
			continue
		}

		spec := text
		if loc := requirementOption.FindStringIndex(spec); loc != nil {
			// Per-requirement options such as --hash stay in the file verbatim.
			spec = strings.TrimSpace(spec[:loc[0]])
		}
		req, err := ParseRequirement(rel, ll.line, spec)
		if err != nil {
			return err
		}
		if err := p.add(rel, req); err != nil {
			return err
		}
	}
	return nil
}

func (p *requirementsParser) parseOption(rel string, line int, text string, depth int) error {
	flag, value := splitOption(text)
	switch flag {
	case "-e", "--editable":
		return fmt.Errorf("%s:%d: editable install %q: %w", rel, line, value, ErrLocalReference)
	case "-r", "--requirement", "-c", "--constraint":
		if value == "" {
			return &InvalidRequirementError{Source: rel, Line: line, Raw: text, Reason: "missing include path"}
		}
		if p.include == nil {
			return fmt.Errorf("%s:%d: cannot resolve include %q", rel, line, value)
		}
		target := path.Clean(path.Join(path.Dir(rel), filepath.ToSlash(value)))
		if path.IsAbs(target) || target == ".." || strings.HasPrefix(target, "../") {
			return fmt.Errorf("%s:%d: %q: %w", rel, line, value, ErrIncludeEscapes)
		}
		data, err := p.include(target)
		if err != nil {
			return fmt.Errorf("%s:%d: read include %q: %w", rel, line, value, err)
		}
		if flag == "-c" || flag == "--constraint" {
			// Constraints are installed by pip from the copied file; they
			// declare no requirements of their own.
			p.m.files = append(p.m.files, File{Path: target, Data: data})
			return nil
		}
		return p.parseFile(target, data, depth+1)
	default:
		p.m.Options = append(p.m.Options, text)
		return nil
	}
}

func (p *requirementsParser) add(source string, req Requirement) error {
	key := req.Key()
	if key == "" {
		p.m.Requirements = append(p.m.Requirements, req)
		return nil
	}
	if prev, ok := p.seen[key]; ok && prev.Marker == "" && req.Marker == "" {
		if prev.Specifier != req.Specifier || prev.URL != req.URL {
			return fmt.Errorf("%s:%d: %s (%q vs %q): %w",
				source, req.Line, req.Name, prev.Raw, req.Raw, ErrDuplicateRequirement)
		}
	}
	p.seen[key] = req
	p.m.Requirements = append(p.m.Requirements, req)
	return nil
}

type logicalLine struct {
	line int
	text string
}

// logicalLines joins backslash continuations, keeping the first physical line number.
func logicalLines(data []byte) []logicalLine {
	var (
		out   []logicalLine
		buf   strings.Builder
		start int
	)
	lines := bytes.Split(bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n")), []byte("\n"))
	for i, raw := range lines {
		s := string(raw)
		if buf.Len() == 0 {
			start = i + 1
		}
		if strings.HasSuffix(s, "\\") {
			buf.WriteString(strings.TrimSuffix(s, "\\"))
			buf.WriteString(" ")
			continue
		}
		buf.WriteString(s)
		out = append(out, logicalLine{line: start, text: buf.String()})
		buf.Reset()
	}
	if buf.Len() > 0 {
		out = append(out, logicalLine{line: start, text: buf.String()})
	}
	return out
}

// stripComment removes a '#' comment that starts the line or follows whitespace.
func stripComment(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == '#' && (i == 0 || s[i-1] == ' ' || s[i-1] == '\t') {
			s = s[:i]
			break
		}
	}
	return strings.TrimSpace(s)
}

// splitOption splits "-r file", "--requirement=file" and "-rfile" forms.
func splitOption(text string) (flag, value string) {
	if strings.HasPrefix(text, "--") {
		if idx := strings.IndexAny(text, "= \t"); idx >= 0 {
			return text[:idx], strings.TrimSpace(text[idx+1:])
		}
		return text, ""
	}
	if len(text) > 2 {
		return text[:2], strings.TrimSpace(text[2:])
	}
	return text, ""
}
