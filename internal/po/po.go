// Package po reads and writes gettext PO translation catalogs.
//
// Entries that are not modified are written back byte for byte, so a catalog
// round-trips without diff noise.
package po

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// SourceLocale is the locale the msgids are written in.
const SourceLocale = "en-US"

// Entry is one msgid/msgstr pair with its comments.
type Entry struct {
	// Comments are the raw "#" lines before the keywords.
	Comments   []string
	Context    string
	HasContext bool
	ID         string
	IDPlural   string
	Str        string
	// StrPlural holds msgstr[n] for plural entries.
	StrPlural []string

	leading []string // blank lines before the entry
	raw     []string // original text, used while the entry is unchanged
	dirty   bool
}

// IsHeader reports whether this is the catalog header (empty msgid).
func (e *Entry) IsHeader() bool {
	return e.ID == "" && !e.HasContext
}

// Translated reports whether every msgstr form is filled in.
func (e *Entry) Translated() bool {
	if e.IDPlural != "" {
		if len(e.StrPlural) == 0 {
			return false
		}
		for _, s := range e.StrPlural {
			if s == "" {
				return false
			}
		}
		return true
	}
	return e.Str != ""
}

// SetStr sets the translation and marks the entry for re-rendering.
func (e *Entry) SetStr(s string) {
	e.Str = s
	e.dirty = true
}

// SetStrPlural sets one plural form.
func (e *Entry) SetStrPlural(n int, s string) {
	for len(e.StrPlural) <= n {
		e.StrPlural = append(e.StrPlural, "")
	}
	e.StrPlural[n] = s
	e.dirty = true
}

// Flags returns the values of "#," comment lines (e.g. "fuzzy").
func (e *Entry) Flags() []string {
	var flags []string
	for _, c := range e.Comments {
		if rest, ok := strings.CutPrefix(c, "#,"); ok {
			for _, f := range strings.Split(rest, ",") {
				if f = strings.TrimSpace(f); f != "" {
					flags = append(flags, f)
				}
			}
		}
	}
	return flags
}

// File is a parsed catalog.
type File struct {
	Path    string
	Entries []*Entry
	// trailing blank or comment lines after the last entry
	trailing []string
}

// Locale is the file stem, e.g. "da-DK" for da-DK.po.
func (f *File) Locale() string {
	return LocaleOf(f.Path)
}

// LocaleOf returns the locale a catalog path is for.
func LocaleOf(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

// Header returns a field of the header entry, e.g. "Language".
func (f *File) Header(key string) string {
	for _, e := range f.Entries {
		if !e.IsHeader() {
			continue
		}
		for _, line := range strings.Split(e.Str, "\n") {
			k, v, ok := strings.Cut(line, ":")
			if ok && strings.EqualFold(strings.TrimSpace(k), key) {
				return strings.TrimSpace(v)
			}
		}
	}
	return ""
}

// Untranslated returns entries with a msgid and no translation.
func (f *File) Untranslated() []*Entry {
	var out []*Entry
	for _, e := range f.Entries {
		if e.ID != "" && !e.Translated() {
			out = append(out, e)
		}
	}
	return out
}

// Dirty reports whether any entry changed since parsing.
func (f *File) Dirty() bool {
	for _, e := range f.Entries {
		if e.dirty {
			return true
		}
	}
	return false
}

// ParseFile reads a catalog from disk.
func ParseFile(path string) (*File, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- catalog path discovered in the workspace
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	f, err := Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	f.Path = path
	return f, nil
}

type keyword int

const (
	kwNone keyword = iota
	kwContext
	kwID
	kwIDPlural
	kwStr
	kwStrPlural
)

// Parse reads a catalog.
func Parse(r io.Reader) (*File, error) {
	f := &File{}
	var (
		cur     *Entry
		last    keyword
		plural  int
		pending []string
		lineNo  int
	)

	finish := func() {
		if cur != nil {
			f.Entries = append(f.Entries, cur)
			cur = nil
			last = kwNone
		}
	}
	start := func() {
		cur = &Entry{leading: pending}
		pending = nil
	}
	hasKeyword := func() bool { return cur != nil && last != kwNone }
	hasStr := func() bool {
		return cur != nil && (last == kwStr || last == kwStrPlural)
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		trimmed := strings.TrimSpace(line)

		switch {
		case trimmed == "":
			if hasKeyword() {
				finish()
			}
			if cur != nil {
				// comment block not followed by keywords yet
				cur.raw = append(cur.raw, line)
				continue
			}
			pending = append(pending, line)

		case strings.HasPrefix(trimmed, "#"):
			if hasKeyword() {
				finish()
			}
			if cur == nil {
				start()
			}
			cur.Comments = append(cur.Comments, line)
			cur.raw = append(cur.raw, line)

		case strings.HasPrefix(trimmed, `"`):
			if !hasKeyword() {
				return nil, fmt.Errorf("line %d: string without keyword", lineNo)
			}
			s, err := unquote(trimmed)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			switch last {
			case kwContext:
				cur.Context += s
			case kwID:
				cur.ID += s
			case kwIDPlural:
				cur.IDPlural += s
			case kwStr:
				cur.Str += s
			case kwStrPlural:
				cur.StrPlural[plural] += s
			}
			cur.raw = append(cur.raw, line)

		default:
			kw, rest, _ := strings.Cut(trimmed, " ")
			s, err := unquote(strings.TrimSpace(rest))
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			if (kw == "msgctxt" || kw == "msgid") && hasStr() {
				finish()
			}
			if cur == nil {
				start()
			}
			switch {
			case kw == "msgctxt":
				cur.Context, cur.HasContext, last = s, true, kwContext
			case kw == "msgid":
				cur.ID, last = s, kwID
			case kw == "msgid_plural":
				cur.IDPlural, last = s, kwIDPlural
			case kw == "msgstr":
				cur.Str, last = s, kwStr
			case strings.HasPrefix(kw, "msgstr[") && strings.HasSuffix(kw, "]"):
				n, err := strconv.Atoi(kw[len("msgstr[") : len(kw)-1])
				if err != nil || n < 0 {
					return nil, fmt.Errorf("line %d: bad plural index %q", lineNo, kw)
				}
				for len(cur.StrPlural) <= n {
					cur.StrPlural = append(cur.StrPlural, "")
				}
				cur.StrPlural[n] = s
				plural, last = n, kwStrPlural
			default:
				return nil, fmt.Errorf("line %d: unknown keyword %q", lineNo, kw)
			}
			cur.raw = append(cur.raw, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if cur != nil && last == kwNone {
		// comments after the last entry
		f.trailing = append(cur.leading, cur.raw...)
		cur = nil
	}
	finish()
	f.trailing = append(f.trailing, pending...)
	return f, nil
}

// Bytes renders the catalog.
func (f *File) Bytes() []byte {
	var buf bytes.Buffer
	for _, e := range f.Entries {
		for _, l := range e.leading {
			buf.WriteString(l + "\n")
		}
		if !e.dirty {
			for _, l := range e.raw {
				buf.WriteString(l + "\n")
			}
			continue
		}
		e.render(&buf)
	}
	for _, l := range f.trailing {
		buf.WriteString(l + "\n")
	}
	return buf.Bytes()
}

// Save writes the catalog back to its path.
func (f *File) Save() error {
	info, err := os.Stat(f.Path)
	mode := os.FileMode(0o644)
	if err == nil {
		mode = info.Mode().Perm()
	}
	if err := os.WriteFile(f.Path, f.Bytes(), mode); err != nil {
		return fmt.Errorf("failed to write %s: %w", f.Path, err)
	}
	for _, e := range f.Entries {
		if !e.dirty {
			continue
		}
		e.dirty = false
		var buf bytes.Buffer
		e.render(&buf)
		e.raw = strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	}
	return nil
}

func (e *Entry) render(buf *bytes.Buffer) {
	for _, c := range e.Comments {
		buf.WriteString(c + "\n")
	}
	if e.HasContext {
		writeField(buf, "msgctxt", e.Context)
	}
	writeField(buf, "msgid", e.ID)
	if e.IDPlural != "" {
		writeField(buf, "msgid_plural", e.IDPlural)
		for i, s := range e.StrPlural {
			writeField(buf, fmt.Sprintf("msgstr[%d]", i), s)
		}
		return
	}
	writeField(buf, "msgstr", e.Str)
}

// writeField uses the multi-line form when the value has inner newlines.
func writeField(buf *bytes.Buffer, kw, value string) {
	idx := strings.Index(value, "\n")
	if idx < 0 || idx == len(value)-1 {
		fmt.Fprintf(buf, "%s %s\n", kw, quote(value))
		return
	}
	fmt.Fprintf(buf, "%s \"\"\n", kw)
	for value != "" {
		line := value
		if i := strings.Index(value, "\n"); i >= 0 {
			line = value[:i+1]
		}
		buf.WriteString(quote(line) + "\n")
		value = value[len(line):]
	}
}

var escaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`, "\t", `\t`, "\r", `\r`)

func quote(s string) string {
	return `"` + escaper.Replace(s) + `"`
}

func unquote(s string) (string, error) {
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return "", fmt.Errorf("expected quoted string, got %q", s)
	}
	s = s[1 : len(s)-1]
	if !strings.Contains(s, `\`) {
		return s, nil
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i == len(s)-1 {
			b.WriteByte(c)
			continue
		}
		i++
		switch s[i] {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		case '"':
			b.WriteByte('"')
		case '\\':
			b.WriteByte('\\')
		default:
			b.WriteByte('\\')
			b.WriteByte(s[i])
		}
	}
	return b.String(), nil
}
