// Package i18n looks words up in per-culture key=value files.
//
// A culture file is named <base>.<culture> (for example strings.es-AR) and holds one
// key=value pair per line. Blank lines and lines starting with # are ignored and keys
// match case-insensitively.
package i18n

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/text/language"
)

const filePerm = 0o644

// Translator resolves words for a culture, falling back to the word itself.
type Translator struct {
	dir            string
	base           string
	defaultCulture string
	recordMissing  bool

	mu      sync.RWMutex
	tables  map[string]map[string]string
	matcher language.Matcher
	names   []string
}

// Option configures a Translator.
type Option func(*Translator)

// WithRecordMissing appends word=word to the culture file for every unknown word.
func WithRecordMissing(on bool) Option {
	return func(t *Translator) { t.recordMissing = on }
}

// New returns a translator over dir/base.*. Files are read lazily.
func New(dir, base, defaultCulture string, opts ...Option) *Translator {
	t := &Translator{
		dir:            dir,
		base:           base,
		defaultCulture: defaultCulture,
		tables:         make(map[string]map[string]string),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// DefaultCulture returns the culture used when none matches.
func (t *Translator) DefaultCulture() string { return t.defaultCulture }

// Translate returns the mapping of word for culture, or word when there is none.
func (t *Translator) Translate(culture, word string) string {
	if t == nil || word == "" {
		return word
	}
	if culture == "" {
		culture = t.defaultCulture
	}
	table, err := t.table(culture)
	if err != nil {
		return word
	}
	if v, ok := table[strings.ToLower(strings.TrimSpace(word))]; ok && v != "" {
		return v
	}
	if t.recordMissing {
		_ = t.AddKey(culture, word)
	}
	return word
}

// AddKey appends word=word to the culture file unless the key is already present.
func (t *Translator) AddKey(culture, word string) error {
	word = strings.TrimSpace(word)
	if word == "" || strings.ContainsAny(word, "=\n") {
		return fmt.Errorf("i18n: invalid key %q", word)
	}
	table, err := t.table(culture)
	if err != nil {
		return err
	}
	key := strings.ToLower(word)

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := table[key]; ok {
		return nil
	}
	f, err := os.OpenFile(t.path(culture), os.O_APPEND|os.O_CREATE|os.O_WRONLY, filePerm)
	if err != nil {
		return fmt.Errorf("i18n: open %s: %w", culture, err)
	}
	defer f.Close()
	if _, err := fmt.Fprintf(f, "%s=%s\n", word, word); err != nil {
		return fmt.Errorf("i18n: append %s: %w", culture, err)
	}
	table[key] = word
	return nil
}

// Cultures lists the cultures that have a file in the directory.
func (t *Translator) Cultures() ([]string, error) {
	entries, err := os.ReadDir(t.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	prefix := t.base + "."
	var out []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), prefix) {
			continue
		}
		out = append(out, strings.TrimPrefix(e.Name(), prefix))
	}
	sort.Strings(out)
	return out, nil
}

// Match picks the best available culture for an Accept-Language header value.
func (t *Translator) Match(acceptLanguage string) string {
	if t == nil {
		return ""
	}
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return t.defaultCulture
	}
	matcher, names := t.cultureMatcher()
	if matcher == nil {
		return t.defaultCulture
	}
	_, idx, conf := matcher.Match(tags...)
	if conf == language.No || idx < 0 || idx >= len(names) {
		return t.defaultCulture
	}
	return names[idx]
}

// Reload drops every cached table and the culture matcher.
func (t *Translator) Reload() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tables = make(map[string]map[string]string)
	t.matcher = nil
	t.names = nil
}

func (t *Translator) cultureMatcher() (language.Matcher, []string) {
	t.mu.RLock()
	m, names := t.matcher, t.names
	t.mu.RUnlock()
	if m != nil {
		return m, names
	}

	cultures, err := t.Cultures()
	if err != nil {
		return nil, nil
	}
	// the default culture goes first so it wins ties
	names = []string{t.defaultCulture}
	tags := []language.Tag{language.Make(t.defaultCulture)}
	for _, c := range cultures {
		if c == t.defaultCulture {
			continue
		}
		tag, err := language.Parse(c)
		if err != nil {
			continue
		}
		names = append(names, c)
		tags = append(tags, tag)
	}
	m = language.NewMatcher(tags)

	t.mu.Lock()
	t.matcher, t.names = m, names
	t.mu.Unlock()
	return m, names
}

func (t *Translator) table(culture string) (map[string]string, error) {
	t.mu.RLock()
	table, ok := t.tables[culture]
	t.mu.RUnlock()
	if ok {
		return table, nil
	}

	table, err := readTable(t.path(culture))
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if existing, ok := t.tables[culture]; ok {
		return existing, nil
	}
	t.tables[culture] = table
	return table, nil
}

func (t *Translator) path(culture string) string {
	return filepath.Join(t.dir, t.base+"."+filepath.Base(culture))
}

func readTable(path string) (map[string]string, error) {
	table := make(map[string]string)
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return table, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		if key == "" {
			continue
		}
		table[key] = strings.TrimSpace(value)
	}
	return table, sc.Err()
}
