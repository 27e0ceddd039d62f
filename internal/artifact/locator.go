// Package artifact finds, inlines and removes the screenshot files that
// failing tests leave behind.
package artifact

import (
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/gosimple/slug"
	"go.uber.org/zap"
)

// DefaultSourceExt is appended to the class path to rebuild the test file name
const DefaultSourceExt = ".py"

var (
	retrySuffix = regexp.MustCompile(`-retry(\d+)$`)
	dashRuns    = regexp.MustCompile(`-{2,}`)

	// Browser tags the capture tool appends to per-test directories
	knownVariants = []string{"chromium", "firefox", "webkit", "chrome", "msedge"}
)

// Slug converts s into a lowercase, filesystem-safe token. Runs of characters
// outside [a-z0-9_-] collapse into a single dash.
func Slug(s string) string {
	return slug.Make(s)
}

// PySlug is Slug with underscores folded into dashes. pytest-playwright and
// python-slugify name their output this way.
func PySlug(s string) string {
	return strings.Trim(dashRuns.ReplaceAllString(strings.ReplaceAll(Slug(s), "_", "-"), "-"), "-")
}

// slugForms are tried in order for every candidate name
var slugForms = []func(string) string{Slug, PySlug}

// Locator resolves the screenshot belonging to a test case
type Locator struct {
	SourceExt string
	logger    *zap.Logger
}

// NewLocator creates a Locator. An empty sourceExt uses DefaultSourceExt.
func NewLocator(sourceExt string, logger *zap.Logger) *Locator {
	if sourceExt == "" {
		sourceExt = DefaultSourceExt
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Locator{SourceExt: sourceExt, logger: logger}
}

// SplitVariant splits "name[variant]" into its base name and lowercased
// variant. Names without a trailing bracket segment have no variant.
func SplitVariant(testName string) (base, variant string) {
	i := strings.Index(testName, "[")
	if i < 0 {
		return testName, ""
	}
	base = testName[:i]
	if strings.HasSuffix(testName, "]") {
		variant = strings.ToLower(testName[i+1 : len(testName)-1])
	}
	return base, variant
}

// fileSlugs rebuilds the test file path from a dotted class name and returns
// the slug of the full path followed by the slug of its base name.
func (l *Locator) fileSlugs(className string, slugify func(string) string) []string {
	if className == "" {
		return nil
	}
	file := strings.ReplaceAll(className, ".", "/") + l.SourceExt
	full := slugify(file)
	short := slugify(path.Base(file))
	if short == full {
		return []string{full}
	}
	return []string{full, short}
}

// Locate returns the absolute path of the screenshot for the given test, or
// false when no candidate directory holds one. Directories are searched in
// sorted order so the answer does not depend on the order they are passed in.
func (l *Locator) Locate(testName, className string, dirs []string) (string, bool) {
	sources := normalizeDirs(dirs)
	if len(sources) == 0 || testName == "" {
		return "", false
	}

	base, variant := SplitVariant(testName)
	allowed := knownVariants
	if variant != "" {
		allowed = tokens(Slug(variant))
	}

	var prefixes, flat []string
	for _, slugify := range slugForms {
		fileSlugs := l.fileSlugs(className, slugify)
		for _, fs := range fileSlugs {
			p := fs + "-" + slugify(base)
			if variant != "" {
				prefixes = appendUnique(prefixes, p+"-"+slugify(variant))
			}
			prefixes = appendUnique(prefixes, p)
		}
		if len(fileSlugs) == 0 {
			flat = appendUnique(flat, slugify(testName)+".png")
		}
		for _, fs := range fileSlugs {
			flat = appendUnique(flat, fs+"-"+slugify(testName)+".png")
		}
	}

	for _, dir := range sources {
		entries, err := os.ReadDir(dir)
		if err != nil {
			l.logger.Debug("Skipping unreadable screenshot source", zap.String("dir", dir), zap.Error(err))
			continue
		}

		for _, p := range prefixes {
			if img, ok := l.matchDir(dir, entries, p, allowed); ok {
				return img, true
			}
		}

		for _, name := range flat {
			candidate := filepath.Join(dir, name)
			if info, err := os.Stat(candidate); err == nil && info.Mode().IsRegular() {
				return candidate, true
			}
		}
	}

	return "", false
}

// matchDir picks the directory for prefix p; the highest retry suffix is the
// terminal attempt and wins, otherwise the first name in order. Whatever
// follows the prefix may only name the test's own variant, so sibling
// parametrizations never claim each other's directories.
func (l *Locator) matchDir(dir string, entries []os.DirEntry, p string, allowed []string) (string, bool) {
	type match struct {
		name  string
		retry int
	}
	var matches []match

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasPrefix(name, p) {
			continue
		}
		rest := name[len(p):]
		retry := 0
		if m := retrySuffix.FindStringSubmatch(rest); m != nil {
			retry, _ = strconv.Atoi(m[1])
			rest = strings.TrimSuffix(rest, m[0])
		}
		if rest != "" && !strings.HasPrefix(rest, "-") {
			continue
		}
		if !onlyTokens(rest, allowed) {
			continue
		}
		matches = append(matches, match{name: name, retry: retry})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].retry != matches[j].retry {
			return matches[i].retry > matches[j].retry
		}
		return matches[i].name < matches[j].name
	})

	for _, m := range matches {
		if img, ok := firstImage(filepath.Join(dir, m.name)); ok {
			return img, true
		}
	}
	return "", false
}

func tokens(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool { return r == '-' || r == '_' })
}

func onlyTokens(rest string, allowed []string) bool {
	for _, tok := range tokens(rest) {
		found := false
		for _, a := range allowed {
			if tok == a {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}

func firstImage(dir string) (string, bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}
	var pngs []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.EqualFold(filepath.Ext(e.Name()), ".png") {
			pngs = append(pngs, e.Name())
		}
	}
	if len(pngs) == 0 {
		return "", false
	}
	sort.Strings(pngs)
	return filepath.Join(dir, pngs[0]), true
}

// normalizeDirs makes dirs absolute, drops blanks, duplicates and missing
// paths, and sorts the rest.
func normalizeDirs(dirs []string) []string {
	seen := make(map[string]bool, len(dirs))
	var out []string
	for _, d := range dirs {
		if d == "" {
			continue
		}
		abs, err := filepath.Abs(d)
		if err != nil || seen[abs] {
			continue
		}
		seen[abs] = true
		if info, err := os.Stat(abs); err != nil || !info.IsDir() {
			continue
		}
		out = append(out, abs)
	}
	sort.Strings(out)
	return out
}
