package scanner

import (
	"sort"
	"strings"

	"github.com/hoofbeat/hoofbeat/internal/types"
)

// defaultExcludedNames are basenames that are never scanned, watched, or
// served. Metadata files of no interest plus files that may leak sensitive
// information: .git directories can carry repository history, .htaccess
// files are web-server configuration, .gitignore belongs to git, and
// .DS_Store is macOS noise.
//
// The name check is deliberately simplistic. It will not protect against a
// bare git repository inside the served tree; serving one of those is the
// user's own decision to make with a different tool.
var defaultExcludedNames = []string{
	".DS_Store",
	".git",
	".gitignore",
	".htaccess",
}

// Exclusions is an immutable set of basename rules, built once at startup
// and consulted for every directory entry before any recursion or open.
type Exclusions struct {
	names    map[string]struct{}
	prefixes []string
}

// DefaultExclusions returns the standard exclusion set: the fixed basename
// list plus the reconciliation marker prefix, so in-flight marker files
// never show up in a scanned tree.
func DefaultExclusions() Exclusions {
	return NewExclusions(defaultExcludedNames, []string{types.MarkerPrefix})
}

// NewExclusions builds an exclusion set from exact basenames and basename
// prefixes.
func NewExclusions(names []string, prefixes []string) Exclusions {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return Exclusions{names: set, prefixes: append([]string(nil), prefixes...)}
}

// Excluded reports whether a directory entry with the given basename must
// be skipped entirely.
func (e Exclusions) Excluded(name string) bool {
	if _, ok := e.names[name]; ok {
		return true
	}
	for _, p := range e.prefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

// Names returns the exact-match basenames in the set, sorted.
func (e Exclusions) Names() []string {
	out := make([]string, 0, len(e.names))
	for n := range e.names {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
