package policy

import (
	"fmt"

	"github.com/gobwas/glob"
)

// globSet compiles a list of tool-name patterns once and matches a tool
// name against all of them. Patterns use glob.Compile's default (no path
// separators), giving `*`, `PREFIX*`, `*SUFFIX`, `*CONTAINS*` semantics.
type globSet struct {
	patterns []string
	globs    []glob.Glob
}

func compileGlobSet(patterns []string) (*globSet, error) {
	gs := &globSet{patterns: patterns, globs: make([]glob.Glob, 0, len(patterns))}
	for _, p := range patterns {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("policy: invalid tool pattern %q: %w", p, err)
		}
		gs.globs = append(gs.globs, g)
	}
	return gs, nil
}

// matches reports whether tool matches any compiled pattern, and if so
// which source pattern matched first.
func (gs *globSet) matches(tool string) (matched bool, pattern string) {
	if gs == nil {
		return false, ""
	}
	for i, g := range gs.globs {
		if g.Match(tool) {
			return true, gs.patterns[i]
		}
	}
	return false, ""
}

func (gs *globSet) empty() bool {
	return gs == nil || len(gs.globs) == 0
}
