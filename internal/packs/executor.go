package packs

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/assay-run/assay/internal/bundle"
)

// Executor runs checks from one or more loaded packs against a bundle,
// applying the collision policy at construction time: a canonical rule id
// claimed by two compliance packs is a hard error, while the same id across
// non-compliance packs only warns (last definition observed wins).
type Executor struct {
	packs   []*LoadedPack
	ruleIDs map[string]struct{}
	log     *zap.Logger
}

// NewExecutor validates collisions across packs and returns an Executor, or
// a ComplianceCollisionError if two compliance packs define the same
// canonical rule id.
func NewExecutor(loaded []*LoadedPack, log *zap.Logger) (*Executor, error) {
	if log == nil {
		log = zap.NewNop()
	}

	ruleIDs := make(map[string]struct{})
	owner := make(map[string]struct {
		packName string
		kind     Kind
	})

	for _, pack := range loaded {
		for _, rule := range pack.Definition.Rules {
			canonicalID := pack.CanonicalRuleID(rule.ID)

			if existing, collides := owner[canonicalID]; collides {
				if pack.Definition.Kind == KindCompliance || existing.kind == KindCompliance {
					return nil, &ComplianceCollisionError{
						RuleID: canonicalID,
						PackA:  existing.packName,
						PackB:  pack.Definition.Name,
					}
				}
				log.Warn("rule collision: using definition from new pack",
					zap.String("rule_id", canonicalID),
					zap.String("existing_pack", existing.packName),
					zap.String("new_pack", pack.Definition.Name),
				)
			}

			owner[canonicalID] = struct {
				packName string
				kind     Kind
			}{packName: pack.Definition.Name, kind: pack.Definition.Kind}
			ruleIDs[canonicalID] = struct{}{}
		}
	}

	return &Executor{packs: loaded, ruleIDs: ruleIDs, log: log}, nil
}

// ComplianceCollisionError reports two compliance packs defining the same
// canonical rule id, which the collision policy treats as fatal.
type ComplianceCollisionError struct {
	RuleID string
	PackA  string
	PackB  string
}

func (e *ComplianceCollisionError) Error() string {
	return fmt.Sprintf("packs: compliance rule collision on %q between %q and %q", e.RuleID, e.PackA, e.PackB)
}

// RuleCount returns the number of unique canonical rule ids across all
// loaded packs.
func (ex *Executor) RuleCount() int { return len(ex.ruleIDs) }

// Packs returns the loaded packs in declared order.
func (ex *Executor) Packs() []*LoadedPack { return ex.packs }

// HasCompliancePack reports whether any loaded pack is kind=compliance.
func (ex *Executor) HasCompliancePack() bool {
	for _, p := range ex.packs {
		if p.Definition.Kind == KindCompliance {
			return true
		}
	}
	return false
}

// CombinedDisclaimer concatenates every compliance pack's disclaimer,
// separated by a thematic break, or "" if there are none.
func (ex *Executor) CombinedDisclaimer() string {
	var disclaimers []string
	for _, p := range ex.packs {
		if p.Definition.Kind == KindCompliance && p.Definition.Disclaimer != "" {
			disclaimers = append(disclaimers, p.Definition.Disclaimer)
		}
	}
	if len(disclaimers) == 0 {
		return ""
	}
	out := disclaimers[0]
	for _, d := range disclaimers[1:] {
		out += "\n\n---\n\n" + d
	}
	return out
}

// Execute runs every pack's rules against events/manifest, in declared
// order, running each canonical rule id at most once. When several packs
// define the same canonical id, the definition from the last such pack is
// the one run.
func (ex *Executor) Execute(events []bundle.Event, manifest *bundle.Manifest, bundlePath string) []Finding {
	var findings []Finding
	seen := make(map[string]struct{})

	lastOwner := make(map[string]int)
	for i, pack := range ex.packs {
		for _, rule := range pack.Definition.Rules {
			lastOwner[pack.CanonicalRuleID(rule.ID)] = i
		}
	}

	for i, pack := range ex.packs {
		ctx := &Context{
			Events:      events,
			Manifest:    manifest,
			BundlePath:  bundlePath,
			PackName:    pack.Definition.Name,
			PackVersion: pack.Definition.Version,
			PackDigest:  pack.Digest,
		}

		for _, rule := range pack.Definition.Rules {
			canonicalID := pack.CanonicalRuleID(rule.ID)
			if lastOwner[canonicalID] != i {
				continue
			}
			if _, dup := seen[canonicalID]; dup {
				continue
			}
			seen[canonicalID] = struct{}{}

			result := Execute(rule, ctx)
			if result.Finding != nil {
				findings = append(findings, *result.Finding)
			}
		}
	}

	return findings
}

// ExecuteWithLimit runs Execute and, if findings exceed maxResults,
// truncates the lowest-severity findings first. It returns the (possibly
// truncated) findings, whether truncation occurred, and how many findings
// were dropped.
func (ex *Executor) ExecuteWithLimit(events []bundle.Event, manifest *bundle.Manifest, bundlePath string, maxResults int) ([]Finding, bool, int) {
	findings := ex.Execute(events, manifest, bundlePath)
	if len(findings) <= maxResults {
		return findings, false, 0
	}

	sort.SliceStable(findings, func(i, j int) bool {
		return findings[i].Severity.Priority() < findings[j].Severity.Priority()
	})

	truncatedCount := len(findings) - maxResults
	findings = findings[truncatedCount:]

	sort.SliceStable(findings, func(i, j int) bool {
		return findings[i].Severity.Priority() > findings[j].Severity.Priority()
	})

	return findings, true, truncatedCount
}

// RuleMetadata is per-rule metadata surfaced alongside execution results,
// indexed by canonical rule id.
type RuleMetadata struct {
	Description     string
	FullDescription string
	HelpMarkdown    string
	HelpURI         string
	ArticleRef      string
}

// Info summarizes one executed pack.
type Info struct {
	Name      string
	Version   string
	Digest    string
	SourceURL string
	Kind      Kind
}

// ExecutionMeta is the metadata surface emitted alongside a pack run's
// findings.
type ExecutionMeta struct {
	Packs          []Info
	Disclaimer     string
	Truncated      bool
	TruncatedCount int
	RuleMetadata   map[string]RuleMetadata
	AnchorFile     string
	BundlePath     string
	BundleID       string
}

// BuildMeta assembles the metadata surface for one execution.
func (ex *Executor) BuildMeta(bundlePath, bundleID string, truncated bool, truncatedCount int) ExecutionMeta {
	infos := make([]Info, len(ex.packs))
	for i, p := range ex.packs {
		infos[i] = Info{
			Name:      p.Definition.Name,
			Version:   p.Definition.Version,
			Digest:    p.Digest,
			SourceURL: p.Definition.SourceURL,
			Kind:      p.Definition.Kind,
		}
	}

	ruleMeta := make(map[string]RuleMetadata)
	for _, pack := range ex.packs {
		for _, rule := range pack.Definition.Rules {
			canonicalID := pack.CanonicalRuleID(rule.ID)
			helpMarkdown := rule.HelpMarkdown
			if helpMarkdown == "" {
				helpMarkdown = generateHelpMarkdown(rule.ID, rule.Description, rule.ArticleRef, pack.Definition.Disclaimer)
			}
			ruleMeta[canonicalID] = RuleMetadata{
				Description:     rule.Description,
				FullDescription: rule.Description,
				HelpMarkdown:    helpMarkdown,
				HelpURI:         pack.Definition.SourceURL,
				ArticleRef:      rule.ArticleRef,
			}
		}
	}

	var anchorFile string
	if len(ex.packs) > 0 {
		anchorFile = fmt.Sprintf("packs/%s.yaml", ex.packs[0].Definition.Name)
	}

	return ExecutionMeta{
		Packs:          infos,
		Disclaimer:     ex.CombinedDisclaimer(),
		Truncated:      truncated,
		TruncatedCount: truncatedCount,
		RuleMetadata:   ruleMeta,
		AnchorFile:     anchorFile,
		BundlePath:     bundlePath,
		BundleID:       bundleID,
	}
}

func generateHelpMarkdown(ruleID, description, articleRef, disclaimer string) string {
	markdown := fmt.Sprintf("## %s\n\n%s\n\n", ruleID, description)
	if articleRef != "" {
		markdown += fmt.Sprintf("**Article Reference:** %s\n\n", articleRef)
	}
	if disclaimer != "" {
		markdown += "**Disclaimer:**\n" + disclaimer
	}
	return markdown
}
