package packs

import (
	"encoding/json"
	"fmt"

	"github.com/gobwas/glob"
	"github.com/xeipuuv/gojsonpointer"

	"github.com/assay-run/assay/internal/bundle"
	"github.com/assay-run/assay/internal/canon"
)

// EventLocation anchors a finding to a specific event in the bundle.
type EventLocation struct {
	Seq  uint64
	Line int
}

// Finding is the result of one failed (or warning-level) check.
type Finding struct {
	RuleID      string
	Severity    Severity
	Message     string
	Location    *EventLocation
	Fingerprint string
	// PrimaryLocationLineHash matches GitHub code-scanning's dedup key.
	PrimaryLocationLineHash string
	Tags                    []string
}

// Context carries everything a check needs to evaluate one pack against one
// bundle.
type Context struct {
	Events     []bundle.Event
	Manifest   *bundle.Manifest
	BundlePath string
	PackName   string
	PackVersion string
	PackDigest string
}

// Result is the outcome of running a single check.
type Result struct {
	Passed  bool
	Finding *Finding
}

// Execute runs rule's check against ctx.
func Execute(rule Rule, ctx *Context) Result {
	switch rule.Check.Type {
	case CheckEventCount:
		return checkEventCount(rule, ctx, rule.Check.Min)
	case CheckEventPairs:
		return checkEventPairs(rule, ctx, rule.Check.StartPattern, rule.Check.FinishPattern)
	case CheckEventFieldPresent:
		return checkEventFieldPresent(rule, ctx, rule.Check.FieldPaths())
	case CheckEventTypeExists:
		return checkEventTypeExists(rule, ctx, rule.Check.Pattern)
	case CheckManifestField:
		return checkManifestField(rule, ctx, rule.Check.Path, rule.Check.Required)
	default:
		return Result{Passed: false, Finding: newFinding(rule, ctx, fmt.Sprintf("unknown check type %q", rule.Check.Type), nil, rule.Severity)}
	}
}

func checkEventCount(rule Rule, ctx *Context, min int) Result {
	count := len(ctx.Events)
	if count >= min {
		return Result{Passed: true}
	}
	msg := fmt.Sprintf("Bundle contains %d events (minimum: %d)", count, min)
	return Result{Passed: false, Finding: newFinding(rule, ctx, msg, nil, rule.Severity)}
}

func checkEventPairs(rule Rule, ctx *Context, startPattern, finishPattern string) Result {
	startMatcher, err := glob.Compile(startPattern)
	if err != nil {
		return Result{Passed: false, Finding: newFinding(rule, ctx, fmt.Sprintf("Invalid start pattern: %s", startPattern), nil, rule.Severity)}
	}
	finishMatcher, err := glob.Compile(finishPattern)
	if err != nil {
		return Result{Passed: false, Finding: newFinding(rule, ctx, fmt.Sprintf("Invalid finish pattern: %s", finishPattern), nil, rule.Severity)}
	}

	hasStart, hasFinish := false, false
	for _, e := range ctx.Events {
		if !hasStart && startMatcher.Match(e.Type) {
			hasStart = true
		}
		if !hasFinish && finishMatcher.Match(e.Type) {
			hasFinish = true
		}
	}

	if hasStart && hasFinish {
		return Result{Passed: true}
	}

	var msg string
	switch {
	case !hasStart && !hasFinish:
		msg = fmt.Sprintf("Missing both start (%s) and finish (%s) events", startPattern, finishPattern)
	case !hasStart:
		msg = fmt.Sprintf("Missing start event matching '%s'", startPattern)
	default:
		msg = fmt.Sprintf("Missing finish event matching '%s'", finishPattern)
	}
	return Result{Passed: false, Finding: newFinding(rule, ctx, msg, nil, rule.Severity)}
}

func checkEventFieldPresent(rule Rule, ctx *Context, paths []string) Result {
	for _, e := range ctx.Events {
		for _, path := range paths {
			if eventHasField(e, path) {
				return Result{Passed: true}
			}
		}
	}
	msg := fmt.Sprintf("No event contains any of the required fields: %s", joinComma(paths))
	return Result{Passed: false, Finding: newFinding(rule, ctx, msg, nil, rule.Severity)}
}

func checkEventTypeExists(rule Rule, ctx *Context, pattern string) Result {
	matcher, err := glob.Compile(pattern)
	if err != nil {
		return Result{Passed: false, Finding: newFinding(rule, ctx, fmt.Sprintf("Invalid pattern: %s", pattern), nil, rule.Severity)}
	}
	for _, e := range ctx.Events {
		if matcher.Match(e.Type) {
			return Result{Passed: true}
		}
	}
	msg := fmt.Sprintf("No event found matching type pattern '%s'", pattern)
	return Result{Passed: false, Finding: newFinding(rule, ctx, msg, nil, rule.Severity)}
}

func checkManifestField(rule Rule, ctx *Context, path string, required bool) Result {
	manifestJSON, err := toJSONDocument(ctx.Manifest)
	if err != nil {
		return Result{Passed: false, Finding: newFinding(rule, ctx, "Failed to serialize manifest", nil, rule.Severity)}
	}

	if pointerHasValue(manifestJSON, path) {
		return Result{Passed: true}
	}

	severity := rule.Severity
	if !required {
		severity = SeverityWarning
	}
	msg := fmt.Sprintf("Manifest missing field: %s", path)
	return Result{Passed: !required, Finding: newFinding(rule, ctx, msg, nil, severity)}
}

// eventHasField reports whether event has a value at the RFC-6901 JSON
// Pointer path, evaluated over the event's own JSON-marshaled shape.
func eventHasField(e bundle.Event, path string) bool {
	doc, err := toJSONDocument(e)
	if err != nil {
		return false
	}
	return pointerHasValue(doc, path)
}

func pointerHasValue(doc interface{}, path string) bool {
	if path == "" || path == "/" {
		return true
	}
	pointer, err := gojsonpointer.NewJsonPointer(path)
	if err != nil {
		return false
	}
	_, _, err = pointer.Get(doc)
	return err == nil
}

// toJSONDocument round-trips v through encoding/json so gojsonpointer walks
// a plain map[string]interface{}/[]interface{} tree rather than a typed
// struct.
func toJSONDocument(v interface{}) (interface{}, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var doc interface{}
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func joinComma(ss []string) string {
	out := ""
	for i, s := range ss {
		if i > 0 {
			out += ", "
		}
		out += s
	}
	return out
}

func newFinding(rule Rule, ctx *Context, message string, loc *EventLocation, severity Severity) *Finding {
	canonicalID := rule.CanonicalID(ctx.PackName, ctx.PackVersion)

	locationKey := "global"
	if loc != nil {
		locationKey = fmt.Sprintf("%d:%d", loc.Seq, loc.Line)
	}
	fingerprint := canon.DigestBytes([]byte(canonicalID + ":" + locationKey + ":" + ctx.PackDigest))

	startLine := 1
	artifactURI := ctx.BundlePath
	if loc != nil {
		startLine = loc.Line
		artifactURI = "events.ndjson"
	}
	primaryHash := canon.DigestBytes([]byte(fmt.Sprintf("%s:%s:%d:%s", canonicalID, artifactURI, startLine, ctx.PackDigest)))

	tags := []string{ctx.PackName, "pack:" + ctx.PackName, "pack_version:" + ctx.PackVersion, "short_id:" + rule.ID}
	if rule.ArticleRef != "" {
		tags = append(tags, "article_ref:"+rule.ArticleRef)
	}
	tags = append(tags, "primaryLocationLineHash:"+primaryHash)

	return &Finding{
		RuleID:                  canonicalID,
		Severity:                severity,
		Message:                 message,
		Location:                loc,
		Fingerprint:             fingerprint,
		PrimaryLocationLineHash: primaryHash,
		Tags:                    tags,
	}
}
