package globpat

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustCompile(t *testing.T, pattern string) *Pattern {
	t.Helper()
	p, err := New(pattern)
	require.NoError(t, err)
	return p
}

func TestLiteralMatch(t *testing.T) {
	g := mustCompile(t, "exact_match")
	assert.True(t, g.Matches("exact_match"))
	assert.False(t, g.Matches("exact_match_extra"))
	assert.False(t, g.Matches("prefix_exact_match"))
	assert.False(t, g.Matches("EXACT_MATCH"))
}

func TestSingleGlobBasic(t *testing.T) {
	g := mustCompile(t, "search_*")
	assert.True(t, g.Matches("search_products"))
	assert.True(t, g.Matches("search_users"))
	assert.True(t, g.Matches("search_"))
	assert.False(t, g.Matches("search"))
	assert.True(t, g.Matches("search_foo_bar"))
}

func TestSingleGlobStopsAtDot(t *testing.T) {
	g := mustCompile(t, "search_*")
	assert.False(t, g.Matches("search_.dotted"))
	assert.False(t, g.Matches("search_products.json"))

	g = mustCompile(t, "fs.read_*")
	assert.True(t, g.Matches("fs.read_file"))
	assert.True(t, g.Matches("fs.read_dir"))
	assert.False(t, g.Matches("fs.read.file"))
	assert.False(t, g.Matches("fs.read_nested.path"))
}

func TestDoubleGlobMatchesDots(t *testing.T) {
	g := mustCompile(t, "fs.**")
	assert.True(t, g.Matches("fs.read_file"))
	assert.True(t, g.Matches("fs.write.nested.path"))
	assert.True(t, g.Matches("fs."))
	assert.False(t, g.Matches("fs"))

	g = mustCompile(t, "**")
	assert.True(t, g.Matches(""))
	assert.True(t, g.Matches("anything"))
	assert.True(t, g.Matches("any.thing.at.all"))
}

func TestWildcardOnly(t *testing.T) {
	g := mustCompile(t, "*")
	assert.True(t, g.Matches("search"))
	assert.True(t, g.Matches("list"))
	assert.True(t, g.Matches(""))
	assert.False(t, g.Matches("namespaced.tool"))
}

func TestEscapeAsterisk(t *testing.T) {
	g := mustCompile(t, `file\*name`)
	assert.True(t, g.Matches("file*name"))
	assert.False(t, g.Matches("filename"))
	assert.False(t, g.Matches("file_name"))
}

func TestEscapeBackslash(t *testing.T) {
	g := mustCompile(t, `path\\to`)
	assert.True(t, g.Matches(`path\to`))
	assert.False(t, g.Matches("pathto"))
}

func TestTrailingBackslashError(t *testing.T) {
	_, err := New(`test\`)
	require.Error(t, err)
}

func TestComplexPatterns(t *testing.T) {
	g := mustCompile(t, "*_*")
	assert.True(t, g.Matches("search_products"))
	assert.True(t, g.Matches("a_b"))
	assert.False(t, g.Matches("search"))

	g = mustCompile(t, "get_*_by_id")
	assert.True(t, g.Matches("get_user_by_id"))
	assert.True(t, g.Matches("get_product_by_id"))
	assert.False(t, g.Matches("get_user_by_name"))
}

func TestMatchesAny(t *testing.T) {
	patterns := []string{"search_*", "list_*", "get_**"}
	ok, err := MatchesAny("search_products", patterns)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = MatchesAny("list_items", patterns)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = MatchesAny("get_user.by_id", patterns)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = MatchesAny("delete_item", patterns)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGlobSet(t *testing.T) {
	set, err := NewSet([]string{"purchase_*", "transfer_*", "order_*"})
	require.NoError(t, err)
	assert.True(t, set.Matches("purchase_item"))
	assert.True(t, set.Matches("transfer_funds"))
	assert.True(t, set.Matches("order_product"))
	assert.False(t, set.Matches("search_products"))
	assert.False(t, set.IsEmpty())
}

func TestCaseSensitive(t *testing.T) {
	g := mustCompile(t, "Search_*")
	assert.True(t, g.Matches("Search_Products"))
	assert.False(t, g.Matches("search_products"))
	assert.False(t, g.Matches("SEARCH_PRODUCTS"))
}

func TestAnchoringNoPrefixMatch(t *testing.T) {
	g := mustCompile(t, "read_*")
	assert.True(t, g.Matches("read_file"))
	assert.True(t, g.Matches("read_dir"))
	assert.False(t, g.Matches("xread_file"))
	assert.False(t, g.Matches("prefix_read_file"))
}

func TestAnchoringNoSuffixMatch(t *testing.T) {
	g := mustCompile(t, "*_file")
	assert.True(t, g.Matches("read_file"))
	assert.True(t, g.Matches("write_file"))
	assert.False(t, g.Matches("read_file_extra"))
	assert.False(t, g.Matches("read_file.bak"))
}

func TestAnchoringExactMatchRequired(t *testing.T) {
	g := mustCompile(t, "search")
	assert.True(t, g.Matches("search"))
	assert.False(t, g.Matches("search_products"))
	assert.False(t, g.Matches("my_search"))
	assert.False(t, g.Matches("searching"))
}

func TestLiteralDoubleStar(t *testing.T) {
	g := mustCompile(t, `fs.\*\*`)
	assert.True(t, g.Matches("fs.**"))
	assert.False(t, g.Matches("fs.read"))
	assert.False(t, g.Matches("fs.anything.here"))
}

func TestLiteralBackslashStar(t *testing.T) {
	g := mustCompile(t, `fs.\\*`)
	assert.True(t, g.Matches(`fs.\file`))
	assert.True(t, g.Matches(`fs.\dir`))
	assert.False(t, g.Matches("fs.file"))
}

func TestPatternLengthLimit(t *testing.T) {
	_, err := New(strings.Repeat("a", MaxPatternLength+1))
	require.Error(t, err)
}

func TestSegmentCountLimit(t *testing.T) {
	_, err := New(strings.Repeat("a*", MaxSegments+1))
	require.Error(t, err)
}

func TestToolNameLengthLimitFailsClosed(t *testing.T) {
	g := mustCompile(t, "**")
	assert.False(t, g.Matches(strings.Repeat("a", MaxToolNameLength+1)))
}
