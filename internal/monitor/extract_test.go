package monitor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractRSS_FiltersByKeywordAndGradesSeverity(t *testing.T) {
	body := `
	<rss><channel>
	<item><title>New Emergency Rule on Reporting</title><description>desc one</description><pubDate>Mon, 02 Jan 2006 15:04:05 MST</pubDate></item>
	<item><title>Commission Release 2026-04</title><description>desc two</description></item>
	<item><title>Unrelated announcement</title><description>skip me</description></item>
	</channel></rss>`

	items := extractRSS(body)
	require.Len(t, items, 2)
	assert.Equal(t, "New Emergency Rule on Reporting", items[0].Title)
	assert.Equal(t, "CRITICAL", items[0].Severity)
	assert.Equal(t, "HIGH", items[1].Severity)
}

func TestExtractRSS_FallsBackToNilDateOnParseFailure(t *testing.T) {
	body := `<item><title>Commission Statement</title><pubDate>not-a-date</pubDate></item>`
	items := extractRSS(body)
	require.Len(t, items, 1)
	assert.Nil(t, items[0].PublishedAt)
}

func TestExtractHTML_NormalizesRelativeLinks(t *testing.T) {
	body := `<a href="/news/guidance-update">New Guidance Published</a>`
	items := extractHTML(body, "https://fca.example.com")
	require.Len(t, items, 1)
	assert.Equal(t, "MEDIUM", items[0].Severity)
	assert.Equal(t, "https://fca.example.com/news/guidance-update", items[0].Body)
}

func TestExtractHTML_KeepsAbsoluteLinks(t *testing.T) {
	body := `<a href="https://fca.example.com/news/policy-x">Policy announcement</a>`
	items := extractHTML(body, "https://fca.example.com")
	require.Len(t, items, 1)
	assert.Equal(t, "https://fca.example.com/news/policy-x", items[0].Body)
}

func TestExtractHTML_SkipsNonMatchingAnchors(t *testing.T) {
	body := `<a href="/news/unrelated">Some other link</a>`
	items := extractHTML(body, "https://fca.example.com")
	assert.Empty(t, items)
}

func TestExtractAPI_EmptyBodyYieldsNoCandidates(t *testing.T) {
	assert.Empty(t, extractAPI("   "))
}

func TestExtractAPI_NonEmptyBodyYieldsOneCandidate(t *testing.T) {
	items := extractAPI(`{"rule":"update"}`)
	require.Len(t, items, 1)
	assert.Equal(t, "MEDIUM", items[0].Severity)
}

func TestContentHash_DeterministicPerSourceAndTitle(t *testing.T) {
	a := contentHash("src-1", "Commission Release")
	b := contentHash("src-1", "Commission Release")
	c := contentHash("src-2", "Commission Release")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}
