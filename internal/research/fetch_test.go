package research

import (
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const rssSample = `<?xml version="1.0"?>
<rss version="2.0">
  <channel>
    <title>Compliance Watch</title>
    <item>
      <title>New AI Act guidance published</title>
      <description>The commission published implementation guidance.</description>
      <link>https://example.com/ai-act-guidance</link>
    </item>
    <item>
      <title>Enforcement roundup</title>
      <description>Three fines issued this quarter.</description>
      <link>https://example.com/enforcement</link>
    </item>
  </channel>
</rss>`

const atomSample = `<?xml version="1.0"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Regulatory Updates</title>
  <entry>
    <title>Consultation opens</title>
    <summary>A public consultation on model transparency opened today.</summary>
    <link href="https://example.com/consultation"/>
  </entry>
</feed>`

func TestParseFeedRSS(t *testing.T) {
	items, err := parseFeed([]byte(rssSample))
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "New AI Act guidance published", items[0].Title)
	assert.Equal(t, "https://example.com/ai-act-guidance", items[0].Link)
	assert.True(t, items[0].Structured)
}

func TestParseFeedAtom(t *testing.T) {
	items, err := parseFeed([]byte(atomSample))
	require.NoError(t, err)
	require.Len(t, items, 1)

	assert.Equal(t, "Consultation opens", items[0].Title)
	assert.Equal(t, "https://example.com/consultation", items[0].Link)
	assert.Contains(t, items[0].Content, "public consultation")
	assert.True(t, items[0].Structured)
}

func TestParseFeedMalformed(t *testing.T) {
	_, err := parseFeed([]byte("<html><body>not a feed</body></html>"))
	assert.Error(t, err)
}

func TestParsePageArticles(t *testing.T) {
	page := `<html><body>
		<article><h2>GDPR fine upheld</h2><p>The appeals court upheld the fine.</p></article>
		<article><h2>New DPO guidance</h2><p>The regulator issued new guidance.</p></article>
	</body></html>`

	items, err := parsePage([]byte(page), "https://example.com/news")
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "GDPR fine upheld", items[0].Title)
	assert.Contains(t, items[0].Content, "appeals court")
	assert.Equal(t, "https://example.com/news", items[0].Link)
	assert.False(t, items[0].Structured)
}

func TestParsePageWithoutArticles(t *testing.T) {
	page := `<html><head><title>Annual Report</title></head>
		<body><main><p>Findings from the annual compliance review.</p></main></body></html>`

	items, err := parsePage([]byte(page), "https://example.com/report")
	require.NoError(t, err)
	require.Len(t, items, 1)

	assert.Equal(t, "Annual Report", items[0].Title)
	assert.Contains(t, items[0].Content, "compliance review")
}

func TestParsePageEmpty(t *testing.T) {
	_, err := parsePage([]byte("<html><body></body></html>"), "https://example.com")
	assert.Error(t, err)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 10))
	assert.Equal(t, "ab", truncate("abcdef", 2))
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	// "é" is two bytes; a byte-4 cut would land mid-rune.
	s := "café drömmar"
	got := truncate(s, 4)
	assert.Equal(t, "caf", got)
	assert.True(t, utf8.ValidString(got))

	// A cut on a rune boundary is untouched.
	assert.Equal(t, "café", truncate(s, 5))
}
