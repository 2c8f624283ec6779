package crawler

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractPrefersMain(t *testing.T) {
	page, err := Extract(strings.NewReader(`<html><head><title> My   Page </title><style>p{}</style></head>
<body><header>Site header</header><main><h1>Heading</h1><p>Main
  text</p><noscript>enable js</noscript></main><article>Other</article></body></html>`))
	require.NoError(t, err)
	assert.Equal(t, "My Page", page.Title)
	assert.Equal(t, "Heading Main text", page.Body)
}

func TestExtractFallsBackToArticleThenBody(t *testing.T) {
	page, err := Extract(strings.NewReader(`<body><p>intro</p><article>Story <script>track()</script>text</article></body>`))
	require.NoError(t, err)
	assert.Equal(t, "Story text", page.Body)

	page, err = Extract(strings.NewReader(`<body><div>Just <b>body</b></div></body>`))
	require.NoError(t, err)
	assert.Equal(t, "Just body", page.Body)
	assert.Empty(t, page.Title)
}

func TestExtractLinks(t *testing.T) {
	page, err := Extract(strings.NewReader(`<body><a href=" /a ">a</a><a>none</a><a href="">empty</a><a href="http://x/b">b</a></body>`))
	require.NoError(t, err)
	assert.Equal(t, []string{"/a", "http://x/b"}, page.Links)
}
