package crawler

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentExtractor_Extract(t *testing.T) {
	body := []byte(`<!DOCTYPE html>
<html>
<head><title>Acme</title><style>.x { color: red }</style><script>var secret = 1;</script></head>
<body>
  <header>Site header</header>
  <nav><a href="/docs">Docs</a> <a href="https://other.example.org/">Other</a></nav>
  <main>
    <h1>Welcome</h1>
    <p>Hello   <b>world</b>,
       and
       goodbye.</p>
    <!-- a comment -->
    <a href="pricing#plans">Pricing</a>
    <a href="mailto:sales@acme.test">Mail</a>
    <a href="javascript:void(0)">JS</a>
  </main>
  <footer>Copyright</footer>
</body>
</html>`)
	pageURL, _ := url.Parse("https://acme.test/about/")

	text, links, err := NewContentExtractor(0).Extract(body, pageURL)
	require.NoError(t, err)

	assert.Equal(t, "Acme Welcome Hello world , and goodbye. Pricing Mail JS", text)
	assert.NotContains(t, text, "secret")
	assert.NotContains(t, text, "Site header")
	assert.NotContains(t, text, "Copyright")
	assert.NotContains(t, text, "a comment")

	var got []string
	for _, l := range links {
		got = append(got, l.String())
	}
	assert.Equal(t, []string{
		"https://acme.test/docs",
		"https://other.example.org/",
		"https://acme.test/about/pricing",
	}, got)
}

func TestContentExtractor_Truncate(t *testing.T) {
	tests := []struct {
		name  string
		max   int
		input string
		want  string
	}{
		{"unlimited", 0, "héllo wörld", "héllo wörld"},
		{"shorter than limit", 50, "héllo wörld", "héllo wörld"},
		{"rune aware", 4, "héllo wörld", "héll"},
		{"trailing space trimmed", 6, "héllo wörld", "héllo"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, NewContentExtractor(tc.max).truncate(tc.input))
		})
	}
}

func TestVisitTracker(t *testing.T) {
	vt := NewVisitTracker(2)

	assert.True(t, vt.Visit("a"))
	assert.False(t, vt.Visit("a"))
	assert.True(t, vt.IsVisited("a"))
	assert.False(t, vt.Exhausted())
	assert.True(t, vt.Visit("b"))
	assert.True(t, vt.Exhausted())
	assert.False(t, vt.Visit("c"))
	assert.Equal(t, 2, vt.Count())
}

func TestParseSeed_StripsFragment(t *testing.T) {
	u, err := ParseSeed("HTTPS://Example.com/docs#intro")
	require.NoError(t, err)
	assert.Equal(t, "https://Example.com/docs", u.String())
}
