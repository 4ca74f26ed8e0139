package forwarder

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeHTML_RemovesOnePixelTrackingImage(t *testing.T) {
	// Arrange
	html := `<html><body><p>Hello there,</p><img src="https://evil.example/t.gif" width="1" height="1"><p>Regards</p></body></html>`

	// Act
	sanitized := SanitizeHTML(html)

	// Assert: pixel gone, everything else byte-identical
	assert.Equal(t, `<html><body><p>Hello there,</p><p>Regards</p></body></html>`, sanitized)
}

func TestSanitizeHTML_LeavesOtherMarkupUntouched(t *testing.T) {
	// Arrange: markup a serializer would normalize (attribute order,
	// unquoted values, self-closing tags)
	html := `<DIV class=outer><p   data-x='1'>text &amp; more</p><br/><img src="https://cdn.example/logo.png" width="200" height="60"></DIV>`

	// Act
	sanitized := SanitizeHTML(html)

	// Assert
	assert.Equal(t, html, sanitized)
}

func TestSanitizeHTML_RemovesDenylistedTrackingDomain(t *testing.T) {
	// Arrange
	html := `<p>offer</p><img src="https://click.mailchimp.com/open/abc123" width="50" height="50">`

	// Act
	sanitized := SanitizeHTML(html)

	// Assert
	assert.Equal(t, `<p>offer</p>`, sanitized)
	assert.NotContains(t, sanitized, "mailchimp")
}

func TestSanitizeHTML_StyleBasedPixel(t *testing.T) {
	html := `<img src="https://t.example/p.png" style="width:1px;height:1px;display:none">`
	assert.Equal(t, "", SanitizeHTML(html))
}

func TestSanitizeHTML_EmptyInput(t *testing.T) {
	assert.Equal(t, "", SanitizeHTML(""))
}

func TestSanitizeHTML_MultiplePixelsMixedWithContent(t *testing.T) {
	// Arrange
	html := `<img width="1" height="1" src="https://a.example/1.gif">` +
		`<h1>Receipt</h1>` +
		`<img width="1px" height="1px" src="https://b.example/2.gif">` +
		`<table><tr><td>Total: $10</td></tr></table>`

	// Act
	sanitized := SanitizeHTML(html)

	// Assert
	assert.Equal(t, `<h1>Receipt</h1><table><tr><td>Total: $10</td></tr></table>`, sanitized)
}

func TestPrependBanner_BothBodies(t *testing.T) {
	// Act
	text, html := PrependBanner("shop-x7k2@veilmail.io", "plain body", "<p>html body</p>")

	// Assert
	assert.True(t, strings.HasPrefix(text, "[Forwarded by VeilMail."))
	assert.Contains(t, text, "shop-x7k2@veilmail.io")
	assert.Contains(t, text, "plain body")
	assert.Contains(t, html, "shop-x7k2@veilmail.io")
	assert.True(t, strings.HasSuffix(html, "<p>html body</p>"))
}

func TestPrependBanner_HTMLOnlyDerivesTextFallback(t *testing.T) {
	// Act
	text, html := PrependBanner("a@veilmail.io", "", "<p>only html</p>")

	// Assert
	assert.Contains(t, text, "only html")
	assert.Contains(t, text, "[Forwarded by VeilMail.")
	assert.Contains(t, html, "only html")
}

func TestPrependBanner_TextOnly(t *testing.T) {
	text, html := PrependBanner("a@veilmail.io", "hello", "")
	assert.Contains(t, text, "hello")
	assert.Empty(t, html)
}
