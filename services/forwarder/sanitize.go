package forwarder

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Domains known to serve tracking pixels and open beacons.
var trackingDomainDenylist = []string{
	"track.customer.io",
	"click.mailchimp.com",
	"open.sendgrid.net",
	"email.mailgun.net",
	"links.iterable.com",
	"mandrillapp.com",
	"list-manage.com",
	"pixel.app.returnpath.net",
	"tracking.mailerlite.com",
}

var imgTagPattern = regexp.MustCompile(`(?is)<img\b[^>]*/?>`)

// SanitizeHTML removes tracking images: 1x1 pixels and any image served
// from a denylisted tracking domain. Only the matched <img> tags are
// touched; the surrounding markup is passed through byte for byte.
func SanitizeHTML(html string) string {
	if html == "" {
		return html
	}

	return imgTagPattern.ReplaceAllStringFunc(html, func(tag string) string {
		if isTrackingImage(tag) {
			return ""
		}
		return tag
	})
}

// isTrackingImage parses one <img> fragment to inspect its attributes.
// An unparseable fragment is left alone.
func isTrackingImage(tag string) bool {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(tag))
	if err != nil {
		return false
	}

	img := doc.Find("img").First()
	if img.Length() == 0 {
		return false
	}

	width := strings.TrimSpace(img.AttrOr("width", ""))
	height := strings.TrimSpace(img.AttrOr("height", ""))
	if isOnePixel(width) && isOnePixel(height) {
		return true
	}

	style := strings.ToLower(img.AttrOr("style", ""))
	if strings.Contains(style, "width:1px") && strings.Contains(style, "height:1px") {
		return true
	}

	src := strings.ToLower(img.AttrOr("src", ""))
	for _, domain := range trackingDomainDenylist {
		if strings.Contains(src, domain) {
			return true
		}
	}

	return false
}

func isOnePixel(value string) bool {
	return value == "1" || value == "1px"
}
