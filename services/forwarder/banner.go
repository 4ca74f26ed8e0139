package forwarder

import (
	"fmt"

	"github.com/jaytaylor/html2text"
)

const htmlBannerTemplate = `<div style="background-color:#f4f4f5;border-bottom:1px solid #d4d4d8;padding:10px 16px;font-family:sans-serif;font-size:12px;color:#52525b;">This message was sent to your alias <strong>%s</strong> and forwarded by VeilMail. The sender does not know your real address.</div>`

const textBannerTemplate = "[Forwarded by VeilMail. Original recipient: %s. The sender does not know your real address.]\n\n"

// PrependBanner injects the disclosure banner into both body variants.
// When only an HTML body exists, a plain-text fallback is derived so the
// text part still carries the disclosure.
func PrependBanner(aliasAddress, bodyText, bodyHTML string) (string, string) {
	textBanner := fmt.Sprintf(textBannerTemplate, aliasAddress)

	if bodyText == "" && bodyHTML != "" {
		if converted, err := html2text.FromString(bodyHTML, html2text.Options{TextOnly: true}); err == nil {
			bodyText = converted
		}
	}
	if bodyText != "" {
		bodyText = textBanner + bodyText
	}

	if bodyHTML != "" {
		bodyHTML = fmt.Sprintf(htmlBannerTemplate, aliasAddress) + bodyHTML
	}

	return bodyText, bodyHTML
}
