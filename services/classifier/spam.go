package classifier

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/veilmail/relay/dto"
	"github.com/veilmail/relay/internal/utils"
)

var solicitationKeywords = []string{
	"act now", "limited time", "exclusive deal", "winner", "congratulations",
	"you have been selected", "claim your", "risk free", "no obligation",
	"100% free", "money back", "earn extra cash", "work from home",
	"weight loss", "miracle", "viagra", "casino", "lottery", "prize",
	"unsubscribe here", "this is not spam",
}

var urgencyPhrases = []string{
	"urgent", "immediate action", "expires today", "last chance",
	"final notice", "act immediately", "don't miss out", "hurry",
	"time sensitive", "respond within",
}

// TLDs with a persistently bad sending reputation.
var spammyTLDs = []string{
	".top", ".xyz", ".click", ".loan", ".work", ".gq", ".tk", ".ml", ".cf",
}

var linkPattern = regexp.MustCompile(`https?://[^\s"'<>]+`)

func (s *classifierService) scoreSpam(event *dto.MailEvent) float64 {
	score := 0.0

	content := strings.ToLower(event.Subject + " " + event.BodyText + " " + event.BodyHTML)

	for _, keyword := range solicitationKeywords {
		if strings.Contains(content, keyword) {
			score += 1.5
		}
	}

	for _, phrase := range urgencyPhrases {
		if strings.Contains(content, phrase) {
			score += 1.0
		}
	}

	if capsRatio(event.Subject) > 0.5 {
		score += 2.0
	}

	if strings.Count(event.Subject+event.BodyText, "!") > 5 {
		score += 1.5
	}

	if len(extractLinks(event)) > 10 {
		score += 2.0
	}

	senderDomain := utils.ExtractDomainFromEmail(event.From)
	for _, tld := range spammyTLDs {
		if strings.HasSuffix(senderDomain, tld) {
			score += 2.5
			break
		}
	}

	score += s.scoreHeaders(event, senderDomain)

	return score
}

func (s *classifierService) scoreHeaders(event *dto.MailEvent, senderDomain string) float64 {
	score := 0.0

	returnPath := utils.ExtractAddress(event.Header("Return-Path"))
	if returnPath != "" && senderDomain != "" {
		if utils.ExtractDomainFromEmail(returnPath) != senderDomain {
			score += 2.0
		}
	}

	if strings.EqualFold(event.Header("X-Spam-Flag"), "YES") {
		score += 3.0
	}

	return score
}

// capsRatio is the share of upper-case letters among all letters. Short
// subjects are ignored so "RE: FYI" does not trip the check.
func capsRatio(text string) float64 {
	var letters, upper int
	for _, r := range text {
		if unicode.IsLetter(r) {
			letters++
			if unicode.IsUpper(r) {
				upper++
			}
		}
	}
	if letters < 10 {
		return 0
	}
	return float64(upper) / float64(letters)
}

func extractLinks(event *dto.MailEvent) []string {
	return linkPattern.FindAllString(event.BodyText+" "+event.BodyHTML, -1)
}
