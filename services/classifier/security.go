package classifier

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/customeros/mailsherpa/mailvalidate"

	"github.com/veilmail/relay/dto"
	"github.com/veilmail/relay/internal/enum"
	"github.com/veilmail/relay/internal/models"
	"github.com/veilmail/relay/internal/utils"
)

var phishingPatterns = []string{
	"verify your account", "confirm your identity", "account has been suspended",
	"unusual activity", "your account will be closed", "update your payment",
	"click here to verify", "confirm your password", "security alert",
	"unauthorized login attempt",
}

var urlShorteners = []string{
	"bit.ly", "tinyurl.com", "goo.gl", "t.co", "ow.ly", "is.gd", "buff.ly",
}

// Brands commonly impersonated in phishing mail. Matching is broad on
// purpose: a display name that claims one of these must come from the
// brand's own domain.
var impersonatedBrands = []string{
	"paypal", "apple", "amazon", "microsoft", "google", "netflix",
	"facebook", "instagram", "whatsapp", "chase", "wells fargo", "bank of america",
}

var dangerousExtensions = []string{
	".exe", ".scr", ".bat", ".cmd", ".vbs", ".js", ".jar", ".pif", ".msi",
}

var macroPhrases = []string{
	"enable macros", "enable content", "enable editing to view",
}

var credentialPhrases = []string{
	"enter your password", "provide your password", "confirm your ssn",
	"social security number", "credit card number", "card verification",
	"bank account number", "wire transfer", "routing number",
}

func (s *classifierService) scanThreats(event *dto.MailEvent) []models.Threat {
	var threats []models.Threat

	content := strings.ToLower(event.Subject + " " + event.BodyText + " " + event.BodyHTML)

	for _, pattern := range phishingPatterns {
		if strings.Contains(content, pattern) {
			threats = append(threats, models.Threat{
				Type:     enum.ThreatPhishingLanguage,
				Severity: enum.SeverityMedium,
				Evidence: pattern,
			})
		}
	}

	threats = append(threats, s.scanLinks(event)...)

	if threat := s.checkSenderSpoofing(event); threat != nil {
		threats = append(threats, *threat)
	}

	threats = append(threats, s.scanMalwareIndicators(event, content)...)
	threats = append(threats, s.scanDataTheftIndicators(event, content)...)

	return threats
}

// scanLinks inspects every hyperlink. A URL that fails to parse is itself
// a finding, never a classification failure.
func (s *classifierService) scanLinks(event *dto.MailEvent) []models.Threat {
	var threats []models.Threat

	for _, link := range extractLinks(event) {
		parsed, err := url.Parse(link)
		if err != nil || parsed.Hostname() == "" {
			threats = append(threats, models.Threat{
				Type:     enum.ThreatSuspiciousLink,
				Severity: enum.SeverityMedium,
				Evidence: fmt.Sprintf("malformed url: %s", truncate(link, 120)),
			})
			continue
		}

		host := strings.ToLower(parsed.Hostname())

		if net.ParseIP(host) != nil {
			threats = append(threats, models.Threat{
				Type:     enum.ThreatSuspiciousLink,
				Severity: enum.SeverityHigh,
				Evidence: fmt.Sprintf("ip-literal host: %s", host),
			})
			continue
		}

		if hasHomographCharacters(host) {
			threats = append(threats, models.Threat{
				Type:     enum.ThreatSuspiciousLink,
				Severity: enum.SeverityHigh,
				Evidence: fmt.Sprintf("look-alike characters in host: %s", host),
			})
			continue
		}

		if isShortener(host) {
			threats = append(threats, models.Threat{
				Type:     enum.ThreatSuspiciousLink,
				Severity: enum.SeverityMedium,
				Evidence: fmt.Sprintf("url shortener: %s", host),
			})
			continue
		}

		if brand, ok := brandImpersonatingSubdomain(host); ok {
			threats = append(threats, models.Threat{
				Type:     enum.ThreatSuspiciousLink,
				Severity: enum.SeverityHigh,
				Evidence: fmt.Sprintf("host %s impersonates %s", host, brand),
			})
		}
	}

	return threats
}

func (s *classifierService) checkSenderSpoofing(event *dto.MailEvent) *models.Threat {
	senderDomain := utils.ExtractDomainFromEmail(event.From)

	displayName := strings.ToLower(event.FromName)
	for _, brand := range impersonatedBrands {
		if strings.Contains(displayName, brand) {
			brandToken := strings.ReplaceAll(brand, " ", "")
			if !strings.Contains(senderDomain, brandToken) {
				return &models.Threat{
					Type:     enum.ThreatSenderSpoofing,
					Severity: enum.SeverityHigh,
					Evidence: fmt.Sprintf("display name claims %q but sender domain is %s", brand, senderDomain),
				}
			}
		}
	}

	validation := mailvalidate.ValidateEmailSyntax(event.From)
	if validation.IsValid && hasHomographCharacters(validation.Domain) {
		return &models.Threat{
			Type:     enum.ThreatSenderSpoofing,
			Severity: enum.SeverityHigh,
			Evidence: fmt.Sprintf("look-alike characters in sender domain: %s", validation.Domain),
		}
	}

	return nil
}

func (s *classifierService) scanMalwareIndicators(event *dto.MailEvent, content string) []models.Threat {
	var threats []models.Threat

	for _, ext := range dangerousExtensions {
		found := strings.Contains(content, ext)
		for _, attachment := range event.Attachments {
			if strings.HasSuffix(strings.ToLower(attachment.Name), ext) {
				found = true
			}
		}
		if found {
			threats = append(threats, models.Threat{
				Type:     enum.ThreatMalware,
				Severity: enum.SeverityHigh,
				Evidence: fmt.Sprintf("dangerous attachment extension: %s", ext),
			})
		}
	}

	for _, phrase := range macroPhrases {
		if strings.Contains(content, phrase) {
			threats = append(threats, models.Threat{
				Type:     enum.ThreatMalware,
				Severity: enum.SeverityCritical,
				Evidence: phrase,
			})
		}
	}

	return threats
}

func (s *classifierService) scanDataTheftIndicators(event *dto.MailEvent, content string) []models.Threat {
	var threats []models.Threat

	for _, phrase := range credentialPhrases {
		if strings.Contains(content, phrase) {
			threats = append(threats, models.Threat{
				Type:     enum.ThreatDataTheft,
				Severity: enum.SeverityHigh,
				Evidence: phrase,
			})
		}
	}

	if strings.Contains(strings.ToLower(event.BodyHTML), `type="password"`) ||
		strings.Contains(strings.ToLower(event.BodyHTML), `type='password'`) {
		threats = append(threats, models.Threat{
			Type:     enum.ThreatDataTheft,
			Severity: enum.SeverityCritical,
			Evidence: "embedded password form field",
		})
	}

	return threats
}

// hasHomographCharacters flags hosts mixing scripts or using characters
// outside the plain DNS set, the usual trick in look-alike domains.
func hasHomographCharacters(host string) bool {
	for _, r := range host {
		if r > 127 {
			return true
		}
	}
	return false
}

func isShortener(host string) bool {
	for _, shortener := range urlShorteners {
		if host == shortener {
			return true
		}
	}
	return false
}

// brandImpersonatingSubdomain catches hosts like paypal.com.evil.example
// where the brand's domain appears as a non-registrable label.
func brandImpersonatingSubdomain(host string) (string, bool) {
	for _, brand := range impersonatedBrands {
		brandToken := strings.ReplaceAll(brand, " ", "")
		brandDomain := brandToken + ".com"
		if host == brandDomain || strings.HasSuffix(host, "."+brandDomain) {
			continue
		}
		if strings.Contains(host, brandDomain+".") {
			return brand, true
		}
	}
	return "", false
}

func truncate(text string, max int) string {
	if len(text) <= max {
		return text
	}
	return text[:max]
}
