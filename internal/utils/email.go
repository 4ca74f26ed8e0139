package utils

import (
	"regexp"
	"strings"
)

func NormalizeSubject(subject string) string {
	// Remove common reply/forward prefixes, case insensitive
	re := regexp.MustCompile(`(?i)^(re|fwd|fw|aw|sv|vs){0,1}(\s*:|\s*\[\d+\]\s*:)*\s*`)
	normalized := re.ReplaceAllString(subject, "")
	return strings.TrimSpace(normalized)
}

func NormalizeMessageID(messageID string) string {
	messageID = strings.TrimSpace(messageID)
	messageID = strings.TrimPrefix(messageID, "<")
	messageID = strings.TrimSuffix(messageID, ">")
	return messageID
}

func ExtractDomainFromEmail(email string) string {
	if email == "" {
		return ""
	}

	email = strings.TrimSpace(email)

	// Handle potential angle brackets (e.g., "Name <email@domain.com>")
	if strings.Contains(email, "<") && strings.Contains(email, ">") {
		startIdx := strings.LastIndex(email, "<") + 1
		endIdx := strings.LastIndex(email, ">")
		if startIdx > 0 && endIdx > startIdx {
			email = email[startIdx:endIdx]
		}
	}

	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return ""
	}

	return strings.ToLower(strings.TrimSpace(parts[1]))
}

func ExtractAddress(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.Contains(raw, "<") && strings.Contains(raw, ">") {
		startIdx := strings.LastIndex(raw, "<") + 1
		endIdx := strings.LastIndex(raw, ">")
		if startIdx > 0 && endIdx > startIdx {
			return strings.ToLower(strings.TrimSpace(raw[startIdx:endIdx]))
		}
	}
	return strings.ToLower(raw)
}
