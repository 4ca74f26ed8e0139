package enum

type ThreatType string

const (
	ThreatPhishingLanguage ThreatType = "phishing_language"
	ThreatSuspiciousLink   ThreatType = "suspicious_link"
	ThreatSenderSpoofing   ThreatType = "sender_spoofing"
	ThreatMalware          ThreatType = "malware"
	ThreatDataTheft        ThreatType = "data_theft"
)

func (t ThreatType) String() string {
	return string(t)
}

// Deduction is the number of points one finding of this type subtracts
// from the security score.
func (t ThreatType) Deduction() int {
	switch t {
	case ThreatPhishingLanguage:
		return 15
	case ThreatSuspiciousLink:
		return 20
	case ThreatSenderSpoofing:
		return 25
	case ThreatMalware:
		return 30
	case ThreatDataTheft:
		return 20
	default:
		return 0
	}
}

type ThreatSeverity string

const (
	SeverityLow      ThreatSeverity = "low"
	SeverityMedium   ThreatSeverity = "medium"
	SeverityHigh     ThreatSeverity = "high"
	SeverityCritical ThreatSeverity = "critical"
)

func (t ThreatSeverity) String() string {
	return string(t)
}

type AuditAction string

const (
	AuditAliasCreated    AuditAction = "ALIAS_CREATED"
	AuditAliasKilled     AuditAction = "ALIAS_KILLED"
	AuditAliasAutoKilled AuditAction = "ALIAS_AUTO_KILLED"
	AuditAliasLeaked     AuditAction = "ALIAS_LEAKED"
	AuditAliasSuspended  AuditAction = "ALIAS_SUSPENDED"
	AuditAliasReplaced   AuditAction = "ALIAS_REPLACED"
	AuditBreachAdvisory  AuditAction = "BREACH_ADVISORY"
	AuditEmailClassified AuditAction = "EMAIL_CLASSIFIED"
	AuditEmailRejected   AuditAction = "EMAIL_REJECTED"
)

func (t AuditAction) String() string {
	return string(t)
}
