package enum

type AliasStatus string

const (
	AliasActive    AliasStatus = "active"
	AliasLeaked    AliasStatus = "leaked"
	AliasKilled    AliasStatus = "killed"
	AliasSuspended AliasStatus = "suspended"
)

func (t AliasStatus) String() string {
	return string(t)
}

// IsTerminal reports whether the status permits no further transitions.
// No status ever returns to active.
func (t AliasStatus) IsTerminal() bool {
	return t != AliasActive
}
