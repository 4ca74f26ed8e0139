package lifecycle

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veilmail/relay/interfaces"
	"github.com/veilmail/relay/internal/enum"
	relayerrors "github.com/veilmail/relay/internal/errors"
	"github.com/veilmail/relay/internal/logger"
	"github.com/veilmail/relay/internal/models"
)

// fakeAliasRepo keeps aliases in memory and mirrors the conditional
// update semantics of the SQL layer.
type fakeAliasRepo struct {
	interfaces.AliasRepository
	mu      sync.Mutex
	aliases map[string]*models.Alias
	nextID  int
}

func newFakeAliasRepo() *fakeAliasRepo {
	return &fakeAliasRepo{aliases: map[string]*models.Alias{}}
}

func (r *fakeAliasRepo) Create(ctx context.Context, alias *models.Alias) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if alias.ID == "" {
		r.nextID++
		alias.ID = "alias_" + string(rune('a'+r.nextID))
	}
	for _, existing := range r.aliases {
		if existing.LocalPart == alias.LocalPart && existing.Domain == alias.Domain {
			return "", relayerrors.ErrAliasExists
		}
	}
	r.aliases[alias.ID] = alias
	return alias.ID, nil
}

func (r *fakeAliasRepo) GetByID(ctx context.Context, id string) (*models.Alias, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	alias, ok := r.aliases[id]
	if !ok {
		return nil, nil
	}
	copied := *alias
	return &copied, nil
}

func (r *fakeAliasRepo) IncrementSpamCount(ctx context.Context, id string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	alias := r.aliases[id]
	alias.SpamCount++
	return alias.SpamCount, nil
}

func (r *fakeAliasRepo) TransitionStatus(ctx context.Context, id string, from, to enum.AliasStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	alias, ok := r.aliases[id]
	if !ok || alias.Status != from {
		return false, nil
	}
	alias.Status = to
	return true, nil
}

func (r *fakeAliasRepo) LinkReplacement(ctx context.Context, oldID, newID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	alias := r.aliases[oldID]
	if alias.ReplacedByID != nil {
		return false, nil
	}
	alias.ReplacedByID = &newID
	return true, nil
}

type auditEntry struct {
	action     enum.AuditAction
	resourceID string
}

type fakeAudit struct {
	mu      sync.Mutex
	entries []auditEntry
}

func (a *fakeAudit) Record(ctx context.Context, userID string, action enum.AuditAction, resource, resourceID string, metadata models.JSONMap) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, auditEntry{action: action, resourceID: resourceID})
}

func (a *fakeAudit) count(action enum.AuditAction) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, e := range a.entries {
		if e.action == action {
			n++
		}
	}
	return n
}

type fakeRelayLog struct {
	mu     sync.Mutex
	events []enum.RelayEventType
}

func (l *fakeRelayLog) Record(ctx context.Context, aliasID string, eventType enum.RelayEventType, metadata models.JSONMap) (*models.RelayEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, eventType)
	return &models.RelayEvent{AliasID: aliasID, Type: eventType, Metadata: metadata}, nil
}

func (l *fakeRelayLog) count(eventType enum.RelayEventType) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.events {
		if e == eventType {
			n++
		}
	}
	return n
}

func testLogger() logger.Logger {
	appLogger := logger.NewAppLogger(&logger.Config{DevMode: true})
	appLogger.InitLogger()
	return appLogger
}

func newTestService() (interfaces.LifecycleService, *fakeAliasRepo, *fakeAudit, *fakeRelayLog) {
	repo := newFakeAliasRepo()
	audit := &fakeAudit{}
	relayLog := &fakeRelayLog{}
	svc := NewLifecycleService(repo, audit, relayLog, "veilmail.io", testLogger())
	return svc, repo, audit, relayLog
}

func seedAlias(t *testing.T, repo *fakeAliasRepo, status enum.AliasStatus) *models.Alias {
	t.Helper()
	alias := &models.Alias{
		UserID:    "user_1",
		LocalPart: "shop-x7k2",
		Domain:    "veilmail.io",
		Status:    status,
		Merchant:  "MegaShop",
		ForwardTo: "real@example.com",
	}
	_, err := repo.Create(context.Background(), alias)
	require.NoError(t, err)
	return alias
}

func TestCreateAlias(t *testing.T) {
	// Arrange
	svc, repo, audit, _ := newTestService()

	// Act
	alias, err := svc.CreateAlias(context.Background(), interfaces.CreateAliasInput{
		UserID:      "user_1",
		Merchant:    "Mega Shop",
		ForwardTo:   "real@example.com",
		EnableDecoy: true,
	})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, enum.AliasActive, alias.Status)
	assert.Equal(t, "veilmail.io", alias.Domain)
	assert.Contains(t, alias.LocalPart, "mega-shop-")
	assert.True(t, alias.DecoyEnabled())
	assert.Len(t, *alias.DecoyToken, 32)
	assert.Equal(t, 1, audit.count(enum.AuditAliasCreated))
	assert.NotNil(t, repo.aliases[alias.ID])
}

func TestCreateAlias_RequiresForwardTo(t *testing.T) {
	svc, _, _, _ := newTestService()
	_, err := svc.CreateAlias(context.Background(), interfaces.CreateAliasInput{UserID: "user_1"})
	assert.Error(t, err)
}

func TestKill(t *testing.T) {
	// Arrange
	svc, repo, audit, relayLog := newTestService()
	alias := seedAlias(t, repo, enum.AliasActive)

	// Act
	killed, err := svc.Kill(context.Background(), alias.ID, "user request")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, enum.AliasKilled, killed.Status)
	assert.Equal(t, 1, audit.count(enum.AuditAliasKilled))
	assert.Equal(t, 1, relayLog.count(enum.RelayEventBlocked))
}

func TestKill_TerminalAliasIsNoOp(t *testing.T) {
	// Arrange
	svc, repo, audit, _ := newTestService()
	alias := seedAlias(t, repo, enum.AliasLeaked)

	// Act
	result, err := svc.Kill(context.Background(), alias.ID, "again")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, enum.AliasLeaked, result.Status)
	assert.Equal(t, 0, audit.count(enum.AuditAliasKilled))
}

func TestKill_UnknownAlias(t *testing.T) {
	svc, _, _, _ := newTestService()
	_, err := svc.Kill(context.Background(), "alias_missing", "")
	assert.ErrorIs(t, err, relayerrors.ErrAliasNotFound)
}

func TestMarkLeaked(t *testing.T) {
	// Arrange
	svc, repo, audit, relayLog := newTestService()
	alias := seedAlias(t, repo, enum.AliasActive)

	// Act
	err := svc.MarkLeaked(context.Background(), alias, "decoy_match", models.JSONMap{"emailId": "email_1"})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, enum.AliasLeaked, alias.Status)
	assert.Equal(t, 1, audit.count(enum.AuditAliasLeaked))
	assert.Equal(t, 1, relayLog.count(enum.RelayEventLeakDetected))
}

func TestMarkLeaked_SecondTransitionRecordsNothing(t *testing.T) {
	// Arrange
	svc, repo, audit, relayLog := newTestService()
	alias := seedAlias(t, repo, enum.AliasActive)
	require.NoError(t, svc.MarkLeaked(context.Background(), alias, "decoy_match", nil))

	// Act: the alias is already leaked
	err := svc.MarkLeaked(context.Background(), alias, "breach_sweep", nil)

	// Assert: still exactly one of each record
	require.NoError(t, err)
	assert.Equal(t, 1, audit.count(enum.AuditAliasLeaked))
	assert.Equal(t, 1, relayLog.count(enum.RelayEventLeakDetected))
}

func TestReplace_LeakedAlias(t *testing.T) {
	// Arrange
	svc, repo, audit, _ := newTestService()
	old := seedAlias(t, repo, enum.AliasLeaked)

	// Act
	replacement, err := svc.Replace(context.Background(), old.ID, "custom-part")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "custom-part", replacement.LocalPart)
	assert.Equal(t, enum.AliasActive, replacement.Status)
	require.NotNil(t, replacement.ReplacesID)
	assert.Equal(t, old.ID, *replacement.ReplacesID)

	stored, _ := repo.GetByID(context.Background(), old.ID)
	require.NotNil(t, stored.ReplacedByID)
	assert.Equal(t, replacement.ID, *stored.ReplacedByID)
	// old status untouched, replacement is additive
	assert.Equal(t, enum.AliasLeaked, stored.Status)
	assert.Equal(t, 1, audit.count(enum.AuditAliasReplaced))
}

func TestReplace_ActiveUnflaggedAliasRejected(t *testing.T) {
	svc, repo, _, _ := newTestService()
	alias := seedAlias(t, repo, enum.AliasActive)

	_, err := svc.Replace(context.Background(), alias.ID, "")

	assert.ErrorIs(t, err, relayerrors.ErrReplaceNotEligible)
}

func TestReplace_ActiveBreachFlaggedAliasAllowed(t *testing.T) {
	// Arrange
	svc, repo, _, _ := newTestService()
	alias := seedAlias(t, repo, enum.AliasActive)
	repo.aliases[alias.ID].BreachDetected = true

	// Act
	replacement, err := svc.Replace(context.Background(), alias.ID, "")

	// Assert
	require.NoError(t, err)
	assert.NotEqual(t, alias.ID, replacement.ID)
}

func TestReplace_AlreadyReplaced(t *testing.T) {
	// Arrange
	svc, repo, _, _ := newTestService()
	old := seedAlias(t, repo, enum.AliasKilled)
	_, err := svc.Replace(context.Background(), old.ID, "first")
	require.NoError(t, err)

	// Act
	_, err = svc.Replace(context.Background(), old.ID, "second")

	// Assert
	assert.ErrorIs(t, err, relayerrors.ErrAliasAlreadyReplaced)
}

func TestRecordSpam_KillsExactlyOnceAtThreshold(t *testing.T) {
	// Arrange
	svc, repo, audit, relayLog := newTestService()
	alias := seedAlias(t, repo, enum.AliasActive)

	// Act: ten spam messages, concurrently for the last two
	for i := 0; i < 8; i++ {
		_, killed, err := svc.RecordSpam(context.Background(), alias)
		require.NoError(t, err)
		assert.False(t, killed)
	}

	var wg sync.WaitGroup
	kills := make(chan bool, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			copied := *alias
			_, killed, err := svc.RecordSpam(context.Background(), &copied)
			assert.NoError(t, err)
			kills <- killed
		}()
	}
	wg.Wait()
	close(kills)

	// Assert: exactly one auto-kill across the concurrent pair
	killCount := 0
	for killed := range kills {
		if killed {
			killCount++
		}
	}
	assert.Equal(t, 1, killCount)
	assert.Equal(t, 1, audit.count(enum.AuditAliasAutoKilled))
	assert.Equal(t, 1, relayLog.count(enum.RelayEventSpamDetected))

	stored, _ := repo.GetByID(context.Background(), alias.ID)
	assert.Equal(t, enum.AliasKilled, stored.Status)
	assert.Equal(t, 10, stored.SpamCount)
}

func TestApplyBreachResult_AutoKill(t *testing.T) {
	// Arrange
	svc, repo, audit, relayLog := newTestService()
	alias := seedAlias(t, repo, enum.AliasActive)

	// Act: severity 8 with an eligible breach
	err := svc.ApplyBreachResult(context.Background(), alias, 8, true)

	// Assert
	require.NoError(t, err)
	stored, _ := repo.GetByID(context.Background(), alias.ID)
	assert.Equal(t, enum.AliasLeaked, stored.Status)
	assert.Equal(t, 1, audit.count(enum.AuditAliasLeaked))
	assert.Equal(t, 1, relayLog.count(enum.RelayEventLeakDetected))
}

func TestApplyBreachResult_AdvisoryOnly(t *testing.T) {
	// Arrange
	svc, repo, audit, _ := newTestService()
	alias := seedAlias(t, repo, enum.AliasActive)

	// Act: severity 0, fabricated-only breach
	err := svc.ApplyBreachResult(context.Background(), alias, 0, false)

	// Assert: alias stays active, advisory recorded
	require.NoError(t, err)
	stored, _ := repo.GetByID(context.Background(), alias.ID)
	assert.Equal(t, enum.AliasActive, stored.Status)
	assert.Equal(t, 1, audit.count(enum.AuditBreachAdvisory))
}

func TestApplyBreachResult_SeverityBelowThresholdIsAdvisory(t *testing.T) {
	svc, repo, audit, _ := newTestService()
	alias := seedAlias(t, repo, enum.AliasActive)

	err := svc.ApplyBreachResult(context.Background(), alias, 4, true)

	require.NoError(t, err)
	stored, _ := repo.GetByID(context.Background(), alias.ID)
	assert.Equal(t, enum.AliasActive, stored.Status)
	assert.Equal(t, 1, audit.count(enum.AuditBreachAdvisory))
}

func TestDecideDelivery(t *testing.T) {
	svc, _, _, _ := newTestService()

	active := &models.Alias{Status: enum.AliasActive}
	killed := &models.Alias{Status: enum.AliasKilled}

	tests := []struct {
		name           string
		alias          *models.Alias
		classification *models.Classification
		expected       models.DeliveryDecision
	}{
		{"non-active alias blocked", killed, &models.Classification{}, models.DeliveryBlocked},
		{"clean message forwarded", active, &models.Classification{SpamScore: 1.0}, models.DeliveryForward},
		{"spam stored not forwarded", active, &models.Classification{SpamScore: 5.5, IsSpam: true}, models.DeliverySpam},
		{"quarantine tier", active, &models.Classification{SpamScore: 8.0, IsSpam: true}, models.DeliveryQuarantine},
		{"block tier", active, &models.Classification{SpamScore: 11.0, IsSpam: true}, models.DeliveryBlocked},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, svc.DecideDelivery(tt.alias, tt.classification))
		})
	}
}
