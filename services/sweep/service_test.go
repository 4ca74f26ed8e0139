package sweep

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veilmail/relay/interfaces"
	"github.com/veilmail/relay/internal/enum"
	relayerrors "github.com/veilmail/relay/internal/errors"
	"github.com/veilmail/relay/internal/logger"
	"github.com/veilmail/relay/internal/models"
	"github.com/veilmail/relay/services/leakdetect"
)

type countingPacer struct {
	waits int
}

func (p *countingPacer) Wait(ctx context.Context) error {
	p.waits++
	return ctx.Err()
}

type fakeAliasRepo struct {
	interfaces.AliasRepository
	mu      sync.Mutex
	due     []*models.Alias
	checked map[string]bool
}

func (r *fakeAliasRepo) ListDueForBreachCheck(ctx context.Context, checkedBefore time.Time, limit int) ([]*models.Alias, error) {
	if len(r.due) > limit {
		return r.due[:limit], nil
	}
	return r.due, nil
}

func (r *fakeAliasRepo) MarkBreachChecked(ctx context.Context, id string, checkedAt time.Time, breachDetected bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.checked == nil {
		r.checked = map[string]bool{}
	}
	r.checked[id] = breachDetected
	return nil
}

type fakeBreachCheckRepo struct {
	interfaces.BreachCheckRepository
	created []*models.BreachCheck
}

func (r *fakeBreachCheckRepo) Create(ctx context.Context, check *models.BreachCheck) (string, error) {
	r.created = append(r.created, check)
	return "brch_1", nil
}

type fakeBreachClient struct {
	results     map[string]*interfaces.BreachLookupResult
	lookupErrs  map[string]error
	pasteHits   map[string]bool
	pasteErrs   map[string]error
	lookupCalls []string
	pasteCalls  []string
}

func (c *fakeBreachClient) LookupBreaches(ctx context.Context, email string) (*interfaces.BreachLookupResult, error) {
	c.lookupCalls = append(c.lookupCalls, email)
	if err, ok := c.lookupErrs[email]; ok {
		return nil, err
	}
	if result, ok := c.results[email]; ok {
		return result, nil
	}
	return &interfaces.BreachLookupResult{Kind: interfaces.BreachLookupNotFound}, nil
}

func (c *fakeBreachClient) LookupPastes(ctx context.Context, token string) (bool, error) {
	c.pasteCalls = append(c.pasteCalls, token)
	if err, ok := c.pasteErrs[token]; ok {
		return false, err
	}
	return c.pasteHits[token], nil
}

type fakeLifecycle struct {
	interfaces.LifecycleService
	applied map[string]int
	leaked  []string
}

func (l *fakeLifecycle) ApplyBreachResult(ctx context.Context, alias *models.Alias, severity int, killEligible bool) error {
	if l.applied == nil {
		l.applied = map[string]int{}
	}
	l.applied[alias.ID] = severity
	return nil
}

func (l *fakeLifecycle) MarkLeaked(ctx context.Context, alias *models.Alias, source string, metadata models.JSONMap) error {
	l.leaked = append(l.leaked, alias.ID)
	return nil
}

type sweepFixture struct {
	svc       *sweepService
	aliases   *fakeAliasRepo
	checks    *fakeBreachCheckRepo
	client    *fakeBreachClient
	lifecycle *fakeLifecycle
	pacer     *countingPacer
	slept     []time.Duration
}

func testLogger() logger.Logger {
	appLogger := logger.NewAppLogger(&logger.Config{DevMode: true})
	appLogger.InitLogger()
	return appLogger
}

func newSweep(due ...*models.Alias) *sweepFixture {
	f := &sweepFixture{
		aliases:   &fakeAliasRepo{due: due},
		checks:    &fakeBreachCheckRepo{},
		client:    &fakeBreachClient{results: map[string]*interfaces.BreachLookupResult{}, lookupErrs: map[string]error{}, pasteHits: map[string]bool{}, pasteErrs: map[string]error{}},
		lifecycle: &fakeLifecycle{},
		pacer:     &countingPacer{},
	}
	f.svc = &sweepService{
		aliases:         f.aliases,
		breachChecks:    f.checks,
		client:          f.client,
		leakDetector:    leakdetect.NewLeakDetectorService(),
		lifecycle:       f.lifecycle,
		pacer:           f.pacer,
		sleep:           func(d time.Duration) { f.slept = append(f.slept, d) },
		recheckInterval: 24 * time.Hour,
		batchSize:       200,
		log:             testLogger(),
	}
	return f
}

func aliasWithAddress(id, localPart string) *models.Alias {
	return &models.Alias{
		ID:        id,
		UserID:    "user_1",
		LocalPart: localPart,
		Domain:    "veilmail.io",
		Status:    enum.AliasActive,
	}
}

func TestRun_CleanAliasMarkedChecked(t *testing.T) {
	// Arrange
	f := newSweep(aliasWithAddress("alias_1", "shop-a"))

	// Act
	stats, err := f.svc.Run(context.Background())

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Selected)
	assert.Equal(t, 1, stats.Checked)
	assert.Equal(t, 0, stats.Breached)
	detected, ok := f.aliases.checked["alias_1"]
	require.True(t, ok)
	assert.False(t, detected)
}

func TestRun_BreachedAliasKilledAndRecorded(t *testing.T) {
	// Arrange
	f := newSweep(aliasWithAddress("alias_1", "shop-a"))
	f.client.results["shop-a@veilmail.io"] = &interfaces.BreachLookupResult{
		Kind: interfaces.BreachLookupFound,
		Breaches: []interfaces.BreachRecord{{
			Name:        "MegaCorp",
			BreachDate:  "2025-11-02",
			DataClasses: []string{"Email addresses", "Passwords"},
			IsVerified:  true,
			IsSensitive: true,
		}},
	}

	// Act
	stats, err := f.svc.Run(context.Background())

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Breached)
	assert.Equal(t, 1, stats.Killed)
	// 1 base + 2 verified + 3 sensitive + 2 sensitive data class
	assert.Equal(t, 8, f.lifecycle.applied["alias_1"])
	require.Len(t, f.checks.created, 1)
	assert.Equal(t, "MegaCorp", f.checks.created[0].BreachName)
	assert.True(t, f.aliases.checked["alias_1"])
}

func TestRun_AdvisoryBreachNotCountedAsKill(t *testing.T) {
	// Arrange
	f := newSweep(aliasWithAddress("alias_1", "shop-a"))
	f.client.results["shop-a@veilmail.io"] = &interfaces.BreachLookupResult{
		Kind:     interfaces.BreachLookupFound,
		Breaches: []interfaces.BreachRecord{{Name: "FakeDump", IsFabricated: true}},
	}

	// Act
	stats, err := f.svc.Run(context.Background())

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Breached)
	assert.Equal(t, 0, stats.Killed)
	assert.Equal(t, 0, f.lifecycle.applied["alias_1"])
}

func TestRun_RateLimitPausesAndSkips(t *testing.T) {
	// Arrange
	first := aliasWithAddress("alias_1", "shop-a")
	second := aliasWithAddress("alias_2", "shop-b")
	f := newSweep(first, second)
	f.client.results["shop-a@veilmail.io"] = &interfaces.BreachLookupResult{
		Kind:       interfaces.BreachLookupRateLimited,
		RetryAfter: 7 * time.Second,
	}

	// Act
	stats, err := f.svc.Run(context.Background())

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 1, stats.RateLimited)
	assert.Equal(t, 1, stats.Checked)
	require.Len(t, f.slept, 1)
	assert.Equal(t, 7*time.Second, f.slept[0])
	// The limited alias stays due for the next run; the second one was
	// processed normally after the pause.
	_, marked := f.aliases.checked["alias_1"]
	assert.False(t, marked)
	_, marked = f.aliases.checked["alias_2"]
	assert.True(t, marked)
}

func TestRun_LookupErrorSkipsAlias(t *testing.T) {
	// Arrange
	first := aliasWithAddress("alias_1", "shop-a")
	second := aliasWithAddress("alias_2", "shop-b")
	f := newSweep(first, second)
	f.client.lookupErrs["shop-a@veilmail.io"] = errors.New("upstream 500")

	// Act
	stats, err := f.svc.Run(context.Background())

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Errors)
	assert.Equal(t, 1, stats.Checked)
	_, marked := f.aliases.checked["alias_1"]
	assert.False(t, marked)
}

func TestRun_DecoyPasteHitMarksLeaked(t *testing.T) {
	// Arrange
	alias := aliasWithAddress("alias_1", "shop-a")
	token := "deadbeefdeadbeefdeadbeefdeadbeef"
	alias.DecoyToken = &token
	f := newSweep(alias)
	f.client.pasteHits[token] = true

	// Act
	stats, err := f.svc.Run(context.Background())

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Leaked)
	assert.Equal(t, []string{"alias_1"}, f.lifecycle.leaked)
}

func TestRun_PasteLookupWaitsOnPacer(t *testing.T) {
	// Arrange
	first := aliasWithAddress("alias_1", "shop-a")
	second := aliasWithAddress("alias_2", "shop-b")
	tokenA, tokenB := "deadbeefdeadbeefdeadbeefdeadbeef", "cafebabecafebabecafebabecafebabe"
	first.DecoyToken = &tokenA
	second.DecoyToken = &tokenB
	f := newSweep(first, second)

	// Act
	_, err := f.svc.Run(context.Background())

	// Assert
	require.NoError(t, err)
	assert.Len(t, f.client.lookupCalls, 2)
	assert.Len(t, f.client.pasteCalls, 2)
	// one wait per breach lookup plus one per paste lookup
	assert.Equal(t, 4, f.pacer.waits)
}

func TestRun_PasteRateLimitPausesSweep(t *testing.T) {
	// Arrange
	alias := aliasWithAddress("alias_1", "shop-a")
	token := "deadbeefdeadbeefdeadbeefdeadbeef"
	alias.DecoyToken = &token
	f := newSweep(alias)
	f.client.pasteErrs[token] = &relayerrors.RateLimitedError{RetryAfter: 9 * time.Second}

	// Act
	stats, err := f.svc.Run(context.Background())

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 1, stats.RateLimited)
	assert.Equal(t, 0, stats.Errors)
	assert.Equal(t, 0, stats.Leaked)
	require.Len(t, f.slept, 1)
	assert.Equal(t, 9*time.Second, f.slept[0])
}

func TestRun_SecondConcurrentRunRejected(t *testing.T) {
	// Arrange
	f := newSweep()
	f.svc.running = 1

	// Act
	stats, err := f.svc.Run(context.Background())

	// Assert
	require.Error(t, err)
	assert.True(t, errors.Is(err, relayerrors.ErrSweepInProgress))
	assert.Nil(t, stats)
}

func TestRun_BatchSizeBoundsSelection(t *testing.T) {
	// Arrange
	f := newSweep(
		aliasWithAddress("alias_1", "shop-a"),
		aliasWithAddress("alias_2", "shop-b"),
		aliasWithAddress("alias_3", "shop-c"),
	)
	f.svc.batchSize = 2

	// Act
	stats, err := f.svc.Run(context.Background())

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Selected)
	assert.Len(t, f.client.lookupCalls, 2)
}
