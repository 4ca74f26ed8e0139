package cron

import (
	"context"
	"os"
	"testing"

	cronv3 "github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"k8s.io/client-go/kubernetes"

	"github.com/veilmail/relay/config"
	cron_config "github.com/veilmail/relay/internal/cron/config"
	"github.com/veilmail/relay/interfaces"
	"github.com/veilmail/relay/internal/logger"
)

type mockKubernetesInterface struct {
	kubernetes.Interface
	mock.Mock
}

type stubSweep struct {
	runs int
}

func (s *stubSweep) Run(ctx context.Context) (*interfaces.SweepStats, error) {
	s.runs++
	return &interfaces.SweepStats{}, nil
}

func getLogger() logger.Logger {
	appLogger := logger.NewAppLogger(&logger.Config{
		DevMode: true,
	})
	appLogger.InitLogger()
	return appLogger
}

func TestNewCronManager(t *testing.T) {
	// Arrange
	cfg := &config.Config{
		AppConfig: &config.AppConfig{
			Logger: &logger.Config{
				LogLevel: "info",
			},
		},
	}
	log := getLogger()
	k8s := &mockKubernetesInterface{}

	// Act
	cm := NewCronManager(cfg, log, k8s, &stubSweep{})

	// Assert
	assert.NotNil(t, cm)
	assert.Equal(t, cfg, cm.cfg)
	assert.Equal(t, log, cm.log)
	assert.Equal(t, k8s, cm.k8s)
	assert.NotNil(t, cm.jobIDs)
}

func TestCronManager_StartCron(t *testing.T) {
	// Set environment variable for testing
	os.Setenv("CRON_SCHEDULE_BREACH_SWEEP", "0 0 0 * * *")
	defer os.Unsetenv("CRON_SCHEDULE_BREACH_SWEEP")

	// Arrange
	cfg := &config.Config{
		AppConfig: &config.AppConfig{
			Logger: &logger.Config{
				LogLevel: "info",
			},
		},
	}
	log := getLogger()
	k8s := &mockKubernetesInterface{}
	cm := NewCronManager(cfg, log, k8s, &stubSweep{})

	// Create a mock cron for testing
	mockCron := cronv3.New(cronv3.WithSeconds())

	var cronConfig cron_config.Config
	cronConfig.CronScheduleHeartbeat = "0 * * * * *"
	cronConfig.CronScheduleBreachSweep = "0 0 0 * * *"

	// Act - register jobs manually
	id, err := mockCron.AddFunc(cronConfig.CronScheduleHeartbeat, func() {})
	assert.NoError(t, err)
	cm.jobIDs["heartbeat"] = id

	sweepID, err := mockCron.AddFunc(cronConfig.CronScheduleBreachSweep, func() {})
	assert.NoError(t, err)
	cm.jobIDs["breach_sweep"] = sweepID

	cm.cron = mockCron

	// Assert
	assert.NotNil(t, cm.cron)
	assert.Equal(t, 2, len(cm.jobIDs))
}

func TestCronManager_Stop(t *testing.T) {
	// Arrange
	cfg := &config.Config{
		AppConfig: &config.AppConfig{
			Logger: &logger.Config{
				LogLevel: "info",
			},
		},
	}
	log := getLogger()
	k8s := &mockKubernetesInterface{}
	cm := NewCronManager(cfg, log, k8s, &stubSweep{})

	// Create a mock cron for testing
	mockCron := cronv3.New()
	mockCron.Start()
	cm.cron = mockCron

	// Act
	cm.Stop()

	// Assert
	select {
	case <-cm.stopCh:
		// Channel is closed as expected
	default:
		t.Error("Stop channel was not closed")
	}
}

func TestCronManager_RunBreachSweep(t *testing.T) {
	// Arrange
	cfg := &config.Config{
		AppConfig: &config.AppConfig{
			Logger: &logger.Config{
				LogLevel: "info",
			},
		},
	}
	sweep := &stubSweep{}
	cm := NewCronManager(cfg, getLogger(), nil, sweep)

	// Act
	cm.runBreachSweep()

	// Assert
	assert.Equal(t, 1, sweep.runs)
}
