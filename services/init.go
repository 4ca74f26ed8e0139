package services

import (
	"github.com/veilmail/relay/config"
	"github.com/veilmail/relay/interfaces"
	"github.com/veilmail/relay/internal/logger"
	"github.com/veilmail/relay/internal/repository"
	"github.com/veilmail/relay/services/audit"
	"github.com/veilmail/relay/services/breachwatch"
	"github.com/veilmail/relay/services/classifier"
	"github.com/veilmail/relay/services/events"
	"github.com/veilmail/relay/services/forwarder"
	"github.com/veilmail/relay/services/ingest"
	"github.com/veilmail/relay/services/leakdetect"
	"github.com/veilmail/relay/services/lifecycle"
	"github.com/veilmail/relay/services/providers"
	"github.com/veilmail/relay/services/relaylog"
	"github.com/veilmail/relay/services/storage"
	"github.com/veilmail/relay/services/sweep"
)

type Services struct {
	Publisher      interfaces.EventPublisher
	ArchiveStorage interfaces.StorageService
	SendProvider   interfaces.SendProvider

	ClassifierService   interfaces.ClassifierService
	LeakDetectorService interfaces.LeakDetectorService
	AuditService        interfaces.AuditService
	RelayLogService     interfaces.RelayLogService
	LifecycleService    interfaces.LifecycleService
	ForwardingService   interfaces.ForwardingService
	IngestService       interfaces.IngestService
	BreachSweepService  interfaces.BreachSweepService
}

func InitServices(cfg *config.Config, log logger.Logger, repos *repository.Repositories) (*Services, error) {
	// events; the publisher degrades to a no-op when no broker is
	// configured so the inbound path works in isolation
	var publisher interfaces.EventPublisher
	if cfg.AppConfig.RabbitMQURL != "" {
		rabbitPublisher, err := events.NewRabbitMQPublisher(cfg.AppConfig.RabbitMQURL, log, nil)
		if err != nil {
			return nil, err
		}
		publisher = rabbitPublisher
	} else {
		publisher = events.NewNoopPublisher(log)
	}

	// raw message archive, optional
	var archiveStorage interfaces.StorageService
	if cfg.ArchiveStorageConfig.AccountID != "" {
		archiveStorage = storage.NewR2StorageService(
			cfg.ArchiveStorageConfig.AccountID,
			cfg.ArchiveStorageConfig.AccessKeyID,
			cfg.ArchiveStorageConfig.AccessKeySecret,
			cfg.ArchiveStorageConfig.ArchiveBucket,
		)
	}

	sendProvider, err := providers.SelectProvider(cfg.ProviderConfig)
	if err != nil {
		return nil, err
	}

	classifierService := classifier.NewClassifierService()
	leakDetectorService := leakdetect.NewLeakDetectorService()
	auditService := audit.NewAuditService(repos.AuditLogRepository, log)
	relayLogService := relaylog.NewRelayLogService(repos.RelayEventRepository, publisher, log)
	lifecycleService := lifecycle.NewLifecycleService(
		repos.AliasRepository,
		auditService,
		relayLogService,
		cfg.AppConfig.AliasDomain,
		log,
	)
	forwardingService := forwarder.NewForwardingService(
		sendProvider,
		repos.EmailRepository,
		cfg.ProviderConfig.SendRatePerSecond,
		log,
	)
	ingestService := ingest.NewIngestService(
		repos.AliasRepository,
		repos.EmailRepository,
		classifierService,
		leakDetectorService,
		lifecycleService,
		forwardingService,
		relayLogService,
		auditService,
		archiveStorage,
		log,
	)
	breachSweepService := sweep.NewBreachSweepService(
		cfg.BreachWatchConfig,
		repos.AliasRepository,
		repos.BreachCheckRepository,
		breachwatch.NewClient(cfg.BreachWatchConfig, log),
		leakDetectorService,
		lifecycleService,
		log,
	)

	return &Services{
		Publisher:      publisher,
		ArchiveStorage: archiveStorage,
		SendProvider:   sendProvider,

		ClassifierService:   classifierService,
		LeakDetectorService: leakDetectorService,
		AuditService:        auditService,
		RelayLogService:     relayLogService,
		LifecycleService:    lifecycleService,
		ForwardingService:   forwardingService,
		IngestService:       ingestService,
		BreachSweepService:  breachSweepService,
	}, nil
}
