package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/veilmail/relay/config"
	"github.com/veilmail/relay/interfaces"
	"github.com/veilmail/relay/internal/models"
)

type Repositories struct {
	AliasRepository       interfaces.AliasRepository
	EmailRepository       interfaces.EmailRepository
	RelayEventRepository  interfaces.RelayEventRepository
	BreachCheckRepository interfaces.BreachCheckRepository
	AuditLogRepository    interfaces.AuditLogRepository
}

func InitRepositories(relayDB *gorm.DB) *Repositories {
	return &Repositories{
		AliasRepository:       NewAliasRepository(relayDB),
		EmailRepository:       NewEmailRepository(relayDB),
		RelayEventRepository:  NewRelayEventRepository(relayDB),
		BreachCheckRepository: NewBreachCheckRepository(relayDB),
		AuditLogRepository:    NewAuditLogRepository(relayDB),
	}
}

func MigrateRelayDB(dbConfig *config.RelayDatabaseConfig, relayDB *gorm.DB) error {
	db, err := relayDB.DB()
	if err != nil {
		return err
	}

	db.SetMaxOpenConns(5)

	err = relayDB.AutoMigrate(
		&models.Alias{},
		&models.EmailMessage{},
		&models.RelayEvent{},
		&models.BreachCheck{},
		&models.AuditLog{},
	)

	db.Close()

	db, _ = relayDB.DB()
	db.SetMaxIdleConns(dbConfig.MaxIdleConn)
	db.SetMaxOpenConns(dbConfig.MaxConn)
	db.SetConnMaxLifetime(time.Duration(dbConfig.ConnMaxLifetime) * time.Minute)

	return err
}
