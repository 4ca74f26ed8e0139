package handlers

import (
	"github.com/veilmail/relay/internal/repository"
	"github.com/veilmail/relay/services"
)

type APIHandlers struct {
	Webhooks *WebhooksHandler
	Aliases  *AliasesHandler
	Sweep    *SweepHandler
}

func InitHandlers(s *services.Services, repos *repository.Repositories) *APIHandlers {
	return &APIHandlers{
		Webhooks: NewWebhooksHandler(s.IngestService),
		Aliases:  NewAliasesHandler(s.LifecycleService, repos.AliasRepository, repos.EmailRepository, repos.RelayEventRepository),
		Sweep:    NewSweepHandler(s.BreachSweepService),
	}
}
