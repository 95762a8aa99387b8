package entitlement

import (
	"github.com/hirelens/hirelens/internal/entitlement/repository"
	"github.com/hirelens/hirelens/internal/entitlement/service"
	"go.uber.org/fx"
)

var Module = fx.Module("entitlement.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
