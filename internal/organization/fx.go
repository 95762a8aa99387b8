package organization

import (
	"github.com/hirelens/hirelens/internal/organization/repository"
	"github.com/hirelens/hirelens/internal/organization/service"
	"go.uber.org/fx"
)

var Module = fx.Module("organization.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
