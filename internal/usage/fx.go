package usage

import (
	"github.com/hirelens/hirelens/internal/usage/repository"
	"github.com/hirelens/hirelens/internal/usage/service"
	"go.uber.org/fx"
)

var Module = fx.Module("usage.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
