package lifecycle

import (
	"github.com/hirelens/hirelens/internal/lifecycle/repository"
	"github.com/hirelens/hirelens/internal/lifecycle/service"
	"go.uber.org/fx"
)

var Module = fx.Module("lifecycle.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
