package quotagate

import (
	"github.com/hirelens/hirelens/internal/quotagate/service"
	"go.uber.org/fx"
)

var Module = fx.Module("quotagate.service",
	fx.Provide(service.NewService),
)
