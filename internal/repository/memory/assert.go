package memory

import (
	"github.com/ignite/outreach-engine/internal/service/campaign"
	"github.com/ignite/outreach-engine/internal/service/dispatch"
	"github.com/ignite/outreach-engine/internal/service/reconcile"
	"github.com/ignite/outreach-engine/internal/service/reputation"
	"github.com/ignite/outreach-engine/internal/service/warmup"
)

var (
	_ campaign.Repository            = (*Store)(nil)
	_ dispatch.Repository            = (*Store)(nil)
	_ dispatch.MaintenanceRepository = (*Store)(nil)
	_ warmup.Repository              = (*Store)(nil)
	_ reputation.Repository          = (*Store)(nil)
	_ reconcile.Repository           = (*Store)(nil)
)
