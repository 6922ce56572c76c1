package reconcile

import "github.com/ignite/outreach-engine/internal/domain"

var positive = []domain.RecipientStatus{
	domain.RecipientPending,
	domain.RecipientSent,
	domain.RecipientDelivered,
	domain.RecipientOpened,
	domain.RecipientClicked,
}

// rule describes what one event type does.
type rule struct {
	to     domain.RecipientStatus
	from   []domain.RecipientStatus
	signal domain.SignalKind
	cancel bool
}

var rules = map[domain.EventType]rule{
	domain.EventDelivered: {
		to:     domain.RecipientDelivered,
		from:   []domain.RecipientStatus{domain.RecipientSent},
		signal: domain.SignalDelivered,
	},
	domain.EventOpened: {
		to:   domain.RecipientOpened,
		from: []domain.RecipientStatus{domain.RecipientSent, domain.RecipientDelivered},
	},
	domain.EventClicked: {
		to:   domain.RecipientClicked,
		from: []domain.RecipientStatus{domain.RecipientSent, domain.RecipientDelivered, domain.RecipientOpened},
	},
	domain.EventBounced: {
		to:     domain.RecipientBounced,
		from:   positive,
		signal: domain.SignalBounced,
		cancel: true,
	},
	domain.EventComplained: {
		to:     domain.RecipientComplained,
		from:   positive,
		signal: domain.SignalComplained,
		cancel: true,
	},
	domain.EventUnsubscribed: {
		to:     domain.RecipientUnsubscribed,
		from:   positive,
		cancel: true,
	},
}
