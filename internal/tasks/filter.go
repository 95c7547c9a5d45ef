package tasks

import (
	"github.com/desertthunder/nostodon/internal/metrics"
	"github.com/desertthunder/nostodon/internal/models"
	"github.com/desertthunder/nostodon/internal/shared"
)

// Decision is the outcome of [Evaluate].
//
// Reason is set when the event is rejected. Flags lists rules that matched without blocking,
// which happens for blacklisted instances under [shared.BlacklistPolicyFlag].
type Decision struct {
	Visibility string
	Reason     string
	Flags      []string
}

// Allowed reports whether the event should be scheduled.
func (d Decision) Allowed() bool {
	return d.Reason == ""
}

// Evaluate applies the eligibility rules to an update event in order: visibility, missing URL,
// instance blacklist, user blacklist.
//
// A nil instance skips the instance rule so callers can run a cheap pre-check before any lookup.
func Evaluate(event models.Event, instance *models.Instance, userBlacklisted bool, policy string) Decision {
	status := event.Status
	if status == nil {
		return Decision{Reason: metrics.ReasonMissingURL}
	}

	d := Decision{Visibility: string(status.Visibility)}

	if status.Visibility != models.VisibilityPublic {
		d.Reason = metrics.ReasonVisibility
		return d
	}
	if status.URL == "" {
		d.Reason = metrics.ReasonMissingURL
		return d
	}

	if instance != nil && instance.Blacklisted {
		if policy == shared.BlacklistPolicyBlock {
			d.Reason = metrics.ReasonInstanceBlacklist
			return d
		}
		d.Flags = append(d.Flags, metrics.ReasonInstanceBlacklist)
	}

	if userBlacklisted {
		d.Reason = metrics.ReasonUserBlacklist
	}
	return d
}
