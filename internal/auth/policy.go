package auth

import (
	"github.com/devpulse/gateway/internal/bus"
)

// Filter is the flat constraint map attached to a subscription.
type Filter map[string]string

// Authorize decides whether a principal may hold a subscription on the
// topic with the given filter. Pure function, no I/O.
//
// An empty filter is a wildcard request; it is granted, but every dispatch
// for a wildcard subscription re-runs AuthorizePayload so the client can
// only receive payloads it could have requested directly.
func Authorize(p *Principal, topic bus.Topic, filter Filter) bool {
	if p.IsAnonymous() {
		return false
	}
	if p.Role == RoleAdmin {
		return true
	}
	if len(filter) == 0 {
		return true
	}

	switch topic {
	case bus.TopicMetricUpdated, bus.TopicFlowStateUpdated:
		if filter["userId"] == p.ID {
			return true
		}
		return p.InTeam(filter["teamId"]) && p.Role.Satisfies(RoleTeamLead)

	case bus.TopicAlertCreated, bus.TopicDashboardUpdated, bus.TopicUserStatusUpdated:
		return filter["userId"] == p.ID

	case bus.TopicTeamUpdated:
		return p.InTeam(filter["teamId"])
	}
	return false
}

// AuthorizePayload runs the topic rule against the payload-derived filter
// at dispatch time. A deny here implies the equivalent subscribe-time
// request would also have been denied.
func AuthorizePayload(p *Principal, topic bus.Topic, payload map[string]interface{}) bool {
	return Authorize(p, topic, DeriveFilter(payload))
}

// DeriveFilter extracts the authorization-relevant attributes from an
// event payload. teamId may appear at the top level or under context.
func DeriveFilter(payload map[string]interface{}) Filter {
	f := Filter{}
	if payload == nil {
		return f
	}
	if v, ok := payload["userId"].(string); ok && v != "" {
		f["userId"] = v
	}
	if v, ok := payload["teamId"].(string); ok && v != "" {
		f["teamId"] = v
	}
	if ctx, ok := payload["context"].(map[string]interface{}); ok {
		if v, ok := ctx["teamId"].(string); ok && v != "" {
			if _, exists := f["teamId"]; !exists {
				f["teamId"] = v
			}
		}
	}
	return f
}
