package auth

import (
	"testing"

	"github.com/devpulse/gateway/internal/bus"
)

func principal(id string, role Role, teams ...string) *Principal {
	teamSet := make(map[string]struct{}, len(teams))
	for _, t := range teams {
		teamSet[t] = struct{}{}
	}
	return &Principal{ID: id, Role: role, TeamIDs: teamSet, Active: true}
}

func TestAuthorizeOwnUser(t *testing.T) {
	dev := principal("u1", RoleDeveloper, "t1")

	if !Authorize(dev, bus.TopicMetricUpdated, Filter{"userId": "u1"}) {
		t.Error("developer should subscribe to own metrics")
	}
	if Authorize(dev, bus.TopicMetricUpdated, Filter{"userId": "u2"}) {
		t.Error("developer must not subscribe to another user's metrics")
	}
}

func TestAuthorizeTeamRequiresLead(t *testing.T) {
	dev := principal("u1", RoleDeveloper, "t1")
	lead := principal("lead", RoleTeamLead, "t1")
	manager := principal("mgr", RoleManager, "t1")

	if Authorize(dev, bus.TopicMetricUpdated, Filter{"teamId": "t1"}) {
		t.Error("developer must not subscribe to team metrics")
	}
	if !Authorize(lead, bus.TopicMetricUpdated, Filter{"teamId": "t1"}) {
		t.Error("team lead should subscribe to own team's metrics")
	}
	if Authorize(lead, bus.TopicMetricUpdated, Filter{"teamId": "t2"}) {
		t.Error("team lead must not subscribe to another team's metrics")
	}
	if !Authorize(manager, bus.TopicFlowStateUpdated, Filter{"teamId": "t1"}) {
		t.Error("manager should subscribe to own team's flow state")
	}
}

func TestAuthorizeAdminBypass(t *testing.T) {
	admin := principal("a1", RoleAdmin)

	for _, topic := range bus.Topics {
		if !Authorize(admin, topic, Filter{"userId": "someone-else"}) {
			t.Errorf("admin should be allowed on %s", topic)
		}
	}
}

func TestAuthorizeTeamUpdated(t *testing.T) {
	dev := principal("u1", RoleDeveloper, "t1")

	if !Authorize(dev, bus.TopicTeamUpdated, Filter{"teamId": "t1"}) {
		t.Error("team member should subscribe to team updates")
	}
	if Authorize(dev, bus.TopicTeamUpdated, Filter{"teamId": "t2"}) {
		t.Error("non-member must not subscribe to team updates")
	}
}

func TestAuthorizeUserScopedTopics(t *testing.T) {
	dev := principal("u1", RoleDeveloper, "t1")
	lead := principal("lead", RoleTeamLead, "t1")

	for _, topic := range []bus.Topic{bus.TopicAlertCreated, bus.TopicDashboardUpdated, bus.TopicUserStatusUpdated} {
		if !Authorize(dev, topic, Filter{"userId": "u1"}) {
			t.Errorf("own-user filter should pass on %s", topic)
		}
		if Authorize(lead, topic, Filter{"userId": "u1"}) {
			t.Errorf("team lead has no cross-user access on %s", topic)
		}
	}
}

func TestAuthorizeAnonymousDenied(t *testing.T) {
	anon := Anonymous()

	if Authorize(anon, bus.TopicMetricUpdated, Filter{}) {
		t.Error("anonymous principal must be denied")
	}
	if Authorize(anon, bus.TopicMetricUpdated, Filter{"userId": ""}) {
		t.Error("anonymous principal must be denied even with empty userId")
	}
}

func TestAuthorizeWildcard(t *testing.T) {
	dev := principal("u1", RoleDeveloper, "t1")

	if !Authorize(dev, bus.TopicMetricUpdated, Filter{}) {
		t.Error("wildcard subscription is granted; dispatch re-checks per payload")
	}
}

func TestAuthorizePayload(t *testing.T) {
	dev := principal("u1", RoleDeveloper, "t1")
	lead := principal("lead", RoleTeamLead, "t1")

	own := map[string]interface{}{
		"userId": "u1",
		"value":  0.8,
		"context": map[string]interface{}{
			"teamId": "t1",
		},
	}
	if !AuthorizePayload(dev, bus.TopicMetricUpdated, own) {
		t.Error("developer should receive own payload")
	}
	if !AuthorizePayload(lead, bus.TopicMetricUpdated, own) {
		t.Error("team lead should receive team member's payload")
	}

	other := map[string]interface{}{
		"userId": "u9",
		"context": map[string]interface{}{
			"teamId": "t2",
		},
	}
	if AuthorizePayload(dev, bus.TopicMetricUpdated, other) {
		t.Error("developer must not receive another user's payload")
	}
	if AuthorizePayload(lead, bus.TopicMetricUpdated, other) {
		t.Error("team lead must not receive another team's payload")
	}
}

func TestAuthorizationMonotonicity(t *testing.T) {
	// A dispatch-time deny implies the same filter would have been denied at
	// subscribe time.
	dev := principal("u1", RoleDeveloper, "t1")
	payload := map[string]interface{}{"userId": "u2", "teamId": "t2"}

	if AuthorizePayload(dev, bus.TopicMetricUpdated, payload) {
		t.Skip("payload allowed; nothing to verify")
	}
	if Authorize(dev, bus.TopicMetricUpdated, DeriveFilter(payload)) {
		t.Error("subscribe-time check disagrees with dispatch-time deny")
	}
}

func TestDeriveFilter(t *testing.T) {
	f := DeriveFilter(map[string]interface{}{
		"userId": "u1",
		"context": map[string]interface{}{
			"teamId": "t1",
		},
	})
	if f["userId"] != "u1" || f["teamId"] != "t1" {
		t.Errorf("unexpected derived filter: %v", f)
	}

	// Top-level teamId wins over context.
	f = DeriveFilter(map[string]interface{}{
		"teamId": "top",
		"context": map[string]interface{}{
			"teamId": "nested",
		},
	})
	if f["teamId"] != "top" {
		t.Errorf("expected top-level teamId, got %s", f["teamId"])
	}

	if len(DeriveFilter(nil)) != 0 {
		t.Error("nil payload should derive empty filter")
	}
}

func TestRoleSatisfies(t *testing.T) {
	if !RoleAdmin.Satisfies(RoleManager) {
		t.Error("ADMIN satisfies MANAGER")
	}
	if !RoleTeamLead.Satisfies(RoleTeamLead) {
		t.Error("role satisfies itself")
	}
	if RoleDeveloper.Satisfies(RoleTeamLead) {
		t.Error("DEVELOPER does not satisfy TEAM_LEAD")
	}
}

func TestParseRole(t *testing.T) {
	cases := map[string]Role{
		"ADMIN":     RoleAdmin,
		"MANAGER":   RoleManager,
		"TEAM_LEAD": RoleTeamLead,
		"DEVELOPER": RoleDeveloper,
		"garbage":   RoleDeveloper,
	}
	for in, want := range cases {
		if got := ParseRole(in); got != want {
			t.Errorf("ParseRole(%q) = %v, want %v", in, got, want)
		}
	}
}
