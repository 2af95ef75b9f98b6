package store

import (
	"fmt"

	"github.com/devpulse/gateway/internal/bus"
	"github.com/devpulse/gateway/internal/metrics"
)

// Bridge is the typed publishing surface for domain events. Internal
// services call these helpers instead of assembling payload maps, which
// keeps the subject attributes the dispatcher matches on (userId, teamId)
// present and consistently named.
type Bridge struct {
	bus *bus.Bus
}

func NewBridge(b *bus.Bus, reg *metrics.Registry) *Bridge {
	if reg != nil {
		b.OnPublish(func(topic string) {
			reg.BusPublishTotal.WithLabelValues(topic).Inc()
		})
	}
	return &Bridge{bus: b}
}

// Bus exposes the underlying bus for consumers.
func (br *Bridge) Bus() *bus.Bus {
	return br.bus
}

func (br *Bridge) PublishMetricUpdate(userID, teamID, metric string, value float64) error {
	if userID == "" {
		return fmt.Errorf("metric update requires a userId")
	}
	payload := map[string]interface{}{
		"userId": userID,
		"metric": metric,
		"value":  value,
	}
	if teamID != "" {
		payload["teamId"] = teamID
	}
	br.bus.Publish(bus.TopicMetricUpdated, payload)
	return nil
}

func (br *Bridge) PublishFlowState(userID, teamID, state string) error {
	if userID == "" {
		return fmt.Errorf("flow state update requires a userId")
	}
	payload := map[string]interface{}{
		"userId": userID,
		"state":  state,
	}
	if teamID != "" {
		payload["teamId"] = teamID
	}
	br.bus.Publish(bus.TopicFlowStateUpdated, payload)
	return nil
}

func (br *Bridge) PublishAlert(userID, severity, message string) error {
	if userID == "" {
		return fmt.Errorf("alert requires a userId")
	}
	br.bus.Publish(bus.TopicAlertCreated, map[string]interface{}{
		"userId":   userID,
		"severity": severity,
		"message":  message,
	})
	return nil
}

func (br *Bridge) PublishDashboardUpdate(userID, dashboardID string) error {
	if userID == "" {
		return fmt.Errorf("dashboard update requires a userId")
	}
	br.bus.Publish(bus.TopicDashboardUpdated, map[string]interface{}{
		"userId":      userID,
		"dashboardId": dashboardID,
	})
	return nil
}

func (br *Bridge) PublishTeamUpdate(teamID, change string) error {
	if teamID == "" {
		return fmt.Errorf("team update requires a teamId")
	}
	br.bus.Publish(bus.TopicTeamUpdated, map[string]interface{}{
		"teamId": teamID,
		"change": change,
	})
	return nil
}

func (br *Bridge) PublishUserStatus(userID, status string) error {
	if userID == "" {
		return fmt.Errorf("user status requires a userId")
	}
	br.bus.Publish(bus.TopicUserStatusUpdated, map[string]interface{}{
		"userId": userID,
		"status": status,
	})
	return nil
}
