package natsbus

import "fmt"

// Topic patterns for NATS pub/sub communication.

// TopicAgentExecute is the request/reply subject a remote agent serves.
func TopicAgentExecute(agentID string) string {
	return fmt.Sprintf("agent.%s.execute", agentID)
}

func TopicEventsMessage(channel string) string {
	return fmt.Sprintf("events.message.%s", channel)
}

func TopicEventsRoute(routeType string) string {
	return fmt.Sprintf("events.route.%s", routeType)
}

func TopicEventsResponse(agentID string) string {
	return fmt.Sprintf("events.response.%s", agentID)
}

const (
	TopicEventsAll      = "events.>"
	TopicEventsWorkflow = "events.workflow"
	TopicEventsDropped  = "events.dropped"
	TopicEventsSchedule = "events.schedule"
)
