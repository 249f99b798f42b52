package natsbus

import "fmt"

// TopicTurnStep carries one graph step of a running turn.
func TopicTurnStep(turnID string) string {
	return fmt.Sprintf("turn.%s.step", turnID)
}

const (
	TopicTurnSteps          = "turn.*.step"
	TopicEventsAll          = "events.>"
	TopicEventsTurnStarted  = "events.turn.started"
	TopicEventsTurnComplete = "events.turn.completed"
	TopicEventsHistory      = "events.history.cleared"
)

// TopicEventsPruned reports a retention sweep.
const TopicEventsPruned = "events.retention.pruned"
