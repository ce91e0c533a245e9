package amqp

import (
	"encoding/json"
	"time"
)

// TransactionSyncMessage asks the worker to mirror one transaction to the
// export sheet. Only the id travels; the worker fetches the full record from
// the database.
type TransactionSyncMessage struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
}

func NewTransactionSyncMessage(id string) *TransactionSyncMessage {
	return &TransactionSyncMessage{
		ID:        id,
		Timestamp: time.Now(),
	}
}

func (m *TransactionSyncMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func TransactionSyncMessageFromJSON(data []byte) (*TransactionSyncMessage, error) {
	var msg TransactionSyncMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// GoalEventMessage announces a goal's transition into a terminal condition
// (completed, surpassed, missedDeadline). The producer flips the persisted
// notified flag before publishing, so each condition is announced at most
// once.
type GoalEventMessage struct {
	GoalID    string    `json:"goal_id"`
	OwnerID   string    `json:"owner_id"`
	GoalName  string    `json:"goal_name"`
	Condition string    `json:"condition"`
	Timestamp time.Time `json:"timestamp"`
}

func NewGoalEventMessage(goalID, ownerID, goalName, condition string) *GoalEventMessage {
	return &GoalEventMessage{
		GoalID:    goalID,
		OwnerID:   ownerID,
		GoalName:  goalName,
		Condition: condition,
		Timestamp: time.Now(),
	}
}

func (m *GoalEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func GoalEventMessageFromJSON(data []byte) (*GoalEventMessage, error) {
	var msg GoalEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
