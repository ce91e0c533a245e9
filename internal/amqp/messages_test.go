package amqp

import "testing"

func TestTransactionSyncMessageFromJSON_Malformed(t *testing.T) {
	// The consume loop drops messages that fail to decode; the decoder must
	// report garbage as an error rather than returning a zero message.
	if _, err := TransactionSyncMessageFromJSON([]byte("not json")); err == nil {
		t.Error("malformed sync message accepted")
	}
	if _, err := GoalEventMessageFromJSON([]byte("{")); err == nil {
		t.Error("truncated goal event accepted")
	}
}

func TestGoalEventMessage_RoundTrip(t *testing.T) {
	msg := NewGoalEventMessage("g1", "o1", "vacation", "completed")

	body, err := msg.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON: %v", err)
	}
	got, err := GoalEventMessageFromJSON(body)
	if err != nil {
		t.Fatalf("FromJSON: %v", err)
	}
	if got.GoalID != "g1" || got.OwnerID != "o1" || got.GoalName != "vacation" || got.Condition != "completed" {
		t.Errorf("round trip lost fields: %+v", got)
	}
}
