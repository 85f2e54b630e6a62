package queue

import (
	"testing"
)

func TestForwardMessageValidate(t *testing.T) {
	msg := ForwardMessage{
		RecordID:      42,
		SchemaName:    "orders",
		CorrelationID: "corr-1",
	}
	if err := msg.Validate(); err != nil {
		t.Fatalf("Validate() unexpected error: %v", err)
	}

	msg.RecordID = 0
	if err := msg.Validate(); err == nil {
		t.Fatal("expected error for zero record id")
	}

	msg.RecordID = -7
	if err := msg.Validate(); err == nil {
		t.Fatal("expected error for negative record id")
	}

	msg.RecordID = 42
	msg.SchemaName = "  "
	if err := msg.Validate(); err == nil {
		t.Fatal("expected error for blank schema name")
	}
}

func TestQueueNames(t *testing.T) {
	if ForwardQueueName != "records.forward" {
		t.Fatalf("ForwardQueueName = %s, want records.forward", ForwardQueueName)
	}
	if ForwardDLQName != "dlq.records.forward" {
		t.Fatalf("ForwardDLQName = %s, want dlq.records.forward", ForwardDLQName)
	}
}
