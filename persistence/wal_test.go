package persistence

import "testing"

func TestNewRecordVerifiesOK(t *testing.T) {
	batchID := NewBatchID()
	r := NewRecord(batchID, 1, []byte("payload"))
	if !r.Verify() {
		t.Fatalf("expected fresh record to verify")
	}
}

func TestVerifyFailsOnTamperedPayload(t *testing.T) {
	batchID := NewBatchID()
	r := NewRecord(batchID, 1, []byte("payload"))
	r.Payload = []byte("tampered")
	if r.Verify() {
		t.Fatalf("expected tampered payload to fail verification")
	}
}

func TestVerifyFailsOnTamperedSequence(t *testing.T) {
	batchID := NewBatchID()
	r := NewRecord(batchID, 1, []byte("payload"))
	r.Sequence = 2
	if r.Verify() {
		t.Fatalf("expected tampered sequence to fail verification")
	}
}

func TestNewBatchIDsAreUnique(t *testing.T) {
	a := NewBatchID()
	b := NewBatchID()
	if a == b {
		t.Fatalf("expected distinct batch ids")
	}
}
