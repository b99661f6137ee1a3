package persistence

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

// Record is one write-ahead-log entry: an operation's payload plus enough
// framing to detect a truncated or corrupted tail on recovery.
type Record struct {
	BatchID  uuid.UUID
	Sequence uint64
	Payload  []byte
	Checksum [32]byte
}

// NewRecord builds a Record and computes its checksum over sequence and
// payload together, so a reordered or truncated record is detectable.
func NewRecord(batchID uuid.UUID, sequence uint64, payload []byte) Record {
	r := Record{BatchID: batchID, Sequence: sequence, Payload: payload}
	r.Checksum = checksum(sequence, payload)
	return r
}

// Verify reports whether the record's checksum matches its contents.
func (r Record) Verify() bool {
	return checksum(r.Sequence, r.Payload) == r.Checksum
}

func checksum(sequence uint64, payload []byte) [32]byte {
	var seqBytes [8]byte
	binary.BigEndian.PutUint64(seqBytes[:], sequence)
	h, err := blake2b.New256(nil)
	if err != nil {
		panic(fmt.Sprintf("persistence: blake2b.New256 failed: %v", err))
	}
	h.Write(seqBytes[:])
	h.Write(payload)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// NewBatchID allocates a correlation id for a group of records appended
// together, e.g. every fill and margin update produced by one operation.
func NewBatchID() uuid.UUID {
	return uuid.New()
}
