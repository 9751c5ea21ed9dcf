package storage

import (
	"errors"
	"testing"

	"diptune/internal/model"
)

func versioned() model.VersionedRecord {
	return model.VersionedRecord{
		SchemaVersion: CurrentSchemaVersion,
		CodecVersion:  CurrentCodecVersion,
	}
}

func TestTuneRunCodecRoundTrip(t *testing.T) {
	run := model.TuneRunRecord{
		VersionedRecord: versioned(),
		ID:              "run-1",
		Variant:         "classical_smc",
		Seed:            42,
		Status:          model.RunStatusCompleted,
		Particles:       30,
		Iterations:      50,
		BestCost:        12.5,
		BoundsMin:       []float64{1, 1, 1, 1, 5, 0.1},
		BoundsMax:       []float64{100, 100, 20, 20, 150, 10},
	}

	data, err := EncodeTuneRun(run)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := DecodeTuneRun(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.ID != run.ID || decoded.Variant != run.Variant || decoded.BestCost != run.BestCost {
		t.Fatalf("round trip mismatch: %+v", decoded)
	}
	if len(decoded.BoundsMin) != 6 || decoded.BoundsMin[4] != 5 {
		t.Fatalf("bounds lost in round trip: %+v", decoded.BoundsMin)
	}
}

func TestDecodeRejectsVersionMismatch(t *testing.T) {
	run := model.TuneRunRecord{
		VersionedRecord: model.VersionedRecord{SchemaVersion: 99, CodecVersion: CurrentCodecVersion},
		ID:              "run-1",
	}
	data, err := EncodeTuneRun(run)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := DecodeTuneRun(data); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected ErrVersionMismatch, got %v", err)
	}

	gains := model.BestGainsRecord{
		VersionedRecord: model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: 99},
		RunID:           "run-1",
		Gains:           []float64{1, 2},
	}
	data, err = EncodeBestGains(gains)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := DecodeBestGains(data); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected ErrVersionMismatch, got %v", err)
	}
}

func TestDecodeRejectsMalformedPayload(t *testing.T) {
	if _, err := DecodeTuneRun([]byte("{not json")); err == nil {
		t.Fatalf("expected decode error")
	}
	if _, err := DecodeCostHistory([]byte("[1, oops]")); err == nil {
		t.Fatalf("expected decode error")
	}
	if _, err := DecodeTrajectorySummary([]byte("42")); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestCostHistoryCodecRoundTrip(t *testing.T) {
	history := []float64{9.5, 7.25, 7.25, 6.0}
	data, err := EncodeCostHistory(history)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := DecodeCostHistory(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded) != len(history) {
		t.Fatalf("length mismatch: %d vs %d", len(decoded), len(history))
	}
	for i := range history {
		if decoded[i] != history[i] {
			t.Fatalf("history mismatch at %d: %v vs %v", i, decoded[i], history[i])
		}
	}
}
