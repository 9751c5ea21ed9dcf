package storage

import (
	"encoding/json"
	"errors"

	"diptune/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

func EncodeTuneRun(r model.TuneRunRecord) ([]byte, error) {
	return json.Marshal(r)
}

func DecodeTuneRun(data []byte) (model.TuneRunRecord, error) {
	var run model.TuneRunRecord
	if err := json.Unmarshal(data, &run); err != nil {
		return model.TuneRunRecord{}, err
	}
	if err := checkVersion(run.VersionedRecord); err != nil {
		return model.TuneRunRecord{}, err
	}
	return run, nil
}

func EncodeBestGains(r model.BestGainsRecord) ([]byte, error) {
	return json.Marshal(r)
}

func DecodeBestGains(data []byte) (model.BestGainsRecord, error) {
	var record model.BestGainsRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return model.BestGainsRecord{}, err
	}
	if err := checkVersion(record.VersionedRecord); err != nil {
		return model.BestGainsRecord{}, err
	}
	return record, nil
}

func EncodeTrajectorySummary(s model.TrajectorySummary) ([]byte, error) {
	return json.Marshal(s)
}

func DecodeTrajectorySummary(data []byte) (model.TrajectorySummary, error) {
	var summary model.TrajectorySummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return model.TrajectorySummary{}, err
	}
	if err := checkVersion(summary.VersionedRecord); err != nil {
		return model.TrajectorySummary{}, err
	}
	return summary, nil
}

func EncodeCostHistory(history []float64) ([]byte, error) {
	return json.Marshal(history)
}

func DecodeCostHistory(data []byte) ([]float64, error) {
	var history []float64
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, err
	}
	return history, nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return ErrVersionMismatch
	}
	return nil
}
