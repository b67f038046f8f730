package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
)

// AIAnalysisKey is the PredictionResult key holding the optional enrichment payload.
const AIAnalysisKey = "aiAnalysis"

// timestampLayout matches the ISO-8601 form with millisecond precision used by the web client.
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

type EntryID string

func NewEntryID() EntryID {
	return EntryID(uuid.New().String())
}

// AssessmentData holds a single assessment's answers. The store treats it as opaque.
type AssessmentData map[string]any

// PredictionResult is the opaque assessment output. It may carry an aiAnalysis payload.
type PredictionResult map[string]any

// AIAnalysis returns the enrichment payload when present and non-null.
func (x PredictionResult) AIAnalysis() (any, bool) {
	v, ok := x[AIAnalysisKey]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// WithoutAIAnalysis returns a shallow copy without the enrichment payload.
func (x PredictionResult) WithoutAIAnalysis() PredictionResult {
	out := make(PredictionResult, len(x))
	for k, v := range x {
		if k == AIAnalysisKey {
			continue
		}
		out[k] = v
	}
	return out
}

// WithAIAnalysis returns a shallow copy with the enrichment payload set.
func (x PredictionResult) WithAIAnalysis(analysis any) PredictionResult {
	out := make(PredictionResult, len(x)+1)
	for k, v := range x {
		out[k] = v
	}
	out[AIAnalysisKey] = analysis
	return out
}

type ProgressPayload struct {
	Inputs AssessmentData   `json:"inputs"`
	Result PredictionResult `json:"result"`
}

// ProgressEntry is one immutable, timestamped assessment result.
type ProgressEntry struct {
	EntryID         EntryID         `json:"entry_id"`
	UserID          UserID          `json:"user_id"`
	Timestamp       string          `json:"timestamp"`
	ProgressPayload ProgressPayload `json:"progress_payload"`
}

// Time parses Timestamp. A malformed timestamp yields the zero time.
func (x *ProgressEntry) Time() time.Time {
	t, err := time.Parse(time.RFC3339Nano, x.Timestamp)
	if err != nil {
		return time.Time{}
	}
	return t
}

type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// Normalize maps anything other than asc to desc, the default direction.
func (x SortDirection) Normalize() SortDirection {
	if x == SortAsc {
		return SortAsc
	}
	return SortDesc
}

// FormatTimestamp renders t as an ISO-8601 UTC string with millisecond precision.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// NormalizePayload round-trips inputs and result through JSON so the returned values have
// the same shape every backend reads back (numbers as float64, nested objects as maps).
// A nil result becomes an empty one and a null aiAnalysis key is dropped.
func NormalizePayload(inputs AssessmentData, result PredictionResult) (AssessmentData, PredictionResult, error) {
	var normInputs AssessmentData
	if err := roundTrip(inputs, &normInputs); err != nil {
		return nil, nil, goerr.Wrap(err, "failed to normalize assessment inputs")
	}
	var normResult PredictionResult
	if err := roundTrip(result, &normResult); err != nil {
		return nil, nil, goerr.Wrap(err, "failed to normalize prediction result")
	}

	if normResult == nil {
		normResult = PredictionResult{}
	}
	if v, ok := normResult[AIAnalysisKey]; ok && v == nil {
		delete(normResult, AIAnalysisKey)
	}
	return normInputs, normResult, nil
}

func roundTrip(src, dst any) error {
	raw, err := json.Marshal(src)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}
