package models

// SessionStatus represents the status of an analysis session.
type SessionStatus string

const (
	SessionStatusPending  SessionStatus = "pending"
	SessionStatusParsing  SessionStatus = "parsing"
	SessionStatusStoring  SessionStatus = "storing"
	SessionStatusComplete SessionStatus = "complete"
	SessionStatusError    SessionStatus = "error"
)

// AnalysisSession represents one document analysis: a parse of an uploaded
// export plus the derived per-metric series, ready for health queries.
type AnalysisSession struct {
	ID               string        `json:"id"`
	FileID           string        `json:"fileId"`
	FileIDs          []string      `json:"fileIds,omitempty"` // All file IDs for merged analyses
	Status           SessionStatus `json:"status"`
	Progress         float64       `json:"progress"` // 0-100
	SampleCount      int           `json:"sampleCount,omitempty"`
	MetricCount      int           `json:"metricCount,omitempty"`
	Metrics          []string      `json:"metrics,omitempty"`
	TimeRange        *TimeRange    `json:"timeRange,omitempty"`
	DropFirstSample  bool          `json:"dropFirstSample"`
	ProcessingTimeMs int64         `json:"processingTimeMs,omitempty"`
	StartTime        int64         `json:"startTime,omitempty"` // Unix ms
	EndTime          int64         `json:"endTime,omitempty"`   // Unix ms
	Errors           []ParseError  `json:"errors,omitempty"`
}

// ParseError represents a recovered per-entry failure during parsing.
// The offending entry is skipped; the rest of the document still parses.
type ParseError struct {
	Entry  int    `json:"entry"`            // Index within the Logs array
	Metric string `json:"metric,omitempty"` // Entry name, when present
	Reason string `json:"reason"`
}

// NewAnalysisSession creates a pending session for a file.
func NewAnalysisSession(id, fileID string) *AnalysisSession {
	return &AnalysisSession{
		ID:     id,
		FileID: fileID,
		Status: SessionStatusPending,
	}
}
