package models

// RemainingComparison contrasts remaining-cycle estimates of the full and
// sampled datasets.
type RemainingComparison struct {
	Full          float64 `json:"full"`
	Sample        float64 `json:"sample"`
	AbsoluteError float64 `json:"absoluteError"`
}

// ComparisonResult quantifies the data reduction between a full export and
// a downsampled export of the same device.
type ComparisonResult struct {
	ReferenceVoltage float64             `json:"referenceVoltage"`
	Strategy         string              `json:"strategy"`
	PerMetric        map[string]float64  `json:"perMetric"` // metric -> compression percent
	Remaining        RemainingComparison `json:"remaining"`
}

// ComparisonSession tracks an asynchronous full-vs-sample comparison run.
type ComparisonSession struct {
	ID           string            `json:"id"`
	FullFileID   string            `json:"fullFileId"`
	SampleFileID string            `json:"sampleFileId"`
	Status       SessionStatus     `json:"status"`
	Progress     float64           `json:"progress"`            // 0-100
	StartTime    int64             `json:"startTime,omitempty"` // Unix ms
	EndTime      int64             `json:"endTime,omitempty"`   // Unix ms
	Error        string            `json:"error,omitempty"`
	Result       *ComparisonResult `json:"result,omitempty"`
}
