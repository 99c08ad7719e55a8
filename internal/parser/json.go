package parser

import (
	"bytes"
	"os"

	jsoniter "github.com/json-iterator/go"

	"github.com/batteryview/backend/internal/models"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// JSONExportParser handles the charge-controller JSON export:
// an array whose first element holds a "Logs" array of
// {Name, Values: [{T, V}]} entries.
type JSONExportParser struct{}

func NewJSONExportParser() *JSONExportParser {
	return &JSONExportParser{}
}

func (p *JSONExportParser) Name() string {
	return "json_export"
}

// sniffLimit bounds how much of a file CanParse inspects. The "Logs" key
// sits at the very front of a well-formed export.
const sniffLimit = 4096

func (p *JSONExportParser) CanParse(filePath string) (bool, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return false, err
	}
	defer f.Close()

	head := make([]byte, sniffLimit)
	n, err := f.Read(head)
	if n == 0 {
		return false, err
	}
	head = head[:n]

	trimmed := bytes.TrimLeft(head, " \t\r\n")
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return false, nil
	}
	return bytes.Contains(head, []byte(`"Logs"`)), nil
}

func (p *JSONExportParser) Parse(filePath string, opts Options) (*models.ParsedDocument, []*models.ParseError, error) {
	return p.ParseWithProgress(filePath, opts, nil)
}

func (p *JSONExportParser) ParseWithProgress(filePath string, opts Options, onProgress ProgressCallback) (*models.ParsedDocument, []*models.ParseError, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, nil, err
	}
	return ParseDocument(data, opts, onProgress)
}

// Wire shapes. Pointer fields distinguish absent keys from zero values.
type exportSample struct {
	T *string  `json:"T"`
	V *float64 `json:"V"`
}

type exportEntry struct {
	Name   string         `json:"Name"`
	Values []exportSample `json:"Values"`
}

type exportEnvelope struct {
	Logs []exportEntry `json:"Logs"`
}

// ParseDocument parses an in-memory export document into per-metric series.
//
// Failure handling follows three tiers: an unreadable document returns
// *FormatError, a readable document without the Logs shape returns
// *StructureError, and a malformed individual entry is skipped and
// recorded while the rest of the document still parses. Entries with an
// empty Name or empty Values are skipped silently. Metrics that end up
// with no samples never appear in the result.
func ParseDocument(data []byte, opts Options, onProgress ProgressCallback) (*models.ParsedDocument, []*models.ParseError, error) {
	if !json.Valid(data) {
		return nil, nil, &FormatError{}
	}

	var root []jsoniter.RawMessage
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, nil, &StructureError{Reason: "top-level value is not an array"}
	}
	if len(root) == 0 {
		return nil, nil, &StructureError{Reason: "top-level array is empty"}
	}

	var envelope exportEnvelope
	if err := json.Unmarshal(root[0], &envelope); err != nil {
		return nil, nil, &StructureError{Reason: "first element is not an object"}
	}
	if envelope.Logs == nil {
		return nil, nil, &StructureError{Reason: "first element has no Logs field"}
	}

	doc := models.NewParsedDocument()
	parseErrors := make([]*models.ParseError, 0)
	intern := GetGlobalIntern()

	var samplesProcessed int64
	total := len(envelope.Logs)

	for i, entry := range envelope.Logs {
		if entry.Name == "" || len(entry.Values) == 0 {
			continue
		}

		values := entry.Values
		if opts.DropFirstSample && len(values) > 1 {
			values = values[1:]
		}

		// Validate the whole entry before committing any of it, so a
		// skipped entry never shows up partially in the result.
		samples, reason := convertSamples(values)
		if reason != "" {
			parseErrors = append(parseErrors, &models.ParseError{
				Entry:  i,
				Metric: entry.Name,
				Reason: reason,
			})
			continue
		}

		name := intern.Intern(entry.Name)
		series := doc.Series[name]
		if series == nil {
			series = models.NewSeries(name)
			doc.Series[name] = series
		}
		for _, s := range samples {
			series.Samples = append(series.Samples, s)
			doc.Observe(s.Timestamp)
		}
		doc.SampleCount += len(samples)
		samplesProcessed += int64(len(samples))

		if onProgress != nil {
			onProgress(i+1, total, samplesProcessed)
		}
	}

	return doc, parseErrors, nil
}

// convertSamples turns wire samples into model samples, reporting the
// first defect as a non-empty reason.
func convertSamples(values []exportSample) ([]models.Sample, string) {
	samples := make([]models.Sample, 0, len(values))
	for _, v := range values {
		if v.T == nil && v.V == nil {
			return nil, "sample lacks both T and V"
		}
		if v.T == nil {
			return nil, "sample missing timestamp"
		}
		if v.V == nil {
			return nil, "sample missing value"
		}
		ts, err := ParseTimestamp(*v.T)
		if err != nil {
			return nil, "invalid timestamp"
		}
		samples = append(samples, models.Sample{Timestamp: ts, Value: *v.V})
	}
	return samples, ""
}
