package types

// ContextItem is one piece of retrieved research context from any source.
type ContextItem struct {
	Source    string  `json:"source"`
	Text      string  `json:"text"`
	Title     string  `json:"title,omitempty"`
	URL       string  `json:"url,omitempty"`
	Relevance float64 `json:"relevance,omitempty"`
}

// Quality marks how confident the engine is in a run's final answer.
type Quality string

const (
	// QualityHigh means the quality gate passed.
	QualityHigh Quality = "high"
	// QualityLow means the run proceeded with degraded context after
	// exhausting attempts (fail-open policy).
	QualityLow Quality = "low"
)
