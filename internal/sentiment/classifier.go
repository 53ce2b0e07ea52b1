package sentiment

import "context"

// Classification is the raw answer from an external text classifier.
// Score uses the same polarity as Observation: 0 negative, 1 positive.
type Classification struct {
	Score      float64  `json:"score"`
	Confidence float64  `json:"confidence"`
	HasBlocker bool     `json:"has_blocker"`
	Terms      []string `json:"terms"`
}

// Classifier is the text-classification boundary. Implementations signal
// unavailability with an error in the classifier_unavailable category.
type Classifier interface {
	Classify(ctx context.Context, text string) (Classification, error)
}

// ClassifierFunc adapts a function to the Classifier interface
type ClassifierFunc func(ctx context.Context, text string) (Classification, error)

// Classify calls f
func (f ClassifierFunc) Classify(ctx context.Context, text string) (Classification, error) {
	return f(ctx, text)
}

// FallbackRecorder is told each time the heuristic stands in for the classifier
type FallbackRecorder interface {
	RecordFallback(reason string)
}
