package usecase

import "time"

const defaultNotFoundAnswer = "The answer is not available in the provided documents."

// Options tunes the retrieval-augmentation pipeline.
type Options struct {
	ExpandVariants    int
	ExpandAttempts    int
	RerankAttempts    int
	SynthesisAttempts int
	// BackoffStep is multiplied by the attempt number between decode retries.
	BackoffStep      time.Duration
	RerankCharBudget int
	FanOutWorkers    int
	TopKPerQuery     int
	TopKFinal        int
	NotFoundAnswer   string
}

func DefaultOptions() Options {
	return Options{
		ExpandVariants:    4,
		ExpandAttempts:    4,
		RerankAttempts:    3,
		SynthesisAttempts: 3,
		BackoffStep:       500 * time.Millisecond,
		RerankCharBudget:  2000,
		FanOutWorkers:     6,
		TopKPerQuery:      5,
		TopKFinal:         5,
		NotFoundAnswer:    defaultNotFoundAnswer,
	}
}

func (o Options) normalize() Options {
	out := o
	def := DefaultOptions()

	if out.ExpandVariants <= 0 {
		out.ExpandVariants = def.ExpandVariants
	}
	if out.ExpandAttempts <= 0 {
		out.ExpandAttempts = def.ExpandAttempts
	}
	if out.RerankAttempts <= 0 {
		out.RerankAttempts = def.RerankAttempts
	}
	if out.SynthesisAttempts <= 0 {
		out.SynthesisAttempts = def.SynthesisAttempts
	}
	if out.BackoffStep < 0 {
		out.BackoffStep = def.BackoffStep
	}
	if out.RerankCharBudget <= 0 {
		out.RerankCharBudget = def.RerankCharBudget
	}
	if out.FanOutWorkers <= 0 {
		out.FanOutWorkers = def.FanOutWorkers
	}
	if out.TopKPerQuery <= 0 {
		out.TopKPerQuery = def.TopKPerQuery
	}
	if out.TopKFinal <= 0 {
		out.TopKFinal = def.TopKFinal
	}
	if out.NotFoundAnswer == "" {
		out.NotFoundAnswer = def.NotFoundAnswer
	}
	return out
}
