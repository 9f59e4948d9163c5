package interfaces

import "context"

// Classifier scores text for harmful content. Score is in [0,1]; the
// category names what was found when the score is meaningful (it may be
// empty for low scores).
type Classifier interface {
	// Score rates text, returning the harm score and its category
	Score(ctx context.Context, text string) (score float64, category string, err error)

	// Name returns the name of the classifier backend
	Name() string
}
