package classifier

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/Brownie44l1/vision-api/internal/imaging"
	"github.com/Brownie44l1/vision-api/internal/labels"
	"github.com/Brownie44l1/vision-api/internal/model"
)

// TopK is the number of predictions returned per image.
const TopK = 5

// Runner executes the classifier on one flattened input and returns raw class scores.
// *model.Session satisfies it.
type Runner interface {
	Run(input []float32) ([]float32, error)
	OutputWidth() int
}

// Engine is shared by all requests. Calls into the runner are serialized.
type Engine struct {
	mu     sync.Mutex
	runner Runner
	vocab  *labels.Vocabulary
}

// NewEngine checks that the classifier's output width matches the vocabulary, so every
// index the model can produce has a label.
func NewEngine(runner Runner, vocab *labels.Vocabulary) (*Engine, error) {
	if runner.OutputWidth() != vocab.Len() {
		return nil, fmt.Errorf("%w: classifier emits %d scores but vocabulary has %d labels",
			model.ErrIndexOutOfRange, runner.OutputWidth(), vocab.Len())
	}
	return &Engine{runner: runner, vocab: vocab}, nil
}

// Classify returns the TopK labels for tensor ranked by softmax probability in percent.
func (e *Engine) Classify(tensor *imaging.Tensor) ([]model.Prediction, error) {
	e.mu.Lock()
	scores, err := e.runner.Run(tensor.Data)
	e.mu.Unlock()
	if err != nil {
		if errors.Is(err, model.ErrInferenceFailure) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", model.ErrInferenceFailure, err)
	}
	if len(scores) != e.vocab.Len() {
		return nil, fmt.Errorf("%w: got %d scores for %d labels", model.ErrInferenceFailure, len(scores), e.vocab.Len())
	}

	percentages := Softmax(scores)
	for i := range percentages {
		percentages[i] *= 100
	}

	indices := make([]int, len(percentages))
	for i := range indices {
		indices[i] = i
	}
	sort.SliceStable(indices, func(a, b int) bool {
		return percentages[indices[a]] > percentages[indices[b]]
	})

	k := TopK
	if len(indices) < k {
		k = len(indices)
	}

	predictions := make([]model.Prediction, 0, k)
	for _, idx := range indices[:k] {
		label, err := e.vocab.Lookup(idx)
		if err != nil {
			return nil, err
		}
		predictions = append(predictions, model.Prediction{Label: label, Score: percentages[idx]})
	}
	return predictions, nil
}

// Softmax turns raw scores into probabilities summing to 1. The max is subtracted first
// to keep exp from overflowing.
func Softmax(scores []float32) []float32 {
	out := make([]float32, len(scores))
	if len(scores) == 0 {
		return out
	}

	maxScore := scores[0]
	for _, s := range scores[1:] {
		if s > maxScore {
			maxScore = s
		}
	}

	var sum float64
	for i, s := range scores {
		e := math.Exp(float64(s - maxScore))
		out[i] = float32(e)
		sum += e
	}
	for i := range out {
		out[i] = float32(float64(out[i]) / sum)
	}
	return out
}
