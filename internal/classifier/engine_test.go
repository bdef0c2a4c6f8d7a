package classifier

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Brownie44l1/vision-api/internal/imaging"
	"github.com/Brownie44l1/vision-api/internal/labels"
	"github.com/Brownie44l1/vision-api/internal/model"
)

type fakeRunner struct {
	scores []float32
	width  int
	err    error
	calls  int
}

func (f *fakeRunner) Run(input []float32) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([]float32, len(f.scores))
	copy(out, f.scores)
	return out, nil
}

func (f *fakeRunner) OutputWidth() int {
	if f.width != 0 {
		return f.width
	}
	return len(f.scores)
}

func vocabulary(t *testing.T, n int) *labels.Vocabulary {
	t.Helper()
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("class-%d", i)
	}
	vocab, err := labels.NewVocabulary(names)
	require.NoError(t, err)
	return vocab
}

func tensor() *imaging.Tensor {
	return &imaging.Tensor{Channels: 3, Height: 224, Width: 224, Data: make([]float32, 3*224*224)}
}

func TestClassify_TopFiveDescending(t *testing.T) {
	scores := []float32{0.1, 3.2, -1, 5.5, 2.0, 0.3, 4.1, 1.1}
	engine, err := NewEngine(&fakeRunner{scores: scores}, vocabulary(t, len(scores)))
	require.NoError(t, err)

	predictions, err := engine.Classify(tensor())
	require.NoError(t, err)
	require.Len(t, predictions, TopK)

	want := []string{"class-3", "class-6", "class-1", "class-4", "class-7"}
	for i, p := range predictions {
		require.Equal(t, want[i], p.Label)
		require.GreaterOrEqual(t, p.Score, float32(0))
		require.LessOrEqual(t, p.Score, float32(100))
		if i > 0 {
			require.Less(t, p.Score, predictions[i-1].Score)
		}
	}
}

func TestClassify_TiesKeepIndexOrder(t *testing.T) {
	scores := []float32{1, 2, 2, 2, 0, 2}
	engine, err := NewEngine(&fakeRunner{scores: scores}, vocabulary(t, len(scores)))
	require.NoError(t, err)

	predictions, err := engine.Classify(tensor())
	require.NoError(t, err)

	got := make([]string, len(predictions))
	for i, p := range predictions {
		got[i] = p.Label
	}
	require.Equal(t, []string{"class-1", "class-2", "class-3", "class-5", "class-0"}, got)
}

func TestClassify_SmallVocabulary(t *testing.T) {
	engine, err := NewEngine(&fakeRunner{scores: []float32{1, 2}}, vocabulary(t, 2))
	require.NoError(t, err)

	predictions, err := engine.Classify(tensor())
	require.NoError(t, err)
	require.Len(t, predictions, 2)
}

func TestClassify_Idempotent(t *testing.T) {
	scores := []float32{0.5, 0.1, 0.9, 0.3, 0.7, 0.2}
	engine, err := NewEngine(&fakeRunner{scores: scores}, vocabulary(t, len(scores)))
	require.NoError(t, err)

	first, err := engine.Classify(tensor())
	require.NoError(t, err)
	second, err := engine.Classify(tensor())
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestClassify_RunnerFailure(t *testing.T) {
	engine, err := NewEngine(&fakeRunner{scores: []float32{1, 2}, err: errors.New("shape mismatch")}, vocabulary(t, 2))
	require.NoError(t, err)

	_, err = engine.Classify(tensor())
	require.True(t, errors.Is(err, model.ErrInferenceFailure))
	require.False(t, model.IsClientError(err))
}

func TestClassify_RunnerErrorWrappedOnce(t *testing.T) {
	runErr := fmt.Errorf("%w: running model: shape mismatch", model.ErrInferenceFailure)
	engine, err := NewEngine(&fakeRunner{scores: []float32{1, 2}, err: runErr}, vocabulary(t, 2))
	require.NoError(t, err)

	_, err = engine.Classify(tensor())
	require.True(t, errors.Is(err, model.ErrInferenceFailure))
	require.Equal(t, 1, strings.Count(err.Error(), model.ErrInferenceFailure.Error()))
}

// exclusiveRunner fails a call that starts while another is still running.
type exclusiveRunner struct {
	scores   []float32
	inFlight atomic.Int32
	overlaps atomic.Int32
	calls    atomic.Int32
}

func (r *exclusiveRunner) Run(input []float32) ([]float32, error) {
	r.calls.Add(1)
	if r.inFlight.Add(1) > 1 {
		r.overlaps.Add(1)
	}
	defer r.inFlight.Add(-1)

	time.Sleep(time.Millisecond)
	out := make([]float32, len(r.scores))
	copy(out, r.scores)
	return out, nil
}

func (r *exclusiveRunner) OutputWidth() int {
	return len(r.scores)
}

func TestClassify_ConcurrentCallsAreSerialized(t *testing.T) {
	runner := &exclusiveRunner{scores: []float32{0.5, 2, 1, 4, 3, 0}}
	engine, err := NewEngine(runner, vocabulary(t, len(runner.scores)))
	require.NoError(t, err)

	want, err := engine.Classify(tensor())
	require.NoError(t, err)

	const callers = 16
	results := make([][]model.Prediction, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = engine.Classify(tensor())
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, want, results[i])
	}
	require.Equal(t, int32(callers+1), runner.calls.Load())
	require.Zero(t, runner.overlaps.Load())
}

func TestNewEngine_WidthMismatch(t *testing.T) {
	_, err := NewEngine(&fakeRunner{width: 1000}, vocabulary(t, 999))
	require.True(t, errors.Is(err, model.ErrIndexOutOfRange))
}

func TestSoftmax(t *testing.T) {
	probs := Softmax([]float32{1000, 1000, 1000, 1000})
	var sum float32
	for _, p := range probs {
		require.InDelta(t, 0.25, p, 1e-6)
		sum += p
	}
	require.InDelta(t, 1.0, sum, 1e-6)

	require.Empty(t, Softmax(nil))
}
