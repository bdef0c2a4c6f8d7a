package captioner

import (
	"fmt"
	"image"
	"strings"

	"github.com/Brownie44l1/vision-api/internal/imaging"
	"github.com/Brownie44l1/vision-api/internal/model"
)

// Encoding is the vision encoder output for one image. Each generation pass gets its own.
type Encoding struct {
	Hidden []float32
	Shape  []int64
}

// Model is a vision encoder paired with an autoregressive text decoder.
type Model interface {
	Encode(pixels *imaging.Tensor) (*Encoding, error)
	// NextTokenLogits returns the vocabulary scores for the token following ids.
	NextTokenLogits(enc *Encoding, ids []int64) ([]float32, error)
}

// Tokenizer is the text side of the captioning processor.
type Tokenizer interface {
	Encode(text string) []int
	Decode(ids []int) string
}

type Engine struct {
	model     Model
	tokenizer Tokenizer
	cfg       ModelConfig
	prompt    string
	special   map[int64]struct{}
	framing   map[int64]struct{}
}

func NewEngine(m Model, tokenizer Tokenizer, cfg ModelConfig, prompt string) *Engine {
	if cfg.MaxNewTokens <= 0 {
		cfg.MaxNewTokens = DefaultMaxNewTokens
	}
	special := make(map[int64]struct{}, len(cfg.SpecialTokenIDs))
	for _, id := range cfg.SpecialTokenIDs {
		special[id] = struct{}{}
	}
	framing := map[int64]struct{}{
		cfg.CLSTokenID: {},
		cfg.EOSTokenID: {},
		cfg.PadTokenID: {},
	}
	return &Engine{
		model:     m,
		tokenizer: tokenizer,
		cfg:       cfg,
		prompt:    prompt,
		special:   special,
		framing:   framing,
	}
}

// CaptionBytes decodes data itself and captions it.
func (e *Engine) CaptionBytes(data []byte) (*model.CaptionResponse, error) {
	img, _, err := imaging.Decode(data, e.cfg.Image.MaxPixels)
	if err != nil {
		return nil, err
	}
	return e.Caption(img)
}

// Caption runs an unconditioned pass and a prompt-conditioned pass over img.
func (e *Engine) Caption(img image.Image) (*model.CaptionResponse, error) {
	simple, err := e.generate(img, "")
	if err != nil {
		return nil, err
	}

	detailed, err := e.generate(img, e.prompt)
	if err != nil {
		return nil, err
	}

	return &model.CaptionResponse{
		SimpleCaption:   simple,
		DetailedCaption: detailed,
	}, nil
}

// generate encodes img and decodes greedily for at most MaxNewTokens tokens.
// Nothing is shared between calls.
func (e *Engine) generate(img image.Image, prompt string) (string, error) {
	pixels, err := e.cfg.Image.Normalize(img)
	if err != nil {
		return "", err
	}

	encoding, err := e.model.Encode(pixels)
	if err != nil {
		return "", fmt.Errorf("%w: encoding image: %v", model.ErrInferenceFailure, err)
	}

	ids := e.startTokens(prompt)
	for step := 0; step < e.cfg.MaxNewTokens; step++ {
		logits, err := e.model.NextTokenLogits(encoding, ids)
		if err != nil {
			return "", fmt.Errorf("%w: decoding step %d: %v", model.ErrInferenceFailure, step, err)
		}
		if len(logits) == 0 {
			return "", fmt.Errorf("%w: decoder returned no logits", model.ErrInferenceFailure)
		}

		next := int64(argmax(logits))
		if next == e.cfg.EOSTokenID {
			break
		}
		ids = append(ids, next)
	}

	text := e.decode(ids)
	if text == "" {
		return "", fmt.Errorf("%w: model produced an empty caption", model.ErrInferenceFailure)
	}
	return text, nil
}

// startTokens is BOS followed by the prompt without the CLS, SEP and PAD framing the
// tokenizer adds. Other ids, [UNK] included, stay in the prompt.
func (e *Engine) startTokens(prompt string) []int64 {
	ids := []int64{e.cfg.BOSTokenID}
	if prompt == "" {
		return ids
	}
	for _, id := range e.tokenizer.Encode(prompt) {
		if _, skip := e.framing[int64(id)]; skip {
			continue
		}
		ids = append(ids, int64(id))
	}
	return ids
}

func (e *Engine) decode(ids []int64) string {
	kept := make([]int, 0, len(ids))
	for _, id := range ids {
		if _, skip := e.special[id]; skip {
			continue
		}
		kept = append(kept, int(id))
	}
	if len(kept) == 0 {
		return ""
	}
	return strings.TrimSpace(e.tokenizer.Decode(kept))
}

// argmax returns the first index holding the largest value.
func argmax(values []float32) int {
	best := 0
	for i, v := range values[1:] {
		if v > values[best] {
			best = i + 1
		}
	}
	return best
}
