package captioner

import (
	"fmt"
	"path/filepath"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/Brownie44l1/vision-api/internal/imaging"
	"github.com/Brownie44l1/vision-api/internal/model"
)

// ONNXModel runs a BLIP export split into a vision encoder and a text decoder.
// Session runs are serialized with one mutex; tensors are created per call.
type ONNXModel struct {
	mu      sync.Mutex
	encoder *ort.DynamicAdvancedSession
	decoder *ort.DynamicAdvancedSession
}

// LoadONNXModel opens vision_model.onnx and text_decoder.onnx from dir.
// model.InitRuntime must have been called.
func LoadONNXModel(dir string) (*ONNXModel, error) {
	encoderPath := filepath.Join(dir, encoderFile)
	encoder, err := ort.NewDynamicAdvancedSession(encoderPath,
		[]string{"pixel_values"}, []string{"last_hidden_state"}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create encoder session %s: %v", model.ErrSourceUnavailable, encoderPath, err)
	}

	decoderPath := filepath.Join(dir, decoderFile)
	decoder, err := ort.NewDynamicAdvancedSession(decoderPath,
		[]string{"input_ids", "attention_mask", "encoder_hidden_states"}, []string{"logits"}, nil)
	if err != nil {
		encoder.Destroy()
		return nil, fmt.Errorf("%w: failed to create decoder session %s: %v", model.ErrSourceUnavailable, decoderPath, err)
	}

	return &ONNXModel{encoder: encoder, decoder: decoder}, nil
}

func (m *ONNXModel) Encode(pixels *imaging.Tensor) (*Encoding, error) {
	input, err := ort.NewTensor(ort.NewShape(pixels.Shape()...), pixels.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to create pixel tensor: %w", err)
	}
	defer input.Destroy()

	outputs := []ort.Value{nil}
	m.mu.Lock()
	err = m.encoder.Run([]ort.Value{input}, outputs)
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	defer outputs[0].Destroy()

	hidden, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected encoder output type %T", outputs[0])
	}

	data := hidden.GetData()
	enc := &Encoding{
		Hidden: make([]float32, len(data)),
		Shape:  append([]int64(nil), hidden.GetShape()...),
	}
	copy(enc.Hidden, data)
	return enc, nil
}

func (m *ONNXModel) NextTokenLogits(enc *Encoding, ids []int64) ([]float32, error) {
	seqShape := ort.NewShape(1, int64(len(ids)))

	inputIDs, err := ort.NewTensor(seqShape, append([]int64(nil), ids...))
	if err != nil {
		return nil, fmt.Errorf("failed to create input_ids tensor: %w", err)
	}
	defer inputIDs.Destroy()

	mask := make([]int64, len(ids))
	for i := range mask {
		mask[i] = 1
	}
	attention, err := ort.NewTensor(seqShape, mask)
	if err != nil {
		return nil, fmt.Errorf("failed to create attention_mask tensor: %w", err)
	}
	defer attention.Destroy()

	hidden, err := ort.NewTensor(ort.NewShape(enc.Shape...), enc.Hidden)
	if err != nil {
		return nil, fmt.Errorf("failed to create encoder_hidden_states tensor: %w", err)
	}
	defer hidden.Destroy()

	outputs := []ort.Value{nil}
	m.mu.Lock()
	err = m.decoder.Run([]ort.Value{inputIDs, attention, hidden}, outputs)
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	defer outputs[0].Destroy()

	logits, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected decoder output type %T", outputs[0])
	}

	// logits are [batch, seq, vocab]; keep the last position.
	shape := logits.GetShape()
	if len(shape) != 3 {
		return nil, fmt.Errorf("unexpected logits shape %v", shape)
	}
	vocab := int(shape[2])
	data := logits.GetData()
	last := make([]float32, vocab)
	copy(last, data[len(data)-vocab:])
	return last, nil
}

func (m *ONNXModel) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.encoder != nil {
		m.encoder.Destroy()
	}
	if m.decoder != nil {
		m.decoder.Destroy()
	}
}
