package model

import (
	"fmt"
	"os"
	"sync"

	"github.com/bytedance/sonic"
	ort "github.com/yalue/onnxruntime_go"
)

const (
	defaultInputName  = "input"
	defaultOutputName = "output"
)

// Session is a loaded fixed-shape model with its input and output tensors bound once.
// The bound tensors are shared, so Run holds a mutex for the whole copy-in, run, copy-out cycle.
type Session struct {
	mu           sync.Mutex
	session      *ort.AdvancedSession
	Metadata     Metadata
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
}

// LoadMetadata reads the JSON metadata exported next to a model.
func LoadMetadata(metadataPath string) (Metadata, error) {
	var metadata Metadata

	metaFile, err := os.ReadFile(metadataPath)
	if err != nil {
		return metadata, fmt.Errorf("%w: failed to read metadata: %v", ErrSourceUnavailable, err)
	}
	if err := sonic.Unmarshal(metaFile, &metadata); err != nil {
		return metadata, fmt.Errorf("%w: failed to parse metadata: %v", ErrSourceUnavailable, err)
	}
	if len(metadata.InputShape) == 0 || len(metadata.OutputShape) == 0 {
		return metadata, fmt.Errorf("%w: metadata %s has no input or output shape", ErrSourceUnavailable, metadataPath)
	}
	if metadata.InputName == "" {
		metadata.InputName = defaultInputName
	}
	if metadata.OutputName == "" {
		metadata.OutputName = defaultOutputName
	}
	return metadata, nil
}

// NewSession opens modelPath with the shapes from metadataPath. InitRuntime must have been called.
func NewSession(modelPath, metadataPath string) (*Session, error) {
	metadata, err := LoadMetadata(metadataPath)
	if err != nil {
		return nil, err
	}

	inputShape := ort.NewShape(metadata.InputShape...)
	outputShape := ort.NewShape(metadata.OutputShape...)

	inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create input tensor: %v", ErrSourceUnavailable, err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("%w: failed to create output tensor: %v", ErrSourceUnavailable, err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{metadata.InputName}, []string{metadata.OutputName},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("%w: failed to create ONNX session for %s: %v", ErrSourceUnavailable, modelPath, err)
	}

	return &Session{
		session:      session,
		Metadata:     metadata,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
	}, nil
}

// InputSize is the number of float32 values one input holds.
func (s *Session) InputSize() int {
	return int(ort.NewShape(s.Metadata.InputShape...).FlattenedSize())
}

// OutputWidth is the size of the last output dimension, the number of classes for a classifier.
func (s *Session) OutputWidth() int {
	return int(s.Metadata.OutputShape[len(s.Metadata.OutputShape)-1])
}

// Run executes the model on inputData and returns a private copy of the output.
func (s *Session) Run(inputData []float32) ([]float32, error) {
	if len(inputData) != s.InputSize() {
		return nil, fmt.Errorf("%w: expected %d input values, got %d", ErrInferenceFailure, s.InputSize(), len(inputData))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copy(s.inputTensor.GetData(), inputData)

	if err := s.session.Run(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInferenceFailure, err)
	}

	outputData := s.outputTensor.GetData()
	out := make([]float32, len(outputData))
	copy(out, outputData)
	return out, nil
}

func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inputTensor != nil {
		s.inputTensor.Destroy()
	}
	if s.outputTensor != nil {
		s.outputTensor.Destroy()
	}
	if s.session != nil {
		s.session.Destroy()
	}
}
