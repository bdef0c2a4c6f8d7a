package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/Brownie44l1/vision-api/internal/imaging"
	"github.com/Brownie44l1/vision-api/internal/metrics"
	"github.com/Brownie44l1/vision-api/internal/model"
	"github.com/Brownie44l1/vision-api/internal/worker"
)

const (
	classifierEngine = "classifier"
	captionerEngine  = "captioner"
)

// Endpoints is the static discovery document.
var Endpoints = []model.Endpoint{
	{Route: "GET /", Description: "API info"},
	{Route: "POST /predict", Description: "Image classification (ResNet18)"},
	{Route: "POST /caption", Description: "Generate image captions (BLIP)"},
}

type Classifier interface {
	Classify(tensor *imaging.Tensor) ([]model.Prediction, error)
}

type Captioner interface {
	CaptionBytes(data []byte) (*model.CaptionResponse, error)
}

// Executor runs a blocking job away from the request goroutine. *worker.Pool satisfies it.
type Executor interface {
	Do(ctx context.Context, name string, job func() error) error
}

// VisionService is built once at startup and shared by every request. It holds no
// per-request state; each call decodes and infers from scratch.
type VisionService struct {
	logger       *log.Logger
	executor     Executor
	classifier   Classifier
	captioner    Captioner
	preprocessor imaging.Preprocessor
}

func NewVisionService(logger *log.Logger, executor Executor, classifier Classifier, captioner Captioner) *VisionService {
	return &VisionService{
		logger:       logger,
		executor:     executor,
		classifier:   classifier,
		captioner:    captioner,
		preprocessor: imaging.ImageNet,
	}
}

// SetMaxImagePixels bounds the decoded size of classification uploads.
func (s *VisionService) SetMaxImagePixels(n int) {
	s.preprocessor.MaxPixels = n
}

// Classify decodes upload and returns its top predictions. Decode failures wrap
// model.ErrInvalidImage; everything else wraps model.ErrInferenceFailure or
// model.ErrIndexOutOfRange.
func (s *VisionService) Classify(ctx context.Context, upload []byte) (*model.PredictionResponse, error) {
	if len(upload) == 0 {
		return nil, fmt.Errorf("%w: empty upload", model.ErrInvalidImage)
	}

	start := time.Now()
	var predictions []model.Prediction
	err := s.executor.Do(ctx, classifierEngine, func() error {
		tensor, format, err := s.preprocessor.DecodeAndNormalize(upload)
		if err != nil {
			metrics.ImagePreprocessTotal("error", format)
			return err
		}
		metrics.ImagePreprocessTotal("ok", format)

		predictions, err = s.classifier.Classify(tensor)
		return err
	})
	err = s.finish(classifierEngine, start, err)
	if err != nil {
		return nil, err
	}

	return &model.PredictionResponse{Predictions: predictions}, nil
}

// Caption hands upload to the captioning engine, which does its own preprocessing.
// Errors are split into client and server faults the same way as Classify.
func (s *VisionService) Caption(ctx context.Context, upload []byte) (*model.CaptionResponse, error) {
	if len(upload) == 0 {
		return nil, fmt.Errorf("%w: empty upload", model.ErrInvalidImage)
	}

	start := time.Now()
	var caption *model.CaptionResponse
	err := s.executor.Do(ctx, captionerEngine, func() error {
		var err error
		caption, err = s.captioner.CaptionBytes(upload)
		return err
	})
	err = s.finish(captionerEngine, start, err)
	if err != nil {
		return nil, err
	}

	return caption, nil
}

// Discovery returns the static description of the available operations.
func (s *VisionService) Discovery() *model.DiscoveryResponse {
	endpoints := make(map[string]string, len(Endpoints))
	for _, e := range Endpoints {
		endpoints[e.Route] = e.Description
	}
	return &model.DiscoveryResponse{
		Message:   "API inference ready",
		Endpoints: endpoints,
	}
}

// finish records metrics and makes sure every model error carries a taxonomy kind.
// Requests that never reached a model (caller gone, pool stopped) keep their own error.
func (s *VisionService) finish(engine string, start time.Time, err error) error {
	duration := time.Since(start)

	switch {
	case err == nil:
		metrics.Inference(engine, "ok", duration)
		return nil
	case model.IsClientError(err):
		metrics.Inference(engine, "client_error", duration)
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		metrics.Inference(engine, "canceled", duration)
		return err
	case errors.Is(err, worker.ErrPoolStopped):
		metrics.Inference(engine, "unavailable", duration)
		return err
	case errors.Is(err, model.ErrIndexOutOfRange):
		s.logger.Printf("BUG: %s: classifier and vocabulary disagree: %v\n", engine, err)
	case !model.IsKnown(err):
		err = fmt.Errorf("%w: %v", model.ErrInferenceFailure, err)
		fallthrough
	default:
		s.logger.Printf("%s inference failed: %v\n", engine, err)
	}

	metrics.Inference(engine, "server_error", duration)
	return err
}
