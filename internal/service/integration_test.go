package service

import (
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Brownie44l1/vision-api/internal/captioner"
	"github.com/Brownie44l1/vision-api/internal/classifier"
	"github.com/Brownie44l1/vision-api/internal/labels"
	"github.com/Brownie44l1/vision-api/internal/model"
	"github.com/Brownie44l1/vision-api/internal/worker"
)

// TestVisionService_RealModels runs both engines end to end. VISION_MODEL_DIR must hold
// resnet18.onnx, resnet18_metadata.json, imagenet_classes.txt, labrador.jpg and the
// exported BLIP directory blip-image-captioning-base/.
func TestVisionService_RealModels(t *testing.T) {
	dir := os.Getenv("VISION_MODEL_DIR")
	if dir == "" {
		t.Skip("VISION_MODEL_DIR not set")
	}

	require.NoError(t, model.InitRuntime(os.Getenv("ORT_LIBRARY_PATH")))
	t.Cleanup(model.DestroyRuntime)

	logger := log.New(io.Discard, "", 0)
	vocab, err := labels.NewLoader(logger, filepath.Join(dir, "imagenet_classes.txt"), "", 0).Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1000, vocab.Len())

	session, err := model.NewSession(filepath.Join(dir, "resnet18.onnx"), filepath.Join(dir, "resnet18_metadata.json"))
	require.NoError(t, err)
	t.Cleanup(session.Close)

	classifierEngine, err := classifier.NewEngine(session, vocab)
	require.NoError(t, err)

	blipDir := filepath.Join(dir, "blip-image-captioning-base")
	captionCfg, err := captioner.LoadModelConfig(blipDir)
	require.NoError(t, err)
	captionModel, err := captioner.LoadONNXModel(blipDir)
	require.NoError(t, err)
	t.Cleanup(captionModel.Close)
	tokenizer, err := captioner.LoadTokenizer("Salesforce/blip-image-captioning-base", filepath.Join(dir, "hf-cache"), os.Getenv("HF_TOKEN"))
	require.NoError(t, err)

	pool := worker.NewPool(logger, 1, 4)
	t.Cleanup(pool.Stop)

	svc := NewVisionService(logger, pool, classifierEngine, captioner.NewEngine(captionModel, tokenizer, captionCfg, captioner.DefaultPrompt))

	upload, err := os.ReadFile(filepath.Join(dir, "labrador.jpg"))
	require.NoError(t, err)

	predictions, err := svc.Classify(context.Background(), upload)
	require.NoError(t, err)
	require.Len(t, predictions.Predictions, classifier.TopK)
	top := make([]string, 0, len(predictions.Predictions))
	for _, p := range predictions.Predictions {
		top = append(top, p.Label)
	}
	require.Contains(t, top, "Labrador retriever")
	for i := 1; i < len(predictions.Predictions); i++ {
		require.GreaterOrEqual(t, predictions.Predictions[i-1].Score, predictions.Predictions[i].Score)
	}

	again, err := svc.Classify(context.Background(), upload)
	require.NoError(t, err)
	require.Equal(t, predictions, again)

	captions, err := svc.Caption(context.Background(), upload)
	require.NoError(t, err)
	require.NotEmpty(t, captions.SimpleCaption)
	require.True(t, strings.HasPrefix(captions.DetailedCaption, captioner.DefaultPrompt), captions.DetailedCaption)
	require.Contains(t, strings.ToLower(captions.SimpleCaption+" "+captions.DetailedCaption), "dog")
}
