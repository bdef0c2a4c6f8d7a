package captioner

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/bytedance/sonic"

	"github.com/Brownie44l1/vision-api/internal/imaging"
	"github.com/Brownie44l1/vision-api/internal/model"
)

const (
	DefaultPrompt       = "a photography of"
	DefaultMaxNewTokens = 50

	encoderFile = "vision_model.onnx"
	decoderFile = "text_decoder.onnx"
)

// ModelConfig holds what generation and preprocessing need from a BLIP export.
type ModelConfig struct {
	BOSTokenID      int64
	EOSTokenID      int64
	PadTokenID      int64
	// CLSTokenID is what the tokenizer puts in front of a prompt; BOS replaces it.
	CLSTokenID      int64
	// SpecialTokenIDs are skipped when decoding a caption.
	SpecialTokenIDs []int64
	MaxNewTokens    int
	Image           imaging.Preprocessor
}

// DefaultModelConfig matches Salesforce/blip-image-captioning-base.
func DefaultModelConfig() ModelConfig {
	return ModelConfig{
		BOSTokenID:      30522,
		EOSTokenID:      102,
		PadTokenID:      0,
		CLSTokenID:      101,
		SpecialTokenIDs: []int64{0, 100, 101, 102, 103, 30522, 30523},
		MaxNewTokens:    DefaultMaxNewTokens,
		Image: imaging.Preprocessor{
			Width:  384,
			Height: 384,
			Filter: imaging.Bicubic,
			Mean:   [3]float32{0.48145466, 0.4578275, 0.40821073},
			Std:    [3]float32{0.26862954, 0.26130258, 0.27577711},
		},
	}
}

type rawModelConfig struct {
	TextConfig *struct {
		BOSTokenID *int64 `json:"bos_token_id"`
		SEPTokenID *int64 `json:"sep_token_id"`
		PadTokenID *int64 `json:"pad_token_id"`
	} `json:"text_config"`
	VisionConfig *struct {
		ImageSize int `json:"image_size"`
	} `json:"vision_config"`
}

type rawPreprocessorConfig struct {
	ImageMean []float32 `json:"image_mean"`
	ImageStd  []float32 `json:"image_std"`
	Size      any       `json:"size"`
}

// LoadModelConfig reads config.json and preprocessor_config.json from dir. Missing files
// keep the defaults; malformed files are an error.
func LoadModelConfig(dir string) (ModelConfig, error) {
	cfg := DefaultModelConfig()

	var raw rawModelConfig
	found, err := readJSON(filepath.Join(dir, "config.json"), &raw)
	if err != nil {
		return cfg, err
	}
	if found {
		if tc := raw.TextConfig; tc != nil {
			if tc.BOSTokenID != nil {
				cfg.BOSTokenID = *tc.BOSTokenID
			}
			if tc.SEPTokenID != nil {
				cfg.EOSTokenID = *tc.SEPTokenID
			}
			if tc.PadTokenID != nil {
				cfg.PadTokenID = *tc.PadTokenID
			}
		}
		if vc := raw.VisionConfig; vc != nil && vc.ImageSize > 0 {
			cfg.Image.Width, cfg.Image.Height = vc.ImageSize, vc.ImageSize
		}
	}

	var preproc rawPreprocessorConfig
	found, err = readJSON(filepath.Join(dir, "preprocessor_config.json"), &preproc)
	if err != nil {
		return cfg, err
	}
	if found {
		if len(preproc.ImageMean) == 3 {
			copy(cfg.Image.Mean[:], preproc.ImageMean)
		}
		if len(preproc.ImageStd) == 3 {
			copy(cfg.Image.Std[:], preproc.ImageStd)
		}
		if w, h := extractImageSize(preproc.Size); w > 0 && h > 0 {
			cfg.Image.Width, cfg.Image.Height = w, h
		}
	}

	cfg.SpecialTokenIDs = appendMissing(cfg.SpecialTokenIDs, cfg.BOSTokenID, cfg.EOSTokenID, cfg.PadTokenID, cfg.CLSTokenID)
	if err := cfg.Image.Validate(); err != nil {
		return cfg, fmt.Errorf("%w: %s: image preprocessing: %v", model.ErrSourceUnavailable, dir, err)
	}
	return cfg, nil
}

func readJSON(path string, v any) (bool, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: reading %s: %v", model.ErrSourceUnavailable, path, err)
	}
	if err := sonic.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("%w: parsing %s: %v", model.ErrSourceUnavailable, path, err)
	}
	return true, nil
}

// extractImageSize accepts both `"size": 384` and `"size": {"height": 384, "width": 384}`.
func extractImageSize(v any) (int, int) {
	switch s := v.(type) {
	case float64:
		return int(s), int(s)
	case map[string]any:
		h, _ := s["height"].(float64)
		w, _ := s["width"].(float64)
		if h == 0 && w == 0 {
			edge, _ := s["shortest_edge"].(float64)
			return int(edge), int(edge)
		}
		return int(w), int(h)
	}
	return 0, 0
}

func appendMissing(ids []int64, extra ...int64) []int64 {
	for _, id := range extra {
		present := false
		for _, existing := range ids {
			if existing == id {
				present = true
				break
			}
		}
		if !present {
			ids = append(ids, id)
		}
	}
	return ids
}
