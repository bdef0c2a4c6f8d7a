package captioner

import (
	"fmt"

	"github.com/gomlx/go-huggingface/hub"
	"github.com/gomlx/go-huggingface/tokenizers"

	"github.com/Brownie44l1/vision-api/internal/model"
)

// LoadTokenizer loads the tokenizer paired with the caption model from the Hugging Face
// hub, using cacheDir when it already holds the files.
func LoadTokenizer(repoID, cacheDir, authToken string) (Tokenizer, error) {
	repo := hub.New(repoID)
	if cacheDir != "" {
		repo = repo.WithCacheDir(cacheDir)
	}
	if authToken != "" {
		repo = repo.WithAuth(authToken)
	}

	tokenizer, err := tokenizers.New(repo)
	if err != nil {
		return nil, fmt.Errorf("%w: loading tokenizer %s: %v", model.ErrSourceUnavailable, repoID, err)
	}
	return tokenizer, nil
}
