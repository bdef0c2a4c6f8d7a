package labels

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/Brownie44l1/vision-api/internal/model"
)

// Vocabulary maps classifier output indices to class names. It is immutable once built:
// index i names the same class for the life of the process.
type Vocabulary struct {
	labels []string
}

func NewVocabulary(labels []string) (*Vocabulary, error) {
	if len(labels) == 0 {
		return nil, fmt.Errorf("%w: label vocabulary is empty", model.ErrSourceUnavailable)
	}
	owned := make([]string, len(labels))
	copy(owned, labels)
	return &Vocabulary{labels: owned}, nil
}

// Parse reads one label per line, trimming surrounding whitespace.
func Parse(r io.Reader) (*Vocabulary, error) {
	var labels []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		labels = append(labels, strings.TrimSpace(scanner.Text()))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: failed to read label vocabulary: %v", model.ErrSourceUnavailable, err)
	}
	return NewVocabulary(labels)
}

func (v *Vocabulary) Len() int {
	return len(v.labels)
}

// Lookup returns the label at index. An out-of-range index is a contract violation
// between the classifier and the vocabulary.
func (v *Vocabulary) Lookup(index int) (string, error) {
	if index < 0 || index >= len(v.labels) {
		return "", fmt.Errorf("%w: label index %d outside [0, %d)", model.ErrIndexOutOfRange, index, len(v.labels))
	}
	return v.labels[index], nil
}

// Contains reports whether label is part of the vocabulary.
func (v *Vocabulary) Contains(label string) bool {
	for _, l := range v.labels {
		if l == label {
			return true
		}
	}
	return false
}

func (v *Vocabulary) String() string {
	return strings.Join(v.labels, "\n")
}
