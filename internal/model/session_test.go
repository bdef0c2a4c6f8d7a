package model

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadMetadata_Defaults(t *testing.T) {
	path := writeFile(t, "meta.json", `{"input_shape":[1,3,224,224],"output_shape":[1,1000],"image_size":224}`)

	meta, err := LoadMetadata(path)
	require.NoError(t, err)
	require.Equal(t, "input", meta.InputName)
	require.Equal(t, "output", meta.OutputName)
	require.Equal(t, []int64{1, 3, 224, 224}, meta.InputShape)
	require.Equal(t, 224, meta.ImageSize)
}

func TestLoadMetadata_Errors(t *testing.T) {
	cases := map[string]string{
		"missing": filepath.Join(t.TempDir(), "absent.json"),
		"garbage": writeFile(t, "bad.json", `{not json`),
		"shapes":  writeFile(t, "empty.json", `{"input_name":"x"}`),
	}
	for name, path := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadMetadata(path)
			require.Error(t, err)
			require.True(t, errors.Is(err, ErrSourceUnavailable))
		})
	}
}

func TestIsClientError(t *testing.T) {
	require.True(t, IsClientError(errors.Join(ErrInvalidImage)))
	require.False(t, IsClientError(ErrInferenceFailure))
	require.True(t, IsKnown(ErrIndexOutOfRange))
	require.False(t, IsKnown(errors.New("boom")))
}
