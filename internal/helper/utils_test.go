package helper

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateUUID(t *testing.T) {
	a, err := GenerateUUID()
	require.NoError(t, err)
	b, err := GenerateUUID()
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	_, err = uuid.Parse(a)
	assert.NoError(t, err)
}

func TestWithTempFileRemovesFile(t *testing.T) {
	var seen string
	err := WithTempFile("upload-*.docx", []byte("payload"), func(path string) error {
		seen = path
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "payload", string(data))
		assert.Equal(t, ".docx", filepath.Ext(path))
		return nil
	})
	require.NoError(t, err)
	_, err = os.Stat(seen)
	assert.True(t, os.IsNotExist(err))
}

func TestWithTempFileRemovesFileOnError(t *testing.T) {
	boom := errors.New("boom")
	var seen string
	err := WithTempFile("upload-*", nil, func(path string) error {
		seen = path
		return boom
	})
	assert.ErrorIs(t, err, boom)
	_, statErr := os.Stat(seen)
	assert.True(t, os.IsNotExist(statErr))
}

func TestCreateFolder(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	require.NoError(t, CreateFolder(dir))
	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
