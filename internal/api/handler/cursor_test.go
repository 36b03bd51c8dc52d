package handler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUploadCursor(t *testing.T) {
	for _, id := range []string{"a", "photo-1", "ids/with+symbols=="} {
		decoded, err := DecodeUploadCursor(EncodeUploadCursor(id))
		require.NoError(t, err)
		assert.Equal(t, id, decoded)
	}

	decoded, err := DecodeUploadCursor("")
	require.NoError(t, err)
	assert.Empty(t, decoded)

	_, err = DecodeUploadCursor("not base64!")
	assert.Error(t, err)
}
