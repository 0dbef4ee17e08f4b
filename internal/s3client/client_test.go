package s3client

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_PutGetDelete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := TestClient(t, "shots", "refs/")

	require.NoError(t, c.PutObject(ctx, "login.png", []byte("png-bytes"), "image/png"))

	data, err := c.GetObject(ctx, "login.png")
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), data)

	ok, err := c.Exists(ctx, "login.png")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, c.DeleteObject(ctx, "login.png"))

	_, err = c.GetObject(ctx, "login.png")
	assert.True(t, errors.Is(err, ErrObjectNotFound), "got %v", err)

	ok, err = c.Exists(ctx, "login.png")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClient_PrefixIsolatesKeys(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := TestClient(t, "shots", "refs/")
	require.NoError(t, c.PutObject(ctx, "a.png", []byte("a"), "image/png"))

	other := NewFromS3Client(c.s3Client, c.BucketName(), "")
	ok, err := other.Exists(ctx, "a.png")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = other.Exists(ctx, "refs/a.png")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestClient_ListKeys(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := TestClientWithObjects(t, "shots", "refs/", map[string][]byte{
		"grid_1.png": []byte("1"),
		"grid.png":   []byte("0"),
		"form.png":   []byte("f"),
		"grid_2.png": []byte("2"),
	})

	keys, err := c.ListKeys(ctx, "grid")
	require.NoError(t, err)
	assert.Equal(t, []string{"grid.png", "grid_1.png", "grid_2.png"}, keys)

	all, err := c.ListKeys(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 4)
}
