package objstore_test

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/storacha/ddebsyms/pkg/ddebs/objstore"
	"github.com/stretchr/testify/require"
)

func TestObjectKey(t *testing.T) {
	require.Equal(t, "symbols.zip", objstore.ObjectKey("", "symbols.zip"))
	require.Equal(t, "ubuntu/symbols.zip", objstore.ObjectKey("/ubuntu/", "/symbols.zip"))
	require.Equal(t, "a/b/symbols.zip", objstore.ObjectKey("a/b", "symbols.zip"))
}

func TestConfig(t *testing.T) {
	require.False(t, objstore.Config{}.Enabled())
	require.False(t, objstore.Config{Endpoint: "s3.example.com"}.Enabled())
	require.True(t, objstore.Config{Endpoint: "s3.example.com", Bucket: "symbols"}.Enabled())
}

func TestNewS3Uploader(t *testing.T) {
	fsys := afero.NewMemMapFs()

	t.Run("requires credentials and a bucket", func(t *testing.T) {
		_, err := objstore.NewS3Uploader(fsys, objstore.Config{})
		require.ErrorContains(t, err, "endpoint is required")
		_, err = objstore.NewS3Uploader(fsys, objstore.Config{Endpoint: "s3.example.com", Bucket: "b"})
		require.ErrorContains(t, err, "access key and secret key are required")
		_, err = objstore.NewS3Uploader(fsys, objstore.Config{Endpoint: "s3.example.com", AccessKey: "a", SecretKey: "s"})
		require.ErrorContains(t, err, "bucket is required")
	})

	t.Run("builds a client from a complete config", func(t *testing.T) {
		u, err := objstore.NewS3Uploader(fsys, objstore.Config{
			Endpoint:  "s3.example.com",
			AccessKey: "a",
			SecretKey: "s",
			Bucket:    "symbols",
		})
		require.NoError(t, err)
		require.NotNil(t, u)
	})
}
