package archive

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inference-facilitator/pkg/config"
)

func TestParseBlobID(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    string
		wantErr bool
	}{
		{name: "newly created", body: `{"newlyCreated":{"blobObject":{"blobId":"abc","size":10}}}`, want: "abc"},
		{name: "already certified", body: `{"alreadyCertified":{"blobId":"def","endEpoch":20}}`, want: "def"},
		{name: "unknown shape", body: `{"other":{}}`, wantErr: true},
		{name: "not json", body: `oops`, wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseBlobID([]byte(tc.body))
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrUnexpectedResponse)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestWalrus_Upload(t *testing.T) {
	var (
		method, epochs string
		got            []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		epochs = r.URL.Query().Get("epochs")
		got, _ = io.ReadAll(r.Body)
		_, _ = w.Write([]byte(`{"newlyCreated":{"blobObject":{"blobId":"blob-1"}}}`))
	}))
	defer srv.Close()

	u := NewWalrus(config.WalrusConfig{PublisherURL: srv.URL + "/v1/blobs"})
	id, err := u.Upload(context.Background(), []byte(`{"format":"x"}`))
	require.NoError(t, err)
	assert.Equal(t, "blob-1", id)
	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, "10", epochs)
	assert.JSONEq(t, `{"format":"x"}`, string(got))
}

func TestWalrus_UploadError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("storage full"))
	}))
	defer srv.Close()

	_, err := NewWalrus(config.WalrusConfig{PublisherURL: srv.URL, Epochs: 3}).Upload(context.Background(), []byte(`{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
	assert.Contains(t, err.Error(), "storage full")
}

func TestNew(t *testing.T) {
	u, err := New(config.ArchiveConfig{Type: "none"})
	require.NoError(t, err)
	id, err := u.Upload(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, id)

	u, err = New(config.ArchiveConfig{Type: "walrus"})
	require.NoError(t, err)
	assert.IsType(t, &Walrus{}, u)

	_, err = New(config.ArchiveConfig{Type: "s3"})
	assert.Error(t, err)
}
