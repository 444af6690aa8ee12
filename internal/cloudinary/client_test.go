package cloudinary

import (
	"context"
	"crypto/sha1"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignSortsAndSkipsUnsignedParams(t *testing.T) {
	c := New("demo", "key", "secret", "")
	got := c.sign(map[string]string{"timestamp": "100", "folder": "club", "api_key": "key", "file": "x"})
	want := fmt.Sprintf("%x", sha1.Sum([]byte("folder=club&timestamp=100secret")))
	assert.Equal(t, want, got)
}

func TestUpload(t *testing.T) {
	var gotPath string
	var gotFields map[string]string
	var gotFile string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, r.ParseMultipartForm(1<<20))
		gotFields = map[string]string{}
		for k, v := range r.MultipartForm.Value {
			gotFields[k] = v[0]
		}
		f, _, err := r.FormFile("file")
		require.NoError(t, err)
		data, _ := io.ReadAll(f)
		gotFile = string(data)
		_, _ = w.Write([]byte(`{"public_id":"club/abc","secure_url":"https://cdn/abc.mp4","resource_type":"video","bytes":5}`))
	}))
	defer srv.Close()

	c := New("demo", "key", "secret", "club")
	c.BaseURL = srv.URL
	c.now = func() time.Time { return time.Unix(1700000000, 0) }

	res, err := c.Upload(context.Background(), strings.NewReader("hello"), "intro.mp4", Video)
	require.NoError(t, err)
	assert.Equal(t, "/demo/video/upload", gotPath)
	assert.Equal(t, "hello", gotFile)
	assert.Equal(t, "1700000000", gotFields["timestamp"])
	assert.Equal(t, "key", gotFields["api_key"])
	assert.Equal(t, c.sign(map[string]string{"timestamp": "1700000000", "folder": "club"}), gotFields["signature"])
	assert.Equal(t, "https://cdn/abc.mp4", res.SecureURL)
	assert.Equal(t, Video, res.ResourceType)
}

func TestUploadErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"Invalid Signature"}}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := New("demo", "key", "secret", "")
	c.BaseURL = srv.URL
	_, err := c.Upload(context.Background(), strings.NewReader("x"), "a.png", Image)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")

	_, err = c.Upload(context.Background(), strings.NewReader("x"), "a.exe", "binary")
	assert.Error(t, err)
}
