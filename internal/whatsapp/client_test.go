package whatsapp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientSendText(t *testing.T) {
	var got textMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/123/messages", r.URL.Path)
		assert.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"messages":[{"id":"wamid.1"}]}`))
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL, Token: "secret-token", PhoneNumberID: "123"}, srv.Client())
	require.NoError(t, c.SendText(context.Background(), "+15550001", "hello"))

	assert.Equal(t, "whatsapp", got.MessagingProduct)
	assert.Equal(t, "15550001", got.To)
	assert.Equal(t, "hello", got.Text.Body)
}

func TestClientSendTextReportsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"bad token"}}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL, Token: "x", PhoneNumberID: "123"}, srv.Client())
	err := c.SendText(context.Background(), "1555", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestClientDownloadMedia(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/media-1", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(mediaInfo{URL: srv.URL + "/blob/media-1", MimeType: "image/jpeg"})
	})
	mux.HandleFunc("/blob/media-1", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte("jpeg-bytes"))
	})

	c := NewClient(ClientConfig{BaseURL: srv.URL, Token: "tok", PhoneNumberID: "123"}, srv.Client())
	data, contentType, err := c.DownloadMedia(context.Background(), "media-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg-bytes"), data)
	assert.Equal(t, "image/jpeg", contentType)
}
