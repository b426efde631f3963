package classifier

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsNoIssue(t *testing.T) {
	for _, label := range []string{"none", " NONE.", "None of the listed", "no issue detected", "`none`"} {
		assert.True(t, IsNoIssue(label), label)
	}
	for _, label := range []string{"electrical", "water", "general"} {
		assert.False(t, IsNoIssue(label), label)
	}
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "electrical", Normalize("  Electrical.\n"))
	assert.Equal(t, "water", Normalize(`"Water"`))
}

func TestGeminiClassify(t *testing.T) {
	image := []byte{0xff, 0xd8, 0xff, 0xe0, 'j', 'p', 'g'}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1beta/models/gemini-test:generateContent", r.URL.Path)
		assert.Equal(t, "secret", r.URL.Query().Get("key"))

		var req generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Contents, 1)
		require.Len(t, req.Contents[0].Parts, 2)
		assert.Equal(t, "image/jpeg", req.Contents[0].Parts[1].InlineData.MimeType)
		assert.Equal(t, base64.StdEncoding.EncodeToString(image), req.Contents[0].Parts[1].InlineData.Data)

		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":" Electrical\n"}]}}]}`))
	}))
	defer srv.Close()

	c := NewGemini(GeminiConfig{BaseURL: srv.URL, APIKey: "secret", Model: "gemini-test"}, srv.Client())
	label, err := c.Classify(context.Background(), image, "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, "electrical", label)
}

func TestGeminiClassifyFailures(t *testing.T) {
	cases := map[string]struct {
		status int
		body   string
	}{
		"server error":   {http.StatusInternalServerError, `{"error":{"code":500,"message":"boom"}}`},
		"no candidates":  {http.StatusOK, `{"candidates":[]}`},
		"empty text":     {http.StatusOK, `{"candidates":[{"content":{"parts":[{"text":"  "}]}}]}`},
		"malformed json": {http.StatusOK, `{`},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			c := NewGemini(GeminiConfig{BaseURL: srv.URL, APIKey: "k"}, srv.Client())
			_, err := c.Classify(context.Background(), []byte("img"), "image/png")
			assert.Error(t, err)
		})
	}
}

func TestGeminiRejectsEmptyImage(t *testing.T) {
	c := NewGemini(GeminiConfig{APIKey: "k"}, nil)
	_, err := c.Classify(context.Background(), nil, "image/png")
	assert.Error(t, err)
}
