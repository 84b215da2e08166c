package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripMarkdownCodeBlock(t *testing.T) {
	cases := map[string]string{
		"```json\n{\"a\":1}\n```": `{"a":1}`,
		"```\n{\"a\":1}\n```":     `{"a":1}`,
		`{"a":1}`:                 `{"a":1}`,
	}
	for in, want := range cases {
		assert.Equal(t, want, stripMarkdownCodeBlock(in))
	}
}

func TestReviewSignal_ParsesFencedJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := chatResponse{}
		resp.Choices = []struct {
			Message chatMessage `json:"message"`
		}{
			{Message: chatMessage{Role: "assistant", Content: "```json\n{\"approved\":true,\"confidence\":0.9,\"side\":\"long\",\"reasoning\":\"ok\"}\n```"}},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	client := New(Config{CheapBaseURL: srv.URL, CheapModel: "cheap-test"}, zerolog.Nop())

	result, err := client.ReviewSignal(context.Background(), "review this", true)
	require.NoError(t, err)
	assert.True(t, result.Approved)
	assert.Equal(t, "cheap", result.Source)
	assert.InDelta(t, 0.9, result.Confidence, 0.001)
}

func TestReviewSignal_FatalOn4xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := New(Config{CheapBaseURL: srv.URL, CheapModel: "cheap-test"}, zerolog.Nop())

	_, err := client.ReviewSignal(context.Background(), "review this", true)
	require.Error(t, err)
}
