package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/answerbot/internal/question"
)

func TestExaClient_Search(t *testing.T) {
	var got exaRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "exa-key", r.Header.Get("x-api-key"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"results":[
			{"title":"Python len()","url":"https://docs.python.org","highlights":["len(s) returns the length","works on lists"]},
			{"title":"","highlights":[]},
			{"title":"extra","highlights":["x"]},
			{"title":"dropped","highlights":["y"]}
		]}`))
	}))
	defer srv.Close()

	c := NewExaClient(Config{APIKey: "exa-key", BaseURL: srv.URL + "/"})
	snippets, err := c.Search(context.Background(), question.Question{
		Title:   "哪个函数获取列表长度？",
		Options: []string{"A. size()", "C. len()"},
		Type:    question.TypeSingle,
	})
	require.NoError(t, err)

	assert.Equal(t, "哪个函数获取列表长度？ A. size()\nC. len()", got.Query)
	assert.True(t, got.UseAutoprompt)
	assert.Equal(t, 3, got.NumResults)
	assert.False(t, got.Contents.Text)
	assert.True(t, got.Contents.Highlights)

	require.Len(t, snippets, 3)
	assert.Equal(t, "【结果 1】\n标题: Python len()\n相关内容:\n  - len(s) returns the length\n  - works on lists", snippets[0])
	assert.Equal(t, "【结果 2】\n标题: 无标题\n相关内容: 无高亮内容", snippets[1])
	assert.NotContains(t, snippets[0], "来源")
}

func TestExaClient_IncludeURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":[{"title":"t","url":"https://example.com","highlights":["h"]}]}`))
	}))
	defer srv.Close()

	c := NewExaClient(Config{APIKey: "k", BaseURL: srv.URL, IncludeURL: true, NumResults: 1})
	snippets, err := c.Search(context.Background(), question.Question{Title: "t", Type: question.TypeJudgement})
	require.NoError(t, err)
	require.Len(t, snippets, 1)
	assert.Contains(t, snippets[0], "来源: https://example.com\n")
}

func TestExaClient_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := NewExaClient(Config{APIKey: "k", BaseURL: srv.URL}).
		Search(context.Background(), question.Question{Title: "t"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 401")
}

func TestExaClient_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := NewExaClient(Config{APIKey: "k", BaseURL: srv.URL, Timeout: 50 * time.Millisecond})
	_, err := c.Search(context.Background(), question.Question{Title: "t"})
	assert.Error(t, err)
}

func TestBuildQuery(t *testing.T) {
	assert.Equal(t, "statement", BuildQuery(question.Question{
		Title: "statement", Options: []string{"ignored"}, Type: question.TypeJudgement,
	}))
	assert.Equal(t, "pick A\nB", BuildQuery(question.Question{
		Title: "pick", Options: []string{"A", "B"}, Type: question.TypeMultiple,
	}))
}

func TestConfig_Enabled(t *testing.T) {
	assert.False(t, Config{}.Enabled())
	assert.True(t, Config{APIKey: "k"}.Enabled())
}
