package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/abhisek/answerbot/internal/engine"
	"github.com/abhisek/answerbot/internal/question"
)

const (
	msgEmptyTitle     = "题目不能为空"
	msgMissingOptions = "选择题缺少选项"
	msgBadBody        = "请求格式错误"
	msgUnknown        = "未知错误"
)

// searchBody is the POST payload. options may be a newline separated string
// or an array; skip_cache may be a boolean or a string.
type searchBody struct {
	Title     string          `json:"title"`
	Options   json.RawMessage `json:"options"`
	Type      string          `json:"type"`
	SkipCache json.RawMessage `json:"skip_cache"`
}

type searchParams struct {
	title     string
	options   []string
	typeLabel string
	skipCache bool
}

// okResponse and errResponse are the two envelopes the userscript handler
// understands. Both are sent with HTTP 200.
type okResponse struct {
	Code     int    `json:"code"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

type errResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func (s *Server) search(c *gin.Context) {
	p, err := readParams(c)
	if err != nil {
		s.log.Debug("bad search request", zap.Error(err))
		c.JSON(http.StatusOK, errResponse{Msg: msgBadBody})
		return
	}

	if strings.TrimSpace(p.title) == "" {
		c.JSON(http.StatusOK, errResponse{Msg: msgEmptyTitle})
		return
	}
	q, err := question.Normalize(p.title, p.options, p.typeLabel)
	if err != nil {
		c.JSON(http.StatusOK, errResponse{Msg: msgMissingOptions})
		return
	}

	log := s.log.With(zap.String("request_id", c.GetString(requestIDKey)))
	log.Info("question received",
		zap.String("type", string(q.Type)),
		zap.String("title", preview(q.Title)),
		zap.Int("options", len(q.Options)),
		zap.Bool("skip_cache", p.skipCache || s.opts.SkipCache),
	)

	ctx := c.Request.Context()
	if s.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.RequestTimeout)
		defer cancel()
	}

	out, err := s.resolver.Resolve(ctx, engine.Request{
		Question:  q,
		SkipCache: p.skipCache || s.opts.SkipCache,
	})
	if err != nil {
		msg := msgUnknown
		var re *engine.ResolutionError
		if errors.As(err, &re) {
			msg = re.Public()
		}
		log.Warn("resolution failed", zap.Error(err))
		c.JSON(http.StatusOK, errResponse{Msg: msg})
		return
	}

	log.Info("answered",
		zap.String("key", out.Key),
		zap.String("source", string(out.Source)),
		zap.Int("model_calls", out.ModelCalls),
		zap.Int("search_calls", out.SearchCalls),
	)
	c.JSON(http.StatusOK, okResponse{Code: 1, Question: q.Title, Answer: out.Answer})
}

func readParams(c *gin.Context) (searchParams, error) {
	if c.Request.Method != http.MethodPost {
		return searchParams{
			title:     c.Query("title"),
			options:   question.SplitOptions(c.Query("options")),
			typeLabel: c.Query("type"),
			skipCache: strings.EqualFold(c.Query("skip_cache"), "true"),
		}, nil
	}

	var body searchBody
	if err := c.ShouldBindJSON(&body); err != nil {
		return searchParams{}, err
	}
	options, err := decodeOptions(body.Options)
	if err != nil {
		return searchParams{}, err
	}
	return searchParams{
		title:     body.Title,
		options:   options,
		typeLabel: body.Type,
		skipCache: decodeFlag(body.SkipCache),
	}, nil
}

func decodeOptions(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return question.SplitOptions(text), nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, errors.New("options must be a string or an array of strings")
	}
	return list, nil
}

func decodeFlag(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return strings.EqualFold(strings.TrimSpace(text), "true")
	}
	return false
}

func preview(s string) string {
	r := []rune(s)
	if len(r) <= 100 {
		return s
	}
	return string(r[:100]) + "..."
}
