package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/abhisek/answerbot/internal/config"
	"github.com/abhisek/answerbot/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP answering service",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd)
	},
}

func init() {
	serveCmd.Flags().Bool("skip-cache", false, "Bypass the answer cache for every request")
}

func runServe(cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if skip, _ := cmd.Flags().GetBool("skip-cache"); skip {
		cfg.Server.SkipCache = true
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStack(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	eng := st.newEngine(ctx)
	gin.SetMode(cfg.Server.Mode)
	srv := server.New(eng, server.Options{
		SkipCache:      cfg.Server.SkipCache,
		RequestTimeout: cfg.Server.RequestTimeout,
	}, st.log)

	printBanner(cmd.OutOrStdout(), cfg, st.storeLocation(), eng.SearchEnabled())
	if err := srv.Run(ctx, cfg.Server.Listen); err != nil {
		return err
	}

	if stats, err := st.answers.Stats(context.Background()); err == nil {
		st.log.Info("answer cache",
			zap.String("backend", stats.Backend),
			zap.Int64("entries", stats.Entries),
			zap.Int64("hits", stats.Hits),
			zap.Int64("misses", stats.Misses),
		)
	}
	return nil
}

// wrapperConfig is the AnswererWrapper entry the userscript needs to call
// this service.
type wrapperConfig struct {
	Name        string            `json:"name"`
	URL         string            `json:"url"`
	Method      string            `json:"method"`
	ContentType string            `json:"contentType"`
	Type        string            `json:"type"`
	Headers     map[string]string `json:"headers"`
	Data        map[string]string `json:"data"`
	Handler     string            `json:"handler"`
}

func printBanner(w io.Writer, cfg *config.Config, storeLocation string, searchEnabled bool) {
	base := baseURL(cfg.Server.Listen)
	line := strings.Repeat("=", 60)
	thin := strings.Repeat("-", 60)

	apiBase := cfg.LLM.BaseURL()
	if apiBase == "" {
		apiBase = "(provider default)"
	}
	keyState := "未设置"
	if cfg.LLM.HasAPIKey() {
		keyState = "已设置"
	}
	searchState := "未启用"
	if searchEnabled {
		searchState = "已启用"
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, line)
	fmt.Fprintln(w, "LLM智能答题服务启动成功")
	fmt.Fprintln(w, line)
	fmt.Fprintf(w, "启动时间: %s\n", time.Now().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "服务地址: %s\n", base)
	fmt.Fprintf(w, "API端点: %s/search\n", base)
	fmt.Fprintln(w, thin)
	fmt.Fprintln(w, "环境配置:")
	fmt.Fprintf(w, "  模型: %s (%s)\n", cfg.LLM.ModelID(), cfg.LLM.Provider)
	fmt.Fprintf(w, "  API地址: %s\n", apiBase)
	fmt.Fprintf(w, "  数据库: %s\n", storeLocation)
	fmt.Fprintf(w, "  API密钥: %s\n", keyState)
	fmt.Fprintf(w, "  联网搜索: %s\n", searchState)
	fmt.Fprintf(w, "  置信度阈值: %.2f\n", cfg.Engine.ConfidenceThreshold)
	if cfg.Server.SkipCache {
		fmt.Fprintln(w, "  跳过缓存: 是")
	}
	fmt.Fprintln(w, thin)
	fmt.Fprintln(w, "AnswererWrapper配置:")

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	_ = enc.Encode([]wrapperConfig{{
		Name:        "LLM智能答题",
		URL:         base + "/search",
		Method:      "post",
		ContentType: "json",
		Type:        "GM_xmlhttpRequest",
		Headers:     map[string]string{"Content-Type": "application/json"},
		Data: map[string]string{
			"title":   "${title}",
			"options": "${options}",
			"type":    "${type}",
		},
		Handler: "return (res) => res.code === 1 ? [undefined, res.answer] : [res.msg, undefined]",
	}})
	fmt.Fprintln(w, line)
	fmt.Fprintln(w)
}

// baseURL turns a listen address into the URL clients on this machine use.
func baseURL(listen string) string {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return "http://" + listen
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port)
}
