package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abhisek/answerbot/internal/question"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect the answer cache",
}

// withStack loads config and opens the stores for a maintenance command.
func withStack(cmd *cobra.Command, fn func(ctx context.Context, st *stack) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	st, err := openStack(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(ctx, st)
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show the number of cached answers",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStack(cmd, func(ctx context.Context, st *stack) error {
			stats, err := st.answers.Stats(ctx)
			if err != nil {
				return fmt.Errorf("cache stats: %w", err)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Backend:   %s\n", stats.Backend)
			fmt.Fprintf(w, "Location:  %s\n", st.storeLocation())
			fmt.Fprintf(w, "Entries:   %d\n", stats.Entries)
			return nil
		})
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every cached answer",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStack(cmd, func(ctx context.Context, st *stack) error {
			n, err := st.answers.Clear(ctx)
			if err != nil {
				return fmt.Errorf("clear cache: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d cached answers.\n", n)
			return nil
		})
	},
}

var cacheGetCmd = &cobra.Command{
	Use:   "get [key]",
	Short: "Show a cached answer by key, or by --title/--options",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStack(cmd, func(ctx context.Context, st *stack) error {
			key, err := cacheKeyFromArgs(cmd, args, st.cfg.Engine.IncludeTypeInKey)
			if err != nil {
				return err
			}
			e, err := st.answers.Get(ctx, key)
			if err != nil {
				return fmt.Errorf("get cached answer: %w", err)
			}
			if e == nil {
				return fmt.Errorf("no cached answer for %s", key)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Key:      %s\n", e.Key)
			fmt.Fprintf(w, "Type:     %s\n", e.QuestionType)
			fmt.Fprintf(w, "Cached:   %s\n", e.CreatedAt.Local().Format("2006-01-02 15:04:05"))
			fmt.Fprintf(w, "Title:    %s\n", e.Title)
			if e.Options != "" {
				fmt.Fprintln(w, "Options:")
				for _, o := range strings.Split(e.Options, "\n") {
					fmt.Fprintf(w, "  %s\n", o)
				}
			}
			fmt.Fprintf(w, "Answer:   %s\n", e.Answer)
			return nil
		})
	},
}

func cacheKeyFromArgs(cmd *cobra.Command, args []string, withType bool) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	title, _ := cmd.Flags().GetString("title")
	if strings.TrimSpace(title) == "" {
		return "", fmt.Errorf("pass a key or --title")
	}
	rawOptions, _ := cmd.Flags().GetString("options")
	typeLabel, _ := cmd.Flags().GetString("type")

	q := question.Question{
		Title:   strings.TrimSpace(title),
		Options: question.SplitOptions(rawOptions),
		Type:    question.ParseType(typeLabel),
	}
	return q.Key(withType), nil
}

func init() {
	cacheGetCmd.Flags().StringP("title", "t", "", "Question text to derive the key from")
	cacheGetCmd.Flags().StringP("options", "o", "", "Options, one per line")
	cacheGetCmd.Flags().String("type", "", "Question type")

	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cacheGetCmd)
}
