package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/abhisek/answerbot/internal/engine"
	"github.com/abhisek/answerbot/internal/question"
)

var askCmd = &cobra.Command{
	Use:   "ask",
	Short: "Answer one question on the terminal",
	Example: `  answerbot ask --title "Python中，哪个函数用于获取列表的长度？" \
      --options $'A. size()\nB. length()\nC. len()' --type single`,
	RunE: func(cmd *cobra.Command, args []string) error {
		title, _ := cmd.Flags().GetString("title")
		rawOptions, _ := cmd.Flags().GetString("options")
		typeLabel, _ := cmd.Flags().GetString("type")
		skip, _ := cmd.Flags().GetBool("skip-cache")

		q, err := question.Normalize(title, question.SplitOptions(rawOptions), typeLabel)
		if err != nil {
			return err
		}

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

		out, err := st.newEngine(ctx).Resolve(ctx, engine.Request{
			Question:  q,
			SkipCache: skip || cfg.Server.SkipCache,
		})
		if err != nil {
			var re *engine.ResolutionError
			if errors.As(err, &re) && re.Diagnostic != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "Rejected answer: %s\n", re.Diagnostic)
			}
			return err
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "Answer:      %s\n", out.Answer)
		fmt.Fprintf(w, "Source:      %s\n", out.Source)
		fmt.Fprintf(w, "Key:         %s\n", out.Key)
		if out.Source != engine.SourceCache {
			fmt.Fprintf(w, "Confidence:  %.2f\n", out.Confidence)
		}
		fmt.Fprintf(w, "Calls:       %d model, %d search, %d failed\n", out.ModelCalls, out.SearchCalls, out.Failures)
		return nil
	},
}

func init() {
	askCmd.Flags().StringP("title", "t", "", "Question text")
	askCmd.Flags().StringP("options", "o", "", "Options, one per line")
	askCmd.Flags().String("type", "", "Question type (single, multiple, judgement, completion)")
	askCmd.Flags().Bool("skip-cache", false, "Ignore any cached answer")
	_ = askCmd.MarkFlagRequired("title")
}
