package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/FurqatMashrabjonov/speech-coach/internal/feedback"
)

var scoreCmd = &cobra.Command{
	Use:   "score [transcript-file]",
	Short: "Score a transcript and print the feedback without storing it",
	Long:  "Reads a transcript from the given file, or from stdin when no file or \"-\" is given.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		log, err := newLogger(cmd, cfg)
		if err != nil {
			return err
		}

		transcript, err := readTranscript(cmd, args)
		if err != nil {
			return err
		}

		in := feedback.Input{Transcript: transcript}
		in.Category, _ = cmd.Flags().GetString("category")
		in.ScenarioTitle, _ = cmd.Flags().GetString("title")
		in.ScenarioPrompt, _ = cmd.Flags().GetString("prompt")

		ctx := cmd.Context()
		rt, err := openRuntime(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer rt.Close()

		scorer, err := rt.scorer(ctx)
		if err != nil {
			return err
		}
		fb, err := scorer.Score(ctx, in)
		if err != nil {
			return fmt.Errorf("score transcript: %w", err)
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(fb)
	},
}

func readTranscript(cmd *cobra.Command, args []string) (string, error) {
	var r io.Reader = cmd.InOrStdin()
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return "", fmt.Errorf("open transcript: %w", err)
		}
		defer f.Close()
		r = f
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read transcript: %w", err)
	}
	return string(data), nil
}

func init() {
	scoreCmd.Flags().StringP("category", "c", "", "Practice category (default Conversations)")
	scoreCmd.Flags().String("title", "", "Scenario title")
	scoreCmd.Flags().String("prompt", "", "Scenario prompt")
}
