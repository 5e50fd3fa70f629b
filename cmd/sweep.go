package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/FurqatMashrabjonov/speech-coach/internal/completion"
	"github.com/FurqatMashrabjonov/speech-coach/internal/sweeper"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Retry stale pending sessions once and print the report",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		log, err := newLogger(cmd, cfg)
		if err != nil {
			return err
		}

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

		coord := completion.New(rt.repo, scorer, cfg.Completion(), log)
		report, err := sweeper.New(rt.repo, coord, rt.locker(), cfg.Sweep(), log).RunOnce(ctx)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}
