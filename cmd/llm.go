package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/FurqatMashrabjonov/speech-coach/internal/config"
	"github.com/FurqatMashrabjonov/speech-coach/internal/llm"
	"github.com/FurqatMashrabjonov/speech-coach/internal/store"
)

const timeLayout = "2006-01-02 15:04:05"

var llmCmd = &cobra.Command{
	Use:   "llm",
	Short: "Inspect the model request log (sqlite storage only)",
}

var llmListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent model requests",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		purpose, _ := cmd.Flags().GetString("purpose")

		return withEventLog(cmd, func(ctx context.Context, log *store.EventLog, w io.Writer) error {
			events, err := log.QueryLLMEvents(ctx, store.QueryOpts{Limit: limit, Purpose: purpose})
			if err != nil {
				return fmt.Errorf("query events: %w", err)
			}
			if len(events) == 0 {
				fmt.Fprintln(w, "No LLM events found.")
				return nil
			}

			row := "%-5v  %-19v  %-18v  %-28v  %6v  %6v  %7v  %v\n"
			fmt.Fprintf(w, row, "ID", "Timestamp", "Purpose", "Model", "In", "Out", "Ms", "OK")
			rule(w, 104)
			for _, e := range events {
				status := "ok"
				if !e.Success {
					status = "error"
				}
				fmt.Fprintf(w, row, e.ID, e.Timestamp.Local().Format(timeLayout), e.Purpose,
					truncate(e.Model, 28), e.InputTokens, e.OutputTokens, e.LatencyMs, status)
			}
			return nil
		})
	},
}

var llmViewCmd = &cobra.Command{
	Use:   "view <id>",
	Short: "Show the captured request and response of one model call",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid ID %q: %w", args[0], err)
		}

		return withEventLog(cmd, func(ctx context.Context, log *store.EventLog, w io.Writer) error {
			e, err := log.GetLLMEvent(ctx, id)
			if err != nil {
				return fmt.Errorf("get event: %w", err)
			}
			if e == nil {
				return fmt.Errorf("event %d not found", id)
			}

			fields := [][2]string{
				{"ID", strconv.Itoa(e.ID)},
				{"Time", e.Timestamp.Local().Format(timeLayout)},
				{"Provider", e.Provider},
				{"Model", e.Model},
				{"Purpose", e.Purpose},
				{"Tokens", fmt.Sprintf("%d in / %d out", e.InputTokens, e.OutputTokens)},
				{"Latency", fmt.Sprintf("%dms", e.LatencyMs)},
				{"Success", strconv.FormatBool(e.Success)},
			}
			if e.ErrorMessage != "" {
				fields = append(fields, [2]string{"Error", e.ErrorMessage})
			}
			for _, f := range fields {
				fmt.Fprintf(w, "%-10s %s\n", f[0]+":", f[1])
			}

			body(w, "REQUEST", e.RequestBody)
			body(w, "RESPONSE", e.ResponseBody)
			return nil
		})
	},
}

var llmStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show token usage per purpose and estimated cost per model",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEventLog(cmd, func(ctx context.Context, log *store.EventLog, w io.Writer) error {
			usage, err := log.LLMUsageByPurpose(ctx)
			if err != nil {
				return fmt.Errorf("query usage: %w", err)
			}
			if len(usage) == 0 {
				fmt.Fprintln(w, "No LLM usage recorded yet.")
				return nil
			}

			row := "%-18v  %6v  %10v  %10v  %10v  %8v\n"
			fmt.Fprintln(w, "Usage by Purpose")
			rule(w, 72)
			fmt.Fprintf(w, row, "Purpose", "Calls", "Input", "Output", "Total", "Avg Ms")
			rule(w, 72)
			var total store.PurposeUsage
			for _, u := range usage {
				fmt.Fprintf(w, row, u.Purpose, u.Calls, u.InputTokens, u.OutputTokens,
					u.InputTokens+u.OutputTokens, u.AvgLatencyMs)
				total.Calls += u.Calls
				total.InputTokens += u.InputTokens
				total.OutputTokens += u.OutputTokens
			}
			rule(w, 72)
			fmt.Fprintf(w, row, "TOTAL", total.Calls, total.InputTokens, total.OutputTokens,
				total.InputTokens+total.OutputTokens, "")

			models, err := log.LLMUsageByModel(ctx)
			if err != nil {
				return fmt.Errorf("query model usage: %w", err)
			}
			printCosts(w, models)
			return nil
		})
	},
}

// printCosts prices each model from the pricing table. Models without a
// price are listed and excluded from the total.
func printCosts(w io.Writer, models []store.ModelUsage) {
	if len(models) == 0 {
		return
	}

	row := "%-32v  %6v  %10v  %10v  %10v\n"
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Estimated Cost (USD)")
	rule(w, 72)
	fmt.Fprintf(w, row, "Model", "Calls", "Input", "Output", "Cost")
	rule(w, 72)

	var sum float64
	var unpriced []string
	for _, m := range models {
		cost := "?"
		if price := llm.LookupCost(m.Model); price != nil {
			c := price.Cost(m.InputTokens, m.OutputTokens)
			sum += c
			cost = formatCost(c)
		} else {
			unpriced = append(unpriced, m.Model)
		}
		fmt.Fprintf(w, row, truncate(m.Model, 32), m.Calls, m.InputTokens, m.OutputTokens, cost)
	}
	rule(w, 72)

	label := "TOTAL"
	if len(unpriced) > 0 {
		label = "TOTAL (partial)"
	}
	fmt.Fprintf(w, row, label, "", "", "", formatCost(sum))
	if len(unpriced) > 0 {
		fmt.Fprintf(w, "\nPricing unavailable for: %s\n", strings.Join(unpriced, ", "))
	}
}

// withEventLog opens the SQLite database the configured service writes to
// and hands its event log to fn.
func withEventLog(cmd *cobra.Command, fn func(ctx context.Context, log *store.EventLog, w io.Writer) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Storage.Backend != config.BackendSQLite {
		return fmt.Errorf("the model request log is only kept with sqlite storage, not %q", cfg.Storage.Backend)
	}

	path, err := sqlitePath(cfg)
	if err != nil {
		return fmt.Errorf("resolve database path: %w", err)
	}
	s, err := store.Open(path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer s.Close()

	return fn(cmd.Context(), s.EventRepo(), cmd.OutOrStdout())
}

func rule(w io.Writer, width int) {
	fmt.Fprintln(w, strings.Repeat("─", width))
}

func body(w io.Writer, title, text string) {
	fmt.Fprintln(w)
	rule(w, 60)
	fmt.Fprintln(w, title)
	rule(w, 60)
	if text == "" {
		text = "(not captured)"
	}
	fmt.Fprintln(w, text)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

func formatCost(usd float64) string {
	if usd < 0.01 {
		return fmt.Sprintf("$%.4f", usd)
	}
	return fmt.Sprintf("$%.2f", usd)
}

func init() {
	llmListCmd.Flags().IntP("limit", "n", 20, "Number of events to show")
	llmListCmd.Flags().StringP("purpose", "p", "", "Filter by purpose (e.g. session-feedback)")

	llmCmd.AddCommand(llmListCmd)
	llmCmd.AddCommand(llmViewCmd)
	llmCmd.AddCommand(llmStatsCmd)
}
