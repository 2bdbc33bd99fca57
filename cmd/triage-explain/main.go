package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mikey/llm-mail-triage/internal/adapters/mailbox"
	"github.com/mikey/llm-mail-triage/internal/config"
	"github.com/mikey/llm-mail-triage/internal/core"
	"github.com/mikey/llm-mail-triage/internal/di"
	"github.com/mikey/llm-mail-triage/internal/safety"
)

var opts struct {
	di.ExplainOptions
	InputFile string
	JSON      bool
}

func main() {
	cmd := &cobra.Command{
		Use:   "triage-explain",
		Short: "Show the triage decision for a single .eml message",
		Long:  "triage-explain reads one RFC 5322 message from a file or stdin and prints the decision a triage run would make. The mailbox is never touched.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return explain(cmd.OutOrStdout(), cmd.InOrStdin())
		},
	}
	cmd.SilenceUsage = true

	cmd.Flags().StringVar(&opts.InputFile, "file", "", "input email file (stdin if not specified)")
	cmd.Flags().StringVar(&opts.ConfigFile, "config", "", "path to config file")
	cmd.Flags().StringVar(&opts.Provider, "provider", "", "LLM provider override (openai, gemini, bedrock, stub)")
	cmd.Flags().BoolVar(&opts.Verbose, "verbose", false, "enable verbose logging")
	cmd.Flags().BoolVar(&opts.JSONLog, "json-log", false, "output logs in JSON format")
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "print the decision as JSON")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func explain(out io.Writer, stdin io.Reader) error {
	container, err := di.BuildExplainContainer(opts.ExplainOptions)
	if err != nil {
		return fmt.Errorf("failed to build dependency container: %w", err)
	}

	return container.Invoke(func(cfg *config.Config, gate *safety.Gate, resolver *core.Resolver, logger *zap.Logger) error {
		defer logger.Sync()

		in := stdin
		if opts.InputFile != "" {
			f, err := os.Open(opts.InputFile)
			if err != nil {
				return fmt.Errorf("failed to open input file: %w", err)
			}
			defer f.Close()
			in = f
			logger.Info("Reading email from file", zap.String("file", opts.InputFile))
		} else {
			logger.Info("Reading email from stdin")
		}

		msg, err := mailbox.ParseMessage(in, "explain")
		if err != nil {
			return fmt.Errorf("failed to parse email: %w", err)
		}

		start := time.Now()
		d := resolver.Decide(context.Background(), msg)
		elapsed := time.Since(start)

		if opts.JSON {
			return writeJSON(out, d, gate.Check(msg))
		}
		writeText(out, cfg, msg, d, gate.Check(msg), elapsed)
		return nil
	})
}

type jsonDecision struct {
	Action      core.Action      `json:"action"`
	By          core.Attribution `json:"by"`
	Rule        string           `json:"rule"`
	Reason      string           `json:"reason"`
	Confidence  float64          `json:"confidence"`
	LabelsToAdd []string         `json:"labels_to_add,omitempty"`
	Protected   bool             `json:"protected"`
}

func writeJSON(out io.Writer, d core.Decision, gate safety.Result) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(jsonDecision{
		Action:      d.Action,
		By:          d.By,
		Rule:        d.Rule,
		Reason:      d.Reason,
		Confidence:  d.Confidence,
		LabelsToAdd: d.LabelsToAdd,
		Protected:   gate.Protected,
	})
}

func writeText(out io.Writer, cfg *config.Config, msg core.MessageSummary, d core.Decision, gate safety.Result, elapsed time.Duration) {
	fmt.Fprintf(out, "\n=== Email Summary ===\n")
	fmt.Fprintf(out, "From: %s\n", msg.From)
	fmt.Fprintf(out, "To: %s\n", strings.Join(msg.To, ", "))
	fmt.Fprintf(out, "Subject: %s\n", msg.Subject)
	fmt.Fprintf(out, "Body length: %d bytes\n", len(msg.Body))

	fmt.Fprintf(out, "\n=== Safety ===\n")
	if gate.Protected {
		fmt.Fprintf(out, "Protected: yes (%s)\n", gate.Reason)
	} else {
		fmt.Fprintf(out, "Protected: no\n")
	}

	fmt.Fprintf(out, "\n=== Decision ===\n")
	fmt.Fprintf(out, "Provider: %s\n", cfg.GetLLM().Provider)
	fmt.Fprintf(out, "Action: %s\n", d.Action)
	if len(d.LabelsToAdd) > 0 {
		fmt.Fprintf(out, "Labels: %s\n", strings.Join(d.LabelsToAdd, ", "))
	}
	fmt.Fprintf(out, "Decided by: %s (rule %s)\n", d.By, d.Rule)
	if d.By == core.ByLLM {
		fmt.Fprintf(out, "Confidence: %.2f\n", d.Confidence)
	}
	fmt.Fprintf(out, "Reason: %s\n", d.Reason)
	if mode := cfg.GetMode(); mode.Action != string(core.ActionTrash) {
		fmt.Fprintf(out, "Junk action: %s\n", mode.Action)
	}
	fmt.Fprintf(out, "Processing time: %v\n", elapsed)
}
