package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mikey/llm-mail-triage/internal/config"
	"github.com/mikey/llm-mail-triage/internal/credential"
	"github.com/mikey/llm-mail-triage/internal/factory"
)

func healthcheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "healthcheck",
		Short: "Validate the configuration and print ok",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.New(flagConfigPath)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
}

func historyCmd() *cobra.Command {
	var limit int
	c := &cobra.Command{
		Use:   "history",
		Short: "Show the most recent audited decisions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := buildContainer()
			if err != nil {
				return err
			}
			return container.Invoke(func(store factory.AuditStore) error {
				defer store.Close()

				records, err := store.Recent(context.Background(), limit)
				if err != nil {
					return err
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "TIME\tACTION\tBY\tRULE\tSENDER\tSUBJECT\tSTATUS")
				for _, r := range records {
					status := "dry-run"
					switch {
					case r.Error != "":
						status = "error: " + r.Error
					case r.Executed:
						status = "applied"
					case !r.DryRun:
						status = "no-op"
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
						r.RecordedAt.Local().Format("2006-01-02 15:04"),
						r.Action, r.By, r.Rule, r.Sender, r.Subject, status)
				}
				return w.Flush()
			})
		},
	}
	c.Flags().IntVar(&limit, "limit", 50, "number of decisions to show")
	return c
}

func secretCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "secret",
		Short: "Manage secrets referenced as keyring:<key> in the config",
	}

	c.AddCommand(&cobra.Command{
		Use:   "set <key>",
		Short: "Store a secret read from stdin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.ErrOrStderr(), "Value for %s: ", args[0])
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("failed to read secret: %w", err)
			}
			value := strings.TrimRight(line, "\r\n")
			if value == "" {
				return errors.New("empty secret")
			}
			if err := credential.NewStore().Set(args[0], value); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "\nStored. Reference it as keyring:%s\n", args[0])
			return nil
		},
	})

	c.AddCommand(&cobra.Command{
		Use:   "delete <key>",
		Short: "Remove a stored secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return credential.NewStore().Delete(args[0])
		},
	})

	return c
}
