package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"telegramd/internal/deliverylog"
	"telegramd/internal/domain"
)

func deliveriesCmd() *cobra.Command {
	var (
		filter    deliverylog.Filter
		asJSON    bool
		olderThan time.Duration
	)

	cmd := &cobra.Command{
		Use:   "deliveries",
		Short: "Show recent Telegram deliveries from the delivery log",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStoreForCLI()
			if err != nil {
				return err
			}
			defer store.Close()

			recs, err := store.List(cmd.Context(), filter)
			if err != nil {
				return fmt.Errorf("list deliveries: %w", err)
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(recs)
			}
			return printDeliveries(cmd.OutOrStdout(), recs)
		},
	}
	cmd.Flags().IntVarP(&filter.Limit, "limit", "n", 20, "maximum rows to show")
	cmd.Flags().StringVar(&filter.ChatID, "chat", "", "only show this chat id")
	cmd.Flags().StringVar(&filter.BatchID, "batch", "", "only show this batch id")
	cmd.Flags().StringVar(&filter.Status, "status", "", "only show success or failed")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")

	prune := &cobra.Command{
		Use:   "prune",
		Short: "Delete delivery log rows older than --older-than",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStoreForCLI()
			if err != nil {
				return err
			}
			defer store.Close()

			n, err := store.Prune(cmd.Context(), time.Now().Add(-olderThan))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d rows\n", n)
			return nil
		},
	}
	prune.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "age of the rows to delete")
	cmd.AddCommand(prune)

	return cmd
}

func openStoreForCLI() (*deliverylog.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if !cfg.DeliveryLog.Enabled {
		return nil, fmt.Errorf("delivery log is disabled (deliveryLog.enabled)")
	}
	return deliverylog.Open(cfg.DeliveryLog.DBPath, logger)
}

func printDeliveries(w io.Writer, recs []domain.DeliveryRecord) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tBATCH\tKIND\tCHAT\tTARGET\tSTATUS\tERROR")
	for _, r := range recs {
		batch := r.BatchID
		if len(batch) > 8 {
			batch = batch[:8]
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.CreatedAt.Local().Format(time.DateTime), batch, r.Kind, r.ChatID, r.Target, r.Status, r.Error)
	}
	return tw.Flush()
}
