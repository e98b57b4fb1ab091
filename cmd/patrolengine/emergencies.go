package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/tiiuae/patrolengine/internal/ledger"
)

func emergenciesCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "emergencies",
		Short: "Inspect the emergency ledger",
	}
	cmd.PersistentFlags().BoolVar(&asJSON, "json", false, "Print JSON")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List all emergencies in creation order",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, closeFn, err := openLedger(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			records := l.List()
			if asJSON {
				return printJSON(records)
			}
			if len(records) == 0 {
				fmt.Println("No emergencies recorded.")
				return nil
			}

			fmt.Printf("%-6s %-20s %-8s %-12s %-25s\n", "ID", "Type", "Severity", "Status", "Created")
			for _, r := range records {
				fmt.Printf("%-6d %-20s %-8d %-12s %-25s\n", r.ID, r.Type, r.Severity, r.Status, r.CreatedAt.Format("2006-01-02 15:04:05Z07:00"))
			}
			return nil
		},
	}

	showCmd := &cobra.Command{
		Use:   "show [id]",
		Short: "Show one emergency with its changelog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return errors.Errorf("invalid id %q", args[0])
			}

			l, closeFn, err := openLedger(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			r, err := l.Get(id)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(r)
			}

			fmt.Printf("ID:          %d\n", r.ID)
			fmt.Printf("Type:        %s\n", r.Type)
			fmt.Printf("Severity:    %d\n", r.Severity)
			fmt.Printf("Status:      %s\n", r.Status)
			fmt.Printf("Location:    (%v, %v)\n", r.Location.X, r.Location.Y)
			fmt.Printf("Created:     %s\n", r.CreatedAt.Format("2006-01-02 15:04:05Z07:00"))
			fmt.Printf("Description: %s\n", r.Description)
			fmt.Printf("Image:       %d bytes\n", len(r.Image))
			for _, c := range r.Changelog {
				fmt.Printf("  %s  %s\n", c.Timestamp.Format("2006-01-02 15:04:05Z07:00"), c.Status)
			}
			return nil
		},
	}

	cmd.AddCommand(listCmd, showCmd)
	return cmd
}

func openLedger(cmd *cobra.Command) (*ledger.Ledger, func(), error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	store, err := ledger.OpenSQLite(cfg.Ledger.DBPath)
	if err != nil {
		return nil, nil, errors.WithMessage(err, "database error")
	}
	l, err := ledger.New(ledger.WithStore(store), ledger.WithLogger(logger.Named("ledger")))
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	return l, func() { store.Close() }, nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
