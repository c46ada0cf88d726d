package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fractalops/uatu/internal/allowlist"
	"github.com/fractalops/uatu/internal/model"
)

func newAllowlistCmd() *cobra.Command {
	var path string

	allowlistCmd := &cobra.Command{
		Use:   "allowlist",
		Short: "Manage the command allowlist the Permission Gate auto-approves",
	}
	allowlistCmd.PersistentFlags().StringVar(&path, "file", "", "allowlist file path (default: ~/.config/uatu/allowlist.json)")

	openStore := func() (*allowlist.Store, error) {
		p := path
		if p == "" {
			defaultPath, err := allowlist.DefaultPath()
			if err != nil {
				return nil, err
			}
			p = defaultPath
		}
		return allowlist.New(p), nil
	}

	var entryType string
	addCmd := &cobra.Command{
		Use:   "add <pattern>",
		Short: "Add a command pattern to the allowlist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			return store.Add(args[0], model.AllowlistEntryType(entryType))
		},
	}
	addCmd.Flags().StringVar(&entryType, "type", "", "entry type: base, exact, prefix (default: auto-detected)")

	removeCmd := &cobra.Command{
		Use:   "remove <pattern>",
		Short: "Remove a command pattern from the allowlist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			removed, err := store.Remove(args[0])
			if err != nil {
				return err
			}
			if !removed {
				fmt.Printf("no matching entry for %q\n", args[0])
			}
			return nil
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List every allowlist entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			entries := store.Entries()
			if len(entries) == 0 {
				fmt.Println("allowlist is empty")
				return nil
			}
			for _, e := range entries {
				fmt.Printf("%-8s %-30s added %s\n", e.Type, e.Pattern, e.Added.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every allowlist entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			return store.Clear()
		},
	}

	allowlistCmd.AddCommand(addCmd, removeCmd, listCmd, clearCmd)
	return allowlistCmd
}
