package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

func newPutCmd(app func() *App) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "put <key> [value]",
		Short: "Store a value under key",
		Long: `Store a value under key in the selected storage instance.

The value is the second argument, the content of --file, or stdin.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := app()
			if err := a.requireToken(); err != nil {
				return err
			}

			var value []byte
			switch {
			case len(args) == 2:
				value = []byte(args[1])
			case file != "":
				data, err := os.ReadFile(file)
				if err != nil {
					return err
				}
				value = data
			default:
				data, err := io.ReadAll(a.in)
				if err != nil {
					return err
				}
				value = data
			}

			if err := a.client.PutValue(cmd.Context(), a.config.Storage, args[0], value, a.config.Encoding); err != nil {
				return fmt.Errorf("put failed: %w", err)
			}
			a.printf("Stored %s (%d bytes)\n", args[0], len(value))
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Read the value from this file")
	return cmd
}

func newGetCmd(app func() *App) *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Print the value stored under key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := app()
			if err := a.requireToken(); err != nil {
				return err
			}
			value, err := a.client.GetValue(cmd.Context(), a.config.Storage, args[0])
			if err != nil {
				return fmt.Errorf("get failed: %w", err)
			}
			_, err = a.out.Write(value)
			return err
		},
	}
}

func newDeleteCmd(app func() *App) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <key>",
		Short: "Remove key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := app()
			if err := a.requireToken(); err != nil {
				return err
			}
			if err := a.client.DeleteValue(cmd.Context(), a.config.Storage, args[0]); err != nil {
				return fmt.Errorf("delete failed: %w", err)
			}
			a.printf("Deleted %s\n", args[0])
			return nil
		},
	}
}

func newListCmd(app func() *App) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the keys of the storage instance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := app()
			if err := a.requireToken(); err != nil {
				return err
			}
			keys, err := a.client.ListKeys(cmd.Context(), a.config.Storage)
			if err != nil {
				return fmt.Errorf("list failed: %w", err)
			}
			for _, k := range keys {
				a.printf("%s\n", k)
			}
			return nil
		},
	}
}
