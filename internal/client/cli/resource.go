package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

func newUploadCmd(app func() *App) *cobra.Command {
	return &cobra.Command{
		Use:   "upload <identifier> <path>",
		Short: "Upload a file as a resource",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := app()
			if err := a.requireToken(); err != nil {
				return err
			}

			f, err := os.Open(args[1])
			if err != nil {
				return err
			}
			defer f.Close()
			info, err := f.Stat()
			if err != nil {
				return err
			}

			err = a.client.Upload(cmd.Context(), args[0], f, info.Size(), a.config.Encoding, a.config.TransferSpeed)
			if err != nil {
				return fmt.Errorf("upload failed: %w", err)
			}
			a.printf("Uploaded %s (%d bytes)\n", args[0], info.Size())
			return nil
		},
	}
}

func newDownloadCmd(app func() *App) *cobra.Command {
	return &cobra.Command{
		Use:   "download <identifier> [path]",
		Short: "Download a resource to path, or to stdout",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := app()
			if err := a.requireToken(); err != nil {
				return err
			}

			var w io.Writer = a.out
			if len(args) == 2 {
				f, err := os.Create(args[1])
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}

			n, err := a.client.Download(cmd.Context(), args[0], w, a.config.TransferSpeed)
			if err != nil {
				if len(args) == 2 {
					_ = os.Remove(args[1])
				}
				return fmt.Errorf("download failed: %w", err)
			}
			if len(args) == 2 {
				a.printf("Downloaded %s (%d bytes)\n", args[0], n)
			}
			return nil
		},
	}
}
