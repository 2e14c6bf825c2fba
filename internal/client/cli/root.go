package cli

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/dmitrijs2005/resvault/internal/client/config"
)

// globalFlags are the persistent flags every command shares. Unset flags
// leave the config file or default value alone.
type globalFlags struct {
	configFile string
	server     string
	tokenFile  string
	storage    string
	encoding   string
	speed      int
}

// NewRootCommand builds the command tree reading from in and writing to out.
func NewRootCommand(in io.Reader, out io.Writer) *cobra.Command {
	var (
		flags globalFlags
		app   *App
	)

	root := &cobra.Command{
		Use:   "resvault",
		Short: "resvault - resource and key/value storage client",
		Long: `resvault talks to a resvault server: it manages the session and
stores, fetches and lists values and resources.

Use "resvault [command] --help" for more information about a command.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig(flags.configFile)
			if err != nil {
				return err
			}
			pf := cmd.Flags()
			if pf.Changed("server") {
				cfg.ServerURL = flags.server
			}
			if pf.Changed("token-file") {
				cfg.TokenFile = flags.tokenFile
			}
			if pf.Changed("storage") {
				cfg.Storage = flags.storage
			}
			if pf.Changed("encoding") {
				cfg.Encoding = flags.encoding
			}
			if pf.Changed("speed") {
				cfg.TransferSpeed = flags.speed
			}

			app, err = newApp(cfg, in, out)
			return err
		},
	}
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(out)

	pf := root.PersistentFlags()
	pf.StringVarP(&flags.configFile, "config", "c", "", "Path to JSON config file")
	pf.StringVar(&flags.server, "server", "", "Server URL")
	pf.StringVar(&flags.tokenFile, "token-file", "", "Credentials file")
	pf.StringVarP(&flags.storage, "storage", "s", "", "Storage instance (server default when empty)")
	pf.StringVarP(&flags.encoding, "encoding", "e", "", "Content encoding for uploads (gzip|deflate|compress)")
	pf.IntVar(&flags.speed, "speed", 0, "Transfer speed in KB/s (0 is unthrottled)")

	current := func() *App { return app }

	root.AddCommand(
		newRegisterCmd(current),
		newLoginCmd(current),
		newLogoutCmd(current),
		newPutCmd(current),
		newGetCmd(current),
		newDeleteCmd(current),
		newListCmd(current),
		newUploadCmd(current),
		newDownloadCmd(current),
	)
	root.CompletionOptions.DisableDefaultCmd = true

	return root
}

// Execute runs the CLI against the process's stdio.
func Execute() error {
	return NewRootCommand(os.Stdin, os.Stdout).Execute()
}
