package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var versionString = "dev"

// globalFlags are shared by every board command.
type globalFlags struct {
	profilePath string
	apiURL      string
	token       string
	pageSize    int
}

// NewRootCmd builds the command tree. A fresh tree is built per invocation so
// flag values never leak between runs.
func NewRootCmd() *cobra.Command {
	var flags globalFlags
	root := &cobra.Command{
		Use:   "nexflow",
		Short: "NexFlow - Kanban board for the ticket tracker",
		Long: `nexflow shows a project's tickets as a four column Kanban board and
moves tickets between columns, writing the new status back to the ticket API.

Connection settings are read from ~/.nexflow.yaml and can be overridden
with flags or NEXFLOW_TOKEN.`,
		Version: versionString,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		FParseErrWhitelist: cobra.FParseErrWhitelist{},
		SilenceErrors:      true,
		SilenceUsage:       true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.profilePath, "profile", "", "Profile file (default ~/.nexflow.yaml)")
	pf.StringVar(&flags.apiURL, "api-url", "", "Ticket API base URL")
	pf.StringVar(&flags.token, "token", "", "Bearer token for the ticket API")
	pf.IntVar(&flags.pageSize, "page-size", 0, "Maximum tickets fetched per board")

	root.AddCommand(newBoardCmd(&flags))
	return root
}

// Execute runs the CLI with os.Args.
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}

// SetVersionInfo sets the version reported by --version.
func SetVersionInfo(v, c, d string) {
	versionString = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}
