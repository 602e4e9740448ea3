// Command cinder serves the demo application and inspects its routes.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	cerrors "github.com/cinder-go/cinder/internal/errors"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "cinder",
		Short: "Object-graph routing over the gateway protocol",
		Long: `Cinder routes HTTP and WebSocket requests by walking an application
object graph: /child/create reaches the create handler of the object
exposed as "child" under the root.

The configuration is read from cinder.json, the file named by --config,
or the file named by the CINDER_CONFIG environment variable.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (.json, .yaml or .yml)")

	rootCmd.AddCommand(
		serveCmd(&configPath),
		routesCmd(),
		versionCmd(),
	)
	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		cerrors.Print(os.Stderr, err)
		os.Exit(1)
	}
}

// success prints a success message.
func success(format string, args ...any) {
	fmt.Printf("\033[32m✓\033[0m %s\n", fmt.Sprintf(format, args...))
}

// info prints an info message.
func info(format string, args ...any) {
	fmt.Printf("  %s\n", fmt.Sprintf(format, args...))
}
