package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	cerrors "github.com/cinder-go/cinder/internal/errors"
	"github.com/cinder-go/cinder/internal/demo"
	"github.com/cinder-go/cinder/pkg/router"
)

func routesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "routes",
		Short: "List the routes of the demo application",
		Long: `Build the demo application's route tree and print every leaf with
its method, URL and handler.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := router.NewRegistry()
			demo.Register(reg)
			tree, err := router.Build(reg, demo.Spec())
			if err != nil {
				return cerrors.New("E140").Wrap(err)
			}
			return printRoutes(cmd.OutOrStdout(), tree)
		},
	}
}

// printRoutes writes one line per leaf in tree order.
func printRoutes(w io.Writer, tree *router.Tree) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "METHOD\tURL\tHANDLER")
	for _, leaf := range tree.Leaves() {
		m := leaf.Mapping()
		fmt.Fprintf(tw, "%s\t%s\t%s.%s\n", leaf.Method(), leaf.URL(), m.Owner.Type, m.Name)
	}
	return tw.Flush()
}
