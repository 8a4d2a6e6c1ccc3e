package schemacmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	collectionsservice "github.com/zenGate-Global/palmyra-agri-admin/domains/collections/be/service"
)

// Command groups helpers for the built-in collection schemas.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Inspect the JSON Schemas enforced on tenant collections",
	}

	cmd.AddCommand(listCommand())
	cmd.AddCommand(showCommand())
	return cmd
}

func listCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List collections and the feature that gates them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "COLLECTION\tFEATURE")
			for _, name := range collectionsservice.Names() {
				def, _ := collectionsservice.Lookup(name)
				fmt.Fprintf(w, "%s\t%s\n", def.Name, def.Feature)
			}
			return w.Flush()
		},
	}
}

func showCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <collection>",
		Short: "Print the JSON Schema of a collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := collectionsservice.Schema(args[0])
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(raw)
			return err
		},
	}
}
