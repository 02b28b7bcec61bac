package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "linkplanner",
		Short: "Point-to-point radio link planner",
		Long: `linkplanner maintains a network of radio towers and links and computes the
first Fresnel zone clearance envelope for any link.`,
		SilenceUsage: true,
	}
	root.AddGroup(&cobra.Group{ID: "planner", Title: "Planner Commands"})

	root.PersistentFlags().StringP("config", "c", "", "path to a YAML config file")

	root.AddCommand(newServeCmd(), newZoneCmd())
	return root
}
