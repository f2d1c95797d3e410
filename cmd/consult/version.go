package main

import (
	"fmt"
	"strings"

	"github.com/aretw0/consult"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of consult",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("consult version %s\n", strings.TrimSpace(consult.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
