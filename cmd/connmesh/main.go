// Command connmesh runs the mesh services: one domain per process, or all
// domains on an in-process channel transport for local development.
package main

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "connmesh",
	Short: "Bus-connected device messaging mesh",
}

func main() {
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("rootCmd.Execute: %v", err)
	}
}
