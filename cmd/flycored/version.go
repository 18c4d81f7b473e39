package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/flycode/flycored/pkg/protocol"
)

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("flycored %s (mcp protocol %s)\n", Version, protocol.ProtocolVersion)
		},
	}
}
