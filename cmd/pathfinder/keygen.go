package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/autom8ter/pathfinder/auth"
)

func newKeygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a signing key and print its identity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			signer, err := auth.GenerateSigner()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "identity: %s\nkey: %s\n", signer.Identity(), signer.HexKey())
			return nil
		},
	}
}
