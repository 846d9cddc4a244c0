package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iliyamo/seckill/internal/config"
	"github.com/iliyamo/seckill/internal/utils"
)

func newTokenCmd() *cobra.Command {
	var (
		userID uint64
		role   string
		ttl    int
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development access token signed with JWT_SECRET",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if userID == 0 {
				return errors.New("--user is required")
			}
			tok, err := utils.NewAccessToken(config.JWTSecret(), userID, role, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok.Token)
			return nil
		},
	}
	cmd.Flags().Uint64Var(&userID, "user", 0, "user id placed in the sub claim")
	cmd.Flags().StringVar(&role, "role", "USER", "role claim (ADMIN unlocks /v1/admin)")
	cmd.Flags().IntVar(&ttl, "ttl", 60, "lifetime in minutes")
	return cmd
}
