package main

import (
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/dmitrymomot/viewportly/pkg/pg"
	"github.com/dmitrymomot/viewportly/svc/billing"
	"github.com/dmitrymomot/viewportly/svc/billing/pgstore"
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage users",
}

var createUserCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a user on the free tier",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		addr, _ := cmd.Flags().GetString("email")
		name, _ := cmd.Flags().GetString("name")

		parsed, err := mail.ParseAddress(addr)
		if err != nil {
			return fmt.Errorf("invalid email %q: %w", addr, err)
		}

		var cfg appConfig
		if err := loadConfig(cmd, &cfg); err != nil {
			return err
		}
		ctx := cmd.Context()

		pool, err := pg.Connect(ctx, cfg.PG)
		if err != nil {
			return err
		}
		defer pool.Close()

		u := &billing.User{
			ID:    uuid.New(),
			Email: strings.ToLower(parsed.Address),
			Name:  strings.TrimSpace(name),
			Tier:  billing.TierFree,
		}
		if err := pgstore.New(pool).CreateUser(ctx, u); err != nil {
			return err
		}
		cmd.Println(u.ID.String())
		return nil
	},
}

func init() {
	createUserCmd.Flags().String("email", "", "user email address")
	createUserCmd.Flags().String("name", "", "display name")
	_ = createUserCmd.MarkFlagRequired("email")
	usersCmd.AddCommand(createUserCmd)
}
