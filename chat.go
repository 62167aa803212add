package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"careerchat/internal/client"
	"careerchat/internal/tui"
)

func newChatCmd() *cobra.Command {
	var (
		server   string
		email    string
		password string
		name     string
		session  string
		register bool
	)
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the career counselor in the terminal",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if password == "" {
				password = os.Getenv("CAREERCHAT_PASSWORD")
			}
			if email == "" || password == "" {
				return errors.New("--email and a password (--password or CAREERCHAT_PASSWORD) are required")
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			c, err := client.NewHTTPClient(server)
			if err != nil {
				return err
			}
			if register {
				if err := c.Register(ctx, email, password, name); err != nil {
					return fmt.Errorf("register: %w", err)
				}
			}
			if err := c.Login(ctx, email, password); err != nil {
				return fmt.Errorf("login: %w", err)
			}
			defer c.Logout(context.Background())
			return tui.Run(ctx, c, session)
		},
	}
	cmd.Flags().StringVar(&server, "server", "http://localhost:8090", "server base URL")
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	cmd.Flags().StringVar(&name, "name", "", "display name when registering")
	cmd.Flags().StringVar(&session, "session-name", "", "name for the session the first message starts")
	cmd.Flags().BoolVar(&register, "register", false, "create the account before logging in")
	return cmd
}
