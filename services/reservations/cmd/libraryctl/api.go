package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/diagnosis/library-reservations/pkg/auth"
	"github.com/diagnosis/library-reservations/pkg/client"
)

func newTokenCmd() *cobra.Command {
	var (
		userID, email, role, secret string
		ttl                         time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an access token for local testing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if secret == "" {
				secret = os.Getenv("JWT_SECRET")
			}
			if secret == "" {
				return fmt.Errorf("--secret or JWT_SECRET is required")
			}
			tok, err := auth.NewAccessToken(userID, email, role, secret, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "member ID")
	cmd.Flags().StringVar(&email, "email", "", "member email")
	cmd.Flags().StringVar(&role, "role", auth.RoleMember, "member or librarian")
	cmd.Flags().StringVar(&secret, "secret", "", "HMAC signing secret")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

type apiFlags struct {
	url   string
	token string
}

func (f *apiFlags) client() *client.Client {
	tok := f.token
	if tok == "" {
		tok = os.Getenv("LIBRARY_TOKEN")
	}
	return client.New(f.url, tok)
}

func newReservationsCmd() *cobra.Command {
	flags := &apiFlags{}
	var opts client.ListOptions

	cmd := &cobra.Command{
		Use:   "reservations",
		Short: "Query a running reservations API",
	}
	cmd.PersistentFlags().StringVar(&flags.url, "api", "http://localhost:8082/v1", "API base URL")
	cmd.PersistentFlags().StringVar(&flags.token, "token", "", "bearer token, defaults to LIBRARY_TOKEN")

	list := &cobra.Command{
		Use:   "list",
		Short: "List reservations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			res, err := flags.client().List(ctx, &opts)
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}
	list.Flags().StringVar(&opts.Status, "status", "", "filter by status")
	list.Flags().StringVar(&opts.UserID, "user", "", "filter by member (librarians only)")
	list.Flags().IntVar(&opts.Limit, "limit", 0, "page size")
	list.Flags().IntVar(&opts.Offset, "offset", 0, "page offset")

	get := &cobra.Command{
		Use:   "get <id>",
		Short: "Show one reservation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			res, err := flags.client().Get(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}

	overdue := &cobra.Command{
		Use:   "overdue",
		Short: "List overdue loans (librarians only)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			res, err := flags.client().ListOverdue(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}

	cmd.AddCommand(list, get, overdue)
	return cmd
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
