package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/tspence/api-key-generator/internal/application/dto"
	"github.com/tspence/api-key-generator/pkg/errors"
)

func (c *cli) issueCommand() *cobra.Command {
	var (
		name      string
		claims    []string
		expiresIn time.Duration
	)
	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Generate a key and save it to the configured store",
		Long: `Generates a new key, saves its record to the configured store and prints
the key string. The key string cannot be recovered later.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req := &dto.IssueKeyRequest{Name: name, Algorithm: c.algorithm}
			for _, raw := range claims {
				typ, value, ok := strings.Cut(raw, "=")
				if !ok {
					return errors.ErrInvalidRequest(fmt.Sprintf("claim %q is not type=value", raw))
				}
				req.Claims = append(req.Claims, dto.ClaimDTO{Type: typ, Value: value})
			}
			if expiresIn > 0 {
				at := time.Now().UTC().Add(expiresIn)
				req.ExpiresAt = &at
			}

			s, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer s.close()

			resp, err := s.keys.IssueKey(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
	cmd.Flags().StringVarP(&name, "name", "n", "", "display name of the key")
	cmd.Flags().StringSliceVar(&claims, "claim", nil, "claim as type=value, repeatable")
	cmd.Flags().DurationVar(&expiresIn, "expires-in", 0, "lifetime of the key, 0 for none")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func (c *cli) validateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <api-key>",
		Short: "Check a key string against the configured store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer s.close()

			key, err := s.keys.Authenticate(cmd.Context(), args[0], "cli")
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), dto.NewKeyInfoResponse(key))
		},
	}
}

func (c *cli) showCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <key-id>",
		Short: "Print the stored record of a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseKeyID(args[0])
			if err != nil {
				return err
			}
			s, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer s.close()

			info, err := s.keys.GetKey(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), info)
		},
	}
}

func (c *cli) revokeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <key-id>",
		Short: "Revoke a stored key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseKeyID(args[0])
			if err != nil {
				return err
			}
			s, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer s.close()

			if err := s.keys.RevokeKey(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "revoked %s\n", id)
			return nil
		},
	}
}

func parseKeyID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, errors.ErrInvalidRequest(fmt.Sprintf("%q is not a key id", raw))
	}
	return id, nil
}
