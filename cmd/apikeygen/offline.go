package main

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tspence/api-key-generator/internal/infrastructure/persistence"
	"github.com/tspence/api-key-generator/internal/infrastructure/persistence/memory"
	"github.com/tspence/api-key-generator/pkg/apikey"
	"github.com/tspence/api-key-generator/pkg/base58"
	"github.com/tspence/api-key-generator/pkg/errors"
)

// generatedKey is what generate prints: the key string and the record a
// store must hold for it to validate.
type generatedKey struct {
	APIKey    string `json:"api_key"`
	Algorithm string `json:"algorithm"`
	KeyID     string `json:"key_id"`
	Salt      string `json:"salt"`
	Hash      string `json:"hash"`
}

func (c *cli) generateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "generate",
		Short: "Generate a key and print it with its record, without saving",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			set, alg, err := c.algorithms()
			if err != nil {
				return err
			}
			store := memory.NewKeyStore()
			validator := apikey.NewValidator(persistence.NewKeyRepository(store, set))

			record := &apikey.PersistedKey{}
			key, err := validator.GenerateKey(cmd.Context(), record, alg)
			if err != nil {
				return err
			}
			used := alg
			if used == nil {
				used = apikey.DefaultAlgorithm()
			}
			return printJSON(cmd.OutOrStdout(), generatedKey{
				APIKey:    key,
				Algorithm: used.String(),
				KeyID:     record.ID.String(),
				Salt:      record.Salt,
				Hash:      record.Hash,
			})
		},
	}
}

type parsedKey struct {
	KeyID        string `json:"key_id"`
	ClientSecret string `json:"client_secret"`
	Algorithm    string `json:"algorithm"`
}

func (c *cli) parseCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "parse <api-key>",
		Short: "Decode a key string under the configured algorithms",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			set, alg, err := c.algorithms()
			if err != nil {
				return err
			}
			candidates := set.Supported()
			if c.algorithm != "" {
				candidates = []*apikey.Algorithm{alg}
			}
			if len(candidates) == 0 {
				candidates = []*apikey.Algorithm{apikey.DefaultAlgorithm()}
			}

			var first *apikey.ParseError
			for _, candidate := range candidates {
				key, perr := apikey.TryParseKey(args[0], candidate)
				if perr == nil {
					return printJSON(cmd.OutOrStdout(), parsedKey{
						KeyID:        key.ID.String(),
						ClientSecret: key.ClientSecret,
						Algorithm:    candidate.String(),
					})
				}
				if first == nil {
					first = perr
				}
			}
			return errors.ErrInvalidKey(first.Message).WithMetadata("reason", first.Kind.String())
		},
	}
}

func encodeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "encode <hex>",
		Short: "Encode hex bytes as Base58",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := hex.DecodeString(args[0])
			if err != nil {
				return errors.ErrInvalidRequest("input is not hex").WithCause(err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), base58.Encode(raw))
			return nil
		},
	}
}

func decodeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "decode <base58>",
		Short: "Decode Base58 text to hex bytes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := base58.DecodeString(args[0])
			if err != nil {
				return errors.ErrInvalidRequest("input is not Base58").WithCause(err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), hex.EncodeToString(raw))
			return nil
		},
	}
}

func (c *cli) hashCommand() *cobra.Command {
	var secret, salt string
	cmd := &cobra.Command{
		Use:   "hash",
		Short: "Hash a client secret under a salt with the selected algorithm",
		Long: `Prints the stored hash form of a client secret. bcrypt keys carry their
own salt and cannot be hashed this way.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, alg, err := c.algorithms()
			if err != nil {
				return err
			}
			h, err := apikey.Hash(alg, secret, salt)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), h)
			return nil
		},
	}
	cmd.Flags().StringVar(&secret, "secret", "", "client secret")
	cmd.Flags().StringVar(&salt, "salt", "", "salt as stored in the key record")
	_ = cmd.MarkFlagRequired("secret")
	_ = cmd.MarkFlagRequired("salt")
	return cmd
}
