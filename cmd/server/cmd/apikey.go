package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/faultline-hq/faultline/internal/auth"
	"github.com/faultline-hq/faultline/internal/domain/ids"
	"github.com/faultline-hq/faultline/internal/storage/postgres"
)

var (
	apiKeyLabel string
	apiKeyOrg   string
)

var apiKeyCmd = &cobra.Command{
	Use:   "api-key",
	Short: "Manage organization API keys",
	Long: `Manage organization API keys for server-to-server access.

API keys authenticate without a user session and always satisfy the
sudo requirement, so treat them like passwords.

Examples:
  # Create a new API key
  faultline api-key create --label ci --org acme

  # List all API keys
  faultline api-key list

  # Revoke an API key
  faultline api-key revoke <id>`,
}

var apiKeyCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new API key",
	Long: `Create a new organization API key.

The key is displayed once and cannot be retrieved later.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return createAPIKey(cmd)
	},
}

var apiKeyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all API keys",
	RunE: func(cmd *cobra.Command, args []string) error {
		return listAPIKeys()
	},
}

var apiKeyRevokeCmd = &cobra.Command{
	Use:   "revoke <id>",
	Short: "Revoke an API key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return revokeAPIKey(args[0])
	},
}

func init() {
	rootCmd.AddCommand(apiKeyCmd)
	apiKeyCmd.AddCommand(apiKeyCreateCmd)
	apiKeyCmd.AddCommand(apiKeyListCmd)
	apiKeyCmd.AddCommand(apiKeyRevokeCmd)

	apiKeyCreateCmd.Flags().StringVar(&apiKeyLabel, "label", "", "label describing the key's purpose")
	apiKeyCreateCmd.Flags().StringVar(&apiKeyOrg, "org", "", "organization the key belongs to")
}

func openPool(ctx context.Context) (*pgxpool.Pool, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}
	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	return pool, nil
}

func createAPIKey(cmd *cobra.Command) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := openPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	repo, err := postgres.NewRepository(pool)
	if err != nil {
		return err
	}
	keys, ok := repo.APIKeys().(*postgres.APIKeyRepository)
	if !ok {
		return fmt.Errorf("unexpected api key store implementation")
	}

	secret, prefix, hash, err := auth.GenerateSecret(auth.APIKeyPrefix)
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}

	key := &auth.APIKey{
		ID:             ids.NewUUID(),
		Prefix:         prefix,
		Hash:           hash,
		Label:          apiKeyLabel,
		OrganizationID: apiKeyOrg,
		IsActive:       true,
	}
	if err := keys.CreateKey(ctx, key); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "API key created\n\n")
	fmt.Fprintf(out, "ID:     %s\n", key.ID)
	fmt.Fprintf(out, "Label:  %s\n", key.Label)
	fmt.Fprintf(out, "Key:    %s\n\n", secret)
	fmt.Fprintf(out, "Save this key - it cannot be retrieved later.\n")
	return nil
}

func listAPIKeys() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := openPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	rows, err := pool.Query(ctx, `
SELECT id, label, organization_id, is_active, last_used_at
  FROM api_keys
 ORDER BY label
`)
	if err != nil {
		return fmt.Errorf("query api keys: %w", err)
	}
	defer rows.Close()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tLABEL\tORG\tSTATUS\tLAST USED")
	for rows.Next() {
		var (
			id, label, org string
			isActive       bool
			lastUsed       *time.Time
		)
		if err := rows.Scan(&id, &label, &org, &isActive, &lastUsed); err != nil {
			return fmt.Errorf("scan api key: %w", err)
		}
		status := "active"
		if !isActive {
			status = "revoked"
		}
		used := "never"
		if lastUsed != nil {
			used = lastUsed.Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", id, label, org, status, used)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	return w.Flush()
}

func revokeAPIKey(id string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := openPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	tag, err := pool.Exec(ctx, `UPDATE api_keys SET is_active = false WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("api key %s not found", id)
	}
	fmt.Printf("revoked %s\n", id)
	return nil
}
