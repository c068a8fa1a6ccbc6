package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/devilmonastery/sessiongate/internal/config"
	"github.com/devilmonastery/sessiongate/internal/domain/entities"
	"github.com/devilmonastery/sessiongate/internal/pkg/idgen"
	"github.com/devilmonastery/sessiongate/internal/pkg/logger"
)

func newUserCommand(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "User management commands",
		Long: `Commands for managing users in a sqlite identity store.

These only make sense with store.backend: sqlite and a file dsn; the
in-memory store starts empty on every run.`,
	}

	cmd.AddCommand(newUserCreateCommand(configPath))
	cmd.AddCommand(newUserListCommand(configPath))

	return cmd
}

func newUserCreateCommand(configPath *string) *cobra.Command {
	var (
		email   string
		name    string
		company string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Pre-provision an email-only account",
		Long: `Create a user with no provider identity.

The first time someone logs in through the provider with this email the
account is linked to their provider subject instead of a new user being created.`,
		Example: `  sessiongate user create --email alice@example.com --name "Alice" --config sessiongate.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return createUser(cmd.Context(), *configPath, email, name, company)
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "User email (required)")
	cmd.Flags().StringVar(&name, "name", "", "User display name (optional)")
	cmd.Flags().StringVar(&company, "company", "", "Company (optional)")

	cmd.MarkFlagRequired("email")

	return cmd
}

func newUserListCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List users in creation order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return listUsers(cmd.Context(), *configPath)
		},
	}
}

func openSQLiteStore(configPath string) (*store, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.Store.Backend != config.StoreSQLite || cfg.Store.DSN == "" {
		return nil, fmt.Errorf("user commands need store.backend %q with a dsn", config.StoreSQLite)
	}
	return openStore(cfg)
}

func createUser(ctx context.Context, configPath, email, name, company string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := idgen.Initialize(idgen.DefaultNodeID); err != nil {
		return fmt.Errorf("failed to initialize ID generator: %w", err)
	}

	st, err := openSQLiteStore(configPath)
	if err != nil {
		return err
	}
	defer st.Close()

	// If no name provided, use email
	if name == "" {
		name = email
	}

	now := time.Now().UTC()
	user := &entities.User{
		ID:          idgen.GenerateID(),
		Email:       email,
		Name:        name,
		Company:     entities.StringPtr(company),
		CreatedAt:   now,
		LastLoginAt: now,
	}

	if err := st.Users.Create(ctx, user); err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	logger.WithCommand(slog.Default(), "user create").Info("User created successfully",
		"user_id", user.ID,
		"email", user.Email,
		"name", user.Name,
	)

	return nil
}

func listUsers(ctx context.Context, configPath string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	st, err := openSQLiteStore(configPath)
	if err != nil {
		return err
	}
	defer st.Close()

	users, err := st.Users.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list users: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tEMAIL\tNAME\tPROVIDER\tEXTERNAL ID\tLAST LOGIN")
	for _, u := range users {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			u.ID, u.Email, u.Name, u.Provider, u.ExternalID, u.LastLoginAt.Format(time.RFC3339))
	}
	return w.Flush()
}
