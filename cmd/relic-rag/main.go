package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sha1n/relic-rag/internal/app"
	"github.com/spf13/cobra"
)

var (
	// Version is injected at build time
	Version = "dev"
	// Build is injected at build time
	Build = "unknown"
	// ProgramName is injected at build time
	ProgramName = "relic-rag"
)

func main() {
	runMain(os.Args, os.Exit)
}

func runMain(args []string, exit func(int)) {
	if err := Execute(Version, Build, ProgramName, args[1:]); err != nil {
		exit(1)
	}
}

// Execute is the entry point for the CLI, extracted for testing
func Execute(version, build, programName string, args []string) error {
	rootCmd := &cobra.Command{
		Use:     programName,
		Short:   "RELIC RAG Server",
		Long:    "Role-scoped retrieval and answering over an internal Markdown knowledge base, served over MCP and HTTP",
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()
			return app.RunWithDeps(ctx, app.DefaultRunParams(), cmd.Flags(), version)
		},
	}

	rootCmd.SetVersionTemplate(`{{.Version}}
`)

	app.RegisterFlags(rootCmd.PersistentFlags())
	rootCmd.AddCommand(newIndexCmd(), newSearchCmd(), newTokenCmd())
	rootCmd.SetArgs(args)

	return rootCmd.Execute()
}

func newIndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Compile the corpus into the page index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			wait, _ := cmd.Flags().GetDuration("wait")
			ctx, stop := signalContext()
			defer stop()
			return app.RunIndex(ctx, app.DefaultRunParams(), cmd.Flags(), wait, cmd.OutOrStdout())
		},
	}
	cmd.Flags().Duration("wait", 0, "Wait this long for a running build instead of failing")
	return cmd
}

func newSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Print the pages a role would retrieve for a query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			role, _ := cmd.Flags().GetString("role")
			query := strings.Join(args, " ")
			return app.RunSearch(app.DefaultRunParams(), cmd.Flags(), query, role, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringP("role", "r", "", "Role to search as (required)")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign a bearer token for the jwt auth mode",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			subject, _ := cmd.Flags().GetString("subject")
			role, _ := cmd.Flags().GetString("role")
			ttl, _ := cmd.Flags().GetDuration("ttl")
			return app.RunToken(app.DefaultRunParams(), cmd.Flags(), subject, role, ttl, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringP("subject", "s", "", "Token subject (required)")
	cmd.Flags().StringP("role", "r", "", "Role claim value (required)")
	cmd.Flags().Duration("ttl", 0, "Token lifetime (0 never expires)")
	_ = cmd.MarkFlagRequired("subject")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
