// Package main provides the inkwell CLI entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/richinex/inkwell/cli"
	"github.com/richinex/inkwell/config"
)

var (
	// Global flags
	provider   string
	configPath string
	maxIter    int
	verbose    bool
)

func main() {
	// Load .env file if present (ignore "file not found" errors)
	if err := godotenv.Load(); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load .env file: %v\n", err)
		}
	}

	rootCmd := &cobra.Command{
		Use:   "inkwell",
		Short: "Research-driven blog posts and SEO advice from agent teams",
		Long: `inkwell runs persona agents and coordinated teams.

Apps:
- blogger: research, scrape and write a blog post on a topic (cached per session)
- seo: an SEO analyst and a content strategist answer SEO questions
- assistant: a general chat assistant with persistent history`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&provider, "provider", "p", "",
		fmt.Sprintf("Run every persona on one provider (%s); default keeps each persona's model", strings.Join(config.SupportedProviders(), ", ")))
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (yaml, json or toml)")
	rootCmd.PersistentFlags().IntVarP(&maxIter, "max-iter", "m", 10, "Maximum iterations per agent run")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show verbose output")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(blogCmd())
	rootCmd.AddCommand(seoCmd())
	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(toolsCmd())

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func options() cli.Options {
	return cli.Options{
		Provider:   provider,
		ConfigPath: configPath,
		MaxIter:    maxIter,
		Verbose:    verbose,
	}
}

func serveCmd() *cobra.Command {
	var app string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve an app over HTTP",
		Long: `Serve an app's agents, teams and workflows over HTTP.

Routes: /health, /config, /agents, /teams, /workflows, /metrics, and
POST /{agents|teams|workflows}/{id}/runs. The port defaults to 7777.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Serve(cmd.Context(), app, options())
		},
	}

	cmd.Flags().StringVarP(&app, "app", "a", cli.AppBlogger, fmt.Sprintf("App to serve (%s)", strings.Join(cli.AppNames(), ", ")))

	return cmd
}

func blogCmd() *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "blog [topic]",
		Short: "Generate a blog post on a topic",
		Long: `Generate a blog post with the Blog Post Generator workflow.

Search results, scraped articles and the finished post are cached in the
session; rerunning a topic with the same --session reuses them.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Blog(cmd.Context(), strings.Join(args, " "), sessionID, options())
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "Session ID (new session when empty)")

	return cmd
}

func seoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seo [question]",
		Short: "Ask the SEO team a question",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.SEO(cmd.Context(), strings.Join(args, " "), options())
		},
	}
}

func chatCmd() *cobra.Command {
	var sessionID string
	var dbPath string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat with the assistant",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Chat(cmd.Context(), sessionID, dbPath, options())
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "Session ID for conversation persistence")
	cmd.Flags().StringVar(&dbPath, "db", cli.DefaultDBPath, "Database path for conversation history")

	return cmd
}

func toolsCmd() *cobra.Command {
	var verboseTools bool

	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List available tools",
		RunE: func(cmd *cobra.Command, args []string) error {
			cli.ListTools(cmd.OutOrStdout(), verboseTools)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&verboseTools, "verbose", "V", false, "Show tool parameters")

	return cmd
}
