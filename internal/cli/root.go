// Package cli implements the aai-agent command line interface: project
// scaffolding, the server itself, deployment file generation, and the
// knowledge-base indexer.
package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/alexkroman/aai-agent/internal/config"
)

// Execute loads .env, runs the root command, and returns the process exit
// code.
func Execute() int {
	_ = godotenv.Load()
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "aai-agent: %v\n", err)
		return 1
	}
	return 0
}

// NewRootCommand builds the root command with all subcommands attached.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "aai-agent",
		Short:         "Voice assistant server with streaming speech recognition and synthesis",
		Long: `aai-agent runs a websocket voice assistant: streaming speech-to-text,
a tool-calling agent, and streaming speech synthesis, with an optional
pgvector knowledge base.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(
		newInitCommand(),
		newStartCommand(),
		newDeployCommand(),
		newIndexCommand(),
	)
	return rootCmd
}

// loadConfig reads the config file at path. A missing file is only an error
// when the user named it explicitly; the default path falling back to a zero
// config lets `aai-agent start` run from environment variables alone.
func loadConfig(path string, explicit bool) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return &config.Config{}, nil
		}
		return nil, err
	}
	return cfg, nil
}
