package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alexkroman/aai-agent/internal/config"
	"github.com/alexkroman/aai-agent/internal/indexer"
	knowledgepg "github.com/alexkroman/aai-agent/internal/knowledge/postgres"
	openaiembed "github.com/alexkroman/aai-agent/pkg/provider/embeddings/openai"
)

func newIndexCommand() *cobra.Command {
	var (
		configPath string
		url        string
		chunkSize  int
	)

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Fetch a URL and index it into the knowledge base",
		Long: `Fetch a URL (plain text or llms-full.txt format) and index its content
into the pgvector knowledge base used by the knowledge_base tool.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(configPath, cmd.Flags().Changed("config"))
			if err != nil {
				return err
			}
			config.ApplyEnv(cfg)
			if cfg.Knowledge.PostgresDSN == "" {
				return errors.New("knowledge.postgres_dsn is required (or set DATABASE_URL)")
			}

			ctx := cmd.Context()
			dims := cfg.Knowledge.EmbeddingDimensions
			if dims == 0 {
				dims = config.DefaultEmbeddingDimensions
			}
			store, err := knowledgepg.NewStore(ctx, cfg.Knowledge.PostgresDSN, dims)
			if err != nil {
				return err
			}
			defer store.Close()

			embedder, err := openaiembed.New(cfg.Knowledge.EmbeddingAPIKey, cfg.Knowledge.EmbeddingModel)
			if err != nil {
				return err
			}

			var ixOpts []indexer.Option
			if chunkSize > 0 {
				ixOpts = append(ixOpts, indexer.WithChunkSize(chunkSize))
			}
			ix, err := indexer.New(store, embedder, ixOpts...)
			if err != nil {
				return err
			}

			count, err := ix.IndexURL(ctx, url)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Done! Indexed %d chunks from %s\n", count, url)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the YAML configuration file")
	cmd.Flags().StringVarP(&url, "url", "u", "", "URL to fetch and index")
	cmd.Flags().IntVar(&chunkSize, "chunk-size", indexer.DefaultChunkSize, "target characters per chunk")
	_ = cmd.MarkFlagRequired("url")
	return cmd
}
