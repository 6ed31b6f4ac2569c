package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/docs"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/source"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/logger"
)

type rootOptions struct {
	configPath string
	payload    string
	logLevel   string
	timeout    time.Duration
	cfg        *config.Config
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:          "docsearch",
		Short:        "Query, inspect and publish documentation search-index payloads",
		SilenceUsage: true,
		Long: `docsearch loads a documentation search-index payload (the
search_index.js emitted by documentation generators, or its JSON body)
and answers term queries against it offline.

The payload can be a local path, file://, http(s):// or s3://bucket/key.
S3 credentials and Kafka brokers come from --config and DS_* variables.`,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			logger.SetupWriter(cmd.ErrOrStderr(), opts.logLevel, "text")
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			opts.cfg = cfg
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to config file (default: built-in defaults)")
	cmd.PersistentFlags().StringVarP(&opts.payload, "payload", "p", "search_index.js", "payload location")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "payload fetch timeout")

	cmd.AddCommand(
		newQueryCmd(opts),
		newInspectCmd(opts),
		newExportCmd(opts),
		newPublishCmd(opts),
	)
	return cmd
}

// fetchRaw reads the payload named by --payload without decoding it.
func (o *rootOptions) fetchRaw(ctx context.Context) ([]byte, error) {
	cfg := o.cfg.Source
	cfg.FetchTimeout = o.timeout
	src, err := source.Open(o.payload, cfg, nil)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	rc, err := src.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", src, err)
	}
	return data, nil
}

func (o *rootOptions) fetchRecords(ctx context.Context) ([]docs.Record, error) {
	data, err := o.fetchRaw(ctx)
	if err != nil {
		return nil, err
	}
	records, err := docs.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", o.payload, err)
	}
	return records, nil
}

// loadStore builds an index from the payload.
func (o *rootOptions) loadStore(ctx context.Context) (*indexer.IndexStore, error) {
	records, err := o.fetchRecords(ctx)
	if err != nil {
		return nil, err
	}
	store := indexer.New()
	if err := store.Load(records); err != nil {
		return nil, err
	}
	return store, nil
}
