package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/source"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/kafka"
)

func newPublishCmd(root *rootOptions) *cobra.Command {
	var (
		target   string
		reason   string
		force    bool
		announce bool
		brokers  []string
	)
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Upload a payload to S3 and tell search replicas to reload it",
		Long: `Validates the payload, uploads it to --to (s3://bucket/key) and
publishes a message on the payload-updated Kafka topic naming the new
object. Re-publishing an identical payload does nothing unless --force.

Example:
  docsearch publish -p build/search_index.js --to s3://docs/latest/search_index.js`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			bucket, key, err := source.ParseS3URI(target)
			if err != nil {
				return err
			}
			data, err := root.fetchRaw(cmd.Context())
			if err != nil {
				return err
			}
			store, err := source.NewS3(root.cfg.Source.S3, bucket, key)
			if err != nil {
				return err
			}

			var announcer publisher.Announcer
			if announce {
				kcfg := root.cfg.Kafka
				if len(brokers) > 0 {
					kcfg.Brokers = brokers
				}
				producer := kafka.NewProducer(kcfg, kcfg.Topics.PayloadUpdated)
				defer producer.Close()
				announcer = producer
			}

			res, err := publisher.New(store, announcer).Publish(cmd.Context(), ingestion.PublishRequest{
				Data:   data,
				Reason: reason,
				Force:  force,
			})
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(res); err != nil {
				return err
			}
			if announce && res.Uploaded && !res.Announced {
				return fmt.Errorf("payload uploaded to %s but the reload announcement failed", res.Target)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&target, "to", "", "destination s3://bucket/key")
	cmd.Flags().StringVar(&reason, "reason", "", "reason recorded with the reload")
	cmd.Flags().BoolVar(&force, "force", false, "upload and announce even if unchanged")
	cmd.Flags().BoolVar(&announce, "announce", true, "publish a payload-updated message")
	cmd.Flags().StringSliceVar(&brokers, "brokers", nil, "Kafka brokers (default from config)")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}
