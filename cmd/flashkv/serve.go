package main

import (
	"os/signal"
	"syscall"

	api "github.com/forever-free1/FlashKV/api/http"
	"github.com/forever-free1/FlashKV/metrics"
	"github.com/forever-free1/FlashKV/storage/logstore"
	"github.com/forever-free1/FlashKV/watch"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the image over HTTP",
	Long:  `Serve the key-value store over HTTP with a JSON API, server-sent change events and Prometheus metrics. The format of the environment variables is FLASHKV_<flag> (e.g. FLASHKV_ENDPOINT=0.0.0.0:9090)`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		reg := prometheus.NewRegistry()
		s, closeStore, err := openStore(logstore.WithRecorder(metrics.New(reg)))
		if err != nil {
			return err
		}
		defer closeStore()

		hub := watch.NewHub()
		defer hub.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		logger := newLogger()
		srv := api.NewServer(viper.GetString("endpoint"), logstore.NewShared(s), hub, reg, logger)
		return srv.Run(ctx)
	},
}

func init() {
	key := "endpoint"
	serveCmd.Flags().String(key, "127.0.0.1:8080", wrapString("The address on which the API will listen"))
}
