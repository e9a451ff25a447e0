/*
Copyright 2020 Google LLC

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ademuri/last-fm-dashboard/internal/logging"
	"github.com/ademuri/last-fm-dashboard/internal/server"
	"github.com/ademuri/last-fm-dashboard/internal/snapshot"
	"github.com/ademuri/last-fm-dashboard/internal/supervisor"
	"github.com/ademuri/last-fm-dashboard/internal/syncer"
)

type ServeConfig struct {
	User         string
	Listen       string
	SyncInterval time.Duration
	SnapshotDir  string
	RateLimit    int
	CORSOrigins  []string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serves the dashboard over HTTP and keeps it up to date",
	Long: `Fetches new listens every --sync-interval and regenerates the dashboard when any arrive.
The dashboard is served at /api/dashboard.`,
	PreRunE: requireFlags("user", "api_key", "secret"),
	Run: func(cmd *cobra.Command, args []string) {
		config := ServeConfig{
			User:         currentUser(),
			Listen:       viper.GetString("listen"),
			SyncInterval: viper.GetDuration("sync-interval"),
			SnapshotDir:  viper.GetString("snapshot-dir"),
			RateLimit:    viper.GetInt("rate-limit"),
			CORSOrigins:  viper.GetStringSlice("cors-origins"),
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := serve(ctx, config); err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	var listen string
	serveCmd.Flags().StringVar(&listen, "listen", ":8080", "Address to serve HTTP on")
	viper.BindPFlag("listen", serveCmd.Flags().Lookup("listen"))

	var syncInterval time.Duration
	serveCmd.Flags().DurationVar(&syncInterval, "sync-interval", 15*time.Minute, "How often to fetch new listens")
	viper.BindPFlag("sync-interval", serveCmd.Flags().Lookup("sync-interval"))

	var snapshotDir string
	serveCmd.Flags().StringVar(&snapshotDir, "snapshot-dir", "", "Directory to persist the generated dashboard in (default is memory only)")
	viper.BindPFlag("snapshot-dir", serveCmd.Flags().Lookup("snapshot-dir"))

	var rateLimit int
	serveCmd.Flags().IntVar(&rateLimit, "rate-limit", 120, "Requests per minute allowed per client IP, 0 to disable")
	viper.BindPFlag("rate-limit", serveCmd.Flags().Lookup("rate-limit"))

	var corsOrigins []string
	serveCmd.Flags().StringSliceVar(&corsOrigins, "cors-origins", []string{"*"}, "Origins allowed to fetch the dashboard")
	viper.BindPFlag("cors-origins", serveCmd.Flags().Lookup("cors-origins"))
}

func openCache(dir, user string) (*snapshot.Cache, error) {
	if dir == "" {
		return snapshot.NewMemory(), nil
	}
	cache, err := snapshot.Open(dir, user)
	if err != nil {
		return nil, fmt.Errorf("opening snapshot store: %w", err)
	}
	return cache, nil
}

func serve(ctx context.Context, config ServeConfig) error {
	loc, err := location()
	if err != nil {
		return err
	}
	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	client, err := newLastfmClient(db, config.User)
	if err != nil {
		return err
	}
	cache, err := openCache(config.SnapshotDir, config.User)
	if err != nil {
		return err
	}
	defer cache.Close()

	s := syncer.New(db, client, cache, syncer.Config{
		User:          config.User,
		DurationBatch: 50,
		SyncInterval:  config.SyncInterval,
		Location:      loc,
	})

	api := server.New(s, cache, server.Config{
		RateLimit:   config.RateLimit,
		CORSOrigins: config.CORSOrigins,
	})
	httpServer := &http.Server{
		Addr:              config.Listen,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddSyncService(s)
	tree.AddAPIService(supervisor.NewHTTPService(httpServer, 10*time.Second))

	logging.Info().Str("listen", config.Listen).Str("user", config.User).
		Dur("sync_interval", config.SyncInterval).Msg("serving dashboard")

	err = tree.Serve(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	if report, err := tree.UnstoppedServiceReport(); err == nil && len(report) > 0 {
		logging.Warn().Int("services", len(report)).Msg("services did not stop in time")
	}
	return nil
}
