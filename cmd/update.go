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
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ademuri/last-fm-dashboard/internal/snapshot"
	"github.com/ademuri/last-fm-dashboard/internal/syncer"
)

type UpdateConfig struct {
	User          string
	After         string
	Force         bool
	DurationBatch int
}

// updateCmd represents the update command
var updateCmd = &cobra.Command{
	Use:     "update",
	Short:   "Fetches data from last.fm",
	Long:    `Stores listening data in a local SQLite database and looks up track durations.`,
	PreRunE: requireFlags("user", "api_key", "secret"),
	Run: func(cmd *cobra.Command, args []string) {
		config := UpdateConfig{
			User:          currentUser(),
			After:         viper.GetString("after"),
			Force:         viper.GetBool("force"),
			DurationBatch: viper.GetInt("duration-batch"),
		}

		res, err := updateDatabase(cmd.Context(), config)
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		if res.Skipped {
			fmt.Println("User data was already updated in the past 24 hours")
			return
		}
		fmt.Printf("Added %d listens from %d pages, looked up %d durations\n", res.Added, res.Pages, res.Durations)
	},
}

func init() {
	rootCmd.AddCommand(updateCmd)

	var afterString string
	updateCmd.Flags().StringVar(&afterString, "after", "", "Only get listening data after this date ('yyyy', 'yyyy-mm', 'yyyy-mm-dd' or relative like '30d')")
	viper.BindPFlag("after", updateCmd.Flags().Lookup("after"))

	var force bool
	updateCmd.Flags().BoolVarP(&force, "force", "f", false, "Get all listening data, regardless of what's already present (idempotent)")
	viper.BindPFlag("force", updateCmd.Flags().Lookup("force"))

	var durationBatch int
	updateCmd.Flags().IntVar(&durationBatch, "duration-batch", 200, "Maximum number of track durations to look up")
	viper.BindPFlag("duration-batch", updateCmd.Flags().Lookup("duration-batch"))
}

func updateDatabase(ctx context.Context, config UpdateConfig) (syncer.Result, error) {
	loc, err := location()
	if err != nil {
		return syncer.Result{}, err
	}

	var after time.Time
	if len(config.After) > 0 {
		parsed, err := parseSingleDatestring(config.After, loc)
		if err != nil {
			return syncer.Result{}, fmt.Errorf("--after: %w", err)
		}
		after = parsed.Date
	}

	db, err := openStore()
	if err != nil {
		return syncer.Result{}, err
	}
	defer db.Close()

	client, err := newLastfmClient(db, config.User)
	if err != nil {
		return syncer.Result{}, err
	}

	s := syncer.New(db, client, snapshot.NewMemory(), syncer.Config{
		User:              config.User,
		After:             after,
		Force:             config.Force,
		MinUpdateInterval: 24 * time.Hour,
		DurationBatch:     config.DurationBatch,
		Location:          loc,
	})
	return s.Sync(ctx)
}
