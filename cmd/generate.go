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
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ademuri/last-fm-dashboard/internal/dashboard"
	"github.com/ademuri/last-fm-dashboard/internal/logging"
	"github.com/ademuri/last-fm-dashboard/internal/store"
)

var generateCmd = &cobra.Command{
	Use:     "generate",
	Short:   "Writes the dashboard JSON for the user",
	Long:    `Aggregates every stored listen into a single JSON document. Run update first to fetch new listens.`,
	PreRunE: requireFlags("user"),
	Run: func(cmd *cobra.Command, args []string) {
		out := viper.GetString("out")
		err := generateDashboard(out, viper.GetBool("pretty"))
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		fmt.Println("Wrote", out)
	},
}

func init() {
	rootCmd.AddCommand(generateCmd)

	var out string
	generateCmd.Flags().StringVarP(&out, "out", "o", "./dashboard.json", "Path to write the dashboard to")
	viper.BindPFlag("out", generateCmd.Flags().Lookup("out"))

	var pretty bool
	generateCmd.Flags().BoolVar(&pretty, "pretty", false, "Indent the JSON output")
	viper.BindPFlag("pretty", generateCmd.Flags().Lookup("pretty"))
}

func generateDashboard(out string, pretty bool) error {
	loc, err := location()
	if err != nil {
		return err
	}
	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	payload, err := buildPayload(db, currentUser(), time.Now().In(loc))
	if err != nil {
		return err
	}
	data, err := dashboard.Encode(payload, pretty)
	if err != nil {
		return err
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return fmt.Errorf("writing dashboard: %w", err)
	}
	return nil
}

func buildPayload(db *store.Store, user string, now time.Time) (*dashboard.Payload, error) {
	events, err := db.ListAllEvents(user)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		logging.Warn().Str("user", user).Msg("no listens stored, run update first")
	}
	durations, err := db.Durations()
	if err != nil {
		return nil, err
	}
	payload, err := dashboard.Aggregate(events, durations, now)
	if err != nil {
		return nil, fmt.Errorf("aggregating %d listens: %w", len(events), err)
	}
	return payload, nil
}
