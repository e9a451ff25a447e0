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
	"io"
	"os"
	"slices"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ademuri/last-fm-dashboard/internal/dashboard"
	"github.com/ademuri/last-fm-dashboard/internal/store"
)

var verifyCmd = &cobra.Command{
	Use:   "verify [from] [to (optional)]",
	Short: "Checks dashboard totals against the database",
	Long: `Recomputes scrobble totals with SQL and compares them with the dashboard, either freshly
aggregated or read from --file. An optional date range ('yyyy', 'yyyy-mm', 'yyyy-mm-dd' or
relative like '30d') adds a check of the timeline over that range.`,
	Args:    cobra.RangeArgs(0, 2),
	PreRunE: requireFlags("user"),
	Run: func(cmd *cobra.Command, args []string) {
		ok, err := verifyDashboard(os.Stdout, viper.GetString("file"), args)
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		if !ok {
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(verifyCmd)

	var file string
	verifyCmd.Flags().StringVar(&file, "file", "", "Dashboard JSON to check instead of aggregating")
	viper.BindPFlag("file", verifyCmd.Flags().Lookup("file"))
}

type check struct {
	name      string
	database  int64
	dashboard int64
}

func (c check) ok() bool {
	return c.database == c.dashboard
}

func verifyDashboard(out io.Writer, file string, args []string) (bool, error) {
	loc, err := location()
	if err != nil {
		return false, err
	}
	var start, end time.Time
	if len(args) > 0 {
		start, end, err = parseDateRangeFromArgs(args, loc)
		if err != nil {
			return false, err
		}
		// The timeline has one entry per day, so compare whole days.
		start = startOfDay(start)
		if day := startOfDay(end); !day.Equal(end) {
			end = day.AddDate(0, 0, 1)
		}
	}

	db, err := openStore()
	if err != nil {
		return false, err
	}
	defer db.Close()
	user := currentUser()

	var payload *dashboard.Payload
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return false, fmt.Errorf("reading dashboard: %w", err)
		}
		payload, err = dashboard.Decode(data)
		if err != nil {
			return false, err
		}
	} else {
		payload, err = buildPayload(db, user, time.Now().In(loc))
		if err != nil {
			return false, err
		}
	}

	checks, err := collectChecks(db, user, loc, payload)
	if err != nil {
		return false, err
	}
	if !start.IsZero() {
		inRange, err := db.GetScrobblesInPeriod(user, start, end)
		if err != nil {
			return false, err
		}
		checks = append(checks, check{
			name:      fmt.Sprintf("%s to %s", start.Format("2006-01-02"), end.Format("2006-01-02")),
			database:  inRange,
			dashboard: timelineSum(payload, start, end, loc),
		})
	}

	return printChecks(out, checks)
}

func collectChecks(db *store.Store, user string, loc *time.Location, p *dashboard.Payload) ([]check, error) {
	total, err := db.GetTotalScrobbles(user)
	if err != nil {
		return nil, err
	}
	artists, err := db.GetTotalArtists(user)
	if err != nil {
		return nil, err
	}
	first, err := db.GetFirstListen(user)
	if err != nil {
		return nil, err
	}
	var firstUnix int64
	if !first.IsZero() {
		firstUnix = first.Unix()
	}
	byYear, err := db.GetScrobblesByYear(user, loc)
	if err != nil {
		return nil, err
	}

	var timeline int64
	for _, n := range p.Timeline {
		timeline += int64(n)
	}
	var history int64
	for _, m := range p.History {
		history += int64(m.Scrobbles)
	}

	checks := []check{
		{"total scrobbles", total, int64(p.Meta.TotalScrobbles)},
		{"unique artists", int64(artists), int64(p.Meta.UniqueArtists)},
		{"first scrobble", firstUnix, p.Meta.FirstScrobble},
		{"timeline sum", total, timeline},
		{"monthly history sum", total, history},
	}

	years := make([]int, 0, len(byYear))
	for y := range byYear {
		years = append(years, y)
	}
	for y := range p.Years {
		n, err := strconv.Atoi(y)
		if err == nil && !slices.Contains(years, n) {
			years = append(years, n)
		}
	}
	slices.Sort(years)
	for _, y := range years {
		var got int64
		if summary, ok := p.Years[strconv.Itoa(y)]; ok {
			got = int64(summary.Total)
		}
		checks = append(checks, check{fmt.Sprintf("year %d", y), byYear[y], got})
	}
	return checks, nil
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// timelineSum adds up timeline days that fall in [start, end).
func timelineSum(p *dashboard.Payload, start, end time.Time, loc *time.Location) int64 {
	var sum int64
	for day, n := range p.Timeline {
		t, err := time.ParseInLocation("2006-01-02", day, loc)
		if err != nil {
			continue
		}
		if !t.Before(start) && t.Before(end) {
			sum += int64(n)
		}
	}
	return sum
}

func printChecks(out io.Writer, checks []check) (bool, error) {
	allOK := true
	table := tablewriter.NewWriter(out)
	table.Header([]string{"Check", "Database", "Dashboard", "OK"})
	for _, c := range checks {
		status := "yes"
		if !c.ok() {
			status = "NO"
			allOK = false
		}
		row := []string{c.name, strconv.FormatInt(c.database, 10), strconv.FormatInt(c.dashboard, 10), status}
		if err := table.Append(row); err != nil {
			return false, fmt.Errorf("appending row: %w", err)
		}
	}
	if err := table.Render(); err != nil {
		return false, fmt.Errorf("rendering table: %w", err)
	}
	return allOK, nil
}
