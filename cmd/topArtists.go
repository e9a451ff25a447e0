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
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var topArtistsNumber int
var topArtistsCmd = &cobra.Command{
	Use:     "top-artists [from] [to (optional)]",
	Short:   "Gets the user's top artists",
	Long:    `Uses the specified date or date range. Date strings look like 'yyyy', 'yyyy-mm', 'yyyy-mm-dd' or '30d'.`,
	Args:    cobra.RangeArgs(1, 2),
	PreRunE: requireFlags("user"),
	Run: func(cmd *cobra.Command, args []string) {
		err := printTopArtists(os.Stdout, topArtistsNumber, args)
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(topArtistsCmd)

	topArtistsCmd.Flags().IntVarP(&topArtistsNumber, "number", "n", 10, "number of results to return")
}

func printTopArtists(out io.Writer, numToReturn int, args []string) error {
	loc, err := location()
	if err != nil {
		return err
	}
	start, end, err := parseDateRangeFromArgs(args, loc)
	if err != nil {
		return err
	}

	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	artists, err := db.GetTopArtists(currentUser(), start, end, numToReturn)
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(out)
	table.Header([]string{"Artist", "Scrobbles"})
	for _, a := range artists {
		if err := table.Append([]string{a.Name, strconv.FormatInt(a.Scrobbles, 10)}); err != nil {
			return err
		}
	}
	return table.Render()
}
