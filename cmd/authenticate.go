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
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var authenticateCmd = &cobra.Command{
	Use:     "authenticate --user=foo",
	Short:   "Gets a session key for the given user.",
	Long:    `This is needed if the user has marked their data as private.`,
	Args:    cobra.NoArgs,
	PreRunE: requireFlags("user", "api_key", "secret"),
	Run: func(cmd *cobra.Command, args []string) {
		err := getSessionKey(cmd.Context(), os.Stdin, os.Stdout)
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(authenticateCmd)
}

func getSessionKey(ctx context.Context, in io.Reader, out io.Writer) error {
	user := currentUser()
	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.CreateUser(user); err != nil {
		return err
	}
	existing, err := db.GetSessionKey(user)
	if err != nil {
		return fmt.Errorf("Getting existing session_key: %w", err)
	}
	if existing != "" {
		return fmt.Errorf("User %s already has session key", user)
	}

	client, err := newLastfmClient(db, user)
	if err != nil {
		return err
	}
	token, authURL, err := client.AuthURL(ctx)
	if err != nil {
		return fmt.Errorf("Getting token: %w", err)
	}

	fmt.Fprintln(out, "Open this URL and allow access:", authURL)
	fmt.Fprint(out, "Press enter once done")
	if _, err := bufio.NewReader(in).ReadString('\n'); err != nil && err != io.EOF {
		return fmt.Errorf("Waiting for confirmation: %w", err)
	}

	sessionKey, err := client.Login(ctx, token)
	if err != nil {
		return fmt.Errorf("Logging in: %w", err)
	}
	if err := db.SetSessionKey(user, sessionKey); err != nil {
		return err
	}

	fmt.Fprintf(out, "\nSuccessfully authenticated %q\n", user)
	return nil
}
