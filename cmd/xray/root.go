// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"os"

	"github.com/spf13/cobra"
)

// rootFlags holds global flags shared by all subcommands.
type rootFlags struct {
	serverURL string
	apiKey    string
	jsonOut   bool
}

func newRootCommand() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:   "xray",
		Short: "Inspect pipeline runs and steps",
		Long: `xray queries a trace server for recorded pipeline runs and their steps.

The server address comes from --server or the XRAY_BASE_URL environment
variable.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&flags.serverURL, "server", "", "Trace server base URL (default $XRAY_BASE_URL or http://localhost:8787)")
	cmd.PersistentFlags().StringVar(&flags.apiKey, "api-key", "", "API key for authenticated servers (default $XRAY_API_KEY)")
	cmd.PersistentFlags().BoolVar(&flags.jsonOut, "json", false, "Output raw JSON")

	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newRunsCommand(flags))
	cmd.AddCommand(newStepsCommand(flags))
	cmd.AddCommand(newVersionCommand())

	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("xray version %s\n", version)
			cmd.Printf("  commit: %s\n", commit)
		},
	}
}

// resolve fills flag defaults from the environment.
func (f *rootFlags) resolve() {
	if f.serverURL == "" {
		f.serverURL = os.Getenv("XRAY_BASE_URL")
	}
	if f.serverURL == "" {
		f.serverURL = "http://localhost:8787"
	}
	if f.apiKey == "" {
		f.apiKey = os.Getenv("XRAY_API_KEY")
	}
}
