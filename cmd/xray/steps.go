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
	"fmt"
	"net/url"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/mohit-nagaraj/xray-logger/pkg/trace"
)

func newStepsCommand(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "steps",
		Short: "Inspect recorded steps",
	}

	cmd.AddCommand(newStepsListCommand(flags))

	return cmd
}

func newStepsListCommand(flags *rootFlags) *cobra.Command {
	var (
		runID    string
		stepType string
		status   string
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List steps across runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newAPIClient(flags)
			if err != nil {
				return err
			}

			params := url.Values{}
			if runID != "" {
				params.Set("run_id", runID)
			}
			if stepType != "" {
				params.Set("step_type", stepType)
			}
			if status != "" {
				params.Set("status", status)
			}
			if limit > 0 {
				params.Set("limit", strconv.Itoa(limit))
			}

			var resp struct {
				Steps []*trace.Step `json:"steps"`
			}
			if err := client.get(cmd.Context(), "/v1/steps", params, &resp); err != nil {
				return err
			}

			if flags.jsonOut {
				return printJSON(cmd, resp.Steps)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "STEP ID\tRUN ID\tSEQ\tNAME\tTYPE\tSTATUS\tSTARTED")
			for _, step := range resp.Steps {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
					step.ID, step.RunID, step.Sequence, step.Name, step.Type,
					step.Status, step.StartedAt.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&runID, "run-id", "", "Filter by run ID")
	cmd.Flags().StringVar(&stepType, "type", "", "Filter by step type")
	cmd.Flags().StringVar(&status, "status", "", "Filter by status")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum steps to return")

	return cmd
}
