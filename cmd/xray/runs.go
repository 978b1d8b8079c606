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
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/mohit-nagaraj/xray-logger/pkg/trace"
)

func newRunsCommand(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect pipeline runs",
	}

	cmd.AddCommand(newRunsListCommand(flags))
	cmd.AddCommand(newRunsGetCommand(flags))

	return cmd
}

func newRunsListCommand(flags *rootFlags) *cobra.Command {
	var (
		pipeline string
		status   string
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newAPIClient(flags)
			if err != nil {
				return err
			}

			params := url.Values{}
			if pipeline != "" {
				params.Set("pipeline", pipeline)
			}
			if status != "" {
				params.Set("status", status)
			}
			if limit > 0 {
				params.Set("limit", strconv.Itoa(limit))
			}

			var resp struct {
				Runs []*trace.Run `json:"runs"`
			}
			if err := client.get(cmd.Context(), "/v1/runs", params, &resp); err != nil {
				return err
			}

			if flags.jsonOut {
				return printJSON(cmd, resp.Runs)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "RUN ID\tPIPELINE\tSTATUS\tSTARTED\tDURATION")
			for _, run := range resp.Runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					run.ID, run.PipelineName, run.Status,
					run.StartedAt.Format(time.RFC3339), formatDuration(run.StartedAt, run.EndedAt))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&pipeline, "pipeline", "", "Filter by pipeline name")
	cmd.Flags().StringVar(&status, "status", "", "Filter by status (running, completed, failed)")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum runs to return")

	return cmd
}

func newRunsGetCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "get <run-id>",
		Short: "Show one run with its steps in execution order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newAPIClient(flags)
			if err != nil {
				return err
			}

			var run trace.Run
			if err := client.get(cmd.Context(), "/v1/runs/"+url.PathEscape(args[0]), nil, &run); err != nil {
				return err
			}

			if flags.jsonOut {
				return printJSON(cmd, run)
			}

			cmd.Printf("Run %s\n", run.ID)
			cmd.Printf("  pipeline: %s\n", run.PipelineName)
			cmd.Printf("  status:   %s\n", run.Status)
			cmd.Printf("  started:  %s\n", run.StartedAt.Format(time.RFC3339))
			if run.EndedAt != nil {
				cmd.Printf("  duration: %s\n", formatDuration(run.StartedAt, run.EndedAt))
			}
			if run.ErrorMessage != "" {
				cmd.Printf("  error:    %s\n", run.ErrorMessage)
			}

			if len(run.Steps) == 0 {
				return nil
			}

			cmd.Println("\nSteps:")
			depths := stepDepths(run.Steps)
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "  SEQ\tNAME\tTYPE\tSTATUS\tDURATION")
			for _, step := range run.Steps {
				name := strings.Repeat("  ", depths[step.ID]) + step.Name
				marker := ""
				if step.Orphaned {
					marker = " (orphaned)"
				}
				fmt.Fprintf(w, "  %d\t%s\t%s\t%s%s\t%s\n",
					step.Sequence, name, step.Type, step.Status, marker,
					formatDuration(step.StartedAt, step.EndedAt))
			}
			return w.Flush()
		},
	}
}

// stepDepths computes indentation depth per step from parent pointers.
func stepDepths(steps []*trace.Step) map[string]int {
	depths := make(map[string]int, len(steps))
	byID := make(map[string]*trace.Step, len(steps))
	for _, s := range steps {
		byID[s.ID] = s
	}

	var depthOf func(id string, hops int) int
	depthOf = func(id string, hops int) int {
		if hops > len(steps) {
			return 0
		}
		if d, ok := depths[id]; ok {
			return d
		}
		s, ok := byID[id]
		if !ok || s.ParentID == "" {
			depths[id] = 0
			return 0
		}
		d := depthOf(s.ParentID, hops+1) + 1
		depths[id] = d
		return d
	}

	for _, s := range steps {
		depthOf(s.ID, 0)
	}
	return depths
}

func formatDuration(start time.Time, end *time.Time) string {
	if end == nil {
		return "-"
	}
	return end.Sub(start).Round(time.Millisecond).String()
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	cmd.Println(string(data))
	return nil
}
