package main

import (
	"encoding/json"
	"fmt"

	"github.com/process-failed-successfully/codegraph-indexer/internal/jobengine"
	"github.com/process-failed-successfully/codegraph-indexer/internal/model"

	"github.com/spf13/cobra"
)

var jobCmd = &cobra.Command{
	Use:   "job",
	Short: "create, inspect, and cancel orchestrator jobs",
}

var (
	jobProjectID   string
	jobCodebaseID  string
	jobKind        string
	jobBaseCommit  string
	jobPriority    int
	jobDescription string
	jobTrigger     string
)

var jobCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "submit a new job",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := buildEngine()
		if err != nil {
			return err
		}
		defer eng.Close()

		trigger := model.TriggerManual
		if jobTrigger != "" {
			trigger = model.JobTrigger(jobTrigger)
		}

		job, err := eng.orch.CreateJob(cmd.Context(), jobengine.CreateJobRequest{
			ProjectID:   jobProjectID,
			CodebaseID:  jobCodebaseID,
			Kind:        model.JobKind(jobKind),
			BaseCommit:  jobBaseCommit,
			Priority:    jobPriority,
			Description: jobDescription,
			Trigger:     trigger,
		})
		if err != nil {
			return err
		}
		return printJSON(job)
	},
}

var jobGetCmd = &cobra.Command{
	Use:   "get <job-id>",
	Short: "fetch one job by id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := buildEngine()
		if err != nil {
			return err
		}
		defer eng.Close()

		job, err := eng.orch.GetJob(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(job)
	},
}

var jobCancelCmd = &cobra.Command{
	Use:   "cancel <job-id>",
	Short: "request cancellation of a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := buildEngine()
		if err != nil {
			return err
		}
		defer eng.Close()

		job, err := eng.orch.CancelJob(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(job)
	},
}

var jobListCmd = &cobra.Command{
	Use:   "list",
	Short: "list active and recent jobs for a codebase",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := buildEngine()
		if err != nil {
			return err
		}
		defer eng.Close()

		jobs, err := eng.orch.ListJobsForCodebase(cmd.Context(), jobCodebaseID)
		if err != nil {
			return err
		}
		return printJSON(jobs)
	},
}

var jobStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "report pool utilization and running job counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := buildEngine()
		if err != nil {
			return err
		}
		defer eng.Close()

		return printJSON(eng.orch.SystemStatus())
	},
}

func printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}

func init() {
	jobCreateCmd.Flags().StringVar(&jobProjectID, "project", "", "project id (required)")
	jobCreateCmd.Flags().StringVar(&jobCodebaseID, "codebase", "", "codebase id (required for CODEBASE_* kinds)")
	jobCreateCmd.Flags().StringVar(&jobKind, "kind", "", "job kind (CODEBASE_FULL|CODEBASE_INCR|DOCS_FULL|DOCS_INCR|API_ANALYSIS|USERFLOW_ANALYSIS)")
	jobCreateCmd.Flags().StringVar(&jobBaseCommit, "base-commit", "", "base commit (required for CODEBASE_INCR)")
	jobCreateCmd.Flags().IntVar(&jobPriority, "priority", 0, "job priority, higher runs first among queued jobs")
	jobCreateCmd.Flags().StringVar(&jobDescription, "description", "", "free-form description")
	jobCreateCmd.Flags().StringVar(&jobTrigger, "trigger", string(model.TriggerManual), "trigger (MANUAL|WEBHOOK|SCHEDULED)")
	jobCreateCmd.MarkFlagRequired("project")
	jobCreateCmd.MarkFlagRequired("kind")

	jobListCmd.Flags().StringVar(&jobCodebaseID, "codebase", "", "codebase id (required)")
	jobListCmd.MarkFlagRequired("codebase")

	jobCmd.AddCommand(jobCreateCmd, jobGetCmd, jobCancelCmd, jobListCmd, jobStatusCmd)
}
