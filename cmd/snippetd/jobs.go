package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/snippetd/internal/jobstatus"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect ingest jobs",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tracked ingest jobs, newest first",
	RunE:  runJobsList,
}

var jobsGetCmd = &cobra.Command{
	Use:   "get <job-id>",
	Short: "Show one job's status",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsGet,
}

var jobsDeleteCmd = &cobra.Command{
	Use:   "delete <job-id>",
	Short: "Remove a job record",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsDelete,
}

func init() {
	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsGetCmd)
	jobsCmd.AddCommand(jobsDeleteCmd)
}

func runJobsList(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	status, closeStatus, err := newStatusStore(cfg, log)
	if err != nil {
		return err
	}
	defer closeStatus()

	records, err := status.List(cmd.Context())
	if err != nil {
		return err
	}

	if len(records) == 0 {
		fmt.Println("No jobs.")
		return nil
	}
	for _, rec := range records {
		progress := "-"
		if rec.Progress != nil {
			progress = fmt.Sprintf("%d%%", *rec.Progress)
		}
		fmt.Printf("%s\t%s\t%s\t%s\t%s\n", rec.ID, rec.Status, progress, rec.RepoName, rec.ProcessMessage)
	}
	return nil
}

func runJobsGet(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	status, closeStatus, err := newStatusStore(cfg, log)
	if err != nil {
		return err
	}
	defer closeStatus()

	rec, err := status.Get(cmd.Context(), args[0])
	if errors.Is(err, jobstatus.ErrNotFound) {
		return fmt.Errorf("job %s not found (completed jobs are removed once their snippets are stored)", args[0])
	}
	if err != nil {
		return err
	}

	fmt.Printf("Job: %s\n", rec.ID)
	fmt.Printf("Status: %s\n", rec.Status)
	fmt.Printf("Repository: %s\n", rec.RepoName)
	fmt.Printf("URL: %s\n", rec.URL)
	if rec.Progress != nil {
		fmt.Printf("Progress: %d%%\n", *rec.Progress)
	}
	if rec.ProcessMessage != "" {
		fmt.Printf("Message: %s\n", rec.ProcessMessage)
	}
	if rec.FailReason != "" {
		fmt.Printf("Failure: %s\n", rec.FailReason)
	}
	fmt.Printf("Created: %s\n", rec.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("Updated: %s\n", rec.UpdatedAt.Format("2006-01-02 15:04:05"))
	return nil
}

func runJobsDelete(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	status, closeStatus, err := newStatusStore(cfg, log)
	if err != nil {
		return err
	}
	defer closeStatus()

	if err := status.Delete(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Printf("Deleted job %s\n", args[0])
	return nil
}
