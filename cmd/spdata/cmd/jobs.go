package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var (
	followStatus   bool
	resumeProvider string
	resumeModel    string
	resumePrompt   string
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Manage labeling and QA jobs",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all jobs",
	RunE:  runJobsList,
}

var jobsStatusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Show a job's progress",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsStatus,
}

var jobsResultsCmd = &cobra.Command{
	Use:   "results <job-id>",
	Short: "Show the results accumulated so far",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsResults,
}

var jobsPauseCmd = &cobra.Command{
	Use:   "pause <job-id>",
	Short: "Pause a job at its next row or batch boundary",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsPause,
}

var jobsResumeCmd = &cobra.Command{
	Use:   "resume <job-id>",
	Short: "Resume a paused job",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsResume,
}

var jobsResumeCheckpointCmd = &cobra.Command{
	Use:   "resume-checkpoint <job-id>",
	Short: "Restart a job from its persisted checkpoint",
	Long:  `Restart a job from its checkpoint after a server restart. Requires a fresh provider API key (--key or SPDATA_MODEL_API_KEY); credentials are never stored in checkpoints.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsResumeCheckpoint,
}

func init() {
	rootCmd.AddCommand(jobsCmd)
	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsStatusCmd)
	jobsCmd.AddCommand(jobsResultsCmd)
	jobsCmd.AddCommand(jobsPauseCmd)
	jobsCmd.AddCommand(jobsResumeCmd)
	jobsCmd.AddCommand(jobsResumeCheckpointCmd)

	jobsStatusCmd.Flags().BoolVarP(&followStatus, "follow", "f", false, "poll status every 2 seconds until the job finishes")
	jobsResumeCheckpointCmd.Flags().StringVar(&modelAPIKey, "key", "", "provider API key (overrides SPDATA_MODEL_API_KEY)")
	jobsResumeCheckpointCmd.Flags().StringVar(&resumeProvider, "provider", "", "override the checkpoint's provider")
	jobsResumeCheckpointCmd.Flags().StringVar(&resumeModel, "model", "", "override the checkpoint's model")
	jobsResumeCheckpointCmd.Flags().StringVar(&resumePrompt, "prompt", "", "override the checkpoint's prompt template")
}

type jobSummary struct {
	ID            string     `json:"id"`
	Kind          string     `json:"kind"`
	Status        string     `json:"status"`
	StartTime     time.Time  `json:"start_time"`
	EndTime       *time.Time `json:"end_time,omitempty"`
	TotalRows     int        `json:"total_rows"`
	ProcessedRows int        `json:"processed_rows"`
	DataID        string     `json:"data_id"`
	Provider      string     `json:"provider"`
	ModelVersion  string     `json:"model_version"`
	Error         string     `json:"error,omitempty"`
}

type statusResponse struct {
	JobID     string `json:"job_id"`
	Status    string `json:"status"`
	Processed int    `json:"processed_rows"`
	Total     int    `json:"total_rows"`
	Error     string `json:"error,omitempty"`
}

func getJSON(path string, out interface{}) error {
	resp, err := GetHTTPClient().Get(GetServerURL() + path)
	if err != nil {
		return fmt.Errorf("failed to connect to job server: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}
	return json.Unmarshal(body, out)
}

func postJSON(path string, reqBody, out interface{}) error {
	var buf bytes.Buffer
	if reqBody != nil {
		if err := json.NewEncoder(&buf).Encode(reqBody); err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
	}
	resp, err := GetHTTPClient().Post(GetServerURL()+path, "application/json", &buf)
	if err != nil {
		return fmt.Errorf("failed to connect to job server: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}
	if out != nil {
		return json.Unmarshal(body, out)
	}
	return nil
}

func runJobsList(cmd *cobra.Command, args []string) error {
	var jobs []jobSummary
	if err := getJSON("/api/jobs", &jobs); err != nil {
		return err
	}

	if IsJSONOutput() {
		output, err := json.MarshalIndent(jobs, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Println(string(output))
		return nil
	}

	if len(jobs) == 0 {
		fmt.Println("No jobs found")
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("ID", "Kind", "Status", "Progress", "Provider", "Model", "Started")
	for _, j := range jobs {
		table.Append(
			j.ID,
			j.Kind,
			j.Status,
			fmt.Sprintf("%d/%d", j.ProcessedRows, j.TotalRows),
			j.Provider,
			j.ModelVersion,
			j.StartTime.Format(time.RFC3339),
		)
	}
	table.Render()
	return nil
}

func runJobsStatus(cmd *cobra.Command, args []string) error {
	jobID := args[0]

	if followStatus {
		fmt.Printf("Following job %s (press Ctrl+C to stop)...\n\n", jobID)
		for {
			var status statusResponse
			if err := getJSON("/api/jobs/"+jobID+"/status", &status); err != nil {
				return err
			}
			displayStatus(status)
			if status.Status == "completed" || status.Status == "failed" {
				return nil
			}
			time.Sleep(2 * time.Second)
		}
	}

	var status statusResponse
	if err := getJSON("/api/jobs/"+jobID+"/status", &status); err != nil {
		return err
	}
	if IsJSONOutput() {
		output, _ := json.MarshalIndent(status, "", "  ")
		fmt.Println(string(output))
		return nil
	}
	displayStatus(status)
	return nil
}

func displayStatus(status statusResponse) {
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Field", "Value")
	table.Append("Job ID", status.JobID)
	table.Append("Status", status.Status)
	table.Append("Progress", fmt.Sprintf("%d/%d", status.Processed, status.Total))
	if status.Error != "" {
		table.Append("Error", status.Error)
	}
	table.Render()
}

func runJobsResults(cmd *cobra.Command, args []string) error {
	var partial struct {
		JobID     string `json:"job_id"`
		Status    string `json:"status"`
		Processed int    `json:"processed_rows"`
		Total     int    `json:"total_rows"`
		Results   []struct {
			RowIndex    int               `json:"row_index"`
			IsCorrect   *bool             `json:"is_correct,omitempty"`
			Labels      map[string]string `json:"labels,omitempty"`
			Explanation string            `json:"explanation,omitempty"`
			Errors      []string          `json:"errors"`
		} `json:"recent_results"`
	}
	if err := getJSON("/api/jobs/"+args[0]+"/partial", &partial); err != nil {
		return err
	}

	if IsJSONOutput() {
		output, _ := json.MarshalIndent(partial, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Row", "Outcome", "Errors", "Explanation")
	for _, r := range partial.Results {
		outcome := "-"
		switch {
		case r.IsCorrect != nil:
			outcome = fmt.Sprintf("correct=%v", *r.IsCorrect)
		case len(r.Labels) > 0:
			outcome = fmt.Sprintf("%d labels", len(r.Labels))
		}
		table.Append(
			fmt.Sprintf("%d", r.RowIndex),
			outcome,
			fmt.Sprintf("%d", len(r.Errors)),
			truncate(r.Explanation, 60),
		)
	}
	table.Render()
	fmt.Printf("\n%s: %d/%d rows, showing %d most recent\n", partial.Status, partial.Processed, partial.Total, len(partial.Results))
	return nil
}

func runJobsPause(cmd *cobra.Command, args []string) error {
	if err := postJSON("/api/jobs/"+args[0]+"/pause", nil, nil); err != nil {
		return err
	}
	fmt.Printf("Pause requested for job %s (takes effect at the next row/batch boundary)\n", args[0])
	return nil
}

func runJobsResume(cmd *cobra.Command, args []string) error {
	if err := postJSON("/api/jobs/"+args[0]+"/resume", nil, nil); err != nil {
		return err
	}
	fmt.Printf("Resume requested for job %s\n", args[0])
	return nil
}

func runJobsResumeCheckpoint(cmd *cobra.Command, args []string) error {
	key := GetModelAPIKey()
	if key == "" {
		return fmt.Errorf("a provider API key is required: set --key or SPDATA_MODEL_API_KEY")
	}

	var result map[string]string
	err := postJSON("/api/jobs/"+args[0]+"/resume-checkpoint", map[string]string{
		"api_key":  key,
		"provider": resumeProvider,
		"model":    resumeModel,
		"prompt":   resumePrompt,
	}, &result)
	if err != nil {
		return err
	}
	fmt.Printf("Job %s resumed from checkpoint\n", result["job_id"])
	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
