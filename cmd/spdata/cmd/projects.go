package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var (
	projectName        string
	projectDescription string
	projectType        string
)

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "Manage project groupings",
}

var projectsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all projects",
	RunE:  runProjectsList,
}

var projectsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a project",
	RunE:  runProjectsCreate,
}

var projectsDeleteCmd = &cobra.Command{
	Use:   "delete <project-id>",
	Short: "Delete a project",
	Args:  cobra.ExactArgs(1),
	RunE:  runProjectsDelete,
}

func init() {
	rootCmd.AddCommand(projectsCmd)
	projectsCmd.AddCommand(projectsListCmd)
	projectsCmd.AddCommand(projectsCreateCmd)
	projectsCmd.AddCommand(projectsDeleteCmd)

	projectsCreateCmd.Flags().StringVar(&projectName, "name", "", "project name (required)")
	projectsCreateCmd.Flags().StringVar(&projectDescription, "description", "", "project description")
	projectsCreateCmd.Flags().StringVar(&projectType, "type", "qa", "project type: qa or label")
	projectsCreateCmd.MarkFlagRequired("name")
}

type projectSummary struct {
	ID          string    `json:"project_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Type        string    `json:"project_type"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	LastJobID   string    `json:"last_job_id,omitempty"`
}

func runProjectsList(cmd *cobra.Command, args []string) error {
	var projects []projectSummary
	if err := getJSON("/api/projects", &projects); err != nil {
		return err
	}

	if IsJSONOutput() {
		output, err := json.MarshalIndent(projects, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Println(string(output))
		return nil
	}

	if len(projects) == 0 {
		fmt.Println("No projects found")
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("ID", "Name", "Type", "Status", "Last Job", "Created")
	for _, p := range projects {
		table.Append(p.ID, p.Name, p.Type, p.Status, p.LastJobID, p.CreatedAt.Format(time.RFC3339))
	}
	table.Render()
	return nil
}

func runProjectsCreate(cmd *cobra.Command, args []string) error {
	var created projectSummary
	err := postJSON("/api/projects", map[string]string{
		"name":         projectName,
		"description":  projectDescription,
		"project_type": projectType,
	}, &created)
	if err != nil {
		return err
	}
	fmt.Printf("Project created: %s (%s)\n", created.Name, created.ID)
	return nil
}

func runProjectsDelete(cmd *cobra.Command, args []string) error {
	req, err := http.NewRequest(http.MethodDelete, GetServerURL()+"/api/projects/"+args[0], nil)
	if err != nil {
		return err
	}
	resp, err := GetHTTPClient().Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to job server: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("API error (status %d)", resp.StatusCode)
	}
	fmt.Printf("Project %s deleted\n", args[0])
	return nil
}
