// Package main provides a CLI for interacting with the agentflow server.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tcmartin/agentflow/pkg/workflow"
)

var serverURL string

func main() {
	rootCmd := &cobra.Command{
		Use:   "agentflow-cli",
		Short: "AgentFlow CLI",
		Long:  "Command-line interface for interacting with the agentflow server",
	}

	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "Server URL")

	rootCmd.AddCommand(executeCmd())
	rootCmd.AddCommand(workflowCmd())
	rootCmd.AddCommand(checkpointCmd())
	rootCmd.AddCommand(approvalCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func executeCmd() *cobra.Command {
	var (
		organizationID string
		userID         string
		sessionID      string
		userRequest    string
		variables      []string
	)

	cmd := &cobra.Command{
		Use:   "execute <workflow>",
		Short: "Execute a workflow and print its result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			vars := make(map[string]interface{}, len(variables))
			for _, pair := range variables {
				key, value, found := strings.Cut(pair, "=")
				if !found {
					return fmt.Errorf("invalid variable %q, expected key=value", pair)
				}
				vars[key] = value
			}

			body := map[string]interface{}{
				"organization_id": organizationID,
				"user_id":         userID,
				"session_id":      sessionID,
				"user_request":    userRequest,
				"variables":       vars,
			}
			return postAndPrint(fmt.Sprintf("/api/v1/workflows/%s/execute", args[0]), body)
		},
	}

	cmd.Flags().StringVar(&organizationID, "org", "", "Organization ID")
	cmd.Flags().StringVar(&userID, "user", "", "User ID")
	cmd.Flags().StringVar(&sessionID, "session", "", "Session ID (required)")
	cmd.Flags().StringVar(&userRequest, "request", "", "User request text")
	cmd.Flags().StringArrayVar(&variables, "var", nil, "Initial variable as key=value (repeatable)")
	cmd.MarkFlagRequired("session")

	return cmd
}

func workflowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workflow",
		Short: "Workflow definition management",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List registered workflows",
		RunE: func(cmd *cobra.Command, args []string) error {
			return getAndPrint("/api/v1/workflows")
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show <name>",
		Short: "Show a workflow definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return getAndPrint("/api/v1/workflows/" + args[0])
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate <file>",
		Short: "Validate a workflow YAML file locally",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			def, err := workflow.ParseDefinition(content)
			if err != nil {
				return fmt.Errorf("invalid: %w", err)
			}
			fmt.Printf("valid: %s (%d nodes, %d edges)\n", def.Name, len(def.Nodes), len(def.Edges))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "push <file>",
		Short: "Upload a workflow YAML file to the server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			def, err := workflow.ParseDefinition(content)
			if err != nil {
				return fmt.Errorf("invalid: %w", err)
			}

			payload, err := json.Marshal(map[string]string{"yaml": string(content)})
			if err != nil {
				return err
			}
			req, err := http.NewRequest(http.MethodPut, serverURL+"/api/v1/workflows/"+def.Name, bytes.NewReader(payload))
			if err != nil {
				return err
			}
			req.Header.Set("Content-Type", "application/json")
			return doAndPrint(req)
		},
	})

	return cmd
}

func checkpointCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Checkpoint administration",
	}

	var limit int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List recent checkpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			return getAndPrint(fmt.Sprintf("/api/v1/checkpoints?limit=%d", limit))
		},
	}
	listCmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of checkpoints")
	cmd.AddCommand(listCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "show <session-id>",
		Short: "Show a checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return getAndPrint("/api/v1/checkpoints/" + args[0])
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <session-id>",
		Short: "Delete a checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := http.NewRequest(http.MethodDelete, serverURL+"/api/v1/checkpoints/"+args[0], nil)
			if err != nil {
				return err
			}
			return doAndPrint(req)
		},
	})

	var olderThanHours int
	cleanupCmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove checkpoints past the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/v1/checkpoints/cleanup"
			if olderThanHours > 0 {
				path = fmt.Sprintf("%s?older_than_hours=%d", path, olderThanHours)
			}
			return postAndPrint(path, nil)
		},
	}
	cleanupCmd.Flags().IntVar(&olderThanHours, "older-than-hours", 0, "Override the retention window in hours")
	cmd.AddCommand(cleanupCmd)

	return cmd
}

func approvalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "approval",
		Short: "Approval management",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "pending <approver-id>",
		Short: "List an approver's pending requests",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return getAndPrint("/api/v1/approvals/pending/" + args[0])
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show <approval-id>",
		Short: "Show an approval request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return getAndPrint("/api/v1/approvals/" + args[0])
		},
	})

	var resolution string
	resolve := func(approved bool) func(cmd *cobra.Command, args []string) error {
		return func(cmd *cobra.Command, args []string) error {
			return postAndPrint("/api/v1/approvals/"+args[0]+"/resolve", map[string]interface{}{
				"approved":   approved,
				"resolution": resolution,
			})
		}
	}

	approveCmd := &cobra.Command{
		Use:   "approve <approval-id>",
		Short: "Approve a pending request and resume its workflow",
		Args:  cobra.ExactArgs(1),
		RunE:  resolve(true),
	}
	rejectCmd := &cobra.Command{
		Use:   "reject <approval-id>",
		Short: "Reject a pending request",
		Args:  cobra.ExactArgs(1),
		RunE:  resolve(false),
	}
	approveCmd.Flags().StringVar(&resolution, "resolution", "", "Resolution note")
	rejectCmd.Flags().StringVar(&resolution, "resolution", "", "Resolution note")
	cmd.AddCommand(approveCmd, rejectCmd)

	return cmd
}

func getAndPrint(path string) error {
	req, err := http.NewRequest(http.MethodGet, serverURL+path, nil)
	if err != nil {
		return err
	}
	return doAndPrint(req)
}

func postAndPrint(path string, body interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(http.MethodPost, serverURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return doAndPrint(req)
}

// doAndPrint executes the request and pretty-prints the JSON response
func doAndPrint(req *http.Request) error {
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		return fmt.Errorf("server returned %s: %s", resp.Status, strings.TrimSpace(string(data)))
	}

	if len(data) == 0 {
		fmt.Println("ok")
		return nil
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, data, "", "  "); err != nil {
		fmt.Println(string(data))
		return nil
	}
	fmt.Println(pretty.String())
	return nil
}
