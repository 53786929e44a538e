package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/caselight/caselight/internal/home"
	"github.com/caselight/caselight/internal/vectorstore"
)

var qdrantCmd = &cobra.Command{
	Use:   "qdrant",
	Short: "Manage the Qdrant container",
	Long: `Manage the Qdrant container lifecycle.

Qdrant holds every case's vector collections. The database runs in a
Docker container with data persisted to ~/.caselight/qdrant/.

Examples:
  caselight qdrant start   # Start the Qdrant container
  caselight qdrant stop    # Stop the container (data preserved)
  caselight qdrant status  # Check container status
  caselight qdrant logs    # View container logs`,
}

var qdrantStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the Qdrant container",
	Long: `Start the Qdrant container.

If the container doesn't exist, it will be created and started.
If it exists but is stopped, it will be started.
If it's already running, this is a no-op.

Data is persisted to ~/.caselight/qdrant/.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		mgr, err := getDockerManager()
		if err != nil {
			return err
		}
		defer mgr.Close()

		fmt.Println("Starting Qdrant...")
		if err := mgr.Start(ctx); err != nil {
			return fmt.Errorf("failed to start Qdrant: %w", err)
		}

		fmt.Printf("Qdrant is running at %s\n", mgr.URL())
		return nil
	},
}

var qdrantStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the Qdrant container",
	Long: `Stop the Qdrant container.

This stops the container but preserves data. Use 'caselight qdrant start'
to restart it later.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		mgr, err := getDockerManager()
		if err != nil {
			return err
		}
		defer mgr.Close()

		fmt.Println("Stopping Qdrant...")
		if err := mgr.Stop(ctx); err != nil {
			return fmt.Errorf("failed to stop Qdrant: %w", err)
		}

		fmt.Println("Qdrant stopped")
		return nil
	},
}

var qdrantStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show Qdrant container status",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		mgr, err := getDockerManager()
		if err != nil {
			return err
		}
		defer mgr.Close()

		status, err := mgr.Status(ctx)
		if err != nil {
			return fmt.Errorf("failed to get status: %w", err)
		}

		switch status {
		case vectorstore.StatusRunning:
			fmt.Printf("Status: %s\n", status)
			fmt.Printf("URL: %s\n", mgr.URL())

			client := vectorstore.NewClient(mgr.URL())
			if err := client.HealthCheck(ctx); err != nil {
				fmt.Printf("Health: unhealthy (%v)\n", err)
			} else {
				fmt.Println("Health: healthy")
			}
		case vectorstore.StatusStopped:
			fmt.Printf("Status: %s (use 'caselight qdrant start' to start)\n", status)
		case vectorstore.StatusNotFound:
			fmt.Printf("Status: %s (use 'caselight qdrant start' to create)\n", status)
		default:
			fmt.Printf("Status: %s\n", status)
		}

		return nil
	},
}

var qdrantLogsTail string

var qdrantLogsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show Qdrant container logs",
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := getDockerManager()
		if err != nil {
			return err
		}
		defer mgr.Close()

		logs, err := mgr.Logs(cmd.Context(), qdrantLogsTail)
		if err != nil {
			return fmt.Errorf("failed to get logs: %w", err)
		}

		fmt.Print(logs)
		return nil
	},
}

var qdrantRemoveCmd = &cobra.Command{
	Use:   "remove",
	Short: "Remove the Qdrant container",
	Long: `Remove the Qdrant container.

This stops and removes the container. Data in ~/.caselight/qdrant/
is NOT deleted - only the container is removed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := getDockerManager()
		if err != nil {
			return err
		}
		defer mgr.Close()

		fmt.Println("Removing Qdrant container...")
		if err := mgr.Remove(cmd.Context()); err != nil {
			return fmt.Errorf("failed to remove container: %w", err)
		}

		fmt.Println("Qdrant container removed (data preserved)")
		return nil
	},
}

var qdrantWaitCmd = &cobra.Command{
	Use:   "wait",
	Short: "Wait for Qdrant to be ready",
	Long: `Wait for Qdrant to be ready to accept connections.

This is useful in scripts to ensure Qdrant is fully started before
running other commands.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := getDockerManager()
		if err != nil {
			return err
		}
		defer mgr.Close()

		timeout, _ := cmd.Flags().GetDuration("timeout")
		fmt.Printf("Waiting for Qdrant (timeout: %s)...\n", timeout)

		if err := mgr.WaitReady(cmd.Context(), timeout); err != nil {
			return fmt.Errorf("Qdrant not ready: %w", err)
		}

		fmt.Println("Qdrant is ready")
		return nil
	},
}

func init() {
	qdrantCmd.AddCommand(qdrantStartCmd)
	qdrantCmd.AddCommand(qdrantStopCmd)
	qdrantCmd.AddCommand(qdrantStatusCmd)
	qdrantCmd.AddCommand(qdrantLogsCmd)
	qdrantCmd.AddCommand(qdrantRemoveCmd)
	qdrantCmd.AddCommand(qdrantWaitCmd)

	qdrantLogsCmd.Flags().StringVar(&qdrantLogsTail, "tail", "100", "Number of lines to show from the end")
	qdrantWaitCmd.Flags().Duration("timeout", 30*time.Second, "Timeout waiting for Qdrant")

	rootCmd.AddCommand(qdrantCmd)
}

// getHome returns the home directory manager.
func getHome() (*home.Dir, error) {
	h, err := home.New(homeDir)
	if err != nil {
		return nil, err
	}
	if err := h.EnsureExists(); err != nil {
		return nil, fmt.Errorf("failed to create home directory: %w", err)
	}
	return h, nil
}

// getDockerManager creates a DockerManager with the standard config.
func getDockerManager() (*vectorstore.DockerManager, error) {
	h, err := getHome()
	if err != nil {
		return nil, err
	}
	return vectorstore.NewDockerManager(vectorstore.DockerConfig{
		DataPath: h.QdrantDataPath(),
	})
}
