package cmd

import (
	"context"
	"fmt"
	"time"

	"jobop/internal/resources"
	apiv1 "jobop/pkg/api/v1"

	"github.com/spf13/cobra"
	corev1 "k8s.io/api/core/v1"
)

var statusCmd = &cobra.Command{
	Use:   "status [job_name]",
	Short: "Get status of a job",
	Long:  `Retrieve a DataManagerJob and the state of its pod (Pending, Running, Succeeded, Failed), exit code and timestamps. A job whose pod is gone has been cleaned up.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		name := args[0]

		client, err := clientFromConfig()
		if err != nil {
			cmd.Printf("Failed to create client: %v\n", err)
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		j, err := client.GetJob(ctx, name)
		if err != nil {
			if apiErr, ok := err.(*APIError); ok {
				cmd.Printf("Request failed with status code: %d\n", apiErr.StatusCode)
			} else {
				cmd.Printf("Failed to get job: %v\n", err)
			}
			return
		}

		pod, err := client.GetPod(ctx, name)
		if err != nil {
			cmd.Printf("Failed to get pod: %v\n", err)
			return
		}
		hasConfig, err := client.HasConfigMap(ctx, name)
		if err != nil {
			cmd.Printf("Failed to get configmap: %v\n", err)
			return
		}

		printStatus(cmd, j, pod, hasConfig)
	},
}

func printStatus(cmd *cobra.Command, j *apiv1.DataManagerJob, pod *corev1.Pod, hasConfig bool) {
	phase := "CLEANED UP"
	if pod != nil {
		phase = string(pod.Status.Phase)
	}

	// Header with status icon
	icon := statusIcon(phase)
	cmd.Printf("%s %sJob Details%s\n", icon, colorBold, colorReset)
	cmd.Println("──────────────────────────────")

	cmd.Printf("%sName:%s        %s\n", colorDim, colorReset, j.Name)
	cmd.Printf("%sNamespace:%s   %s\n", colorDim, colorReset, j.Namespace)
	if j.Spec != nil {
		cmd.Printf("%sImage:%s       %s\n", colorDim, colorReset, j.Spec.Image)
		cmd.Printf("%sTask ID:%s     %s\n", colorDim, colorReset, j.Spec.TaskID)
		if j.Spec.Debug {
			cmd.Printf("%sDebug:%s       %syes (pod is kept)%s\n", colorDim, colorReset, colorYellow, colorReset)
		}
	}

	// Status with icon
	cmd.Printf("%sStatus:%s      %s\n", colorDim, colorReset, colorizeStatus(phase))

	configState := "-"
	if hasConfig {
		configState = resources.ConfigMapName(j.Name)
	}
	cmd.Printf("%sConfigMap:%s   %s\n", colorDim, colorReset, configState)

	if pod == nil {
		return
	}

	state := containerState(pod, j.Name)

	// Exit Code
	if state != nil && state.Terminated != nil {
		exitCode := state.Terminated.ExitCode
		if exitCode == 0 {
			cmd.Printf("%sExit Code:%s   %s%d%s\n", colorDim, colorReset, colorGreen, exitCode, colorReset)
		} else {
			cmd.Printf("%sExit Code:%s   %s%d%s\n", colorDim, colorReset, colorRed, exitCode, colorReset)
		}
		if state.Terminated.Message != "" {
			cmd.Printf("%sMessage:%s     %s%s%s\n", colorDim, colorReset, colorRed, state.Terminated.Message, colorReset)
		}
	} else {
		cmd.Printf("%sExit Code:%s   -\n", colorDim, colorReset)
	}

	var startedAt, finishedAt *time.Time
	if pod.Status.StartTime != nil {
		t := pod.Status.StartTime.Time
		startedAt = &t
	}
	if state != nil && state.Terminated != nil && !state.Terminated.FinishedAt.IsZero() {
		t := state.Terminated.FinishedAt.Time
		finishedAt = &t
	}

	// Timestamps with relative time
	cmd.Printf("%sStarted:%s     %s\n", colorDim, colorReset, formatTimeWithRelative(startedAt))

	// Duration if both times available
	if startedAt != nil && finishedAt != nil {
		duration := finishedAt.Sub(*startedAt)
		cmd.Printf("%sFinished:%s    %s %s(%s)%s\n", colorDim, colorReset,
			formatTimeWithRelative(finishedAt),
			colorCyan, formatDuration(duration), colorReset)
	} else {
		cmd.Printf("%sFinished:%s    %s\n", colorDim, colorReset, formatTimeWithRelative(finishedAt))
	}
}

// containerState returns the state of the job's container, if reported.
func containerState(pod *corev1.Pod, name string) *corev1.ContainerState {
	for i := range pod.Status.ContainerStatuses {
		if pod.Status.ContainerStatuses[i].Name == name {
			return &pod.Status.ContainerStatuses[i].State
		}
	}
	return nil
}

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
)

func statusIcon(status string) string {
	switch status {
	case "Succeeded", "Completed":
		return colorGreen + "✓" + colorReset
	case "Failed":
		return colorRed + "✗" + colorReset
	case "Running":
		return colorYellow + "⏳" + colorReset
	case "Pending":
		return colorCyan + "◯" + colorReset
	default:
		return "•"
	}
}

func colorizeStatus(status string) string {
	icon := statusIcon(status)
	switch status {
	case "Succeeded", "Completed":
		return icon + " " + colorGreen + status + colorReset
	case "Failed":
		return icon + " " + colorRed + status + colorReset
	case "Running":
		return icon + " " + colorYellow + status + colorReset
	case "Pending":
		return icon + " " + colorCyan + status + colorReset
	default:
		return status
	}
}

func formatTimeWithRelative(t *time.Time) string {
	if t == nil {
		return "-"
	}
	relative := relativeTime(*t)
	return fmt.Sprintf("%s %s(%s ago)%s", t.Format("Mon, 02 Jan 2006 15:04:05 MST"), colorDim, relative, colorReset)
}

func relativeTime(t time.Time) string {
	duration := time.Since(t)

	if duration < time.Minute {
		return fmt.Sprintf("%ds", int(duration.Seconds()))
	} else if duration < time.Hour {
		return fmt.Sprintf("%dm", int(duration.Minutes()))
	} else if duration < 24*time.Hour {
		return fmt.Sprintf("%dh", int(duration.Hours()))
	} else {
		days := int(duration.Hours() / 24)
		if days == 1 {
			return "1 day"
		}
		return fmt.Sprintf("%d days", days)
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	} else if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	} else if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
