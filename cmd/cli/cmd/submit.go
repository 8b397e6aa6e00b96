package cmd

import (
	"context"
	"time"

	"jobop/internal/job"
	apiv1 "jobop/pkg/api/v1"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a DataManagerJob",
	Long: `Create a new DataManagerJob. The operator then creates its ConfigMap and Pod.

The job is checked locally before it is sent, so a job the operator would
reject is never created.

Example:
  jobctl submit --image "worker:2.0" --command "nextflow run main.nf" --project p1
  jobctl submit --name "debug-run" --image "worker:latest" --command 'sh -c "sleep 10"' --project p1 --debug`,
	Run: func(cmd *cobra.Command, args []string) {
		flags := cmd.Flags()
		name, _ := flags.GetString("name")
		image, _ := flags.GetString("image")
		command, _ := flags.GetString("command")
		taskID, _ := flags.GetString("task-id")
		project, _ := flags.GetString("project")
		claim, _ := flags.GetString("claim")
		mount, _ := flags.GetString("project-mount")
		workDir, _ := flags.GetString("working-dir")
		cpu, _ := flags.GetString("cpu")
		memory, _ := flags.GetString("memory")
		debug, _ := flags.GetBool("debug")

		namespace := viper.GetString("namespace")

		if name == "" {
			name = "job-" + uuid.NewString()[:8]
		}
		if taskID == "" {
			taskID = uuid.NewString()
		}

		j := &apiv1.DataManagerJob{
			TypeMeta:   metav1.TypeMeta{APIVersion: apiv1.GroupVersion.String(), Kind: apiv1.Kind},
			ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: namespace},
			Spec: &apiv1.DataManagerJobSpec{
				Image:            image,
				Command:          command,
				TaskID:           taskID,
				Project:          apiv1.ProjectSpec{ID: project, ClaimName: claim},
				ProjectMount:     mount,
				WorkingDirectory: workDir,
				Debug:            apiv1.Flag(debug),
			},
		}

		values, err := resourceValues(cpu, memory)
		if err != nil {
			cmd.Printf("Error: %v\n", err)
			return
		}
		if values != nil {
			j.Spec.Resources = &apiv1.ResourcesSpec{Requests: values, Limits: values}
		}

		if _, err := job.Resolve(j, job.DefaultDefaults()); err != nil {
			cmd.Printf("Error: %v\n", err)
			return
		}

		client, err := clientFromConfig()
		if err != nil {
			cmd.Printf("Failed to create client: %v\n", err)
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		created, err := client.SubmitJob(ctx, j)
		if err != nil {
			if apiErr, ok := err.(*APIError); ok {
				cmd.Printf("Submit failed (%d): %s\n", apiErr.StatusCode, apiErr.Message)
			} else {
				cmd.Printf("Submit failed: %v\n", err)
			}
			return
		}

		cmd.Printf("✓ Job submitted!\nName: %s\nNamespace: %s\nTask ID: %s\n", created.Name, created.Namespace, taskID)
	},
}

// resourceValues parses the optional cpu and memory flags.
func resourceValues(cpu, memory string) (*apiv1.ResourceValues, error) {
	if cpu == "" && memory == "" {
		return nil, nil
	}
	values := &apiv1.ResourceValues{}
	if cpu != "" {
		q, err := resource.ParseQuantity(cpu)
		if err != nil {
			return nil, err
		}
		values.CPU = &q
	}
	if memory != "" {
		q, err := resource.ParseQuantity(memory)
		if err != nil {
			return nil, err
		}
		values.Memory = &q
	}
	return values, nil
}

func init() {
	flags := submitCmd.Flags()
	flags.String("name", "", "Name of the job (default: generated)")
	flags.StringP("image", "i", "", "Container image (required)")
	flags.StringP("command", "c", "", "Command to run, split with shell quoting rules (required)")
	flags.String("task-id", "", "Task ID (default: generated)")
	flags.StringP("project", "p", "", "Project ID (required)")
	flags.String("claim", "", "Project volume claim name (optional)")
	flags.String("project-mount", "", "Project mount path in the container (optional)")
	flags.String("working-dir", "", "Container working directory (optional)")
	flags.String("cpu", "", "CPU request and limit (optional)")
	flags.String("memory", "", "Memory request and limit (optional)")
	flags.Bool("debug", false, "Keep the pod after it finishes")

	rootCmd.AddCommand(submitCmd)
}
