package cmd

import (
	"fmt"
	"io"
	"os"

	"jobop/internal/job"
	"jobop/internal/resources"
	apiv1 "jobop/pkg/api/v1"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"sigs.k8s.io/yaml"
)

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Print the ConfigMap and Pod the operator would create for a job",
	Long: `Read a DataManagerJob manifest and print, as YAML, the ConfigMap and Pod
the operator would create for it. Nothing is sent to the cluster.

Example:
  jobctl render -f job.yaml
  cat job.yaml | jobctl render -f -`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		file, _ := cmd.Flags().GetString("file")
		if file == "" {
			cmd.Println("Error: --file is required")
			return
		}

		raw, err := readManifest(cmd, file)
		if err != nil {
			cmd.Printf("Failed to read %s: %v\n", file, err)
			return
		}

		out, err := renderManifest(raw, viper.GetString("namespace"))
		if err != nil {
			cmd.Printf("Error: %v\n", err)
			return
		}
		cmd.Print(out)
	},
}

func readManifest(cmd *cobra.Command, file string) ([]byte, error) {
	if file == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(file)
}

// renderManifest resolves a job manifest and returns its ConfigMap and Pod
// as a multi-document YAML stream. namespace is used when the manifest has none.
func renderManifest(raw []byte, namespace string) (string, error) {
	var j apiv1.DataManagerJob
	if err := yaml.UnmarshalStrict(raw, &j); err != nil {
		return "", fmt.Errorf("failed to parse manifest: %w", err)
	}
	if j.Namespace == "" {
		j.Namespace = namespace
	}

	plan, err := job.Resolve(&j, job.DefaultDefaults())
	if err != nil {
		return "", err
	}

	cm, err := resources.BuildConfigMap(plan)
	if err != nil {
		return "", err
	}
	cmYAML, err := yaml.Marshal(cm)
	if err != nil {
		return "", fmt.Errorf("failed to encode ConfigMap: %w", err)
	}
	podYAML, err := yaml.Marshal(resources.BuildPod(plan))
	if err != nil {
		return "", fmt.Errorf("failed to encode Pod: %w", err)
	}

	return fmt.Sprintf("---\n%s---\n%s", cmYAML, podYAML), nil
}

func init() {
	renderCmd.Flags().StringP("file", "f", "", "DataManagerJob manifest, or - for stdin (required)")

	rootCmd.AddCommand(renderCmd)
}
