package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "jobctl",
	Short: "Jobctl is a command line tool for submitting and inspecting DataManagerJobs",
	Long: `jobctl is the command-line interface for the DataManagerJob operator.

A DataManagerJob asks the operator to run a single container to completion.
The operator creates a ConfigMap (nf-config-<name>) and a Pod (<name>) for
every new job and deletes both once the pod has finished, unless the job
was submitted with --debug.

Common workflows:

  Submit a job:
    jobctl submit --image "worker:2.0" --command "nextflow run main.nf" --project p1

  Check a job and its pod:
    jobctl status <job-name>

  Stream the job's logs:
    jobctl logs <job-name> --follow

  Preview the resources the operator would create:
    jobctl render -f job.yaml

Configuration:
  Set the cluster and namespace via flags, environment variables or a config file:
    JOBCTL_KUBECONFIG    Path to a kubeconfig file (default: in-cluster, then ~/.kube/config)
    JOBCTL_NAMESPACE     Namespace of the jobs (default: default)`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		// Search config in home directory with name ".jobctl"
		viper.AddConfigPath(home)
		viper.SetConfigName(".jobctl")
		viper.SetConfigType("yaml")
	}

	// Read environment variables that match "JOBCTL_VARNAME"
	viper.SetEnvPrefix("JOBCTL")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// clientFromConfig builds a JobClient from the resolved flags and config.
func clientFromConfig() (*JobClient, error) {
	return newJobClient(viper.GetString("kubeconfig"), viper.GetString("namespace"))
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.jobctl.yaml)")

	rootCmd.PersistentFlags().String("kubeconfig", "", "Path to a kubeconfig file")
	viper.BindPFlag("kubeconfig", rootCmd.PersistentFlags().Lookup("kubeconfig"))

	rootCmd.PersistentFlags().StringP("namespace", "n", "default", "Namespace of the jobs")
	viper.BindPFlag("namespace", rootCmd.PersistentFlags().Lookup("namespace"))
}
