// Package resources builds the ConfigMap and Pod that run a resolved job.
package resources

import (
	"fmt"

	"k8s.io/apimachinery/pkg/labels"
)

// Label keys shared with the log collector and other tooling.
// Their values must not change.
const (
	LabelBase = "data-manager.informaticsmatters.com"

	LabelPurpose    = LabelBase + "/purpose"
	LabelInstanceID = LabelBase + "/instance-id"
	LabelIsJob      = LabelBase + "/instance-is-job"
	LabelTaskID     = LabelBase + "/task-id"
	LabelDebug      = LabelBase + "/debug"

	PurposeInstance = "INSTANCE"
	LabelValueYes   = "yes"
)

const (
	configMapPrefix = "nf-config-"

	// ConfigKey is the single data key of the job ConfigMap.
	ConfigKey = "nextflow.config"
	// ConfigMountPath is where the ConfigMap is mounted in the container.
	ConfigMountPath = "/code/nextflow.config"

	projectVolume = "project"
	configVolume  = "nf-config"
)

// ConfigMapName returns the ConfigMap name for a job (or instance ID).
func ConfigMapName(jobName string) string {
	return fmt.Sprintf("%s%s", configMapPrefix, jobName)
}

// ManagedPodSelector selects the pods this operator creates.
func ManagedPodSelector() labels.Selector {
	return labels.SelectorFromSet(labels.Set{LabelPurpose: PurposeInstance})
}
