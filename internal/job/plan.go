// Package job resolves a DataManagerJob into an immutable execution plan.
package job

import (
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// Defaults holds the values folded into a job spec when it omits them.
type Defaults struct {
	CPU            resource.Quantity
	Memory         resource.Quantity
	ProjectMount   string
	ProjectClaim   string
	RunAsUser      int64
	RunAsGroup     int64
	ServiceAccount string
}

// DefaultDefaults returns the built-in defaults.
func DefaultDefaults() Defaults {
	return Defaults{
		CPU:            resource.MustParse("1"),
		Memory:         resource.MustParse("1Gi"),
		ProjectMount:   "/project",
		ProjectClaim:   "project",
		RunAsUser:      1001,
		RunAsGroup:     1001,
		ServiceAccount: "data-manager-app",
	}
}

// Plan is a fully resolved job. Every optional field has a concrete value.
// A Plan must not be modified once returned by Resolve.
type Plan struct {
	Name      string
	Namespace string
	Owner     metav1.OwnerReference

	Image           string
	ImagePullPolicy corev1.PullPolicy
	Command         string
	CommandTokens   []string

	TaskID       string
	ProjectID    string
	ProjectClaim string
	ProjectMount string

	// <mount>/.<name>/work
	WorkDir string
	// Empty unless the job sets a working directory.
	WorkingDirPath string

	CPURequest    resource.Quantity
	MemoryRequest resource.Quantity
	CPULimit      resource.Quantity
	MemoryLimit   resource.Quantity

	RunAsUser  int64
	RunAsGroup int64

	ServiceAccount string
	Debug          bool
}
