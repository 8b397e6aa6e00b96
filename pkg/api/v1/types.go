// Package v1 contains the DataManagerJob custom resource types.
// This package is shared between the CLI and the operator.
package v1

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

const (
	Group    = "squonk.it"
	Version  = "v1"
	Kind     = "DataManagerJob"
	ListKind = "DataManagerJobList"
	Resource = "datamanagerjobs"
)

// AnnotationHandled is set on a job once the operator has acted on it.
// Its value is "created" or the reason creation failed.
const AnnotationHandled = Group + "/handled"

var (
	// GroupVersion is the API group and version of DataManagerJob.
	GroupVersion = schema.GroupVersion{Group: Group, Version: Version}

	// GroupVersionKind identifies the DataManagerJob kind.
	GroupVersionKind = GroupVersion.WithKind(Kind)

	// GroupVersionResource is used with the dynamic client and informers.
	GroupVersionResource = GroupVersion.WithResource(Resource)
)

// DataManagerJob is a request to run a single container to completion.
type DataManagerJob struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	// Spec is nil when the object carries no spec at all.
	Spec *DataManagerJobSpec `json:"spec,omitempty"`
}

// DataManagerJobSpec is the user-supplied job definition.
type DataManagerJobSpec struct {
	Image   string `json:"image,omitempty"`
	Command string `json:"command,omitempty"`
	TaskID  string `json:"taskId,omitempty"`

	Project ProjectSpec `json:"project,omitempty"`

	// Where the project volume is mounted in the container (default /project)
	ProjectMount string `json:"projectMount,omitempty"`

	// Container working directory. WorkingSubPath is only used
	// when WorkingDirectory is set.
	WorkingDirectory string `json:"workingDirectory,omitempty"`
	WorkingSubPath   string `json:"workingSubPath,omitempty"`

	Resources       *ResourcesSpec       `json:"resources,omitempty"`
	SecurityContext *SecurityContextSpec `json:"securityContext,omitempty"`

	// Debug protects the job's pod from automatic deletion.
	Debug Flag `json:"debug,omitempty"`
}

// Flag is a bool that also accepts the loose forms people write in
// manifests: "yes", "on", "1" and any non-zero number are true, and
// "no", "off", "0", "false" and "" are false. Any other string is true.
type Flag bool

func (f *Flag) UnmarshalJSON(data []byte) error {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case nil:
		*f = false
	case bool:
		*f = Flag(t)
	case float64:
		*f = t != 0
	case string:
		switch s := strings.ToLower(strings.TrimSpace(t)); s {
		case "", "no", "n", "off":
			*f = false
		case "yes", "y", "on":
			*f = true
		default:
			b, err := strconv.ParseBool(s)
			*f = Flag(err != nil || b)
		}
	default:
		return fmt.Errorf("expected a boolean, got %s", data)
	}
	return nil
}

// ProjectSpec identifies the project volume the job works in.
type ProjectSpec struct {
	ID        string `json:"id,omitempty"`
	ClaimName string `json:"claimName,omitempty"`
}

// ResourcesSpec holds optional container requests and limits.
type ResourcesSpec struct {
	Requests *ResourceValues `json:"requests,omitempty"`
	Limits   *ResourceValues `json:"limits,omitempty"`
}

// ResourceValues is a cpu/memory pair. Either may be omitted.
type ResourceValues struct {
	CPU    *resource.Quantity `json:"cpu,omitempty"`
	Memory *resource.Quantity `json:"memory,omitempty"`
}

// SecurityContextSpec holds the optional pod user and group.
type SecurityContextSpec struct {
	RunAsUser  *int64 `json:"runAsUser,omitempty"`
	RunAsGroup *int64 `json:"runAsGroup,omitempty"`
}

// FromUnstructured decodes a DataManagerJob delivered by the dynamic client.
func FromUnstructured(u *unstructured.Unstructured) (*DataManagerJob, error) {
	raw, err := json.Marshal(u.Object)
	if err != nil {
		return nil, fmt.Errorf("failed to encode object: %w", err)
	}
	var job DataManagerJob
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", Kind, err)
	}
	return &job, nil
}

// ToUnstructured encodes a DataManagerJob for the dynamic client.
func ToUnstructured(job *DataManagerJob) (*unstructured.Unstructured, error) {
	raw, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", Kind, err)
	}
	obj := map[string]interface{}{}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("failed to decode object: %w", err)
	}
	u := &unstructured.Unstructured{Object: obj}
	u.SetGroupVersionKind(GroupVersionKind)
	return u, nil
}

// OwnerReference returns a controller reference that links a dependent
// resource back to this job for cascade deletion.
func (j *DataManagerJob) OwnerReference() metav1.OwnerReference {
	return *metav1.NewControllerRef(j, GroupVersionKind)
}
