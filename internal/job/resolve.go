package job

import (
	"fmt"
	"path"
	"strings"

	apiv1 "jobop/pkg/api/v1"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/kballard/go-shellquote"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
)

// ValidationError reports a job that can never be resolved.
// Retrying resolution with the same input always fails the same way.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Resolve validates a job and applies defaults, returning its Plan.
// It has no side effects. Any error it returns is a *ValidationError.
func Resolve(j *apiv1.DataManagerJob, d Defaults) (*Plan, error) {
	if err := validate(j); err != nil {
		return nil, err
	}
	spec := j.Spec

	tokens, err := SplitCommand(spec.Command)
	if err != nil {
		return nil, invalid("spec.command", "command cannot be split: %v", err)
	}
	if len(tokens) == 0 {
		return nil, invalid("spec.command", "command is not defined")
	}

	var requests, limits apiv1.ResourceValues
	if spec.Resources != nil {
		if spec.Resources.Requests != nil {
			requests = *spec.Resources.Requests
		}
		if spec.Resources.Limits != nil {
			limits = *spec.Resources.Limits
		}
	}

	runAsUser, runAsGroup := d.RunAsUser, d.RunAsGroup
	if sc := spec.SecurityContext; sc != nil {
		if sc.RunAsUser != nil {
			runAsUser = *sc.RunAsUser
		}
		if sc.RunAsGroup != nil {
			runAsGroup = *sc.RunAsGroup
		}
	}

	mount := spec.ProjectMount
	if mount == "" {
		mount = d.ProjectMount
	}
	claim := spec.Project.ClaimName
	if claim == "" {
		claim = d.ProjectClaim
	}

	var workingDirPath string
	if spec.WorkingDirectory != "" {
		workingDirPath = spec.WorkingDirectory
		if spec.WorkingSubPath != "" {
			workingDirPath = path.Join(spec.WorkingDirectory, spec.WorkingSubPath)
		}
	}

	return &Plan{
		Name:            j.Name,
		Namespace:       j.Namespace,
		Owner:           j.OwnerReference(),
		Image:           spec.Image,
		ImagePullPolicy: PullPolicy(spec.Image),
		Command:         spec.Command,
		CommandTokens:   tokens,
		TaskID:          spec.TaskID,
		ProjectID:       spec.Project.ID,
		ProjectClaim:    claim,
		ProjectMount:    mount,
		WorkDir:         mount + "/." + j.Name + "/work",
		WorkingDirPath:  workingDirPath,
		CPURequest:      orDefault(requests.CPU, d.CPU),
		MemoryRequest:   orDefault(requests.Memory, d.Memory),
		CPULimit:        orDefault(limits.CPU, d.CPU),
		MemoryLimit:     orDefault(limits.Memory, d.Memory),
		RunAsUser:       runAsUser,
		RunAsGroup:      runAsGroup,
		ServiceAccount:  d.ServiceAccount,
		Debug:           bool(spec.Debug),
	}, nil
}

// validate checks the mandatory fields in a fixed order and reports the first
// one that is missing.
func validate(j *apiv1.DataManagerJob) error {
	if j == nil {
		return invalid("", "the object must not be nil")
	}
	if err := validation.Validate(j.Name, validation.Required); err != nil {
		return invalid("metadata.name", "the object must have a name")
	}
	if err := validation.Validate(j.Namespace, validation.Required); err != nil {
		return invalid("metadata.namespace", "the object must have a namespace")
	}
	if j.Spec == nil || *j.Spec == (apiv1.DataManagerJobSpec{}) {
		return invalid("spec", "the object must have a spec")
	}

	spec := j.Spec
	required := []struct {
		field string
		value string
		name  string
	}{
		{"spec.image", spec.Image, "image"},
		{"spec.command", spec.Command, "command"},
		{"spec.taskId", spec.TaskID, "taskId"},
		{"spec.project.id", spec.Project.ID, "project.id"},
	}
	for _, r := range required {
		if err := validation.Validate(strings.TrimSpace(r.value), validation.Required); err != nil {
			return invalid(r.field, "%s is not defined", r.name)
		}
	}

	if sc := spec.SecurityContext; sc != nil {
		err := validation.ValidateStruct(sc,
			validation.Field(&sc.RunAsUser, validation.Min(int64(0))),
			validation.Field(&sc.RunAsGroup, validation.Min(int64(0))),
		)
		if err != nil {
			return invalid("spec.securityContext", "securityContext is invalid: %v", err)
		}
	}
	return nil
}

// PullPolicy derives the image pull policy from the image tag.
// 'latest' and 'stable' images are always pulled, an untagged image
// counts as 'latest', anything else is pulled only if absent.
func PullPolicy(image string) corev1.PullPolicy {
	// Digest-pinned images never change.
	if strings.Contains(image, "@") {
		return corev1.PullIfNotPresent
	}
	tag := "latest"
	// A colon before the last slash belongs to a registry port.
	if i := strings.LastIndex(image, ":"); i > strings.LastIndex(image, "/") {
		tag = image[i+1:]
	}
	switch strings.ToLower(tag) {
	case "latest", "stable":
		return corev1.PullAlways
	default:
		return corev1.PullIfNotPresent
	}
}

// SplitCommand splits a command string into words using POSIX shell quoting.
// 'echo "Hello, world"' becomes ["echo", "Hello, world"].
func SplitCommand(command string) ([]string, error) {
	return shellquote.Split(command)
}

func orDefault(q *resource.Quantity, def resource.Quantity) resource.Quantity {
	if q == nil {
		return def.DeepCopy()
	}
	return q.DeepCopy()
}
