package job

import (
	"errors"
	"reflect"
	"testing"

	apiv1 "jobop/pkg/api/v1"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
)

func int64Ptr(v int64) *int64 { return &v }

func quantityPtr(s string) *resource.Quantity {
	q := resource.MustParse(s)
	return &q
}

func newJob(name string, spec *apiv1.DataManagerJobSpec) *apiv1.DataManagerJob {
	return &apiv1.DataManagerJob{
		TypeMeta:   metav1.TypeMeta{APIVersion: apiv1.GroupVersion.String(), Kind: apiv1.Kind},
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: "ns", UID: "uid-" + types.UID(name)},
		Spec:       spec,
	}
}

func validSpec() *apiv1.DataManagerJobSpec {
	return &apiv1.DataManagerJobSpec{
		Image:   "worker:2.0",
		Command: "run task",
		TaskID:  "t1",
		Project: apiv1.ProjectSpec{ID: "p1"},
	}
}

func TestResolve_Defaults(t *testing.T) {
	plan, err := Resolve(newJob("job-1", validSpec()), DefaultDefaults())
	if err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}

	if plan.Name != "job-1" || plan.Namespace != "ns" {
		t.Errorf("unexpected identity %s/%s", plan.Namespace, plan.Name)
	}
	if !reflect.DeepEqual(plan.CommandTokens, []string{"run", "task"}) {
		t.Errorf("unexpected command tokens %q", plan.CommandTokens)
	}
	if plan.ImagePullPolicy != corev1.PullIfNotPresent {
		t.Errorf("expected IfNotPresent, got %s", plan.ImagePullPolicy)
	}
	if plan.ProjectMount != "/project" || plan.ProjectClaim != "project" {
		t.Errorf("expected default mount and claim, got %s %s", plan.ProjectMount, plan.ProjectClaim)
	}
	if plan.WorkDir != "/project/.job-1/work" {
		t.Errorf("unexpected work dir %s", plan.WorkDir)
	}
	if plan.WorkingDirPath != "" {
		t.Errorf("expected no working dir, got %s", plan.WorkingDirPath)
	}
	if plan.RunAsUser != 1001 || plan.RunAsGroup != 1001 {
		t.Errorf("expected user/group 1001, got %d/%d", plan.RunAsUser, plan.RunAsGroup)
	}
	if plan.ServiceAccount != "data-manager-app" {
		t.Errorf("unexpected service account %s", plan.ServiceAccount)
	}
	for name, q := range map[string]resource.Quantity{
		"cpu request": plan.CPURequest, "cpu limit": plan.CPULimit,
	} {
		if q.Cmp(resource.MustParse("1")) != 0 {
			t.Errorf("expected %s 1, got %s", name, q.String())
		}
	}
	for name, q := range map[string]resource.Quantity{
		"memory request": plan.MemoryRequest, "memory limit": plan.MemoryLimit,
	} {
		if q.Cmp(resource.MustParse("1Gi")) != 0 {
			t.Errorf("expected %s 1Gi, got %s", name, q.String())
		}
	}
	if plan.Owner.Name != "job-1" || plan.Owner.Kind != apiv1.Kind || plan.Owner.UID != "uid-job-1" {
		t.Errorf("unexpected owner %+v", plan.Owner)
	}
	if plan.Owner.Controller == nil || !*plan.Owner.Controller {
		t.Error("expected owner to be the controller")
	}
}

func TestResolve_Overrides(t *testing.T) {
	spec := validSpec()
	spec.Project.ClaimName = "claim-x"
	spec.ProjectMount = "/data"
	spec.WorkingDirectory = "/data/in"
	spec.WorkingSubPath = "run-1"
	spec.Resources = &apiv1.ResourcesSpec{
		Requests: &apiv1.ResourceValues{CPU: quantityPtr("250m")},
		Limits:   &apiv1.ResourceValues{Memory: quantityPtr("4Gi")},
	}
	spec.SecurityContext = &apiv1.SecurityContextSpec{RunAsUser: int64Ptr(0)}
	spec.Debug = true

	plan, err := Resolve(newJob("job-2", spec), DefaultDefaults())
	if err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}

	if plan.ProjectClaim != "claim-x" || plan.ProjectMount != "/data" {
		t.Errorf("unexpected claim/mount %s %s", plan.ProjectClaim, plan.ProjectMount)
	}
	if plan.WorkDir != "/data/.job-2/work" {
		t.Errorf("unexpected work dir %s", plan.WorkDir)
	}
	if plan.WorkingDirPath != "/data/in/run-1" {
		t.Errorf("unexpected working dir %s", plan.WorkingDirPath)
	}
	if plan.CPURequest.String() != "250m" || plan.CPULimit.String() != "1" {
		t.Errorf("unexpected cpu %s/%s", plan.CPURequest.String(), plan.CPULimit.String())
	}
	if plan.MemoryRequest.String() != "1Gi" || plan.MemoryLimit.String() != "4Gi" {
		t.Errorf("unexpected memory %s/%s", plan.MemoryRequest.String(), plan.MemoryLimit.String())
	}
	if plan.RunAsUser != 0 || plan.RunAsGroup != 1001 {
		t.Errorf("expected user 0 group 1001, got %d/%d", plan.RunAsUser, plan.RunAsGroup)
	}
	if !plan.Debug {
		t.Error("expected debug to be set")
	}
}

func TestResolve_WorkingSubPathIgnoredWithoutDirectory(t *testing.T) {
	spec := validSpec()
	spec.WorkingSubPath = "run-1"

	plan, err := Resolve(newJob("job-1", spec), DefaultDefaults())
	if err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}
	if plan.WorkingDirPath != "" {
		t.Errorf("expected no working dir, got %s", plan.WorkingDirPath)
	}
}

func TestResolve_DefaultsAreNotShared(t *testing.T) {
	d := DefaultDefaults()
	plan, err := Resolve(newJob("job-1", validSpec()), d)
	if err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}
	plan.CPULimit.Add(resource.MustParse("3"))
	if d.CPU.String() != "1" {
		t.Errorf("expected defaults to be unchanged, got %s", d.CPU.String())
	}
}

func TestResolve_ValidationErrors(t *testing.T) {
	with := func(mutate func(*apiv1.DataManagerJobSpec)) *apiv1.DataManagerJobSpec {
		s := validSpec()
		mutate(s)
		return s
	}

	tests := []struct {
		name    string
		job     *apiv1.DataManagerJob
		field   string
		message string
	}{
		{"nil job", nil, "", "the object must not be nil"},
		{"no name", newJob("", validSpec()), "metadata.name", "the object must have a name"},
		{"no namespace", func() *apiv1.DataManagerJob {
			j := newJob("job-1", validSpec())
			j.Namespace = ""
			return j
		}(), "metadata.namespace", "the object must have a namespace"},
		{"nil spec", newJob("job-1", nil), "spec", "the object must have a spec"},
		{"empty spec", newJob("job-1", &apiv1.DataManagerJobSpec{}), "spec", "the object must have a spec"},
		{"no image", newJob("job-1", with(func(s *apiv1.DataManagerJobSpec) { s.Image = "" })), "spec.image", "image is not defined"},
		{"blank command", newJob("job-1", with(func(s *apiv1.DataManagerJobSpec) { s.Command = "   " })), "spec.command", "command is not defined"},
		{"no task id", newJob("job-1", with(func(s *apiv1.DataManagerJobSpec) { s.TaskID = "" })), "spec.taskId", "taskId is not defined"},
		{"no project id", newJob("job-1", with(func(s *apiv1.DataManagerJobSpec) { s.Project.ID = "" })), "spec.project.id", "project.id is not defined"},
		{"image checked before command", newJob("job-1", with(func(s *apiv1.DataManagerJobSpec) {
			s.Image = ""
			s.Command = ""
		})), "spec.image", "image is not defined"},
		{"negative user", newJob("job-1", with(func(s *apiv1.DataManagerJobSpec) {
			s.SecurityContext = &apiv1.SecurityContextSpec{RunAsUser: int64Ptr(-1)}
		})), "spec.securityContext", ""},
		{"unterminated quote", newJob("job-1", with(func(s *apiv1.DataManagerJobSpec) { s.Command = `echo "oops` })), "spec.command", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := Resolve(tt.job, DefaultDefaults())
			if plan != nil {
				t.Errorf("expected no plan, got %+v", plan)
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected *ValidationError, got %v", err)
			}
			if verr.Field != tt.field {
				t.Errorf("expected field %q, got %q", tt.field, verr.Field)
			}
			if tt.message != "" && verr.Message != tt.message {
				t.Errorf("expected message %q, got %q", tt.message, verr.Message)
			}
		})
	}
}

func TestPullPolicy(t *testing.T) {
	tests := []struct {
		image string
		want  corev1.PullPolicy
	}{
		{"worker:2.0", corev1.PullIfNotPresent},
		{"worker:latest", corev1.PullAlways},
		{"worker:LATEST", corev1.PullAlways},
		{"worker:stable", corev1.PullAlways},
		{"worker", corev1.PullAlways},
		{"registry.local:5000/worker", corev1.PullAlways},
		{"registry.local:5000/worker:1.4", corev1.PullIfNotPresent},
		{"registry.local:5000/team/worker:stable", corev1.PullAlways},
		{"worker@sha256:0123abcd", corev1.PullIfNotPresent},
		{"worker:latest-rc", corev1.PullIfNotPresent},
	}
	for _, tt := range tests {
		if got := PullPolicy(tt.image); got != tt.want {
			t.Errorf("PullPolicy(%q) = %s, want %s", tt.image, got, tt.want)
		}
	}
}

func TestSplitCommand(t *testing.T) {
	tests := []struct {
		command string
		want    []string
	}{
		{"run task", []string{"run", "task"}},
		{`echo "Hello, world"`, []string{"echo", "Hello, world"}},
		{`sh -c 'nextflow run main.nf --x 1'`, []string{"sh", "-c", "nextflow run main.nf --x 1"}},
		{`a\ b c`, []string{"a b", "c"}},
		{"  spaced   out  ", []string{"spaced", "out"}},
	}
	for _, tt := range tests {
		got, err := SplitCommand(tt.command)
		if err != nil {
			t.Errorf("SplitCommand(%q) failed: %v", tt.command, err)
			continue
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("SplitCommand(%q) = %q, want %q", tt.command, got, tt.want)
		}
	}

	if _, err := SplitCommand(`echo 'unterminated`); err == nil {
		t.Error("expected error for unterminated quote")
	}
}
