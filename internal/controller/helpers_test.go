package controller

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"jobop/internal/logger"
	"jobop/internal/observability"

	"go.opentelemetry.io/otel/metric/noop"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/client-go/kubernetes/fake"
	k8stesting "k8s.io/client-go/testing"
)

func testLogger() *slog.Logger {
	return logger.NewWithWriter(io.Discard, slog.LevelDebug)
}

func testMetrics(t *testing.T) *observability.Controller {
	t.Helper()
	m, err := observability.NewController(noop.NewMeterProvider().Meter("test"))
	if err != nil {
		t.Fatalf("failed to create metrics: %v", err)
	}
	return m
}

// newJobObject builds a DataManagerJob as delivered by the dynamic client.
// A nil spec leaves the spec out entirely.
func newJobObject(name, namespace string, spec map[string]interface{}) *unstructured.Unstructured {
	obj := map[string]interface{}{
		"apiVersion": "squonk.it/v1",
		"kind":       "DataManagerJob",
		"metadata": map[string]interface{}{
			"name":      name,
			"namespace": namespace,
			"uid":       "uid-" + name,
		},
	}
	if spec != nil {
		obj["spec"] = spec
	}
	return &unstructured.Unstructured{Object: obj}
}

func validSpec() map[string]interface{} {
	return map[string]interface{}{
		"image":   "worker:2.0",
		"command": "run task",
		"taskId":  "t1",
		"project": map[string]interface{}{
			"id": "p1",
		},
	}
}

// actionsFor returns the recorded client actions with the given verb and resource.
func actionsFor(client *fake.Clientset, verb, resource string) []k8stesting.Action {
	var out []k8stesting.Action
	for _, a := range client.Actions() {
		if a.GetVerb() == verb && a.GetResource().Resource == resource {
			out = append(out, a)
		}
	}
	return out
}

// deletedNames returns the names passed to delete calls for a resource.
func deletedNames(client *fake.Clientset, resource string) []string {
	var names []string
	for _, a := range actionsFor(client, "delete", resource) {
		names = append(names, a.(k8stesting.DeleteAction).GetName())
	}
	return names
}

// waitFor polls cond until it returns true or the timeout expires.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}
