package cmd

import (
	"strings"
	"testing"
	"time"

	"jobop/internal/resources"

	"github.com/spf13/viper"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

func testJob(name string, debug bool) *unstructured.Unstructured {
	return &unstructured.Unstructured{Object: map[string]interface{}{
		"apiVersion": "squonk.it/v1",
		"kind":       "DataManagerJob",
		"metadata": map[string]interface{}{
			"name":      name,
			"namespace": "ns",
		},
		"spec": map[string]interface{}{
			"image":   "worker:2.0",
			"command": "run",
			"taskId":  "t1",
			"project": map[string]interface{}{"id": "p1"},
			"debug":   debug,
		},
	}}
}

func testPod(name string, phase corev1.PodPhase, exitCode *int32) *corev1.Pod {
	start := metav1.NewTime(time.Now().Add(-10 * time.Minute))
	pod := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: "ns"},
		Status: corev1.PodStatus{
			Phase:     phase,
			StartTime: &start,
		},
	}
	if exitCode != nil {
		terminated := &corev1.ContainerStateTerminated{
			ExitCode:   *exitCode,
			FinishedAt: metav1.NewTime(start.Add(65 * time.Second)),
		}
		if *exitCode != 0 {
			terminated.Message = "out of memory"
		}
		pod.Status.ContainerStatuses = []corev1.ContainerStatus{{
			Name:  name,
			State: corev1.ContainerState{Terminated: terminated},
		}}
	}
	return pod
}

func testConfigMap(name string) *corev1.ConfigMap {
	return &corev1.ConfigMap{ObjectMeta: metav1.ObjectMeta{Name: resources.ConfigMapName(name), Namespace: "ns"}}
}

func TestStatusCommand_Succeeded(t *testing.T) {
	resetViper()
	code := int32(0)
	useFakeClient(t, []*unstructured.Unstructured{testJob("job-1", false)},
		testPod("job-1", corev1.PodSucceeded, &code), testConfigMap("job-1"))
	viper.Set("namespace", "ns")

	output := execute(t, "status", "job-1")

	for _, want := range []string{"job-1", "worker:2.0", "t1", "Succeeded", "nf-config-job-1", "Exit Code:", "(1m 5s)"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got: %s", want, output)
		}
	}
}

func TestStatusCommand_Failed(t *testing.T) {
	resetViper()
	code := int32(137)
	useFakeClient(t, []*unstructured.Unstructured{testJob("job-1", true)},
		testPod("job-1", corev1.PodFailed, &code))
	viper.Set("namespace", "ns")

	output := execute(t, "status", "job-1")

	for _, want := range []string{"Failed", "137", "out of memory", "pod is kept"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got: %s", want, output)
		}
	}
}

func TestStatusCommand_Running(t *testing.T) {
	resetViper()
	useFakeClient(t, []*unstructured.Unstructured{testJob("job-1", false)},
		testPod("job-1", corev1.PodRunning, nil), testConfigMap("job-1"))
	viper.Set("namespace", "ns")

	output := execute(t, "status", "job-1")

	if !strings.Contains(output, "Running") {
		t.Errorf("expected Running status, got: %s", output)
	}
	if !strings.Contains(output, "Exit Code:\x1b[0m   -") {
		t.Errorf("expected no exit code, got: %s", output)
	}
}

func TestStatusCommand_CleanedUp(t *testing.T) {
	resetViper()
	useFakeClient(t, []*unstructured.Unstructured{testJob("job-1", false)})
	viper.Set("namespace", "ns")

	output := execute(t, "status", "job-1")

	if !strings.Contains(output, "CLEANED UP") {
		t.Errorf("expected cleaned up status, got: %s", output)
	}
	if strings.Contains(output, "Exit Code") {
		t.Errorf("expected no pod details, got: %s", output)
	}
}

func TestStatusCommand_NotFound(t *testing.T) {
	resetViper()
	useFakeClient(t, nil)
	viper.Set("namespace", "ns")

	output := execute(t, "status", "missing")

	if !strings.Contains(output, "404") {
		t.Errorf("expected 404 error message, got: %s", output)
	}
}

func TestStatusCommand_RequiresJobNameArgument(t *testing.T) {
	resetViper()

	rootCmd.SetArgs([]string{"status"})
	if err := rootCmd.Execute(); err == nil {
		t.Error("expected error when job name is missing")
	}
}

func TestColorizeStatus(t *testing.T) {
	tests := []struct {
		status   string
		contains string
	}{
		{"Succeeded", "Succeeded"},
		{"Failed", "Failed"},
		{"Running", "Running"},
		{"Pending", "Pending"},
		{"Unknown", "Unknown"},
	}

	for _, tt := range tests {
		result := colorizeStatus(tt.status)
		if !strings.Contains(result, tt.contains) {
			t.Errorf("colorizeStatus(%s) should contain %s, got: %s", tt.status, tt.contains, result)
		}
	}
}

func TestStatusIcon(t *testing.T) {
	tests := []struct {
		status   string
		contains string
	}{
		{"Succeeded", "✓"},
		{"Completed", "✓"},
		{"Failed", "✗"},
		{"Running", "⏳"},
		{"Pending", "◯"},
		{"Unknown", "•"},
	}

	for _, tt := range tests {
		result := statusIcon(tt.status)
		if !strings.Contains(result, tt.contains) {
			t.Errorf("statusIcon(%s) should contain %s, got: %s", tt.status, tt.contains, result)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		duration time.Duration
		expected string
	}{
		{500 * time.Millisecond, "500ms"},
		{1500 * time.Millisecond, "1.5s"},
		{65 * time.Second, "1m 5s"},
		{125 * time.Minute, "2h 5m"},
	}

	for _, tt := range tests {
		result := formatDuration(tt.duration)
		if result != tt.expected {
			t.Errorf("formatDuration(%v) = %s, want %s", tt.duration, result, tt.expected)
		}
	}
}

func TestRelativeTime(t *testing.T) {
	tests := []struct {
		offset   time.Duration
		contains string
	}{
		{30 * time.Second, "30s"},
		{5 * time.Minute, "5m"},
		{3 * time.Hour, "3h"},
		{48 * time.Hour, "2 days"},
	}

	for _, tt := range tests {
		testTime := time.Now().Add(-tt.offset)
		result := relativeTime(testTime)
		if !strings.Contains(result, tt.contains) {
			t.Errorf("relativeTime(%v ago) should contain %s, got: %s", tt.offset, tt.contains, result)
		}
	}
}
