package controller

import (
	"context"
	"log/slog"
	"time"

	"jobop/internal/logger"
	"jobop/internal/observability"
	"jobop/internal/resources"

	"github.com/hashicorp/go-multierror"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/record"
)

// PodCompleted is a terminal phase reported by some platforms.
// It is handled like Succeeded and Failed.
const PodCompleted corev1.PodPhase = "Completed"

// Event reasons recorded on pods.
const (
	ReasonDeletionProtected = "DeletionProtected"
	ReasonCleanedUp         = "CleanedUp"
)

// IsTerminal reports whether a pod in this phase will not run again.
func IsTerminal(phase corev1.PodPhase) bool {
	switch phase {
	case corev1.PodSucceeded, corev1.PodFailed, PodCompleted:
		return true
	default:
		return false
	}
}

// PodEvent is a status change of a managed pod.
type PodEvent struct {
	Type watch.EventType
	Pod  *corev1.Pod
}

// Cleaner deletes a job's Pod and ConfigMap once the pod has finished.
type Cleaner struct {
	client   kubernetes.Interface
	delay    time.Duration
	log      *slog.Logger
	metrics  *observability.Controller
	recorder record.EventRecorder
}

// NewCleaner creates a Cleaner that waits delay before deleting a finished pod.
func NewCleaner(client kubernetes.Interface, delay time.Duration, log *slog.Logger, metrics *observability.Controller, recorder record.EventRecorder) *Cleaner {
	return &Cleaner{
		client:   client,
		delay:    delay,
		log:      log,
		metrics:  metrics,
		recorder: recorder,
	}
}

// OnPodEvent deletes the pod and its ConfigMap when a MODIFIED event reports
// a terminal phase, unless the pod carries the debug label.
// Delete failures are logged and never returned, so the same pod can be
// handled again safely: the second attempt just finds nothing to delete.
func (c *Cleaner) OnPodEvent(ctx context.Context, ev PodEvent) error {
	log := logger.FromContext(ctx, c.log)
	log.Debug("Received pod event", "event_type", ev.Type)

	if ev.Type != watch.Modified || ev.Pod == nil {
		return nil
	}

	pod := ev.Pod
	phase := pod.Status.Phase
	log.Info("Handling event", "event_type", ev.Type, "pod_phase", phase, "pod", pod.Name)

	if !IsTerminal(phase) {
		return nil
	}

	if _, ok := pod.Labels[resources.LabelDebug]; ok {
		log.Warn("Not deleting Job. It is protected from deletion as it has a debug label", "pod", pod.Name)
		c.metrics.PodProtected(ctx)
		c.recorder.Event(pod, corev1.EventTypeWarning, ReasonDeletionProtected, "Pod has a debug label and will not be deleted")
		return nil
	}

	log.Info("Job has finished", "pod", pod.Name)
	if c.delay > 0 {
		log.Info("Deleting pod after a delay", "pod", pod.Name, "delay", c.delay)
		timer := time.NewTimer(c.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			log.Warn("Cleanup abandoned before the delay expired", "pod", pod.Name, "error", ctx.Err())
			return nil
		case <-timer.C:
		}
	}

	var result *multierror.Error

	log.Info("Deleting Pod", "pod", pod.Name, "namespace", pod.Namespace)
	if err := c.client.CoreV1().Pods(pod.Namespace).Delete(ctx, pod.Name, metav1.DeleteOptions{}); err != nil {
		c.deleteFailed(ctx, log, "pod", pod.Name, err)
		result = multierror.Append(result, apiError("deleting", "Pod", pod.Name, err))
	}

	// The ConfigMap name is re-derived from the instance label rather than
	// stored anywhere, so renaming that label orphans ConfigMaps.
	instanceID := pod.Labels[resources.LabelInstanceID]
	if instanceID == "" {
		log.Warn("Pod has no instance-id label, ConfigMap not deleted", "pod", pod.Name)
	} else {
		cmName := resources.ConfigMapName(instanceID)
		log.Info("Deleting ConfigMap", "configmap", cmName)
		if err := c.client.CoreV1().ConfigMaps(pod.Namespace).Delete(ctx, cmName, metav1.DeleteOptions{}); err != nil {
			c.deleteFailed(ctx, log, "configmap", cmName, err)
			result = multierror.Append(result, apiError("deleting", "ConfigMap", cmName, err))
		}
	}

	if err := result.ErrorOrNil(); err != nil {
		log.Warn("Cleanup finished with errors", "pod", pod.Name, "error", err.Error())
		return nil
	}
	log.Info("Deleted", "pod", pod.Name)
	c.metrics.PodCleaned(ctx)
	c.recorder.Event(pod, corev1.EventTypeNormal, ReasonCleanedUp, "Pod and ConfigMap deleted after the job finished")
	return nil
}

func (c *Cleaner) deleteFailed(ctx context.Context, log *slog.Logger, resource, name string, err error) {
	code, body := apiStatus(err)
	log.Warn("ApiException deleting "+resource, "name", name, "status_code", code, "body", body)
	c.metrics.DeleteFailed(ctx, resource)
}
