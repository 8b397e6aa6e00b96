// Package controller turns DataManagerJobs into running pods and cleans
// them up once they finish.
package controller

import (
	"context"
	"errors"
	"log/slog"

	"jobop/internal/job"
	"jobop/internal/logger"
	"jobop/internal/observability"
	"jobop/internal/resources"
	apiv1 "jobop/pkg/api/v1"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/record"
)

// Event reasons recorded on DataManagerJob objects.
const (
	ReasonCreated      = "Created"
	ReasonInvalidSpec  = "InvalidSpec"
	ReasonCreateFailed = "CreateFailed"
)

// Creator creates the ConfigMap and Pod for a newly created job.
type Creator struct {
	client   kubernetes.Interface
	defaults job.Defaults
	log      *slog.Logger
	metrics  *observability.Controller
	recorder record.EventRecorder
}

// NewCreator creates a Creator.
func NewCreator(client kubernetes.Interface, defaults job.Defaults, log *slog.Logger, metrics *observability.Controller, recorder record.EventRecorder) *Creator {
	return &Creator{
		client:   client,
		defaults: defaults,
		log:      log,
		metrics:  metrics,
		recorder: recorder,
	}
}

// OnJobCreated resolves the job and creates its ConfigMap, then its Pod.
// Each create is attempted once. Every error it returns is permanent:
// names are derived from the job, so a second attempt would only collide
// with whatever the first one managed to create.
func (c *Creator) OnJobCreated(ctx context.Context, obj *unstructured.Unstructured) error {
	log := logger.FromContext(ctx, c.log).With("job", obj.GetName(), "namespace", obj.GetNamespace())

	j, err := apiv1.FromUnstructured(obj)
	if err != nil {
		return c.invalid(ctx, obj, err)
	}
	plan, err := job.Resolve(j, c.defaults)
	if err != nil {
		return c.invalid(ctx, obj, err)
	}

	if plan.WorkingDirPath != "" {
		log.Warn("spec.workingDirectory is set", "working_dir", plan.WorkingDirPath)
	}
	if plan.Debug {
		log.Warn("spec.debug is set. The corresponding Pod will not be automatically deleted")
	}

	cm, err := resources.BuildConfigMap(plan)
	if err != nil {
		return c.invalid(ctx, obj, err)
	}
	if _, err := c.client.CoreV1().ConfigMaps(plan.Namespace).Create(ctx, cm, metav1.CreateOptions{}); err != nil {
		return c.createFailed(ctx, obj, apiError("creating", "ConfigMap", cm.Name, err))
	}
	log.Info("Created ConfigMap", "configmap", cm.Name)

	pod := resources.BuildPod(plan)
	if _, err := c.client.CoreV1().Pods(plan.Namespace).Create(ctx, pod, metav1.CreateOptions{}); err != nil {
		return c.createFailed(ctx, obj, apiError("creating", "Pod", pod.Name, err))
	}
	log.Info("Created Pod", "pod", pod.Name, "image", plan.Image, "pull_policy", plan.ImagePullPolicy)

	c.metrics.JobCreated(ctx)
	c.recorder.Eventf(obj, corev1.EventTypeNormal, ReasonCreated, "Created ConfigMap %s and Pod %s", cm.Name, pod.Name)
	return nil
}

func (c *Creator) invalid(ctx context.Context, obj *unstructured.Unstructured, err error) error {
	reason := "invalid_spec"
	var verr *job.ValidationError
	if errors.As(err, &verr) && verr.Field != "" {
		c.recorder.Eventf(obj, corev1.EventTypeWarning, ReasonInvalidSpec, "%s: %s", verr.Field, verr.Message)
	} else {
		c.recorder.Event(obj, corev1.EventTypeWarning, ReasonInvalidSpec, err.Error())
	}
	c.metrics.CreateFailed(ctx, reason)
	return Permanent(reason, err)
}

func (c *Creator) createFailed(ctx context.Context, obj *unstructured.Unstructured, err error) error {
	reason := "create_failed"
	if apierrors.IsAlreadyExists(err) {
		reason = "already_exists"
	}
	c.recorder.Event(obj, corev1.EventTypeWarning, ReasonCreateFailed, err.Error())
	c.metrics.CreateFailed(ctx, reason)
	return Permanent(reason, err)
}
