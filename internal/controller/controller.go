package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"jobop/internal/config"
	"jobop/internal/logger"
	"jobop/internal/observability"
	"jobop/internal/resources"
	apiv1 "jobop/pkg/api/v1"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/dynamic/dynamicinformer"
	"k8s.io/client-go/informers"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/cache"
	"k8s.io/client-go/tools/record"
	"k8s.io/client-go/util/retry"
)

// Controller wires the job and pod informers to the dispatcher.
type Controller struct {
	dyn         dynamic.Interface
	dispatcher  *Dispatcher
	creator     *Creator
	cleaner     *Cleaner
	dynFactory  dynamicinformer.DynamicSharedInformerFactory
	podFactory  informers.SharedInformerFactory
	jobInformer cache.SharedIndexInformer
	podInformer cache.SharedIndexInformer
	log         *slog.Logger
}

// New creates a Controller from the operator configuration.
func New(client kubernetes.Interface, dyn dynamic.Interface, cfg *config.Config, log *slog.Logger, metrics *observability.Controller, recorder record.EventRecorder) (*Controller, error) {
	c := &Controller{
		dispatcher: NewDispatcher(DispatcherConfig{
			Concurrency:    cfg.HandlerConcurrency,
			RetryBaseDelay: cfg.RetryBaseDelay,
			RetryMaxDelay:  cfg.RetryMaxDelay,
			MaxRetries:     cfg.MaxRetries,
			QPS:            cfg.QueueQPS,
			Burst:          cfg.QueueBurst,
		}, log, metrics),
		creator: NewCreator(client, cfg.Defaults, log, metrics, recorder),
		cleaner: NewCleaner(client, cfg.PodPreDeleteDelay, log, metrics, recorder),
		dyn:     dyn,
		log:     log,
	}
	c.dispatcher.Handle(KindJob, c.handleJob)
	c.dispatcher.Handle(KindPod, c.handlePod)

	namespace := cfg.WatchNamespace
	if namespace == "" {
		namespace = metav1.NamespaceAll
	}

	c.dynFactory = dynamicinformer.NewFilteredDynamicSharedInformerFactory(dyn, cfg.ResyncPeriod, namespace, nil)
	c.jobInformer = c.dynFactory.ForResource(apiv1.GroupVersionResource).Informer()
	if _, err := c.jobInformer.AddEventHandler(cache.ResourceEventHandlerFuncs{
		AddFunc: c.onJobAdd,
	}); err != nil {
		return nil, fmt.Errorf("failed to register job handler: %w", err)
	}

	c.podFactory = informers.NewSharedInformerFactoryWithOptions(client, cfg.ResyncPeriod,
		informers.WithNamespace(namespace),
		informers.WithTweakListOptions(func(o *metav1.ListOptions) {
			o.LabelSelector = resources.ManagedPodSelector().String()
		}),
	)
	c.podInformer = c.podFactory.Core().V1().Pods().Informer()
	if _, err := c.podInformer.AddEventHandler(cache.ResourceEventHandlerFuncs{
		AddFunc:    func(obj interface{}) { c.onPod(watch.Added, obj) },
		UpdateFunc: func(_, obj interface{}) { c.onPod(watch.Modified, obj) },
		DeleteFunc: func(obj interface{}) { c.onPod(watch.Deleted, obj) },
	}); err != nil {
		return nil, fmt.Errorf("failed to register pod handler: %w", err)
	}

	return c, nil
}

// Run starts the informers and dispatches notifications until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) error {
	c.dynFactory.Start(ctx.Done())
	c.podFactory.Start(ctx.Done())

	c.log.Info("Waiting for informer caches to sync")
	if !cache.WaitForCacheSync(ctx.Done(), c.jobInformer.HasSynced, c.podInformer.HasSynced) {
		return fmt.Errorf("failed to sync informer caches")
	}
	c.log.Info("Informer caches synced, dispatching notifications")

	c.dispatcher.Run(ctx)

	c.dynFactory.Shutdown()
	c.podFactory.Shutdown()
	return ctx.Err()
}

// Ready reports whether both informers have synced.
func (c *Controller) Ready() bool {
	return c.jobInformer.HasSynced() && c.podInformer.HasSynced()
}

func (c *Controller) onJobAdd(obj interface{}) {
	u, ok := obj.(*unstructured.Unstructured)
	if !ok {
		c.log.Warn("Ignoring unexpected job object", "type", fmt.Sprintf("%T", obj))
		return
	}
	c.dispatcher.Enqueue(&Notification{Kind: KindJob, Type: watch.Added, Object: u.DeepCopy()})
}

func (c *Controller) onPod(eventType watch.EventType, obj interface{}) {
	if tombstone, ok := obj.(cache.DeletedFinalStateUnknown); ok {
		obj = tombstone.Obj
	}
	pod, ok := obj.(*corev1.Pod)
	if !ok {
		c.log.Warn("Ignoring unexpected pod object", "type", fmt.Sprintf("%T", obj))
		return
	}
	c.dispatcher.Enqueue(&Notification{Kind: KindPod, Type: eventType, Object: pod.DeepCopy()})
}

// handleJob creates a job's dependents once. Jobs already marked as handled
// are skipped, which covers the Add notifications replayed by the initial
// list after a restart.
func (c *Controller) handleJob(ctx context.Context, n *Notification) error {
	if n.Type != watch.Added {
		return nil
	}
	u, ok := n.Object.(*unstructured.Unstructured)
	if !ok {
		return Permanent("unexpected_object", fmt.Errorf("expected *unstructured.Unstructured, got %T", n.Object))
	}
	log := logger.FromContext(ctx, c.log).With("job", u.GetName(), "namespace", u.GetNamespace())

	if outcome, ok := u.GetAnnotations()[apiv1.AnnotationHandled]; ok {
		log.Debug("Job already handled, skipping", "outcome", outcome)
		return nil
	}

	err := c.creator.OnJobCreated(ctx, u)
	var perr *PermanentError
	switch {
	case err == nil:
		c.markHandled(ctx, log, u, outcomeCreated)
	case errors.As(err, &perr):
		c.markHandled(ctx, log, u, perr.Reason)
	}
	return err
}

const outcomeCreated = "created"

// markHandled records the outcome on the job. Conflicts and throttling are
// retried here rather than through the queue, which would create the
// dependents a second time.
func (c *Controller) markHandled(ctx context.Context, log *slog.Logger, u *unstructured.Unstructured, outcome string) {
	patch, err := json.Marshal(map[string]interface{}{
		"metadata": map[string]interface{}{
			"annotations": map[string]string{apiv1.AnnotationHandled: outcome},
		},
	})
	if err != nil {
		log.Error("Failed to encode handled annotation", "error", err)
		return
	}

	jobs := c.dyn.Resource(apiv1.GroupVersionResource).Namespace(u.GetNamespace())
	err = retry.OnError(retry.DefaultBackoff, func(err error) bool {
		return !apierrors.IsNotFound(err) && ctx.Err() == nil
	}, func() error {
		_, err := jobs.Patch(ctx, u.GetName(), types.MergePatchType, patch, metav1.PatchOptions{})
		return err
	})
	switch {
	case err == nil:
		log.Debug("Marked job as handled", "outcome", outcome)
	case apierrors.IsNotFound(err):
		log.Debug("Job deleted before it could be marked as handled")
	default:
		code, body := apiStatus(err)
		log.Error("ApiException marking job as handled, it will be handled again after a restart",
			"status_code", code, "body", body)
	}
}

func (c *Controller) handlePod(ctx context.Context, n *Notification) error {
	pod, ok := n.Object.(*corev1.Pod)
	if !ok {
		return Permanent("unexpected_object", fmt.Errorf("expected *corev1.Pod, got %T", n.Object))
	}
	return c.cleaner.OnPodEvent(ctx, PodEvent{Type: n.Type, Pod: pod})
}
