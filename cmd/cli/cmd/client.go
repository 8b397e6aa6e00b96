package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"jobop/internal/kube"
	"jobop/internal/resources"
	apiv1 "jobop/pkg/api/v1"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
)

// JobClient handles cluster calls for DataManagerJobs and their pods.
type JobClient struct {
	Dynamic    dynamic.Interface
	Kubernetes kubernetes.Interface
	Namespace  string
}

// newJobClient builds the client used by the commands. Tests replace it.
var newJobClient = func(kubeconfig, namespace string) (*JobClient, error) {
	restConfig, err := kube.RESTConfig(kubeconfig, slog.New(slog.DiscardHandler))
	if err != nil {
		return nil, err
	}
	clients, err := kube.NewClients(restConfig)
	if err != nil {
		return nil, err
	}
	return &JobClient{Dynamic: clients.Dynamic, Kubernetes: clients.Kubernetes, Namespace: namespace}, nil
}

// APIError represents an error response from the cluster.
type APIError struct {
	StatusCode int32
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

func asAPIError(err error) error {
	if status, ok := err.(apierrors.APIStatus); ok {
		s := status.Status()
		return &APIError{StatusCode: s.Code, Message: s.Message}
	}
	return err
}

// SubmitJob creates a DataManagerJob.
func (c *JobClient) SubmitJob(ctx context.Context, job *apiv1.DataManagerJob) (*apiv1.DataManagerJob, error) {
	u, err := apiv1.ToUnstructured(job)
	if err != nil {
		return nil, err
	}
	created, err := c.Dynamic.Resource(apiv1.GroupVersionResource).Namespace(c.Namespace).Create(ctx, u, metav1.CreateOptions{})
	if err != nil {
		return nil, asAPIError(err)
	}
	return apiv1.FromUnstructured(created)
}

// GetJob returns a DataManagerJob by name.
func (c *JobClient) GetJob(ctx context.Context, name string) (*apiv1.DataManagerJob, error) {
	u, err := c.Dynamic.Resource(apiv1.GroupVersionResource).Namespace(c.Namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return nil, asAPIError(err)
	}
	return apiv1.FromUnstructured(u)
}

// GetPod returns the job's pod, or nil if it does not exist.
func (c *JobClient) GetPod(ctx context.Context, name string) (*corev1.Pod, error) {
	pod, err := c.Kubernetes.CoreV1().Pods(c.Namespace).Get(ctx, name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, asAPIError(err)
	}
	return pod, nil
}

// HasConfigMap reports whether the job's ConfigMap still exists.
func (c *JobClient) HasConfigMap(ctx context.Context, name string) (bool, error) {
	_, err := c.Kubernetes.CoreV1().ConfigMaps(c.Namespace).Get(ctx, resources.ConfigMapName(name), metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, asAPIError(err)
	}
	return true, nil
}

// StreamLogs opens the log stream of the job's container.
func (c *JobClient) StreamLogs(ctx context.Context, name string, follow bool) (io.ReadCloser, error) {
	req := c.Kubernetes.CoreV1().Pods(c.Namespace).GetLogs(name, &corev1.PodLogOptions{
		Container: name,
		Follow:    follow,
	})
	stream, err := req.Stream(ctx)
	if err != nil {
		return nil, asAPIError(err)
	}
	return stream, nil
}
