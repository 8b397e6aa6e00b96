package controller

import (
	"log/slog"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/kubernetes/scheme"
	typedcorev1 "k8s.io/client-go/kubernetes/typed/core/v1"
	"k8s.io/client-go/tools/record"
)

// EventComponent is the source component of recorded events.
const EventComponent = "jobop"

// NewEventRecorder returns a recorder that posts Kubernetes Events for the
// objects the controller handles, and a function that stops it.
func NewEventRecorder(client kubernetes.Interface, log *slog.Logger) (record.EventRecorder, func()) {
	broadcaster := record.NewBroadcaster()
	broadcaster.StartRecordingToSink(&typedcorev1.EventSinkImpl{Interface: client.CoreV1().Events("")})
	broadcaster.StartEventWatcher(func(e *corev1.Event) {
		log.Debug("Event recorded", "reason", e.Reason, "object", e.InvolvedObject.Name, "message", e.Message)
	})
	return broadcaster.NewRecorder(scheme.Scheme, corev1.EventSource{Component: EventComponent}), broadcaster.Shutdown
}
