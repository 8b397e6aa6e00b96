package resources

import (
	"jobop/internal/job"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// PodLabels returns the labels that identify a job's pod.
func PodLabels(plan *job.Plan) map[string]string {
	labels := map[string]string{
		LabelPurpose:    PurposeInstance,
		LabelInstanceID: plan.Name,
		LabelIsJob:      LabelValueYes,
		LabelTaskID:     plan.TaskID,
	}
	// Debug pods are never deleted by the cleaner.
	if plan.Debug {
		labels[LabelDebug] = LabelValueYes
	}
	return labels
}

// BuildPod returns the Pod that runs the job. The pod shares the job's name.
// The result depends only on the plan.
func BuildPod(plan *job.Plan) *corev1.Pod {
	fsGroup := int64(0)
	runAsUser := plan.RunAsUser
	runAsGroup := plan.RunAsGroup

	container := corev1.Container{
		Name:                     plan.Name,
		Image:                    plan.Image,
		Command:                  append([]string(nil), plan.CommandTokens...),
		ImagePullPolicy:          plan.ImagePullPolicy,
		TerminationMessagePolicy: corev1.TerminationMessageFallbackToLogsOnError,
		WorkingDir:               plan.WorkingDirPath,
		Env: []corev1.EnvVar{
			{Name: "NXF_WORK", Value: plan.WorkDir},
		},
		Resources: corev1.ResourceRequirements{
			Requests: corev1.ResourceList{
				corev1.ResourceCPU:    plan.CPURequest.DeepCopy(),
				corev1.ResourceMemory: plan.MemoryRequest.DeepCopy(),
			},
			Limits: corev1.ResourceList{
				corev1.ResourceCPU:    plan.CPULimit.DeepCopy(),
				corev1.ResourceMemory: plan.MemoryLimit.DeepCopy(),
			},
		},
		VolumeMounts: []corev1.VolumeMount{
			{
				Name:      projectVolume,
				MountPath: plan.ProjectMount,
				SubPath:   plan.ProjectID,
			},
			{
				Name:      configVolume,
				MountPath: ConfigMountPath,
				SubPath:   ConfigKey,
			},
		},
	}

	return &corev1.Pod{
		TypeMeta: metav1.TypeMeta{APIVersion: "v1", Kind: "Pod"},
		ObjectMeta: metav1.ObjectMeta{
			Name:            plan.Name,
			Namespace:       plan.Namespace,
			Labels:          PodLabels(plan),
			OwnerReferences: []metav1.OwnerReference{plan.Owner},
		},
		Spec: corev1.PodSpec{
			ServiceAccountName: plan.ServiceAccount,
			RestartPolicy:      corev1.RestartPolicyNever,
			Containers:         []corev1.Container{container},
			SecurityContext: &corev1.PodSecurityContext{
				RunAsUser:  &runAsUser,
				RunAsGroup: &runAsGroup,
				FSGroup:    &fsGroup,
			},
			Volumes: []corev1.Volume{
				{
					Name: projectVolume,
					VolumeSource: corev1.VolumeSource{
						PersistentVolumeClaim: &corev1.PersistentVolumeClaimVolumeSource{
							ClaimName: plan.ProjectClaim,
						},
					},
				},
				{
					Name: configVolume,
					VolumeSource: corev1.VolumeSource{
						ConfigMap: &corev1.ConfigMapVolumeSource{
							LocalObjectReference: corev1.LocalObjectReference{
								Name: ConfigMapName(plan.Name),
							},
						},
					},
				},
			},
		},
	}
}
