package resources

import (
	"bytes"
	"fmt"
	"text/template"

	"jobop/internal/job"

	"github.com/Masterminds/sprig/v3"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// nextflowConfig is the Nextflow Kubernetes executor configuration
// written into the job container as /code/nextflow.config.
const nextflowConfig = `
process {
  pod = [ [nodeSelector: 'informaticsmatters.com/purpose-worker=yes'],
          [label: {{ .InstanceLabel | squote }},
           value: {{ .Name | squote }}] ]
}
executor {
  name = 'k8s'
}
k8s {
  serviceAccount = {{ .ServiceAccount | squote }}
  runAsUser = {{ .RunAsUser }}
  storageClaimName = {{ .ClaimName | squote }}
  storageMountPath = {{ .ProjectMount | squote }}
  storageSubPath = {{ .ProjectID | squote }}
  workDir = {{ .WorkDir | squote }}
}
`

var configTemplate = template.Must(template.New(ConfigKey).Funcs(sprig.TxtFuncMap()).Parse(nextflowConfig))

type configVars struct {
	InstanceLabel  string
	Name           string
	ServiceAccount string
	RunAsUser      int64
	ClaimName      string
	ProjectMount   string
	ProjectID      string
	WorkDir        string
}

// RenderConfig renders the nextflow.config document for a plan.
func RenderConfig(plan *job.Plan) (string, error) {
	var buf bytes.Buffer
	err := configTemplate.Execute(&buf, configVars{
		InstanceLabel:  LabelInstanceID,
		Name:           plan.Name,
		ServiceAccount: plan.ServiceAccount,
		RunAsUser:      plan.RunAsUser,
		ClaimName:      plan.ProjectClaim,
		ProjectMount:   plan.ProjectMount,
		ProjectID:      plan.ProjectID,
		WorkDir:        plan.WorkDir,
	})
	if err != nil {
		return "", fmt.Errorf("failed to render %s: %w", ConfigKey, err)
	}
	return buf.String(), nil
}

// BuildConfigMap returns the ConfigMap holding the job's nextflow.config.
// The result depends only on the plan.
func BuildConfigMap(plan *job.Plan) (*corev1.ConfigMap, error) {
	config, err := RenderConfig(plan)
	if err != nil {
		return nil, err
	}
	return &corev1.ConfigMap{
		TypeMeta: metav1.TypeMeta{APIVersion: "v1", Kind: "ConfigMap"},
		ObjectMeta: metav1.ObjectMeta{
			Name:            ConfigMapName(plan.Name),
			Namespace:       plan.Namespace,
			Labels:          map[string]string{"app": plan.Name},
			OwnerReferences: []metav1.OwnerReference{plan.Owner},
		},
		Data: map[string]string{
			ConfigKey: config,
		},
	}, nil
}
