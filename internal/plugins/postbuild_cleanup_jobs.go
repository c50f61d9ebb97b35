package plugins

import (
	"context"
	"fmt"
	"os"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/opencontainer-orchestrator/buildctl/internal/plugin"
)

func init() {
	plugin.Register(plugin.Descriptor{
		Key:            "cleanup_build_jobs",
		Phase:          plugin.PhasePostBuild,
		CanFailDefault: false,
		Build: func(tasker plugin.Tasker, wf plugin.Context, args map[string]any) (plugin.Plugin, error) {
			namespace, _ := args["namespace"].(string)
			if namespace == "" {
				namespace = "default"
			}
			kubeconfig, _ := args["kubeconfig"].(string)
			component, _ := args["component"].(string)
			selfJob := os.Getenv("BUILDCTL_JOB_NAME")

			clientset, err := newKubeClient(kubeconfig)
			if err != nil {
				return nil, fmt.Errorf("building kubernetes client: %w", err)
			}
			return &cleanupJobsPlugin{
				wf:        wf,
				clientset: clientset,
				namespace: namespace,
				component: component,
				selfJob:   selfJob,
			}, nil
		},
	})
}

// cleanupJobsPlugin reclaims the batch/v1 Jobs that back component builds
// once a build finishes. If the workflow is failing, it deletes the Job
// that ran this very build; otherwise it deletes sibling Jobs sharing the
// same component label, leaving the current one in place.
type cleanupJobsPlugin struct {
	wf        plugin.Context
	clientset kubernetes.Interface
	namespace string
	component string
	selfJob   string
}

func (p *cleanupJobsPlugin) Key() string { return "cleanup_build_jobs" }

func (p *cleanupJobsPlugin) Run(ctx context.Context) (any, error) {
	jobs := p.clientset.BatchV1().Jobs(p.namespace)

	if p.wf.IsBuildFailing() {
		if p.selfJob == "" {
			return nil, fmt.Errorf("BUILDCTL_JOB_NAME not set, can't identify this build's own job")
		}
		if err := jobs.Delete(ctx, p.selfJob, metav1.DeleteOptions{}); err != nil {
			return nil, fmt.Errorf("deleting failed build's own job %s: %w", p.selfJob, err)
		}
		return []string{p.selfJob}, nil
	}

	if p.component == "" {
		return nil, fmt.Errorf("cleanup_build_jobs: 'component' arg is required when the build succeeded")
	}

	list, err := jobs.List(ctx, metav1.ListOptions{
		LabelSelector: "component=" + p.component,
	})
	if err != nil {
		return nil, fmt.Errorf("listing sibling jobs for component %s: %w", p.component, err)
	}

	var deleted []string
	var lastErr error
	for _, job := range list.Items {
		if job.Name == p.selfJob {
			continue
		}
		if err := jobs.Delete(ctx, job.Name, metav1.DeleteOptions{}); err != nil {
			lastErr = fmt.Errorf("deleting sibling job %s: %w", job.Name, err)
			continue
		}
		deleted = append(deleted, job.Name)
	}
	if lastErr != nil {
		return deleted, lastErr
	}
	return deleted, nil
}

func newKubeClient(kubeconfig string) (kubernetes.Interface, error) {
	var cfg *rest.Config
	var err error
	if kubeconfig != "" {
		cfg, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
	} else {
		cfg, err = rest.InClusterConfig()
	}
	if err != nil {
		return nil, err
	}
	return kubernetes.NewForConfig(cfg)
}
