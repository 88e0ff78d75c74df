package launcher

import (
	"context"
	"fmt"
	"time"

	"cicadad/internal/backend"
	"cicadad/pkg/logging"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"

	"github.com/google/uuid"
)

// watchPollIntervalKube is how often KubeLauncher polls a Pod's phase
// while waiting for it to reach a terminal state. A var, not a const, so
// tests can shorten it.
var watchPollIntervalKube = 2 * time.Second

// KubeClient is the client-go surface KubeLauncher needs. A plain
// clientset, not controller-runtime's client.Client: the launcher only
// ever creates and deletes bare Pods, never reconciles, so there is no
// use for controller-runtime's cache/informer machinery here.
type KubeClient interface {
	kubernetes.Interface
}

// NewKubeClient builds a clientset against restConfig, grounded on the
// teacher's internal/client/kubernetes_client.go client construction,
// adapted from controller-runtime's client.New to a plain clientset since
// KubeLauncher has no reconciliation loop to justify the heavier client.
func NewKubeClient(restConfig *rest.Config) (KubeClient, error) {
	cs, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("launcher: create kube client: %w", err)
	}
	return cs, nil
}

// KubeLauncher runs worker processes as bare Pods in namespace, one per
// scenario or user manager.
type KubeLauncher struct {
	client    KubeClient
	namespace string
	store     backend.Store
}

// NewKubeLauncher builds a Launcher targeting namespace via kubeClient.
func NewKubeLauncher(store backend.Store, kubeClient KubeClient, namespace string) (*KubeLauncher, error) {
	if kubeClient == nil {
		return nil, fmt.Errorf("launcher: KUBE mode requires a Kubernetes client")
	}
	return &KubeLauncher{store: store, client: kubeClient, namespace: namespace}, nil
}

func (l *KubeLauncher) Launch(ctx context.Context, spec WorkerSpec) (string, error) {
	name := fmt.Sprintf("cicadad-worker-%s", uuid.NewString())

	pod := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: l.namespace,
			Labels: map[string]string{
				"app":             "cicadad-worker",
				"cicadad/test-id": string(spec.TestID),
			},
		},
		Spec: corev1.PodSpec{
			RestartPolicy: corev1.RestartPolicyNever,
			Containers: []corev1.Container{
				{
					Name:    "worker",
					Image:   spec.Image,
					Command: append([]string{"cicadad"}, spec.Args()...),
				},
			},
		},
	}

	if _, err := l.client.CoreV1().Pods(l.namespace).Create(ctx, pod, metav1.CreateOptions{}); err != nil {
		return "", fmt.Errorf("launcher: create worker pod: %w", err)
	}

	if err := l.store.RegisterInstance(ctx, spec.TestID, name); err != nil {
		return "", fmt.Errorf("launcher: register instance: %w", err)
	}

	go l.watch(spec.TestID, name)

	return name, nil
}

func (l *KubeLauncher) watch(testID backend.TestId, name string) {
	ctx := context.Background()
	for {
		pod, err := l.client.CoreV1().Pods(l.namespace).Get(ctx, name, metav1.GetOptions{})

		terminal := apierrors.IsNotFound(err) ||
			(err == nil && (pod.Status.Phase == corev1.PodSucceeded || pod.Status.Phase == corev1.PodFailed))

		if terminal {
			if derr := l.store.DeregisterInstance(ctx, testID, name); derr != nil {
				logging.Error("Launcher", derr, "failed to deregister worker pod %s", name)
			}
			return
		}

		time.Sleep(watchPollIntervalKube)
	}
}

func (l *KubeLauncher) Stop(ctx context.Context, instanceID string) error {
	err := l.client.CoreV1().Pods(l.namespace).Delete(ctx, instanceID, metav1.DeleteOptions{})
	if err != nil && !apierrors.IsNotFound(err) {
		return fmt.Errorf("launcher: delete worker pod: %w", err)
	}
	return nil
}

var _ Launcher = (*KubeLauncher)(nil)
