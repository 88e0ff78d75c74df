package launcher

import (
	"context"
	"testing"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFakeKubeClient(t *testing.T) KubeClient {
	t.Helper()
	return fake.NewClientset()
}

func TestKubeLauncherLaunchCreatesPod(t *testing.T) {
	store, testID := newTestStoreAndTest(t)
	kubeClient := newFakeKubeClient(t)

	launcher, err := NewKubeLauncher(store, kubeClient, "load-tests")
	require.NoError(t, err)

	instanceID, err := launcher.Launch(context.Background(), WorkerSpec{
		Command: CommandRunScenario,
		TestID:  testID,
		Image:   "cicadad/worker:latest",
	})
	require.NoError(t, err)

	pod, err := kubeClient.CoreV1().Pods("load-tests").Get(context.Background(), instanceID, metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, "cicadad/worker:latest", pod.Spec.Containers[0].Image)

	running, err := store.CheckTestInstance(context.Background(), testID, instanceID)
	require.NoError(t, err)
	assert.True(t, running)
}

func TestKubeLauncherDeregistersWhenPodSucceeds(t *testing.T) {
	original := watchPollIntervalKube
	watchPollIntervalKube = 5 * time.Millisecond
	defer func() { watchPollIntervalKube = original }()

	store, testID := newTestStoreAndTest(t)
	kubeClient := newFakeKubeClient(t)

	launcher, err := NewKubeLauncher(store, kubeClient, "load-tests")
	require.NoError(t, err)

	instanceID, err := launcher.Launch(context.Background(), WorkerSpec{
		Command: CommandRunScenario,
		TestID:  testID,
		Image:   "cicadad/worker:latest",
	})
	require.NoError(t, err)

	pod, err := kubeClient.CoreV1().Pods("load-tests").Get(context.Background(), instanceID, metav1.GetOptions{})
	require.NoError(t, err)
	pod.Status.Phase = corev1.PodSucceeded
	_, err = kubeClient.CoreV1().Pods("load-tests").UpdateStatus(context.Background(), pod, metav1.UpdateOptions{})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		running, _ := store.CheckTestInstance(context.Background(), testID, instanceID)
		return !running
	}, 2*time.Second, 10*time.Millisecond)
}

func TestNewKubeLauncherRejectsNilClient(t *testing.T) {
	store, _ := newTestStoreAndTest(t)
	_, err := NewKubeLauncher(store, nil, "load-tests")
	assert.Error(t, err)
}
