package kube

import (
	"context"
	"errors"
	"testing"
	"time"

	appsv1 "k8s.io/api/apps/v1"
	autoscalingv1 "k8s.io/api/autoscaling/v1"
	corev1 "k8s.io/api/core/v1"
	discoveryv1 "k8s.io/api/discovery/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/kubernetes/fake"
	k8stesting "k8s.io/client-go/testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func int32Ptr(i int32) *int32 { return &i }

func unitDeployment(name string, replicas int32) *appsv1.Deployment {
	return &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: "calculadora-suma"},
		Spec:       appsv1.DeploymentSpec{Replicas: int32Ptr(replicas)},
	}
}

func unitPod(name string, unit string, ready bool) *corev1.Pod {
	status := corev1.ConditionFalse
	if ready {
		status = corev1.ConditionTrue
	}
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: "calculadora-suma",
			Labels:    map[string]string{"app": "suma-backend", "digito": unit},
		},
		Spec: corev1.PodSpec{Containers: []corev1.Container{{Name: "suma"}}},
		Status: corev1.PodStatus{
			Phase:             corev1.PodRunning,
			Conditions:        []corev1.PodCondition{{Type: corev1.PodReady, Status: status}},
			ContainerStatuses: []corev1.ContainerStatus{{Name: "suma", Ready: ready}},
		},
	}
}

func newTestAPI(objects ...runtime.Object) (*API, *fake.Clientset) {
	clientset := fake.NewSimpleClientset(objects...)
	serveScaleSubresource(clientset)
	a := NewAPI(testNames(), clientset)
	a.PollInterval = 10 * time.Millisecond
	return a, clientset
}

var deploymentsResource = appsv1.SchemeGroupVersion.WithResource("deployments")

// serveScaleSubresource maps the deployments/scale subresource onto the tracked
// deployments; the fake object tracker has no notion of subresources.
func serveScaleSubresource(clientset *fake.Clientset) {
	clientset.PrependReactor("get", "deployments", func(action k8stesting.Action) (bool, runtime.Object, error) {
		get := action.(k8stesting.GetAction)
		if get.GetSubresource() != "scale" {
			return false, nil, nil
		}
		obj, err := clientset.Tracker().Get(deploymentsResource, get.GetNamespace(), get.GetName())
		if err != nil {
			return true, nil, err
		}
		dep := obj.(*appsv1.Deployment)
		return true, &autoscalingv1.Scale{
			ObjectMeta: metav1.ObjectMeta{Name: dep.Name, Namespace: dep.Namespace, ResourceVersion: dep.ResourceVersion},
			Spec:       autoscalingv1.ScaleSpec{Replicas: *dep.Spec.Replicas},
		}, nil
	})
	clientset.PrependReactor("update", "deployments", func(action k8stesting.Action) (bool, runtime.Object, error) {
		update := action.(k8stesting.UpdateAction)
		if update.GetSubresource() != "scale" {
			return false, nil, nil
		}
		scale := update.GetObject().(*autoscalingv1.Scale)
		obj, err := clientset.Tracker().Get(deploymentsResource, update.GetNamespace(), scale.Name)
		if err != nil {
			return true, nil, err
		}
		dep := obj.(*appsv1.Deployment).DeepCopy()
		dep.Spec.Replicas = int32Ptr(scale.Spec.Replicas)
		if err := clientset.Tracker().Update(deploymentsResource, dep, dep.Namespace); err != nil {
			return true, nil, err
		}
		return true, scale, nil
	})
}

func TestAPI_Scale(t *testing.T) {
	a, clientset := newTestAPI(unitDeployment("suma-digito-1", 0))

	require.NoError(t, a.Scale(context.Background(), 1, 1))

	dep, err := clientset.AppsV1().Deployments("calculadora-suma").Get(context.Background(), "suma-digito-1", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, int32(1), *dep.Spec.Replicas)

	require.NoError(t, a.Scale(context.Background(), 1, 0))
	dep, err = clientset.AppsV1().Deployments("calculadora-suma").Get(context.Background(), "suma-digito-1", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, int32(0), *dep.Spec.Replicas)
}

func TestAPI_ScaleUsesScaleSubresource(t *testing.T) {
	a, clientset := newTestAPI(unitDeployment("suma-digito-0", 0))

	require.NoError(t, a.Scale(context.Background(), 0, 1))

	var subresources []string
	for _, action := range clientset.Actions() {
		if action.GetResource().Resource == "deployments" {
			subresources = append(subresources, action.GetVerb()+"/"+action.GetSubresource())
		}
	}
	assert.Equal(t, []string{"get/scale", "update/scale"}, subresources)

	// already at the requested size: read only
	clientset.ClearActions()
	require.NoError(t, a.Scale(context.Background(), 0, 1))
	require.Len(t, clientset.Actions(), 1)
	assert.Equal(t, "get", clientset.Actions()[0].GetVerb())
}

func TestAPI_ScaleRetriesConflicts(t *testing.T) {
	a, clientset := newTestAPI(unitDeployment("suma-digito-2", 0))
	conflicts := 1
	clientset.PrependReactor("update", "deployments", func(action k8stesting.Action) (bool, runtime.Object, error) {
		if action.GetSubresource() == "scale" && conflicts > 0 {
			conflicts--
			return true, nil, apierrors.NewConflict(deploymentsResource.GroupResource(), "suma-digito-2", errors.New("object was modified"))
		}
		return false, nil, nil
	})

	require.NoError(t, a.Scale(context.Background(), 2, 1))
	assert.Equal(t, 0, conflicts)

	dep, err := clientset.AppsV1().Deployments("calculadora-suma").Get(context.Background(), "suma-digito-2", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, int32(1), *dep.Spec.Replicas)
}

func TestAPI_ScaleMissingDeployment(t *testing.T) {
	a, _ := newTestAPI()

	err := a.Scale(context.Background(), 0, 1)
	require.Error(t, err)
	assert.Equal(t, KindCommandFailed, KindOf(err))
}

func TestAPI_WaitPodsReady(t *testing.T) {
	original := podRelistInterval
	podRelistInterval = 10 * time.Millisecond
	defer func() { podRelistInterval = original }()

	t.Run("ready pod", func(t *testing.T) {
		a, _ := newTestAPI(unitPod("p0", "0", true), unitPod("other", "1", false))
		require.NoError(t, a.WaitPodsReady(context.Background(), 0, time.Second))
	})

	t.Run("pod never ready", func(t *testing.T) {
		a, _ := newTestAPI(unitPod("p0", "0", false))
		err := a.WaitPodsReady(context.Background(), 0, 100*time.Millisecond)
		require.Error(t, err)
		assert.Equal(t, KindNotReady, KindOf(err))
		assert.Contains(t, err.Error(), "not ready")
	})

	t.Run("no pods", func(t *testing.T) {
		a, _ := newTestAPI()
		err := a.WaitPodsReady(context.Background(), 2, 50*time.Millisecond)
		require.Error(t, err)
		assert.Equal(t, KindNotReady, KindOf(err))
	})

	t.Run("list errors are retried", func(t *testing.T) {
		a, clientset := newTestAPI(unitPod("p0", "0", true))
		failures := 2
		clientset.PrependReactor("list", "pods", func(action k8stesting.Action) (bool, runtime.Object, error) {
			if failures > 0 {
				failures--
				return true, nil, errors.New("etcdserver: leader changed")
			}
			return false, nil, nil
		})
		require.NoError(t, a.WaitPodsReady(context.Background(), 0, time.Second))
		assert.Equal(t, 0, failures)
	})

	t.Run("pod becomes ready on the watch", func(t *testing.T) {
		a, clientset := newTestAPI(unitPod("p0", "0", false))
		watching := make(chan struct{})
		clientset.PrependWatchReactor("pods", func(action k8stesting.Action) (bool, watch.Interface, error) {
			w, err := clientset.Tracker().Watch(action.GetResource(), action.GetNamespace())
			if err != nil {
				return false, nil, err
			}
			close(watching)
			return true, w, nil
		})

		go func() {
			<-watching
			// pods of other units on the same watch are ignored
			_, _ = clientset.CoreV1().Pods("calculadora-suma").Create(context.Background(), unitPod("other", "1", true), metav1.CreateOptions{})
			_, _ = clientset.CoreV1().Pods("calculadora-suma").Update(context.Background(), unitPod("p0", "0", true), metav1.UpdateOptions{})
		}()

		start := time.Now()
		require.NoError(t, a.WaitPodsReady(context.Background(), 0, 5*time.Second))
		assert.Less(t, time.Since(start), 2*time.Second)
	})
}

func TestAPI_WaitEndpointsReady(t *testing.T) {
	endpoints := &corev1.Endpoints{
		ObjectMeta: metav1.ObjectMeta{Name: "suma-digito-0", Namespace: "calculadora-suma"},
		Subsets:    []corev1.EndpointSubset{{Addresses: []corev1.EndpointAddress{{IP: "10.0.0.1"}}}},
	}
	slice := &discoveryv1.EndpointSlice{
		ObjectMeta: metav1.ObjectMeta{
			Name:      "suma-digito-0-abcde",
			Namespace: "calculadora-suma",
			Labels:    map[string]string{discoveryv1.LabelServiceName: "suma-digito-0"},
		},
		Endpoints: []discoveryv1.Endpoint{{Addresses: []string{"10.0.0.2"}}},
	}
	emptyEndpoints := &corev1.Endpoints{
		ObjectMeta: metav1.ObjectMeta{Name: "suma-digito-0", Namespace: "calculadora-suma"},
	}

	tests := []struct {
		name    string
		objects []runtime.Object
		wantErr bool
	}{
		{"endpoints view", []runtime.Object{endpoints}, false},
		{"slice view only", []runtime.Object{emptyEndpoints, slice}, false},
		{"no view", []runtime.Object{emptyEndpoints}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, _ := newTestAPI(tt.objects...)
			err := a.WaitEndpointsReady(context.Background(), 0, 100*time.Millisecond)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, KindNotReady, KindOf(err))
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestReadyPodForService(t *testing.T) {
	svc := &corev1.Service{
		ObjectMeta: metav1.ObjectMeta{Name: "suma-digito-0", Namespace: "calculadora-suma"},
		Spec:       corev1.ServiceSpec{Selector: map[string]string{"app": "suma-backend", "digito": "0"}},
	}
	noSelector := &corev1.Service{
		ObjectMeta: metav1.ObjectMeta{Name: "headless", Namespace: "calculadora-suma"},
	}

	tests := []struct {
		name    string
		service string
		objects []runtime.Object
		want    string
		wantErr bool
	}{
		{"picks the ready pod", "suma-digito-0", []runtime.Object{svc, unitPod("starting", "0", false), unitPod("ready", "0", true)}, "ready", false},
		{"no ready pods", "suma-digito-0", []runtime.Object{svc, unitPod("starting", "0", false)}, "", true},
		{"no pods", "suma-digito-0", []runtime.Object{svc}, "", true},
		{"missing service", "suma-digito-9", nil, "", true},
		{"service without selector", "headless", []runtime.Object{noSelector}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clientset := fake.NewSimpleClientset(tt.objects...)
			got, err := ReadyPodForService(context.Background(), clientset, "calculadora-suma", tt.service)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAPI_ExternalAddress(t *testing.T) {
	pending := &corev1.Service{ObjectMeta: metav1.ObjectMeta{Name: "suma-docs", Namespace: "calculadora-suma"}}
	ready := &corev1.Service{
		ObjectMeta: metav1.ObjectMeta{Name: "grafana", Namespace: "monitoring"},
		Status: corev1.ServiceStatus{LoadBalancer: corev1.LoadBalancerStatus{
			Ingress: []corev1.LoadBalancerIngress{{Hostname: "grafana.example.com"}},
		}},
	}
	a, _ := newTestAPI(pending, ready)

	addr, err := a.ExternalAddress(context.Background(), "monitoring", "grafana")
	require.NoError(t, err)
	assert.Equal(t, "grafana.example.com", addr)

	addr, err = a.ExternalAddress(context.Background(), "calculadora-suma", "suma-docs")
	require.NoError(t, err)
	assert.Empty(t, addr)

	_, err = a.ExternalAddress(context.Background(), "monitoring", "missing")
	assert.Equal(t, KindCommandFailed, KindOf(err))
}
