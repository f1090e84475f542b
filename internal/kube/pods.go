package kube

import (
	"context"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/client-go/kubernetes"
)

// podIsReady reports whether a pod is running with the Ready condition set
// and every container status reporting ready.
func podIsReady(pod *corev1.Pod) bool {
	if pod.Status.Phase != corev1.PodRunning {
		return false
	}
	isReady := false
	for _, cond := range pod.Status.Conditions {
		if cond.Type == corev1.PodReady && cond.Status == corev1.ConditionTrue {
			isReady = true
			break
		}
	}
	if !isReady {
		return false
	}
	// Pod is running but container statuses not yet reported, might be initializing
	if len(pod.Status.ContainerStatuses) == 0 && len(pod.Spec.Containers) > 0 {
		return false
	}
	for _, cs := range pod.Status.ContainerStatuses {
		if !cs.Ready {
			return false
		}
	}
	return true
}

// ReadyPodForService resolves a service to a ready pod backing it, via the service's selector.
// Port-forward streams always terminate at a pod, never at the service itself.
func ReadyPodForService(ctx context.Context, clientset kubernetes.Interface, namespace, service string) (string, error) {
	svc, err := clientset.CoreV1().Services(namespace).Get(ctx, service, metav1.GetOptions{})
	if err != nil {
		return "", fmt.Errorf("failed to get service %s/%s: %w", namespace, service, err)
	}
	if len(svc.Spec.Selector) == 0 {
		return "", fmt.Errorf("service %s/%s has no selector, cannot find backing pods", namespace, service)
	}

	selector := labels.SelectorFromSet(svc.Spec.Selector)
	podList, err := clientset.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{LabelSelector: selector.String()})
	if err != nil {
		return "", fmt.Errorf("failed to list pods for service %s/%s: %w", namespace, service, err)
	}
	if len(podList.Items) == 0 {
		return "", fmt.Errorf("no pods found for service %s/%s with selector %s", namespace, service, selector.String())
	}

	for i := range podList.Items {
		if podIsReady(&podList.Items[i]) {
			return podList.Items[i].Name, nil
		}
	}
	return "", fmt.Errorf("no ready pods found for service %s/%s (selector: %s)", namespace, service, selector.String())
}
