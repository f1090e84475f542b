package kube

import (
	"context"
	"fmt"
	"time"

	corev1 "k8s.io/api/core/v1"
	discoveryv1 "k8s.io/api/discovery/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/util/retry"
)

// podRelistInterval is the pause before the API backend lists pods again after a
// failed call or a closed watch.
var podRelistInterval = 1 * time.Second

// API implements Cluster directly against the Kubernetes API server.
type API struct {
	Names     Names
	Clientset kubernetes.Interface

	ScaleTimeout time.Duration
	ProbeTimeout time.Duration
	PollInterval time.Duration
}

// NewAPI creates a client-go backed Cluster with the default operation bounds.
func NewAPI(names Names, clientset kubernetes.Interface) *API {
	return &API{
		Names:        names,
		Clientset:    clientset,
		ScaleTimeout: ScaleTimeout,
		ProbeTimeout: EndpointProbeTimeout,
		PollInterval: EndpointPollPeriod,
	}
}

// classifyAPIError turns a client-go error into an OpError.
func classifyAPIError(parent, opCtx context.Context, op, target string, err error) *OpError {
	opErr := &OpError{Op: op, Target: target, Err: err, Kind: KindCommandFailed}
	if kind, done := contextKind(parent, opCtx); done {
		opErr.Kind = kind
	} else if apierrors.IsTimeout(err) || apierrors.IsServerTimeout(err) {
		opErr.Kind = KindTimedOut
	}
	return opErr
}

// Scale sets replicas through the deployment's scale subresource, as kubectl scale does.
// A conflicting write from another client is retried with a fresh read.
func (a *API) Scale(ctx context.Context, unit, replicas int) error {
	name := a.Names.Deployment(unit)
	deployments := a.Clientset.AppsV1().Deployments(a.Names.Namespace)

	opCtx, cancel := context.WithTimeout(ctx, a.ScaleTimeout)
	defer cancel()

	err := retry.RetryOnConflict(retry.DefaultRetry, func() error {
		scale, err := deployments.GetScale(opCtx, name, metav1.GetOptions{})
		if err != nil {
			return err
		}
		if scale.Spec.Replicas == int32(replicas) {
			return nil
		}
		scale.Spec.Replicas = int32(replicas)
		_, err = deployments.UpdateScale(opCtx, name, scale, metav1.UpdateOptions{})
		return err
	})

	var result error
	if err != nil {
		result = classifyAPIError(ctx, opCtx, "scale", name, err)
	}
	reportScale(unit, name, replicas, result)
	return result
}

// WaitPodsReady blocks until at least one pod matches the unit selector and all matching
// pods are ready. It lists once, then follows a watch from that resource version; a
// closed watch or a failed call starts over after podRelistInterval.
func (a *API) WaitPodsReady(ctx context.Context, unit int, timeout time.Duration) error {
	name := a.Names.Deployment(unit)
	selector := a.Names.PodSelector(unit)
	reportPodsWaiting(unit, name)

	opCtx, cancel := context.WithTimeout(ctx, timeout+PodWaitGrace)
	defer cancel()
	waitCtx, cancelWait := context.WithTimeout(opCtx, timeout)
	defer cancelWait()

	var lastErr error
	err := a.watchPodsReady(waitCtx, selector, &lastErr)

	var result error
	if err != nil {
		opErr := &OpError{Op: "wait-pods", Target: selector, Kind: KindNotReady, Err: err}
		if lastErr != nil {
			opErr.Err = fmt.Errorf("%w (last observation: %v)", err, lastErr)
		}
		if ctx.Err() != nil {
			opErr.Kind = KindCanceled
		}
		result = opErr
	}
	reportPodsReady(unit, name, result)
	return result
}

func (a *API) watchPodsReady(ctx context.Context, selector string, lastErr *error) error {
	matches, err := labels.Parse(selector)
	if err != nil {
		return err
	}
	pods := a.Clientset.CoreV1().Pods(a.Names.Namespace)

	for {
		list, err := pods.List(ctx, metav1.ListOptions{LabelSelector: selector})
		if err == nil {
			seen := make(map[string]*corev1.Pod, len(list.Items))
			for i := range list.Items {
				seen[list.Items[i].Name] = &list.Items[i]
			}
			if *lastErr = podsReady(seen, selector); *lastErr == nil {
				return nil
			}

			var w watch.Interface
			w, err = pods.Watch(ctx, metav1.ListOptions{LabelSelector: selector, ResourceVersion: list.ResourceVersion})
			if err == nil {
				ready := followPods(ctx, w, matches, seen, selector, lastErr)
				w.Stop()
				if ready {
					return nil
				}
			}
		}
		if err != nil {
			*lastErr = err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(podRelistInterval):
		}
	}
}

// followPods applies watch events to seen until every pod is ready, the watch ends or ctx is done.
func followPods(ctx context.Context, w watch.Interface, matches labels.Selector, seen map[string]*corev1.Pod, selector string, lastErr *error) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case ev, ok := <-w.ResultChan():
			if !ok {
				return false
			}
			pod, isPod := ev.Object.(*corev1.Pod)
			if !isPod || !matches.Matches(labels.Set(pod.Labels)) {
				continue
			}
			switch ev.Type {
			case watch.Added, watch.Modified:
				seen[pod.Name] = pod
			case watch.Deleted:
				delete(seen, pod.Name)
			}
			if *lastErr = podsReady(seen, selector); *lastErr == nil {
				return true
			}
		}
	}
}

func podsReady(pods map[string]*corev1.Pod, selector string) error {
	if len(pods) == 0 {
		return fmt.Errorf("no pods match %s", selector)
	}
	for name, pod := range pods {
		if !podIsReady(pod) {
			return fmt.Errorf("pod %s is not ready", name)
		}
	}
	return nil
}

// WaitEndpointsReady polls both endpoint views every PollInterval until either is non-empty.
func (a *API) WaitEndpointsReady(ctx context.Context, unit int, timeout time.Duration) error {
	service := a.Names.Service(unit)
	reportEndpointsWaiting(unit, service)

	err := wait.PollUntilContextTimeout(ctx, a.PollInterval, timeout, true, func(pollCtx context.Context) (bool, error) {
		return a.hasEndpoints(pollCtx, service) || a.hasEndpointSlices(pollCtx, service), nil
	})

	var result error
	if err != nil {
		kind := KindNotReady
		if ctx.Err() != nil {
			kind = KindCanceled
		}
		result = &OpError{Op: "wait-endpoints", Target: service, Kind: kind, Err: err}
	}
	reportEndpointsReady(unit, service, result)
	return result
}

func (a *API) hasEndpoints(ctx context.Context, service string) bool {
	probeCtx, cancel := context.WithTimeout(ctx, a.ProbeTimeout)
	defer cancel()

	//nolint:staticcheck // Endpoints is kept as a fallback view for clusters without slices.
	ep, err := a.Clientset.CoreV1().Endpoints(a.Names.Namespace).Get(probeCtx, service, metav1.GetOptions{})
	if err != nil {
		return false
	}
	for _, subset := range ep.Subsets {
		if len(subset.Addresses) > 0 {
			return true
		}
	}
	return false
}

func (a *API) hasEndpointSlices(ctx context.Context, service string) bool {
	probeCtx, cancel := context.WithTimeout(ctx, a.ProbeTimeout)
	defer cancel()

	slices, err := a.Clientset.DiscoveryV1().EndpointSlices(a.Names.Namespace).List(probeCtx, metav1.ListOptions{
		LabelSelector: discoveryv1.LabelServiceName + "=" + service,
	})
	if err != nil {
		return false
	}
	for _, slice := range slices.Items {
		for _, ep := range slice.Endpoints {
			if len(ep.Addresses) > 0 {
				return true
			}
		}
	}
	return false
}

// ExternalAddress reads the load balancer ingress of a service.
func (a *API) ExternalAddress(ctx context.Context, namespace, service string) (string, error) {
	opCtx, cancel := context.WithTimeout(ctx, a.ProbeTimeout)
	defer cancel()

	svc, err := a.Clientset.CoreV1().Services(namespace).Get(opCtx, service, metav1.GetOptions{})
	if err != nil {
		return "", classifyAPIError(ctx, opCtx, "get-service", namespace+"/"+service, err)
	}
	for _, ingress := range svc.Status.LoadBalancer.Ingress {
		if ingress.IP != "" {
			return ingress.IP, nil
		}
		if ingress.Hostname != "" {
			return ingress.Hostname, nil
		}
	}
	return "", nil
}
