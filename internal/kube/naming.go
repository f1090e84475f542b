package kube

import (
	"fmt"
	"strconv"

	"k8s.io/apimachinery/pkg/labels"
)

// Names derives every cluster object name for a unit from a fixed convention:
// deployment and service are both "{Prefix}-{unit}", pods carry
// app={AppLabel} and {UnitLabel}={unit}.
type Names struct {
	Namespace string
	Prefix    string
	AppLabel  string
	UnitLabel string
}

// Deployment returns the deployment name for unit.
func (n Names) Deployment(unit int) string {
	return fmt.Sprintf("%s-%d", n.Prefix, unit)
}

// Service returns the service name for unit.
func (n Names) Service(unit int) string {
	return fmt.Sprintf("%s-%d", n.Prefix, unit)
}

// PodLabels returns the label set identifying the pods of unit.
func (n Names) PodLabels(unit int) labels.Set {
	set := labels.Set{}
	if n.AppLabel != "" {
		set["app"] = n.AppLabel
	}
	if n.UnitLabel != "" {
		set[n.UnitLabel] = strconv.Itoa(unit)
	}
	return set
}

// PodSelector returns the pod label selector for unit in kubectl syntax.
func (n Names) PodSelector(unit int) string {
	return labels.SelectorFromSet(n.PodLabels(unit)).String()
}

// ServiceHost returns the cluster-internal DNS name of the unit's service.
func (n Names) ServiceHost(unit int) string {
	return fmt.Sprintf("%s.%s.svc.cluster.local", n.Service(unit), n.Namespace)
}
