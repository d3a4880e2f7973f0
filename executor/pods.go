// Copyright © 2024 Genome Research Limited
// Author: Sendu Bala <sb10@sanger.ac.uk>.
//
//  This file is part of wr.
//
//  wr is free software: you can redistribute it and/or modify
//  it under the terms of the GNU Lesser General Public License as published by
//  the Free Software Foundation, either version 3 of the License, or
//  (at your option) any later version.
//
//  wr is distributed in the hope that it will be useful,
//  but WITHOUT ANY WARRANTY; without even the implied warranty of
//  MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
//  GNU Lesser General Public License for more details.
//
//  You should have received a copy of the GNU Lesser General Public License
//  along with wr. If not, see <http://www.gnu.org/licenses/>.

package executor

import (
	"context"
	"fmt"

	"github.com/inconshreveable/log15"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"github.com/wtsi-hgi/locality/schedulerclient"
)

// PodSpecConfig is the bring-up pod spec the protocol step 2 in spec §4.D
// enumerates: image, resources, pull policy, service account, host mounts,
// volume claims, node selector and optional security context.
//
// buildPodSpec does not read VolumeClaims: only HostVolumes become volumes of
// the created pod.
type PodSpecConfig struct {
	Image              string
	CPURequest         string
	MemoryRequest      string
	ImagePullPolicy    corev1.PullPolicy
	ServiceAccountName string
	HostMounts         []corev1.VolumeMount
	HostVolumes        []corev1.Volume
	VolumeClaims       []corev1.PersistentVolumeClaimVolumeSource
	NodeSelector       map[string]string
	SecurityContext    *corev1.PodSecurityContext
	Port               int32
	AutoClose          bool
}

// podManager is the schedulerclient.PodManager backed by a real Kubernetes
// clientset, grounded on jobqueue/scheduler/kubernetes.go's runCmd
// (Spawn/DestroyPod, resource requirement construction) and its
// generateResourceRequirements helper.
type podManager struct {
	kubeClient kubernetes.Interface
	namespace  string
	spec       PodSpecConfig
	log        log15.Logger
}

func newPodManager(kubeClient kubernetes.Interface, namespace string, log log15.Logger) *podManager {
	return &podManager{kubeClient: kubeClient, namespace: namespace, log: log}
}

// State implements schedulerclient.PodManager.
func (m *podManager) State(ctx context.Context, podName string) (schedulerclient.PodState, error) {
	pod, err := m.kubeClient.CoreV1().Pods(m.namespace).Get(ctx, podName, metav1.GetOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return schedulerclient.PodMissing, nil
		}

		return "", fmt.Errorf("executor: getting pod %s: %w", podName, err)
	}

	return podPhaseToState(pod), nil
}

func podPhaseToState(pod *corev1.Pod) schedulerclient.PodState {
	switch pod.Status.Phase {
	case corev1.PodRunning:
		return schedulerclient.PodRunning
	case corev1.PodPending:
		return schedulerclient.PodWaiting
	case corev1.PodSucceeded, corev1.PodFailed:
		return schedulerclient.PodTerminated
	default:
		return schedulerclient.PodWaiting
	}
}

// Delete implements schedulerclient.PodManager.
func (m *podManager) Delete(ctx context.Context, podName string) error {
	err := m.kubeClient.CoreV1().Pods(m.namespace).Delete(ctx, podName, metav1.DeleteOptions{})
	if err != nil && !apierrors.IsNotFound(err) {
		return fmt.Errorf("executor: deleting pod %s: %w", podName, err)
	}

	return nil
}

// Create implements schedulerclient.PodManager, building the pod spec per
// spec §4.D step 2.
func (m *podManager) Create(ctx context.Context, podName string) error {
	pod := m.buildPodSpec(podName)

	_, err := m.kubeClient.CoreV1().Pods(m.namespace).Create(ctx, pod, metav1.CreateOptions{})
	if err != nil {
		return fmt.Errorf("executor: creating pod %s: %w", podName, err)
	}

	return nil
}

// IP implements schedulerclient.PodManager.
func (m *podManager) IP(ctx context.Context, podName string) (string, error) {
	pod, err := m.kubeClient.CoreV1().Pods(m.namespace).Get(ctx, podName, metav1.GetOptions{})
	if err != nil {
		return "", fmt.Errorf("executor: getting pod %s: %w", podName, err)
	}

	if pod.Status.PodIP == "" {
		return "", fmt.Errorf("executor: pod %s has no IP yet", podName)
	}

	return pod.Status.PodIP, nil
}

func (m *podManager) buildPodSpec(podName string) *corev1.Pod {
	autoclose := "0"
	if m.spec.AutoClose {
		autoclose = "1"
	}

	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      podName,
			Namespace: m.namespace,
			Labels:    map[string]string{"app": "locality-scheduler"},
		},
		Spec: corev1.PodSpec{
			RestartPolicy:      corev1.RestartPolicyNever,
			ServiceAccountName: m.spec.ServiceAccountName,
			NodeSelector:       m.spec.NodeSelector,
			SecurityContext:    m.spec.SecurityContext,
			Volumes:            m.spec.HostVolumes,
			Containers: []corev1.Container{
				{
					Name:            "scheduler",
					Image:           m.spec.Image,
					ImagePullPolicy: m.spec.ImagePullPolicy,
					VolumeMounts:    m.spec.HostMounts,
					Resources:       m.resourceRequirements(),
					Ports:           []corev1.ContainerPort{{ContainerPort: m.spec.Port}},
					Env: []corev1.EnvVar{
						{Name: "SCHEDULER_NAME", Value: podName},
						{Name: "AUTOCLOSE", Value: autoclose},
					},
				},
			},
		},
	}
}

// resourceRequirements mirrors jobqueue/scheduler/kubernetes.go's
// generateResourceRequirements: requests at the configured amount. No limits
// are set.
func (m *podManager) resourceRequirements() corev1.ResourceRequirements {
	cpu := resourceQuantityOrZero(m.spec.CPURequest)
	mem := resourceQuantityOrZero(m.spec.MemoryRequest)

	return corev1.ResourceRequirements{
		Requests: corev1.ResourceList{
			corev1.ResourceCPU:    cpu,
			corev1.ResourceMemory: mem,
		},
	}
}

func resourceQuantityOrZero(s string) resource.Quantity {
	if s == "" {
		return resource.MustParse("0")
	}

	return resource.MustParse(s)
}
