// Copyright 2025 The Workspaced Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package namespace

import (
	"context"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"
)

const (
	quotaName = "workspace-quota"

	denyAllPolicy       = "workspace-deny-all"
	allowIngressPolicy  = "workspace-allow-ingress"
	allowEgressPolicy   = "workspace-allow-egress"
	metadataNameLabel   = "kubernetes.io/metadata.name"
	dnsNamespaceDefault = "kube-system"
)

// Hardening restricts namespaces created for a single workspace.
type Hardening struct {
	// Quota is applied as a ResourceQuota when not empty.
	Quota corev1.ResourceList

	// NetworkPolicies enables default-deny isolation with selective allow rules.
	NetworkPolicies bool

	// IngressNamespaces may reach workspace pods (ingress controller, platform).
	IngressNamespaces []string
}

// Harden applies h to the namespace. Existing objects are updated in place.
func (n *Namespace) Harden(ctx context.Context, h Hardening) error {
	if len(h.Quota) > 0 {
		if err := n.EnsureResourceQuota(ctx, h.Quota); err != nil {
			return err
		}
	}
	if h.NetworkPolicies {
		if err := n.EnsureNetworkPolicies(ctx, h.IngressNamespaces); err != nil {
			return err
		}
	}
	return nil
}

// EnsureResourceQuota creates or updates the namespace resource quota.
func (n *Namespace) EnsureResourceQuota(ctx context.Context, hard corev1.ResourceList) error {
	quota := &corev1.ResourceQuota{
		ObjectMeta: metav1.ObjectMeta{
			Name:      quotaName,
			Namespace: n.name,
		},
	}

	_, err := controllerutil.CreateOrUpdate(ctx, n.client, quota, func() error {
		quota.Spec.Hard = hard.DeepCopy()
		putLabel(quota, ManagedByLabel, managedByValue)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to ensure resource quota: %w", err)
	}
	return nil
}

// EnsureNetworkPolicies isolates the namespace: everything is denied except
// traffic between its own pods, ingress from ingressNamespaces, DNS and HTTPS egress.
func (n *Namespace) EnsureNetworkPolicies(ctx context.Context, ingressNamespaces []string) error {
	if err := n.ensurePolicy(ctx, denyAllPolicy, func(policy *networkingv1.NetworkPolicy) {
		// Empty rules with both policy types deny all traffic
		policy.Spec.PolicyTypes = []networkingv1.PolicyType{
			networkingv1.PolicyTypeIngress,
			networkingv1.PolicyTypeEgress,
		}
		policy.Spec.Ingress = []networkingv1.NetworkPolicyIngressRule{}
		policy.Spec.Egress = []networkingv1.NetworkPolicyEgressRule{}
	}); err != nil {
		return fmt.Errorf("failed to ensure default deny policy: %w", err)
	}

	if err := n.ensurePolicy(ctx, allowIngressPolicy, func(policy *networkingv1.NetworkPolicy) {
		policy.Spec.PolicyTypes = []networkingv1.PolicyType{networkingv1.PolicyTypeIngress}
		peers := []networkingv1.NetworkPolicyPeer{{PodSelector: &metav1.LabelSelector{}}}
		for _, ns := range ingressNamespaces {
			peers = append(peers, networkingv1.NetworkPolicyPeer{
				NamespaceSelector: &metav1.LabelSelector{
					MatchLabels: map[string]string{metadataNameLabel: ns},
				},
			})
		}
		policy.Spec.Ingress = []networkingv1.NetworkPolicyIngressRule{{From: peers}}
	}); err != nil {
		return fmt.Errorf("failed to ensure allow ingress policy: %w", err)
	}

	if err := n.ensurePolicy(ctx, allowEgressPolicy, func(policy *networkingv1.NetworkPolicy) {
		policy.Spec.PolicyTypes = []networkingv1.PolicyType{networkingv1.PolicyTypeEgress}

		tcp := corev1.ProtocolTCP
		udp := corev1.ProtocolUDP
		port53 := intstr.FromInt32(53)
		port443 := intstr.FromInt32(443)

		policy.Spec.Egress = []networkingv1.NetworkPolicyEgressRule{
			{
				To: []networkingv1.NetworkPolicyPeer{{
					NamespaceSelector: &metav1.LabelSelector{
						MatchLabels: map[string]string{metadataNameLabel: dnsNamespaceDefault},
					},
				}},
				Ports: []networkingv1.NetworkPolicyPort{
					{Protocol: &udp, Port: &port53},
					{Protocol: &tcp, Port: &port53},
				},
			},
			{
				Ports: []networkingv1.NetworkPolicyPort{{Protocol: &tcp, Port: &port443}},
			},
			{
				// Pods of one workspace talk to each other on any port
				To: []networkingv1.NetworkPolicyPeer{{PodSelector: &metav1.LabelSelector{}}},
			},
		}
	}); err != nil {
		return fmt.Errorf("failed to ensure allow egress policy: %w", err)
	}
	return nil
}

func (n *Namespace) ensurePolicy(ctx context.Context, name string, mutate func(*networkingv1.NetworkPolicy)) error {
	policy := &networkingv1.NetworkPolicy{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: n.name,
		},
	}
	_, err := controllerutil.CreateOrUpdate(ctx, n.client, policy, func() error {
		policy.Spec.PodSelector = metav1.LabelSelector{}
		mutate(policy)
		putLabel(policy, ManagedByLabel, managedByValue)
		return nil
	})
	return err
}
