// Package v1alpha1 contains API Schema definitions for the packs.assay.run
// v1alpha1 API group. A Pack binds a set of agent types to a resolved,
// signed policy pack reference, following the SELinux pattern applied to
// the agentic kernel.
package v1alpha1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// EDIT THIS FILE!  THIS IS SCAFFOLDING FOR YOU TO OWN!
// NOTE: json tags are required.  Any new fields you add must have json tags for the fields to be serialized.

// EnforcementMode controls how policy decisions are applied.
// +kubebuilder:validation:Enum=permissive;enforcing
type EnforcementMode string

const (
	// EnforcementModePermissive logs denials but allows all requests (for testing/rollout).
	EnforcementModePermissive EnforcementMode = "permissive"
	// EnforcementModeEnforcing actually blocks denied requests.
	EnforcementModeEnforcing EnforcementMode = "enforcing"
)

// PackSpec defines the desired state of Pack.
//
// Unlike the teacher's AgentPolicy, a Pack does not inline tool permission
// rules -- those live in the resolved pack's own policy document (the v2
// tools.allow/tools.deny/schemas shape internal/policy parses). The CRD
// only names which pack to resolve and which agent types it governs; the
// controller does the resolve-compile-load work.
type PackSpec struct {
	// INSERT ADDITIONAL SPEC FIELDS - desired state of cluster
	// Important: Run "make" to regenerate code after modifying this file

	// Reference identifies the pack to resolve: a bundled name, a
	// registry "name@version" reference, a local file path, or a BYOS
	// URL, in the same syntax internal/registry.ParseRef accepts.
	// +kubebuilder:validation:Required
	// +kubebuilder:validation:MinLength=1
	Reference string `json:"reference"`

	// PinnedDigest optionally pins the resolved content's digest; the
	// controller fails the reconcile if the resolved pack's digest
	// doesn't match.
	// +optional
	PinnedDigest string `json:"pinnedDigest,omitempty"`

	// AllowUnsigned permits loading a pack without a verifiable
	// signature. Defaults to false: packs must be signed.
	// +optional
	AllowUnsigned bool `json:"allowUnsigned,omitempty"`

	// AgentTypes is the list of agent types this pack's compiled policy
	// applies to.
	// +kubebuilder:validation:Required
	// +kubebuilder:validation:MinItems=1
	// +listType=set
	AgentTypes []string `json:"agentTypes"`

	// Mode is the enforcement mode the controller sets on the policy
	// engine when it loads this pack. The mode is engine-wide, not
	// per-pack: the most recently reconciled Pack's mode applies to every
	// loaded policy.
	// +kubebuilder:default=enforcing
	Mode EnforcementMode `json:"mode,omitempty"`
}

// PackStatus defines the observed state of Pack.
type PackStatus struct {
	// INSERT ADDITIONAL STATUS FIELD - define observed state of cluster
	// Important: Run "make" to regenerate code after modifying this file

	// ResolvedDigest is the content digest of the last successfully
	// resolved pack.
	// +optional
	ResolvedDigest string `json:"resolvedDigest,omitempty"`

	// LoadedAgentTypes is the set of agent types currently running this
	// pack's compiled policy in the engine.
	// +optional
	// +listType=set
	LoadedAgentTypes []string `json:"loadedAgentTypes,omitempty"`

	// LastUpdated is the timestamp of the last resolve/compile attempt.
	// +optional
	LastUpdated *metav1.Time `json:"lastUpdated,omitempty"`

	// Conditions represent the latest available observations of the pack's state.
	// +optional
	// +listType=map
	// +listMapKey=type
	Conditions []metav1.Condition `json:"conditions,omitempty"`

	// ObservedGeneration is the most recent generation observed by the controller.
	// +optional
	ObservedGeneration int64 `json:"observedGeneration,omitempty"`
}

// +kubebuilder:object:root=true
// +kubebuilder:subresource:status
// +kubebuilder:resource:shortName=pk
// +kubebuilder:printcolumn:name="Reference",type="string",JSONPath=".spec.reference"
// +kubebuilder:printcolumn:name="Mode",type="string",JSONPath=".spec.mode"
// +kubebuilder:printcolumn:name="Digest",type="string",JSONPath=".status.resolvedDigest"
// +kubebuilder:printcolumn:name="Age",type="date",JSONPath=".metadata.creationTimestamp"

// Pack is the Schema for the packs API. It names a policy pack reference
// and the agent types that should run its compiled policy.
type Pack struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   PackSpec   `json:"spec,omitempty"`
	Status PackStatus `json:"status,omitempty"`
}

// +kubebuilder:object:root=true

// PackList contains a list of Pack resources.
type PackList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []Pack `json:"items"`
}

func init() {
	SchemeBuilder.Register(&Pack{}, &PackList{})
}
