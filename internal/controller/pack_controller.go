// Package controller reconciles Pack custom resources: resolving a pack
// reference through internal/registry, compiling the resolved content
// into an internal/policy.Policy, and loading it into the running
// policy.Engine for every agent type the Pack names.
//
// Adapted from the teacher's AgentPolicyReconciler, which inlined
// ToolPermission/ToolConstraints lists directly on the CRD and compiled
// them (optionally through a Rego module) inside the reconcile loop. A
// Pack instead carries just a reference; the tool-permission rules live
// in the pack's own resolved content (internal/policy.Definition), so
// the controller's job shrinks to resolve -> parse -> compile -> load.
package controller

import (
	"context"
	"fmt"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	apimeta "k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log"

	packsv1alpha1 "github.com/assay-run/assay/api/v1alpha1"
	"github.com/assay-run/assay/internal/policy"
	"github.com/assay-run/assay/internal/registry"
)

// PackReconciler reconciles a Pack object.
type PackReconciler struct {
	client.Client
	Scheme *runtime.Scheme

	// PolicyEngine is the shared engine Packs load their compiled
	// policy into; it is also the one interception callers evaluate
	// against.
	PolicyEngine *policy.Engine

	// Resolver resolves a Pack's Reference into verified content.
	Resolver *registry.Resolver
}

// +kubebuilder:rbac:groups=packs.assay.run,resources=packs,verbs=get;list;watch;create;update;patch;delete
// +kubebuilder:rbac:groups=packs.assay.run,resources=packs/status,verbs=get;update;patch
// +kubebuilder:rbac:groups=packs.assay.run,resources=packs/finalizers,verbs=update

// Reconcile resolves the Pack's reference, compiles the result into a
// policy.Policy, and loads it into the engine for every named agent type.
func (r *PackReconciler) Reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
	logger := log.FromContext(ctx)

	var pack packsv1alpha1.Pack
	if err := r.Get(ctx, req.NamespacedName, &pack); err != nil {
		if apierrors.IsNotFound(err) {
			return ctrl.Result{}, nil
		}
		return ctrl.Result{}, fmt.Errorf("controller: get pack: %w", err)
	}

	if !pack.DeletionTimestamp.IsZero() {
		r.handleDeletion(&pack)
		return ctrl.Result{}, nil
	}

	resolved, err := r.Resolver.Resolve(ctx, pack.Spec.Reference)
	if err != nil {
		r.updateStatus(ctx, &pack, nil, fmt.Errorf("resolve: %w", err))
		return ctrl.Result{}, err
	}

	if pack.Spec.PinnedDigest != "" && resolved.Digest != pack.Spec.PinnedDigest {
		err := fmt.Errorf("controller: resolved digest %s does not match pinnedDigest %s", resolved.Digest, pack.Spec.PinnedDigest)
		r.updateStatus(ctx, &pack, resolved, err)
		return ctrl.Result{}, err
	}

	def, err := policy.ParseDefinition([]byte(resolved.Content))
	if err != nil {
		r.updateStatus(ctx, &pack, resolved, fmt.Errorf("parse: %w", err))
		return ctrl.Result{}, err
	}

	compiled, err := policy.NewPolicy(def)
	if err != nil {
		r.updateStatus(ctx, &pack, resolved, fmt.Errorf("compile: %w", err))
		return ctrl.Result{}, err
	}

	mode := policy.Enforcing
	if pack.Spec.Mode == packsv1alpha1.EnforcementModePermissive {
		mode = policy.Permissive
	}
	r.PolicyEngine.SetMode(mode)

	for _, agentType := range pack.Spec.AgentTypes {
		r.PolicyEngine.LoadPolicy(agentType, compiled)
	}
	logger.Info("loaded pack", "reference", pack.Spec.Reference, "agentTypes", pack.Spec.AgentTypes, "digest", resolved.Digest)

	r.updateStatus(ctx, &pack, resolved, nil)
	return ctrl.Result{}, nil
}

// handleDeletion removes the pack's compiled policy from every agent
// type it was loaded under.
func (r *PackReconciler) handleDeletion(pack *packsv1alpha1.Pack) {
	for _, agentType := range pack.Status.LoadedAgentTypes {
		r.PolicyEngine.RemovePolicy(agentType)
	}
}

// updateStatus records the outcome of a reconcile attempt on the Pack's status.
func (r *PackReconciler) updateStatus(ctx context.Context, pack *packsv1alpha1.Pack, resolved *registry.ResolvedPack, reconcileErr error) {
	now := metav1.Now()
	pack.Status.LastUpdated = &now
	pack.Status.ObservedGeneration = pack.Generation

	condition := metav1.Condition{
		Type:               "Ready",
		LastTransitionTime: now,
		ObservedGeneration: pack.Generation,
	}

	if reconcileErr != nil {
		condition.Status = metav1.ConditionFalse
		condition.Reason = "ReconcileFailed"
		condition.Message = reconcileErr.Error()
	} else {
		condition.Status = metav1.ConditionTrue
		condition.Reason = "Loaded"
		condition.Message = "pack resolved and loaded into policy engine"
		pack.Status.ResolvedDigest = resolved.Digest
		pack.Status.LoadedAgentTypes = pack.Spec.AgentTypes
	}

	apimeta.SetStatusCondition(&pack.Status.Conditions, condition)

	if err := r.Status().Update(ctx, pack); err != nil {
		log.FromContext(ctx).Error(err, "failed to update pack status")
	}
}

// SetupWithManager registers the reconciler with mgr.
func (r *PackReconciler) SetupWithManager(mgr ctrl.Manager) error {
	return ctrl.NewControllerManagedBy(mgr).
		For(&packsv1alpha1.Pack{}).
		Complete(r)
}
