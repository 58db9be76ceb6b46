package main

import (
	"fmt"
	"net"

	"github.com/spf13/cobra"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	packsv1alpha1 "github.com/assay-run/assay/api/v1alpha1"
	"github.com/assay-run/assay/internal/controller"
	"github.com/assay-run/assay/internal/decision"
	"github.com/assay-run/assay/internal/policy"
	"github.com/assay-run/assay/internal/registry"
	"github.com/assay-run/assay/internal/router"
	"github.com/assay-run/assay/internal/trust"

	"k8s.io/apimachinery/pkg/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
)

// serveOptions holds the serve command's flags.
type serveOptions struct {
	listenAddr    string
	decisionLog   string
	allowUnsigned bool
}

// newServeCmd runs the tool-call interception server: a Pack controller
// watching for Pack resources in the background, and a gRPC front door
// (internal/router) evaluating every tool call against the policy engine
// the controller keeps loaded.
//
// Adapted from the teacher's RouterPolicyIntegration.StartController,
// which started its controller-runtime manager from inside the router
// package itself; here the two are peers sharing one policy.Engine,
// wired together at the command layer instead.
func newServeCmd() *cobra.Command {
	opts := &serveOptions{listenAddr: ":8443"}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the tool-call interception server and Pack controller",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.listenAddr, "listen", opts.listenAddr, "address the tool-call interception server listens on")
	cmd.Flags().StringVar(&opts.decisionLog, "decision-log", "", "path to append decision events (C12) as NDJSON; empty discards them")
	cmd.Flags().BoolVar(&opts.allowUnsigned, "allow-unsigned", false, "permit loading packs without a verifiable signature")

	return cmd
}

func runServe(cmd *cobra.Command, opts *serveOptions) error {
	ctrl.SetLogger(zap.New(zap.UseDevMode(true)))

	scheme := runtime.NewScheme()
	if err := clientgoscheme.AddToScheme(scheme); err != nil {
		return fmt.Errorf("serve: register client-go scheme: %w", err)
	}
	if err := packsv1alpha1.AddToScheme(scheme); err != nil {
		return fmt.Errorf("serve: register packs scheme: %w", err)
	}

	mgr, err := ctrl.NewManager(ctrl.GetConfigOrDie(), ctrl.Options{
		Scheme: scheme,
	})
	if err != nil {
		return fmt.Errorf("serve: create manager: %w", err)
	}

	var emitter decision.Emitter = decision.NullEmitter{}
	if opts.decisionLog != "" {
		fileEmitter, err := decision.NewFileEmitter(opts.decisionLog)
		if err != nil {
			return fmt.Errorf("serve: open decision log: %w", err)
		}
		defer fileEmitter.Close()
		emitter = fileEmitter
	}

	engine := policy.NewEngine(policy.WithMode(policy.Enforcing))

	resolverConfig := registry.DefaultResolverConfig()
	resolverConfig.AllowUnsigned = opts.allowUnsigned
	resolver, err := registry.NewResolverWithConfig(resolverConfig, trust.New())
	if err != nil {
		return fmt.Errorf("serve: create resolver: %w", err)
	}

	reconciler := &controller.PackReconciler{
		Client:       mgr.GetClient(),
		Scheme:       mgr.GetScheme(),
		PolicyEngine: engine,
		Resolver:     resolver,
	}
	if err := reconciler.SetupWithManager(mgr); err != nil {
		return fmt.Errorf("serve: setup pack controller: %w", err)
	}

	lis, err := net.Listen("tcp", opts.listenAddr)
	if err != nil {
		return fmt.Errorf("serve: listen on %s: %w", opts.listenAddr, err)
	}

	// No ToolExecutor wired yet: tool calls the policy allows are
	// reported allowed but fail dispatch until a sandbox runtime is
	// plugged in via server.SetToolExecutor.
	server := router.NewServerWithEngine(engine, emitter, nil)

	ctx := cmd.Context()
	errCh := make(chan error, 1)
	go func() {
		errCh <- mgr.Start(ctx)
	}()

	go func() {
		<-ctx.Done()
		server.GracefulStop()
	}()

	fmt.Fprintf(cmd.OutOrStdout(), "tool-call interception server listening on %s\n", opts.listenAddr)
	if err := server.Serve(lis); err != nil {
		return fmt.Errorf("serve: router server: %w", err)
	}
	return <-errCh
}
