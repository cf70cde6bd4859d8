// Package leader provides Kubernetes Lease-based leader election so that
// only one replica runs the expiry and retention sweeps.
package leader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/leaderelection"
	"k8s.io/client-go/tools/leaderelection/resourcelock"

	"github.com/jensholdgaard/auctionhouse/internal/config"
)

const (
	defaultLeaseName      = "auctionhouse-scheduler"
	defaultLeaseNamespace = "default"
	defaultLeaseDuration  = 15 * time.Second
	defaultRenewDeadline  = 10 * time.Second
	defaultRetryPeriod    = 2 * time.Second
)

// withDefaults fills unset timings and names.
func withDefaults(cfg config.LeaderElectionConfig) config.LeaderElectionConfig {
	if cfg.LeaseName == "" {
		cfg.LeaseName = defaultLeaseName
	}
	if cfg.LeaseNamespace == "" {
		cfg.LeaseNamespace = defaultLeaseNamespace
	}
	if cfg.LeaseDuration <= 0 {
		cfg.LeaseDuration = defaultLeaseDuration
	}
	if cfg.RenewDeadline <= 0 {
		cfg.RenewDeadline = defaultRenewDeadline
	}
	if cfg.RetryPeriod <= 0 {
		cfg.RetryPeriod = defaultRetryPeriod
	}
	return cfg
}

// identity is POD_NAME when set, otherwise the hostname.
func identity() string {
	if name := os.Getenv("POD_NAME"); name != "" {
		return name
	}
	host, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return host
}

// InClusterClient builds a clientset from the pod's service account.
func InClusterClient() (kubernetes.Interface, error) {
	cfg, err := rest.InClusterConfig()
	if err != nil {
		return nil, fmt.Errorf("building in-cluster config: %w", err)
	}
	client, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating kubernetes client: %w", err)
	}
	return client, nil
}

// Elector campaigns for a single Lease.
type Elector struct {
	client   kubernetes.Interface
	cfg      config.LeaderElectionConfig
	identity string
	logger   *slog.Logger
	leading  atomic.Bool
}

// NewElector returns an Elector identified by POD_NAME or the hostname.
func NewElector(client kubernetes.Interface, cfg config.LeaderElectionConfig, logger *slog.Logger) *Elector {
	return NewElectorWithIdentity(client, cfg, identity(), logger)
}

// NewElectorWithIdentity returns an Elector with an explicit identity.
func NewElectorWithIdentity(client kubernetes.Interface, cfg config.LeaderElectionConfig, id string, logger *slog.Logger) *Elector {
	return &Elector{
		client:   client,
		cfg:      withDefaults(cfg),
		identity: id,
		logger:   logger,
	}
}

// Identity returns the holder identity written to the Lease.
func (e *Elector) Identity() string { return e.identity }

// IsLeader reports whether this replica currently holds the Lease.
func (e *Elector) IsLeader() bool { return e.leading.Load() }

// Run campaigns once. lead is called with a context that is canceled when
// leadership is lost; Run returns after that, or when ctx is done.
func (e *Elector) Run(ctx context.Context, lead func(ctx context.Context)) error {
	elector, err := leaderelection.NewLeaderElector(leaderelection.LeaderElectionConfig{
		Lock: &resourcelock.LeaseLock{
			LeaseMeta: metav1.ObjectMeta{
				Name:      e.cfg.LeaseName,
				Namespace: e.cfg.LeaseNamespace,
			},
			Client: e.client.CoordinationV1(),
			LockConfig: resourcelock.ResourceLockConfig{
				Identity: e.identity,
			},
		},
		LeaseDuration:   e.cfg.LeaseDuration,
		RenewDeadline:   e.cfg.RenewDeadline,
		RetryPeriod:     e.cfg.RetryPeriod,
		ReleaseOnCancel: true,
		Name:            e.cfg.LeaseName,
		Callbacks: leaderelection.LeaderCallbacks{
			OnStartedLeading: func(lctx context.Context) {
				e.leading.Store(true)
				e.logger.InfoContext(lctx, "acquired leadership", slog.String("identity", e.identity))
				lead(lctx)
			},
			OnStoppedLeading: func() {
				e.leading.Store(false)
				e.logger.Info("stopped leading", slog.String("identity", e.identity))
			},
			OnNewLeader: func(newID string) {
				if newID == e.identity {
					return
				}
				e.logger.InfoContext(ctx, "new leader elected", slog.String("leader", newID))
			},
		},
	})
	if err != nil {
		return fmt.Errorf("configuring leader election: %w", err)
	}

	e.logger.InfoContext(ctx, "starting leader election",
		slog.String("identity", e.identity),
		slog.String("lease", e.cfg.LeaseName),
		slog.String("namespace", e.cfg.LeaseNamespace),
	)
	elector.Run(ctx)
	return nil
}

// Campaign keeps running terms until ctx is done, so a replica that loses
// the Lease goes back to waiting for it.
func (e *Elector) Campaign(ctx context.Context, lead func(ctx context.Context)) error {
	for ctx.Err() == nil {
		if err := e.Run(ctx, lead); err != nil {
			return err
		}
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return nil
	}
	return ctx.Err()
}
