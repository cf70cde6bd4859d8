package leader_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/k3s"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/jensholdgaard/auctionhouse/internal/config"
	"github.com/jensholdgaard/auctionhouse/internal/leader"
)

func k3sClient(t *testing.T, ctx context.Context) kubernetes.Interface {
	t.Helper()
	ctr, err := k3s.Run(ctx, "rancher/k3s:v1.31.6-k3s1")
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err, "starting k3s container")

	kubeConfig, err := ctr.GetKubeConfig(ctx)
	require.NoError(t, err)
	restCfg, err := clientcmd.RESTConfigFromKubeConfig(kubeConfig)
	require.NoError(t, err)
	client, err := kubernetes.NewForConfig(restCfg)
	require.NoError(t, err)
	return client
}

// Two replicas share one Lease: the second only leads after the first
// steps down.
func TestElector_HandoverK3s(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping k3s integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()
	client := k3sClient(t, ctx)

	cfg := config.LeaderElectionConfig{
		Enabled:        true,
		LeaseName:      "auctionhouse-test-leader",
		LeaseNamespace: "default",
		LeaseDuration:  5 * time.Second,
		RenewDeadline:  3 * time.Second,
		RetryPeriod:    time.Second,
	}
	first := leader.NewElectorWithIdentity(client, cfg, "replica-a", slog.Default())
	second := leader.NewElectorWithIdentity(client, cfg, "replica-b", slog.Default())

	firstCtx, stopFirst := context.WithCancel(ctx)
	firstLed := make(chan struct{})
	firstDone := make(chan error, 1)
	go func() {
		firstDone <- first.Run(firstCtx, func(lctx context.Context) {
			close(firstLed)
			<-lctx.Done()
		})
	}()

	select {
	case <-firstLed:
	case <-time.After(30 * time.Second):
		t.Fatal("timed out waiting for replica-a to lead")
	}

	secondLed := make(chan struct{})
	secondDone := make(chan error, 1)
	go func() {
		secondDone <- second.Campaign(ctx, func(lctx context.Context) {
			close(secondLed)
			<-lctx.Done()
		})
	}()

	// replica-b must wait while replica-a renews.
	select {
	case <-secondLed:
		t.Fatal("replica-b led while replica-a held the lease")
	case <-time.After(3 * cfg.RetryPeriod):
	}
	require.True(t, first.IsLeader())
	require.False(t, second.IsLeader())

	stopFirst()
	require.NoError(t, <-firstDone)

	select {
	case <-secondLed:
	case <-time.After(30 * time.Second):
		t.Fatal("timed out waiting for replica-b to take over")
	}
	require.True(t, second.IsLeader())

	cancel()
	select {
	case err := <-secondDone:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for Campaign to return")
	}
}
