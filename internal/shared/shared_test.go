package shared

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestActorDefaultsToSystem(t *testing.T) {
	ctx := context.Background()
	require.Equal(t, "system", ActorFromContext(ctx))
	require.Equal(t, "u-1", ActorFromContext(ContextWithActor(ctx, "u-1")))
}

func TestNoticesAreDismissable(t *testing.T) {
	n := ErrorNotice("Backend unreachable")
	require.Equal(t, "error", n.Kind)
	require.True(t, n.Dismissable)
	require.Equal(t, int64(10*time.Second/time.Millisecond), n.TimeoutMS)
	require.Equal(t, "success", SuccessNotice("Saved").Kind)
}

func TestAuditLogValidate(t *testing.T) {
	require.Error(t, AuditLog{Action: "purchase_order.create"}.Validate())
	require.NoError(t, AuditLog{Action: "purchase_order.create", Entity: "purchase_order", EntityID: "po-1"}.Validate())
}

func TestNilStoresReportUnavailable(t *testing.T) {
	ctx := context.Background()

	var store *IdempotencyStore
	require.ErrorIs(t, store.Reserve(ctx, "k", "purchasing.create"), ErrUnavailable)
	ref, err := store.Lookup(ctx, "k")
	require.NoError(t, err)
	require.Empty(t, ref)
	n, err := store.Cleanup(ctx, time.Hour)
	require.NoError(t, err)
	require.Zero(t, n)

	var audit *AuditLogger
	require.ErrorIs(t, audit.Record(ctx, AuditLog{}), ErrUnavailable)
}
