package identity

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/errs"
	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/models"
)

func TestHeaderResolver(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set(HeaderActorID, "staff-1")
	req.Header.Set(HeaderBusinessID, "biz-1")
	req.Header.Set(HeaderRole, "Manager")
	req.Header.Set(HeaderPermissions, "order:update_status, order:view,")

	actor, err := NewHeaderResolver().Resolve(req)
	require.NoError(t, err)
	assert.Equal(t, "staff-1", actor.ActorID)
	assert.Equal(t, "biz-1", actor.BusinessID)
	assert.Equal(t, models.RoleManager, actor.Role)
	assert.Equal(t, []string{models.PermUpdateStatus, models.PermViewOrders}, actor.Permissions)
}

func TestHeaderResolverRejects(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	_, err := NewHeaderResolver().Resolve(req)
	assert.ErrorIs(t, err, errs.ErrUnauthorized)

	req.Header.Set(HeaderActorID, "x")
	req.Header.Set(HeaderRole, models.RoleSystem)
	_, err = NewHeaderResolver().Resolve(req)
	assert.ErrorIs(t, err, errs.ErrUnauthorized)
}

func TestHeaderResolverDefaultsToCustomer(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set(HeaderActorID, "cust-1")
	actor, err := NewHeaderResolver().Resolve(req)
	require.NoError(t, err)
	assert.Equal(t, models.RoleCustomer, actor.Role)
}

func TestActorCustomerResolver(t *testing.T) {
	r := NewActorCustomerResolver()
	ctx := context.Background()

	c, err := r.ResolveCustomer(ctx, "biz-1", models.Actor{ActorID: "cust-1", Role: models.RoleCustomer}, CustomerRef{})
	require.NoError(t, err)
	assert.Equal(t, "cust-1", c.CustomerID)
	assert.Equal(t, "cust-1", c.ID())

	staff := models.Actor{ActorID: "staff-1", Role: models.RoleStaff}
	a, err := r.ResolveCustomer(ctx, "biz-1", staff, CustomerRef{Phone: "+91 98765-43210"})
	require.NoError(t, err)
	b, err := r.ResolveCustomer(ctx, "biz-1", staff, CustomerRef{Phone: "919876543210"})
	require.NoError(t, err)
	assert.Empty(t, a.CustomerID)
	assert.Equal(t, a.GuestID, b.GuestID)

	other, err := r.ResolveCustomer(ctx, "biz-2", staff, CustomerRef{Phone: "919876543210"})
	require.NoError(t, err)
	assert.NotEqual(t, a.GuestID, other.GuestID)

	anon1, _ := r.ResolveCustomer(ctx, "biz-1", models.Actor{}, CustomerRef{})
	anon2, _ := r.ResolveCustomer(ctx, "biz-1", models.Actor{}, CustomerRef{})
	assert.NotEqual(t, anon1.GuestID, anon2.GuestID)
}
