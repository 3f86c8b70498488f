package statemachine

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/errs"
	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/models"
)

var allModes = []models.FulfillmentMode{
	models.ModeDelivery, models.ModePickup, models.ModeDineIn, models.ModeCarOrder, "",
}

func owner() models.Actor {
	return models.Actor{
		ActorID:     "owner-1",
		BusinessID:  "biz-1",
		Role:        models.RoleOwner,
		Permissions: []string{models.PermUpdateStatus, models.PermAssignRider},
	}
}

func order(mode models.FulfillmentMode, status models.Status) *models.Order {
	return &models.Order{
		ID:              "ord-1",
		BusinessID:      "biz-1",
		CustomerID:      "cust-1",
		FulfillmentMode: mode,
		Status:          status,
	}
}

func TestPlanAcceptsOnlyTableEdges(t *testing.T) {
	for _, mode := range allModes {
		table := TableFor(mode)
		for _, from := range models.AllStatuses {
			for _, to := range models.AllStatuses {
				if from == to {
					continue
				}
				_, err := Plan(order(mode, from), Request{Target: to, Actor: owner()})
				if table.Allows(from, to) && !IsTerminal(mode, from) {
					assert.NoError(t, err, "%s: %s -> %s", mode, from, to)
				} else {
					assert.ErrorIs(t, err, errs.ErrConflict, "%s: %s -> %s", mode, from, to)
				}
			}
		}
	}
}

func TestTerminalStatusesHaveNoEdges(t *testing.T) {
	for _, mode := range allModes {
		for _, s := range models.AllStatuses {
			if IsTerminal(mode, s) {
				assert.Empty(t, TableFor(mode).Next(s), "%s: %s", mode, s)
			}
		}
	}
}

func TestRejectionOnlyFromPending(t *testing.T) {
	for _, mode := range allModes {
		for from, next := range TableFor(mode) {
			for _, to := range next {
				if to == models.StatusRejected {
					assert.Equal(t, models.StatusPending, from, "mode %s", mode)
				}
			}
		}
	}
}

func TestSameStateIsNoOp(t *testing.T) {
	tr, err := Plan(order(models.ModeDelivery, models.StatusPreparing), Request{Target: models.StatusPreparing, Actor: owner()})
	require.NoError(t, err)
	assert.True(t, tr.NoOp)
	assert.Empty(t, tr.Effects)

	tr, err = Plan(order(models.ModeDelivery, models.StatusDelivered), Request{Target: models.StatusDelivered, Actor: owner()})
	require.NoError(t, err)
	assert.True(t, tr.NoOp)
}

func TestUnknownTargetIsValidationError(t *testing.T) {
	_, err := Plan(order(models.ModeDelivery, models.StatusPending), Request{Target: "teleported", Actor: owner()})
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestPickupEndsAtPickedUp(t *testing.T) {
	_, err := Plan(order(models.ModePickup, models.StatusPickedUp), Request{Target: models.StatusDelivered, Actor: owner()})
	assert.ErrorIs(t, err, errs.ErrConflict)
	assert.Equal(t, errs.CodeInvalidTransition, errs.CodeOf(err))

	_, err = Plan(order(models.ModeDelivery, models.StatusPickedUp), Request{Target: models.StatusDelivered, Actor: owner()})
	assert.NoError(t, err)
}

func TestPlanBuildsPatch(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	o := order(models.ModeDelivery, models.StatusReadyForPickup)

	tr, err := Plan(o, Request{Target: models.StatusDispatched, Actor: owner(), RiderID: "rider-7", Note: "  fast  ", Now: now})
	require.NoError(t, err)
	assert.False(t, tr.NoOp)
	assert.Equal(t, models.StatusReadyForPickup, tr.Patch.From)
	assert.Equal(t, models.StatusDispatched, tr.Patch.To)
	assert.Equal(t, "rider-7", tr.Patch.RiderID)
	assert.Equal(t, "fast", tr.Patch.Entry.Note)
	assert.Equal(t, "owner-1", tr.Patch.Entry.ActorID)
	assert.Equal(t, now, tr.Patch.Entry.Timestamp)
	assert.Len(t, tr.Effects, 3)

	tr.Patch.ApplyTo(o)
	assert.Equal(t, models.StatusDispatched, o.Status)
	assert.Equal(t, "rider-7", o.RiderID)
	assert.Len(t, o.StatusHistory, 1)
}

func TestPlanRecordsRiderActor(t *testing.T) {
	rider := models.Actor{ActorID: "rider-9", Role: models.RoleRider, Permissions: []string{models.PermUpdateStatus}}
	tr, err := Plan(order(models.ModeDelivery, models.StatusReadyForPickup), Request{Target: models.StatusDispatched, Actor: rider})
	require.NoError(t, err)
	assert.Equal(t, "rider-9", tr.Patch.RiderID)
}

func TestPlanRejectsRiderOutsideDispatch(t *testing.T) {
	_, err := Plan(order(models.ModeDelivery, models.StatusPending), Request{Target: models.StatusConfirmed, Actor: owner(), RiderID: "rider-1"})
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestPlanSetsRejectionAndDelivery(t *testing.T) {
	tr, err := Plan(order(models.ModePickup, models.StatusPending), Request{Target: models.StatusRejected, Actor: owner()})
	require.NoError(t, err)
	assert.Equal(t, "rejected by business", tr.Patch.RejectionReason)

	tr, err = Plan(order(models.ModeDineIn, models.StatusReady), Request{Target: models.StatusDelivered, Actor: owner()})
	require.NoError(t, err)
	require.NotNil(t, tr.Patch.DeliveredAt)
}

func TestPlanTruncatesOnRuneBoundary(t *testing.T) {
	long := strings.Repeat("a", maxNoteLength-1) + "é"

	tr, err := Plan(order(models.ModeDelivery, models.StatusPending), Request{Target: models.StatusConfirmed, Actor: owner(), Note: long})
	require.NoError(t, err)
	assert.Len(t, tr.Patch.Entry.Note, maxNoteLength-1)
	assert.True(t, utf8.ValidString(tr.Patch.Entry.Note))

	tr, err = Plan(order(models.ModePickup, models.StatusPending), Request{Target: models.StatusRejected, Actor: owner(), Reason: long})
	require.NoError(t, err)
	assert.True(t, utf8.ValidString(tr.Patch.RejectionReason))
	assert.Len(t, tr.Patch.RejectionReason, maxNoteLength-1)
}

func TestAuthorize(t *testing.T) {
	staffNoCaps := models.Actor{ActorID: "s-1", BusinessID: "biz-1", Role: models.RoleStaff}
	otherBiz := owner()
	otherBiz.BusinessID = "biz-2"
	rider := models.Actor{ActorID: "rider-1", Role: models.RoleRider, Permissions: []string{models.PermUpdateStatus}}
	customer := models.Actor{ActorID: "cust-1", Role: models.RoleCustomer}
	stranger := models.Actor{ActorID: "cust-2", Role: models.RoleCustomer}

	assigned := order(models.ModeDelivery, models.StatusDispatched)
	assigned.RiderID = "rider-2"

	tests := []struct {
		name  string
		order *models.Order
		req   Request
		code  string
	}{
		{"owner confirms", order(models.ModeDelivery, models.StatusPending), Request{Target: models.StatusConfirmed, Actor: owner()}, ""},
		{"admin anywhere", order(models.ModeDelivery, models.StatusPending), Request{Target: models.StatusConfirmed, Actor: models.Actor{ActorID: "a", Role: models.RoleAdmin}}, ""},
		{"staff without capability", order(models.ModeDelivery, models.StatusPending), Request{Target: models.StatusConfirmed, Actor: staffNoCaps}, errs.CodeMissingCapability},
		{"owner of other business", order(models.ModeDelivery, models.StatusPending), Request{Target: models.StatusConfirmed, Actor: otherBiz}, errs.CodeWrongBusiness},
		{"rider assigning needs assign capability", order(models.ModeDelivery, models.StatusReadyForPickup), Request{Target: models.StatusDispatched, Actor: rider, RiderID: "rider-3"}, errs.CodeMissingCapability},
		{"rider takes unassigned order", order(models.ModeDelivery, models.StatusReadyForPickup), Request{Target: models.StatusDispatched, Actor: rider}, ""},
		{"rider on someone else's order", assigned, Request{Target: models.StatusPickedUp, Actor: rider}, errs.CodeWrongBusiness},
		{"customer cancels own pending", order(models.ModePickup, models.StatusPending), Request{Target: models.StatusCancelled, Actor: customer}, ""},
		{"customer cancels confirmed", order(models.ModePickup, models.StatusConfirmed), Request{Target: models.StatusCancelled, Actor: customer}, errs.CodeMissingCapability},
		{"customer confirms", order(models.ModePickup, models.StatusPending), Request{Target: models.StatusConfirmed, Actor: customer}, errs.CodeMissingCapability},
		{"customer cancels foreign order", order(models.ModePickup, models.StatusPending), Request{Target: models.StatusCancelled, Actor: stranger}, errs.CodeWrongBusiness},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Authorize(tt.order, tt.req)
			if tt.code == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, errs.ErrForbidden)
			assert.Equal(t, tt.code, errs.CodeOf(err))
		})
	}
}
