// Package statemachine validates order status transitions against the
// fulfillment mode's transition table and plans the resulting write.
//
// Planning is pure: Plan inspects an order and a request and returns the
// patch a store must apply plus the post-commit effects to run afterwards.
// Nothing here touches storage.
//
//	delivery: pending -> confirmed -> preparing -> prepared -> ready_for_pickup
//	          -> dispatched -> [reached_restaurant] -> picked_up -> on_the_way
//	          -> [rider_arrived] -> delivered
//	pickup:   pending -> confirmed -> preparing -> ready -> picked_up
//	dine-in:  pending -> confirmed -> preparing -> ready -> delivered
//
// Rejection is only reachable from pending; delivered, rejected and
// cancelled (and picked_up for pickup) are terminal.
package statemachine

import (
	"strings"
	"time"

	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/effects"
	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/errs"
	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/models"
	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/util"
)

const maxNoteLength = 500

// Request asks for one order to move to Target
type Request struct {
	Target  models.Status
	Actor   models.Actor
	RiderID string
	Note    string
	Reason  string
	Now     time.Time
}

// Transition is the outcome of planning. A NoOp transition writes nothing
// and runs no effects.
type Transition struct {
	NoOp    bool
	Patch   models.StatusPatch
	Effects []effects.Kind
}

// RequiredCapability returns the capability the request needs for order
func RequiredCapability(order *models.Order, req Request) string {
	if req.RiderID != "" && req.RiderID != order.RiderID {
		return models.PermAssignRider
	}
	return models.PermUpdateStatus
}

// Authorize checks that the actor may move this particular order
func Authorize(order *models.Order, req Request) error {
	actor := req.Actor

	switch {
	case actor.Role == models.RoleAdmin || actor.Role == models.RoleSystem:
		return nil

	case actor.Role == models.RoleCustomer:
		// customers may only withdraw their own order before the business accepts it
		if order.CustomerID == "" || order.CustomerID != actor.ActorID {
			return errs.Forbidden(errs.CodeWrongBusiness, "order %s does not belong to the caller", order.ID)
		}
		if req.Target != models.StatusCancelled || (order.Status != models.StatusPending && order.Status != models.StatusCancelled) {
			return errs.Forbidden(errs.CodeMissingCapability, "customers may only cancel pending orders")
		}
		return nil

	case actor.Role == models.RoleRider:
		if order.RiderID != "" && order.RiderID != actor.ActorID {
			return errs.Forbidden(errs.CodeWrongBusiness, "order %s is assigned to another rider", order.ID)
		}

	case actor.IsStaff():
		if actor.BusinessID != order.BusinessID {
			return errs.Forbidden(errs.CodeWrongBusiness, "order %s belongs to another business", order.ID)
		}

	default:
		return errs.Forbidden(errs.CodeMissingCapability, "role %q cannot update orders", actor.Role)
	}

	if perm := RequiredCapability(order, req); !actor.Can(perm) {
		return errs.Forbidden(errs.CodeMissingCapability, "missing capability %s", perm)
	}
	return nil
}

// Validate checks the edge from -> to for mode without looking at the actor
func Validate(mode models.FulfillmentMode, from, to models.Status) error {
	if !to.Valid() {
		return errs.Validation(errs.CodeInvalidInput, "unknown status %q", to)
	}
	if from == to {
		return nil
	}
	if IsTerminal(mode, from) {
		return errs.Conflict(errs.CodeInvalidTransition, "order is %s and cannot change", from)
	}
	if !TableFor(mode).Allows(from, to) {
		return errs.Conflict(errs.CodeInvalidTransition, "%s -> %s is not allowed for %s orders", from, to, modeName(mode))
	}
	return nil
}

// Plan validates the request against order and builds the patch to commit
func Plan(order *models.Order, req Request) (*Transition, error) {
	if err := Validate(order.FulfillmentMode, order.Status, req.Target); err != nil {
		return nil, err
	}
	if order.Status == req.Target {
		return &Transition{NoOp: true}, nil
	}

	if req.RiderID != "" && !setsRider(order.FulfillmentMode, req.Target) {
		return nil, errs.Validation(errs.CodeInvalidInput, "a rider can only be assigned when entering a dispatch state")
	}

	now := req.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	patch := models.StatusPatch{
		OrderID: order.ID,
		From:    order.Status,
		To:      req.Target,
		Entry: models.HistoryEntry{
			Status:    req.Target,
			Timestamp: now,
			ActorID:   req.Actor.ActorID,
			Role:      req.Actor.Role,
			Note:      util.Truncate(strings.TrimSpace(req.Note), maxNoteLength),
		},
		UpdatedAt: now,
	}

	switch req.Target {
	case models.StatusRejected:
		patch.RejectionReason = util.Truncate(strings.TrimSpace(req.Reason), maxNoteLength)
		if patch.RejectionReason == "" {
			patch.RejectionReason = "rejected by business"
		}
	case models.StatusDelivered:
		patch.DeliveredAt = &now
	}

	if setsRider(order.FulfillmentMode, req.Target) {
		switch {
		case req.RiderID != "":
			patch.RiderID = req.RiderID
		case req.Actor.Role == models.RoleRider && order.RiderID == "":
			patch.RiderID = req.Actor.ActorID
		}
	}

	return &Transition{
		Patch:   patch,
		Effects: []effects.Kind{effects.KindTrackingSnapshot, effects.KindPublish, effects.KindInvalidateCache},
	}, nil
}

func modeName(mode models.FulfillmentMode) string {
	if mode == "" {
		return "generic"
	}
	return string(mode)
}
