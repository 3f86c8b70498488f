package statemachine

import "github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/models"

// Table maps a status to the statuses reachable from it in one step
type Table map[models.Status][]models.Status

// Allows reports whether from -> to is an edge of the table
func (t Table) Allows(from, to models.Status) bool {
	for _, next := range t[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Next returns the statuses reachable from s
func (t Table) Next(s models.Status) []models.Status {
	return t[s]
}

const (
	pending              = models.StatusPending
	confirmed            = models.StatusConfirmed
	preparing            = models.StatusPreparing
	prepared             = models.StatusPrepared
	readyForPickup       = models.StatusReadyForPickup
	dispatched           = models.StatusDispatched
	reachedRestaurant    = models.StatusReachedRestaurant
	pickedUp             = models.StatusPickedUp
	onTheWay             = models.StatusOnTheWay
	riderArrived         = models.StatusRiderArrived
	deliveryAttempted    = models.StatusDeliveryAttempted
	failedDelivery       = models.StatusFailedDelivery
	returnedToRestaurant = models.StatusReturnedToRestaurant
	delivered            = models.StatusDelivered
	ready                = models.StatusReady
	rejected             = models.StatusRejected
	cancelled            = models.StatusCancelled
)

var deliveryTable = Table{
	pending:              {confirmed, rejected, cancelled},
	confirmed:            {preparing, cancelled},
	preparing:            {prepared, cancelled},
	prepared:             {readyForPickup, cancelled},
	readyForPickup:       {dispatched, cancelled},
	dispatched:           {reachedRestaurant, pickedUp, cancelled},
	reachedRestaurant:    {pickedUp, cancelled},
	pickedUp:             {onTheWay, delivered},
	onTheWay:             {riderArrived, delivered, deliveryAttempted},
	riderArrived:         {delivered, deliveryAttempted},
	deliveryAttempted:    {onTheWay, delivered, failedDelivery},
	failedDelivery:       {returnedToRestaurant},
	returnedToRestaurant: {cancelled},
}

// picked_up ends a pickup order.
var pickupTable = Table{
	pending:   {confirmed, rejected, cancelled},
	confirmed: {preparing, cancelled},
	preparing: {ready, cancelled},
	ready:     {pickedUp, cancelled},
}

var dineInTable = Table{
	pending:   {confirmed, rejected, cancelled},
	confirmed: {preparing, cancelled},
	preparing: {ready, cancelled},
	ready:     {delivered},
}

var genericTable = Table{
	pending:   {confirmed, rejected, cancelled},
	confirmed: {preparing, ready, cancelled},
	preparing: {prepared, ready, cancelled},
	prepared:  {ready, cancelled},
	ready:     {delivered, pickedUp, cancelled},
	pickedUp:  {delivered},
}

// TableFor returns the transition table of a fulfillment mode. Unknown modes
// use the generic table.
func TableFor(mode models.FulfillmentMode) Table {
	switch mode {
	case models.ModeDelivery:
		return deliveryTable
	case models.ModePickup:
		return pickupTable
	case models.ModeDineIn, models.ModeCarOrder:
		return dineInTable
	default:
		return genericTable
	}
}

// IsTerminal reports whether s has no outbound edges in mode
func IsTerminal(mode models.FulfillmentMode, s models.Status) bool {
	switch s {
	case delivered, rejected, cancelled:
		return true
	case pickedUp:
		return mode == models.ModePickup
	}
	return false
}

// setsRider reports whether entering s in mode records the rider on the order
func setsRider(mode models.FulfillmentMode, s models.Status) bool {
	switch s {
	case dispatched, reachedRestaurant:
		return true
	case pickedUp:
		return mode == models.ModeDelivery
	}
	return false
}
