package bus

import (
	"strings"

	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/models"
)

// Channel kinds
const (
	KindBusiness = "business"
	KindRider    = "rider"
	KindOrder    = "order"
	KindCustomer = "customer"
	KindTab      = "tab"
	KindTrack    = "track"
)

func BusinessChannel(id string) string { return KindBusiness + ":" + id }
func RiderChannel(id string) string    { return KindRider + ":" + id }
func OrderChannel(id string) string    { return KindOrder + ":" + id }
func CustomerChannel(id string) string { return KindCustomer + ":" + id }
func TabChannel(id string) string      { return KindTab + ":" + id }
func TrackChannel(token string) string { return KindTrack + ":" + token }

// ParseChannel splits a channel name into its kind and id
func ParseChannel(name string) (kind, id string, ok bool) {
	kind, id, found := strings.Cut(name, ":")
	if !found || id == "" {
		return "", "", false
	}
	switch kind {
	case KindBusiness, KindRider, KindOrder, KindCustomer, KindTab, KindTrack:
		return kind, id, true
	}
	return "", "", false
}

// OrderChannels lists every channel interested in changes to o
func OrderChannels(o *models.Order) []string {
	channels := []string{BusinessChannel(o.BusinessID), OrderChannel(o.ID)}
	if o.CustomerID != "" {
		channels = append(channels, CustomerChannel(o.CustomerID))
	}
	if o.RiderID != "" {
		channels = append(channels, RiderChannel(o.RiderID))
	}
	if o.TabID != "" {
		channels = append(channels, TabChannel(o.TabID))
	}
	if o.TrackingToken != "" {
		channels = append(channels, TrackChannel(o.TrackingToken))
	}
	return channels
}
