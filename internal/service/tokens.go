package service

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/models"
)

// seatingPrefix is the letter shown on shared-seating tokens
func seatingPrefix(mode models.FulfillmentMode) string {
	if mode == models.ModeCarOrder {
		return "C"
	}
	return "D"
}

// SeatingToken formats a sequence value as a short human-facing code, e.g. D-042
func SeatingToken(mode models.FulfillmentMode, seq int64) string {
	n := seq % 1000
	if n < 0 {
		n = -n
	}
	return fmt.Sprintf("%s-%03d", seatingPrefix(mode), n)
}

func newOrderID() string {
	return "ord_" + compactUUID()
}

func newTabID() string {
	return "tab_" + compactUUID()
}

func newTrackingToken() string {
	return compactUUID()
}

func compactUUID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}
