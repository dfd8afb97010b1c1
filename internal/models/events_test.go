package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBeaconDeliveryOutcome(t *testing.T) {
	tests := []struct {
		name     string
		delivery BeaconDelivery
		want     string
		ok       bool
	}{
		{"ok", BeaconDelivery{StatusCode: 204}, "ok", true},
		{"redirect", BeaconDelivery{StatusCode: 302}, "non_2xx", false},
		{"server error", BeaconDelivery{StatusCode: 500}, "non_2xx", false},
		{"transport error", BeaconDelivery{Error: "connection refused"}, "error", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.delivery.Outcome())
			assert.Equal(t, tt.ok, tt.delivery.Succeeded())
		})
	}
}
