package model

import (
	"fmt"
	"time"
)

// Member is a cached member record. RFIDToken is empty when the member has
// no tag assigned.
type Member struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	RFIDToken string `json:"rfid_token,omitempty"`
}

// Product is a cached product record. Barcode is empty when the product has
// no barcode assigned.
type Product struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Barcode string `json:"barcode,omitempty"`
	Price   Money  `json:"price"`
}

// LineItem is one product line of a booking.
type LineItem struct {
	ProductID string `json:"product_id"`
	Quantity  int64  `json:"quantity"`
	UnitPrice Money  `json:"unit_price"`
}

// Booking is one completed local sale queued for delivery to the central
// authority. Delivered is set only after the authority acknowledged a batch
// that contained this booking.
type Booking struct {
	ID          string     `json:"id"`
	MemberID    string     `json:"member_id"`
	Items       []LineItem `json:"items"`
	TotalPrice  Money      `json:"total_price"`
	BookedAt    time.Time  `json:"booked_at"`
	Delivered   bool       `json:"delivered"`
	DeliveredAt time.Time  `json:"delivered_at,omitempty"`
}

// DeviceConfig is the device configuration served by the central authority
// and cached in a single local row. A nil Lock means "no lock".
type DeviceConfig struct {
	Lock              *LockConfig `json:"lock,omitempty"`
	ShowMemberBalance bool        `json:"show_member_balance"`
}

// Total returns the sum of quantity * unit price over items.
func Total(items []LineItem) (Money, error) {
	total := Money{}
	for i, item := range items {
		line, err := item.UnitPrice.MulInt(item.Quantity)
		if err != nil {
			return Money{}, err
		}
		total, err = total.Add(line)
		if err != nil {
			return Money{}, fmt.Errorf("item[%d]: %w", i, err)
		}
	}
	return total, nil
}
