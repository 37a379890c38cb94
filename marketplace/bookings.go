package marketplace

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// RemoteBooking is the normalized form of one marketplace booking. All shape
// tolerance (container variants, guest field variants) funnels into this type
// so the rest of the system never sees the raw payload.
type RemoteBooking struct {
	ID         string
	CheckIn    time.Time
	CheckOut   time.Time
	Status     string
	TotalPrice float64
	Currency   string
	GuestName  string
	GuestPhone string
	GuestEmail string
	Raw        json.RawMessage
}

// PlaceholderGuestName is used when no guest name field resolves.
const PlaceholderGuestName = "Guest"

// containerKeys are tried in priority order when the payload is not a bare
// array. The API has shipped all of these shapes across versions.
var containerKeys = []string{"bookings", "data", "items"}

// ParseBookingsPayload normalizes a bookings response of any known shape.
func ParseBookingsPayload(data []byte) ([]RemoteBooking, error) {
	var items []json.RawMessage

	if err := json.Unmarshal(data, &items); err != nil {
		var envelope map[string]json.RawMessage
		if err := json.Unmarshal(data, &envelope); err != nil {
			return nil, fmt.Errorf("unrecognized bookings payload: %w", err)
		}
		found := false
		for _, key := range containerKeys {
			raw, ok := envelope[key]
			if !ok {
				continue
			}
			if err := json.Unmarshal(raw, &items); err != nil {
				return nil, fmt.Errorf("bookings container %q: %w", key, err)
			}
			found = true
			break
		}
		if !found {
			return nil, fmt.Errorf("no bookings container in payload")
		}
	}

	bookings := make([]RemoteBooking, 0, len(items))
	for idx, item := range items {
		b, err := parseBooking(item)
		if err != nil {
			return nil, fmt.Errorf("booking %d: %w", idx, err)
		}
		bookings = append(bookings, b)
	}
	return bookings, nil
}

func parseBooking(raw json.RawMessage) (RemoteBooking, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return RemoteBooking{}, err
	}

	b := RemoteBooking{Raw: raw}

	b.ID = firstString(fields, "avito_booking_id", "booking_id", "id")
	if b.ID == "" {
		return RemoteBooking{}, fmt.Errorf("missing booking id")
	}

	var err error
	if b.CheckIn, err = firstDate(fields, "check_in", "date_start", "checkin"); err != nil {
		return RemoteBooking{}, fmt.Errorf("check-in: %w", err)
	}
	if b.CheckOut, err = firstDate(fields, "check_out", "date_end", "checkout"); err != nil {
		return RemoteBooking{}, fmt.Errorf("check-out: %w", err)
	}

	b.Status = MapStatus(firstString(fields, "status", "state"))
	b.TotalPrice = firstNumber(fields, "total_price", "price", "amount", "base_price")
	b.Currency = firstString(fields, "currency")
	if b.Currency == "" {
		b.Currency = "RUB"
	}

	b.GuestName, b.GuestPhone, b.GuestEmail = extractGuest(fields)
	return b, nil
}

// guestContainers are nested objects that may carry contact details, tried
// in priority order before top-level fields.
var guestContainers = []string{"contact", "customer", "guest", "user"}

func extractGuest(fields map[string]json.RawMessage) (name, phone, email string) {
	for _, key := range guestContainers {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		var nested map[string]json.RawMessage
		if err := json.Unmarshal(raw, &nested); err != nil {
			continue
		}
		if name == "" {
			name = firstString(nested, "name", "full_name", "first_name")
		}
		if phone == "" {
			phone = firstString(nested, "phone", "phone_number")
		}
		if email == "" {
			email = firstString(nested, "email")
		}
	}

	if name == "" {
		name = firstString(fields, "guest_name", "contact_name", "name")
	}
	if phone == "" {
		phone = firstString(fields, "guest_phone", "contact_phone", "phone")
	}
	if email == "" {
		email = firstString(fields, "guest_email", "contact_email", "email")
	}

	if name == "" {
		name = PlaceholderGuestName
	}
	phone = NormalizePhone(phone)
	return name, phone, email
}

// MapStatus converts a remote booking status to the local vocabulary.
func MapStatus(remote string) string {
	switch strings.ToLower(remote) {
	case "active", "confirmed", "paid":
		return "confirmed"
	case "canceled", "cancelled", "rejected":
		return "cancelled"
	default:
		return "pending"
	}
}

// NormalizePhone reduces any formatting of a Russian phone number to
// +7XXXXXXXXXX. Inputs already in that form lose only their formatting
// characters; anything unrecognized keeps its digits behind a plus.
func NormalizePhone(phone string) string {
	var digits strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	d := digits.String()

	switch {
	case d == "":
		return ""
	case len(d) == 11 && d[0] == '8':
		return "+7" + d[1:]
	case len(d) == 11 && d[0] == '7':
		return "+" + d
	case len(d) == 10:
		return "+7" + d
	default:
		return "+" + d
	}
}

func firstString(fields map[string]json.RawMessage, keys ...string) string {
	for _, key := range keys {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil && s != "" {
			return s
		}
		// ids sometimes arrive as numbers
		var n json.Number
		if err := json.Unmarshal(raw, &n); err == nil && n.String() != "" {
			return n.String()
		}
	}
	return ""
}

func firstNumber(fields map[string]json.RawMessage, keys ...string) float64 {
	for _, key := range keys {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		var f float64
		if err := json.Unmarshal(raw, &f); err == nil {
			return f
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			var parsed float64
			if _, err := fmt.Sscanf(s, "%f", &parsed); err == nil {
				return parsed
			}
		}
	}
	return 0
}

var dateLayouts = []string{WireDate, time.RFC3339, "2006-01-02 15:04:05"}

func firstDate(fields map[string]json.RawMessage, keys ...string) (time.Time, error) {
	for _, key := range keys {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			continue
		}
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, nil
			}
		}
		return time.Time{}, fmt.Errorf("unparseable date %q", s)
	}
	return time.Time{}, fmt.Errorf("no date field among %v", keys)
}
