package cache

// Event names the cached views a mutation makes stale.
type Event interface {
	Keys() []string
}

func WorkingHoursKey(artistID string) string { return "glam:artist:" + artistID + ":working_hours" }
func BlockedDatesKey(artistID string) string { return "glam:artist:" + artistID + ":blocked_dates" }
func CustomerBookingsKey(userID string) string { return "glam:customer:" + userID + ":bookings" }
func ArtistBookingsKey(artistID string) string { return "glam:artist:" + artistID + ":bookings" }
func PendingCountKey(artistID string) string { return "glam:artist:" + artistID + ":pending_count" }

type WorkingHoursChanged struct{ ArtistID string }

func (e WorkingHoursChanged) Keys() []string {
	return []string{WorkingHoursKey(e.ArtistID)}
}

type BlockedDatesChanged struct{ ArtistID string }

func (e BlockedDatesChanged) Keys() []string {
	return []string{BlockedDatesKey(e.ArtistID)}
}

type CustomerBookingsChanged struct{ CustomerID string }

func (e CustomerBookingsChanged) Keys() []string {
	return []string{CustomerBookingsKey(e.CustomerID)}
}

type ArtistBookingsChanged struct{ ArtistID string }

func (e ArtistBookingsChanged) Keys() []string {
	return []string{ArtistBookingsKey(e.ArtistID)}
}

// PendingCountChanged refreshes the artist's pending-requests badge.
type PendingCountChanged struct{ ArtistID string }

func (e PendingCountChanged) Keys() []string {
	return []string{PendingCountKey(e.ArtistID)}
}

// BookingChanged is the set every booking mutation emits.
func BookingChanged(customerID, artistID string) []Event {
	return []Event{
		CustomerBookingsChanged{CustomerID: customerID},
		ArtistBookingsChanged{ArtistID: artistID},
		PendingCountChanged{ArtistID: artistID},
	}
}
