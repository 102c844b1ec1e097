package availability

import (
	"time"

	"github.com/glamhq/glam/services/booking-service/internal/model"
)

// ResolveToday picks the row for weekday from an artist's schedule.
// A missing row or a non-working day means unavailable with no hours.
func ResolveToday(artistID string, rows []model.WorkingHour, weekday time.Weekday) model.TodayAvailability {
	out := model.TodayAvailability{ArtistID: artistID}
	for _, row := range rows {
		if row.DayOfWeek != int(weekday) {
			continue
		}
		if !row.IsWorking {
			return out
		}
		start, end := row.Hours()
		out.IsAvailableToday = true
		out.TodayHours = &model.TodayHours{Start: start, End: end}
		return out
	}
	return out
}

// ResolveTodayBulk marks every id unavailable, then overlays the rows found for weekday.
// Rows for other weekdays or for ids that were not asked for are ignored.
func ResolveTodayBulk(artistIDs []string, rows []model.WorkingHour, weekday time.Weekday) map[string]model.TodayAvailability {
	out := make(map[string]model.TodayAvailability, len(artistIDs))
	for _, id := range artistIDs {
		out[id] = model.TodayAvailability{ArtistID: id}
	}
	for _, row := range rows {
		if row.DayOfWeek != int(weekday) {
			continue
		}
		if _, ok := out[row.ArtistID]; !ok {
			continue
		}
		out[row.ArtistID] = ResolveToday(row.ArtistID, []model.WorkingHour{row}, weekday)
	}
	return out
}
