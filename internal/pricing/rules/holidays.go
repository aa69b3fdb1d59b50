package rules

import "time"

// fixedHolidays is the static month/day lookup used for the
// is_holiday context field. Only fixed-date public holidays are
// represented; movable feasts would need a per-market calendar.
var fixedHolidays = map[[2]int]bool{
	{1, 1}:   true, // New Year's Day
	{5, 1}:   true, // Labour Day
	{12, 24}: true, // Christmas Eve
	{12, 25}: true, // Christmas Day
	{12, 26}: true, // St. Stephen's Day
	{12, 31}: true, // New Year's Eve
}

func isHoliday(t time.Time) bool {
	return fixedHolidays[[2]int{int(t.Month()), t.Day()}]
}
