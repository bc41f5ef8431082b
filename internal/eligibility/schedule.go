package eligibility

import (
	"strconv"
	"strings"
	"time"
)

const minutesPerDay = 24 * 60

// Window is a half-open [Start, End) interval of minutes on one weekday.
type Window struct {
	Day   time.Weekday
	Start int
	End   int
}

var dayAliases = map[string]time.Weekday{
	"sun": time.Sunday, "sunday": time.Sunday,
	"mon": time.Monday, "monday": time.Monday,
	"tue": time.Tuesday, "tues": time.Tuesday, "tuesday": time.Tuesday,
	"wed": time.Wednesday, "weds": time.Wednesday, "wednesday": time.Wednesday,
	"thu": time.Thursday, "thur": time.Thursday, "thurs": time.Thursday, "thursday": time.Thursday,
	"fri": time.Friday, "friday": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday,
}

// ParseSchedule parses entries such as "mon-fri 11:30-14:30; fri,sat 19:00-02:00".
// Windows that end at or before their start wrap past midnight into the next
// day. Malformed entries are skipped.
func ParseSchedule(input string) []Window {
	var windows []Window
	for _, entry := range strings.Split(input, ";") {
		fields := strings.Fields(entry)
		if len(fields) < 2 {
			continue
		}
		days := expandDays(fields[0])
		startRaw, endRaw, ok := strings.Cut(fields[1], "-")
		if !ok {
			continue
		}
		start, okStart := parseClock(startRaw)
		end, okEnd := parseClock(endRaw)
		if !okStart || !okEnd {
			continue
		}
		for _, day := range days {
			if end <= start {
				windows = append(windows,
					Window{Day: day, Start: start, End: minutesPerDay},
					Window{Day: (day + 1) % 7, Start: 0, End: end},
				)
				continue
			}
			windows = append(windows, Window{Day: day, Start: start, End: end})
		}
	}
	return windows
}

func expandDays(token string) []time.Weekday {
	var days []time.Weekday
	for _, segment := range strings.Split(token, ",") {
		segment = strings.TrimSpace(segment)
		if segment == "" {
			continue
		}
		parts := strings.Split(segment, "-")
		switch len(parts) {
		case 1:
			if day, ok := dayAliases[strings.ToLower(strings.TrimSpace(parts[0]))]; ok {
				days = append(days, day)
			}
		case 2:
			from, okFrom := dayAliases[strings.ToLower(strings.TrimSpace(parts[0]))]
			to, okTo := dayAliases[strings.ToLower(strings.TrimSpace(parts[1]))]
			if !okFrom || !okTo {
				continue
			}
			for d := from; ; d = (d + 1) % 7 {
				days = append(days, d)
				if d == to {
					break
				}
			}
		}
	}
	return days
}

func parseClock(raw string) (int, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	hourRaw, minuteRaw, hasMinute := strings.Cut(raw, ":")
	hour, err := strconv.Atoi(hourRaw)
	if err != nil || hour < 0 || hour > 23 {
		return 0, false
	}
	minute := 0
	if hasMinute {
		minute, err = strconv.Atoi(minuteRaw)
		if err != nil || minute < 0 || minute > 59 {
			return 0, false
		}
	}
	return hour*60 + minute, true
}

func withinWindows(windows []Window, local time.Time) bool {
	if len(windows) == 0 {
		return true
	}
	day := local.Weekday()
	minute := local.Hour()*60 + local.Minute()
	for _, w := range windows {
		if w.Day == day && minute >= w.Start && minute < w.End {
			return true
		}
	}
	return false
}
