// Package mapcycle knows the server's time-of-day map rotation and turns
// wall-clock ticks into edge-triggered cue events.
package mapcycle

// schedule is the fixed UTC hour -> map rotation table.
var schedule = [24]string{
	0: "askask", 1: "ask", 2: "ask", 3: "askask",
	4: "ask", 5: "dustbowl", 6: "askask", 7: "ask",
	8: "ask", 9: "askask", 10: "ask", 11: "dustbowl",
	12: "askask", 13: "ask", 14: "ask", 15: "askask",
	16: "ask", 17: "dustbowl", 18: "askask", 19: "ask",
	20: "dustbowl", 21: "askask", 22: "ask", 23: "dustbowl",
}

// MapForHour returns the scheduled map for an hour of day, wrapping at the
// day boundary so that -1 means 23 and 24 means 0.
func MapForHour(hour int) string {
	hour = ((hour % 24) + 24) % 24
	return schedule[hour]
}
