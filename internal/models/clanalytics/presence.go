package clanalytics

import "time"

const (
	DefaultMinUpdate    = 30 * time.Second
	DefaultActiveWindow = 5 * time.Minute
)

// ShouldUpdate indique si l'intervalle minimum entre deux écritures d'un
// visiteur est dépassé.
func ShouldUpdate(lastSeen, now time.Time, interval time.Duration) bool {
	return now.Sub(lastSeen) > interval
}

// IsNewDay indique si la date calendaire de lastSeen précède celle de now,
// dans le fuseau loc.
func IsNewDay(lastSeen, now time.Time, loc *time.Location) bool {
	if loc == nil {
		loc = time.Local
	}
	ly, lm, ld := lastSeen.In(loc).Date()
	ny, nm, nd := now.In(loc).Date()
	last := time.Date(ly, lm, ld, 0, 0, 0, 0, loc)
	today := time.Date(ny, nm, nd, 0, 0, 0, 0, loc)
	return last.Before(today)
}

// IsStale indique si un visiteur vu pour la dernière fois à lastSeen doit
// être considéré hors ligne.
func IsStale(lastSeen, now time.Time, window time.Duration) bool {
	return lastSeen.Before(now.Add(-window))
}
