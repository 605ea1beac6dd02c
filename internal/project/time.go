package project

import "time"

// timeNow is a package-level variable so tests can freeze the clock.
var timeNow = time.Now

func nowRFC3339() string {
	return timeNow().UTC().Format(time.RFC3339)
}
