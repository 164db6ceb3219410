package bluesky

import "regexp"

var (
	handleRe      = regexp.MustCompile(`^([a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?\.)+[a-zA-Z]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?$`)
	appPasswordRe = regexp.MustCompile(`^(?:[a-zA-Z0-9]{4}-){3}[a-zA-Z0-9]{4}$`)
)
