package cmd

import (
	"github.com/fatih/color"
	"github.com/rs/zerolog/log"
)

var (
	bold  = color.New(color.Bold).SprintFunc()
	faint = color.New(color.Faint).SprintFunc()
	green = color.New(color.FgGreen).SprintFunc()
	red   = color.New(color.FgRed).SprintFunc()
)

// logError logs err together with the correlation id of the failed request and returns it.
func logError(err error, correlation, msg string) error {
	ev := log.Error().Err(err)
	if correlation != "" {
		ev = ev.Str("correlation_id", correlation)
	}
	ev.Msg(msg)
	return err
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
