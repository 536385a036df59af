package delivery

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ThreeDotsLabs/watermill"

	"cloudtickets/internal/logger"
)

// watermillLogger routes watermill's structured logs into the category logger.
type watermillLogger struct {
	log    *logger.Logger
	fields watermill.LogFields
}

func NewWatermillLogger(log *logger.Logger) watermill.LoggerAdapter {
	return watermillLogger{log: log}
}

func (l watermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	l.log.Error("WATERMILL", l.format(msg, fields.Add(watermill.LogFields{"err": err})))
}

func (l watermillLogger) Info(msg string, fields watermill.LogFields) {
	l.log.Info("WATERMILL", l.format(msg, fields))
}

func (l watermillLogger) Debug(msg string, fields watermill.LogFields) {
	l.log.Debug("WATERMILL", l.format(msg, fields))
}

// Trace is per message and too chatty even for DEBUG.
func (l watermillLogger) Trace(string, watermill.LogFields) {}

func (l watermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return watermillLogger{log: l.log, fields: l.fields.Add(fields)}
}

func (l watermillLogger) format(msg string, fields watermill.LogFields) string {
	all := l.fields.Add(fields)
	if len(all) == 0 {
		return msg
	}

	keys := make([]string, 0, len(all))
	for k := range all {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(msg)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, all[k])
	}
	return b.String()
}
