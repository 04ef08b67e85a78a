package log

import (
	"sort"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/go-logr/logr"
)

// watermillAdapter routes watermill's router and pub/sub logs into logr.
type watermillAdapter struct {
	logger logr.Logger
}

// NewWatermillAdapter wraps l as a watermill.LoggerAdapter.
func NewWatermillAdapter(l logr.Logger) watermill.LoggerAdapter {
	return &watermillAdapter{logger: l}
}

func (a *watermillAdapter) Error(msg string, err error, fields watermill.LogFields) {
	a.logger.Error(err, msg, keysAndValues(fields)...)
}

func (a *watermillAdapter) Info(msg string, fields watermill.LogFields) {
	a.logger.Info(msg, keysAndValues(fields)...)
}

func (a *watermillAdapter) Debug(msg string, fields watermill.LogFields) {
	a.logger.V(1).Info(msg, keysAndValues(fields)...)
}

func (a *watermillAdapter) Trace(msg string, fields watermill.LogFields) {
	a.logger.V(2).Info(msg, keysAndValues(fields)...)
}

func (a *watermillAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &watermillAdapter{logger: a.logger.WithValues(keysAndValues(fields)...)}
}

// keysAndValues flattens fields in key order so log lines are stable.
func keysAndValues(fields watermill.LogFields) []interface{} {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	kv := make([]interface{}, 0, len(fields)*2)
	for _, k := range keys {
		kv = append(kv, k, fields[k])
	}
	return kv
}
