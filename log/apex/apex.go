package apex

import (
	"github.com/apex/log"

	"github.com/unkn0wn-root/formcache"
)

var _ formcache.Logger = Logger{}

// Logger adapts apex/log. L is usually log.Log or a *log.Logger.
type Logger struct{ L log.Interface }

func (a Logger) Debug(msg string, f formcache.Fields) { a.L.WithFields(log.Fields(f)).Debug(msg) }
func (a Logger) Info(msg string, f formcache.Fields)  { a.L.WithFields(log.Fields(f)).Info(msg) }
func (a Logger) Warn(msg string, f formcache.Fields)  { a.L.WithFields(log.Fields(f)).Warn(msg) }
func (a Logger) Error(msg string, f formcache.Fields) { a.L.WithFields(log.Fields(f)).Error(msg) }
