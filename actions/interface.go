package actions

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/relloyd/odsync/pipeline"
	"github.com/relloyd/odsync/resilience"
	"github.com/relloyd/odsync/scheduler"
)

// Service is what the web server and the cron schedule need from the App.
type Service interface {
	LoadTable(ctx context.Context, table, mode string) (pipeline.Result, error)
	RunDag(ctx context.Context, o DagOptions) (*scheduler.RunReport, error)
	Breaker() *resilience.CircuitBreaker
	Gatherer() prometheus.Gatherer
	Status() []scheduler.TableNode
	TryBegin() (done func(), ok bool)
}

// SettingsGetterSetter is satisfied by config.File.
type SettingsGetterSetter interface {
	Get(key string, out interface{}) error
	Set(key string, val interface{}) error
	Delete(key string) error
	GetAllKeys() ([]string, error)
}
