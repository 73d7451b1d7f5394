package actions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/relloyd/odsync/constants"
	"github.com/relloyd/odsync/logger"
	"github.com/relloyd/odsync/resilience"
	"github.com/relloyd/odsync/scheduler"
)

type WebServerResponse uint32

const (
	Okay WebServerResponse = iota + 1
	Error
)

func (w WebServerResponse) MarshalJSON() ([]byte, error) {
	var retval string
	switch w {
	case Okay:
		retval = "ok"
	case Error:
		retval = "error"
	default:
		err := fmt.Errorf("unhandled WebServerResponse value in MarshalJSON() conversion")
		return nil, err
	}
	return json.Marshal(retval)
}

type ResponseSimple struct {
	ServerStatus WebServerResponse `json:"status"`
	Message      string            `json:"message,omitempty"`
}

type ResponseBreaker struct {
	Status  WebServerResponse        `json:"status"`
	Breaker resilience.BreakerStatus `json:"breaker"`
}

type ResponseRunStatus struct {
	Status WebServerResponse     `json:"status"`
	Tables []scheduler.TableNode `json:"tables"`
}

type ResponseLaunch struct {
	Status  WebServerResponse `json:"status"`
	Message string            `json:"message"`
	Table   string            `json:"table,omitempty"`
	Mode    string            `json:"mode"`
}

func GetHandlerHealth(log logger.Logger) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		respond(log, w, ResponseSimple{ServerStatus: Okay})
	}
}

func GetHandlerStopServer(log logger.Logger, chanStop chan string) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		select {
		case chanStop <- "stop":
			log.Info("Stop signal sent")
		default: // a stop is already pending.
		}
		respond(log, w, ResponseSimple{ServerStatus: Okay})
	}
}

func GetHandlerBreakerStatus(log logger.Logger, svc Service) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		respond(log, w, ResponseBreaker{Status: Okay, Breaker: svc.Breaker().Status()})
	}
}

func GetHandlerBreakerReset(log logger.Logger, svc Service) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		svc.Breaker().Reset()
		w.WriteHeader(http.StatusOK)
		respond(log, w, ResponseBreaker{Status: Okay, Breaker: svc.Breaker().Status()})
	}
}

// GetHandlerMetrics serves the registry of the latest run.
func GetHandlerMetrics(svc Service) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		promhttp.HandlerFor(svc.Gatherer(), promhttp.HandlerOpts{}).ServeHTTP(w, r)
	}
}

func GetHandlerRunStatus(log logger.Logger, svc Service) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		tables := svc.Status()
		if tables == nil {
			tables = []scheduler.TableNode{}
		}
		w.WriteHeader(http.StatusOK)
		respond(log, w, ResponseRunStatus{Status: Okay, Tables: tables})
	}
}

// GetHandlerTableLoad starts the load of table {table} in the background. Query parameter mode defaults to incremental.
func GetHandlerTableLoad(log logger.Logger, svc Service) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		table := mux.Vars(r)["table"]
		mode, ok := modeFromRequest(r)
		if !ok {
			logAndRespond(log, http.StatusBadRequest, fmt.Errorf("unsupported mode %q", mode), w,
				ResponseLaunch{Status: Error, Message: fmt.Sprintf("unsupported mode %q", mode), Table: table, Mode: mode})
			return
		}
		launch(log, svc, w, ResponseLaunch{Table: table, Mode: mode}, func(ctx context.Context) error {
			_, err := svc.LoadTable(ctx, table, mode)
			return err
		})
	}
}

// GetHandlerDagRun starts a DAG run in the background.
func GetHandlerDagRun(log logger.Logger, svc Service) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		mode, ok := modeFromRequest(r)
		if !ok {
			logAndRespond(log, http.StatusBadRequest, fmt.Errorf("unsupported mode %q", mode), w,
				ResponseLaunch{Status: Error, Message: fmt.Sprintf("unsupported mode %q", mode), Mode: mode})
			return
		}
		continueOnError := r.URL.Query().Get("continue-on-error") == "true"
		launch(log, svc, w, ResponseLaunch{Mode: mode}, func(ctx context.Context) error {
			_, err := svc.RunDag(ctx, DagOptions{Mode: mode, ContinueOnError: continueOnError})
			return err
		})
	}
}

// launch runs fn in the background unless another run holds the service.
func launch(log logger.Logger, svc Service, w http.ResponseWriter, resp ResponseLaunch, fn func(ctx context.Context) error) {
	done, ok := svc.TryBegin()
	if !ok {
		resp.Status = Error
		resp.Message = "another run is in progress"
		logAndRespond(log, http.StatusConflict, errors.New(resp.Message), w, resp)
		return
	}
	go func() {
		defer done()
		if err := fn(context.Background()); err != nil {
			log.Error("background run failed: ", err)
		}
	}()
	resp.Status = Okay
	resp.Message = "run started"
	w.WriteHeader(http.StatusAccepted)
	respond(log, w, resp)
}

func modeFromRequest(r *http.Request) (string, bool) {
	mode := r.URL.Query().Get("mode")
	switch mode {
	case "":
		return constants.ModeIncremental, true
	case constants.ModeIncremental, constants.ModeFull:
		return mode, true
	}
	return mode, false
}

func logAndRespond(log logger.Logger, status int, err error, w http.ResponseWriter, r interface{}) {
	log.Error(err)
	w.WriteHeader(status)
	respond(log, w, r)
}

// respond will marshal i to a string and write it to w.
func respond(log logger.Logger, w http.ResponseWriter, i interface{}) {
	j, err := json.MarshalIndent(i, "", "  ")
	if err != nil {
		log.Error("unable to marshal response: ", err)
		return
	}
	if _, err = fmt.Fprint(w, string(j)); err != nil {
		log.Error("unable to write response: ", err)
	}
}
