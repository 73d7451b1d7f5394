package actions

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/relloyd/odsync/helper"
	"github.com/relloyd/odsync/logger"
)

type WebServerConfig struct {
	Addr    net.IP  `errorTxt:"address" mandatory:"no"`
	Port    int     `errorTxt:"port" mandatory:"yes"`
	Service Service `errorTxt:"service" mandatory:"yes"`
	// CronExpr also runs the DAG on a schedule while serving when set.
	CronExpr string
	Dag      DagOptions
}

// RunWebServer serves the admin endpoints until ctx is done, SIGINT is received or /stop is called.
func RunWebServer(ctx context.Context, log logger.Logger, web *WebServerConfig) error {
	if web == nil {
		return errors.New("nil pointer to web server config supplied")
	}
	if err := helper.ValidateStructIsPopulated(web); err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if web.CronExpr != "" {
		c, err := newCron(ctx, log, web.Service, web.CronExpr, web.Dag)
		if err != nil {
			return err
		}
		c.Start()
		defer func() {
			<-c.Stop().Done()
		}()
	}
	srv, chanStopServer, chanErr := runServer(log, web)
	return waitForServer(ctx, log, srv, chanStopServer, chanErr)
}

// NewRouter creates the routes of the admin server.
func NewRouter(log logger.Logger, svc Service, chanStopServer chan string) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/stop", GetHandlerStopServer(log, chanStopServer)).Methods(http.MethodPost)
	r.Path("/health").HandlerFunc(GetHandlerHealth(log))
	r.Path("/breaker").Methods(http.MethodGet).HandlerFunc(GetHandlerBreakerStatus(log, svc))
	r.Path("/breaker").Methods(http.MethodPost).HandlerFunc(GetHandlerBreakerReset(log, svc))
	r.Path("/metrics").Methods(http.MethodGet).HandlerFunc(GetHandlerMetrics(svc))
	r.Path("/status").Methods(http.MethodGet).HandlerFunc(GetHandlerRunStatus(log, svc))
	r.Path("/dag").Methods(http.MethodPost).HandlerFunc(GetHandlerDagRun(log, svc))
	r.Path("/tables/{table}/load").Methods(http.MethodPost).HandlerFunc(GetHandlerTableLoad(log, svc))
	return r
}

// runServer starts a web server and returns:
// 1) the server; and
// 2) a channel that can be used to stop the web server
// 3) a channel that receives the listener error
func runServer(log logger.Logger, web *WebServerConfig) (*http.Server, chan string, chan error) {
	chanStopServer := make(chan string, 1)
	chanErr := make(chan error, 1)
	srv := &http.Server{ // Good practice to set timeouts to avoid Slowloris attacks.
		Addr:         fmt.Sprintf("%v:%v", addrString(web.Addr), web.Port),
		WriteTimeout: time.Second * 15,
		ReadTimeout:  time.Second * 15,
		IdleTimeout:  time.Second * 60,
		Handler:      NewRouter(log, web.Service, chanStopServer), // supply our instance of gorilla/mux.
	}
	// Run HTTP server non-blocking.
	go func() {
		if err := srv.ListenAndServe(); err != nil {
			if err == http.ErrServerClosed {
				log.Info(err)
			} else {
				chanErr <- err
			}
		}
	}()
	log.Info(fmt.Sprintf("Listening on http://%v", srv.Addr))
	return srv, chanStopServer, chanErr
}

func addrString(ip net.IP) string {
	if ip == nil {
		return ""
	}
	return ip.String()
}

func waitForServer(ctx context.Context, log logger.Logger, srv *http.Server, chanStopServer chan string, chanErr chan error) error {
	// Accept graceful shutdowns when quit via SIGINT (Ctrl+C).
	chanOS := make(chan os.Signal, 1)
	signal.Notify(chanOS, os.Interrupt)
	defer signal.Stop(chanOS)
	select {
	case <-chanStopServer:
	case <-chanOS:
		fmt.Println() // print new line char for clean looking CLI.
	case <-ctx.Done():
	case err := <-chanErr:
		return errors.Wrap(err, "web server failed")
	}
	log.Info("Shutting down web server...")
	// Runs in flight keep going; only the listener stops.
	wait := time.Second * 15
	sctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()
	return srv.Shutdown(sctx)
}
