// Package api exposes the controller state over HTTP and the line oriented
// TCP JSON protocol.
package api

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gopkg.in/yaml.v3"

	"pwmfan/config"
	"pwmfan/device"
	"pwmfan/device/fan"
	"pwmfan/jsonrpc"
	"pwmfan/log"
	"pwmfan/system"
	"pwmfan/version"
)

// Controller is the view of the running manager the API serves.
type Controller interface {
	Status() (device.Status, error)
	CaptureStats() (fan.CaptureStats, bool)
	Config() *config.Config
}

// StatusReply is the body of /api/status and the status command.
type StatusReply struct {
	device.Status
	Tach *fan.CaptureStats `json:"tach,omitempty"`
}

// staleTicks is how many tick intervals may pass before /healthz fails.
const staleTicks = 10

type API struct {
	ctrl     Controller
	gatherer prometheus.Gatherer
	now      func() time.Time
}

func New(ctrl Controller, gatherer prometheus.Gatherer) *API {
	return &API{ctrl: ctrl, gatherer: gatherer, now: time.Now}
}

// Router returns the HTTP routes.
func (a *API) Router() *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(a.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/healthz", a.healthz).Methods(http.MethodGet)
	r.HandleFunc("/api/status", a.status).Methods(http.MethodGet)
	r.HandleFunc("/api/config", a.config).Methods(http.MethodGet)
	r.HandleFunc("/api/version", a.version).Methods(http.MethodGet)
	r.HandleFunc("/api/system", a.system).Methods(http.MethodGet)
	return r
}

func (a *API) statusReply() (StatusReply, error) {
	st, err := a.ctrl.Status()
	if err != nil {
		return StatusReply{}, err
	}
	reply := StatusReply{Status: st}
	if stats, ok := a.ctrl.CaptureStats(); ok {
		reply.Tach = &stats
	}
	return reply, nil
}

func (a *API) healthz(w http.ResponseWriter, _ *http.Request) {
	st, err := a.ctrl.Status()
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	limit := staleTicks * a.ctrl.Config().TickInterval
	if age := a.now().Sub(st.Time); age > limit {
		http.Error(w, "last tick "+age.Round(time.Millisecond).String()+" ago", http.StatusServiceUnavailable)
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

func (a *API) status(w http.ResponseWriter, _ *http.Request) {
	reply, err := a.statusReply()
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, reply)
}

func (a *API) config(w http.ResponseWriter, _ *http.Request) {
	buf, err := yaml.Marshal(a.ctrl.Config())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write(buf)
}

func (a *API) version(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, version.GetVersionConfig())
}

func (a *API) system(w http.ResponseWriter, _ *http.Request) {
	info, err := system.GetSystemInfo()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, info)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Errorf("encode response: %v", err)
	}
}

// HandleCommand serves the TCP JSON protocol.
func (a *API) HandleCommand(conn net.Conn, req *jsonrpc.APIRequest, parseErr error) error {
	if parseErr != nil {
		return jsonrpc.WriteError(conn, req.Command, parseErr)
	}

	switch req.Command {
	case "status":
		reply, err := a.statusReply()
		if err != nil {
			return jsonrpc.WriteError(conn, req.Command, err)
		}
		return jsonrpc.WriteResult(conn, req.Command, reply)
	case "version":
		return jsonrpc.WriteResult(conn, req.Command, version.GetVersionConfig())
	case "system":
		info, err := system.GetSystemInfo()
		if err != nil {
			return jsonrpc.WriteError(conn, req.Command, err)
		}
		return jsonrpc.WriteResult(conn, req.Command, info)
	case "config":
		buf, err := yaml.Marshal(a.ctrl.Config())
		if err != nil {
			return jsonrpc.WriteError(conn, req.Command, err)
		}
		return jsonrpc.WriteResult(conn, req.Command, string(buf))
	default:
		return jsonrpc.WriteError(conn, req.Command, errors.New("unknown command"))
	}
}
