// Package httpapi is local control surface: navigation (addressable state),
// key injection, state/progress inspection and Prometheus metrics.
package httpapi

import (
	"context"
	"encoding/json"
	"image/png"
	"io"
	"net"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/temoto/kiosk/hardware/input"
	"github.com/temoto/kiosk/internal/preload"
	"github.com/temoto/kiosk/internal/selector"
	"github.com/temoto/kiosk/internal/state"
	"github.com/temoto/kiosk/internal/types"
	"github.com/temoto/kiosk/log2"
)

const (
	maxRequestBody  = 4 << 10
	shutdownTimeout = 5 * time.Second
)

type Server struct {
	g      *state.Global
	log    *log2.Log
	router *mux.Router
}

func New(g *state.Global) *Server {
	self := &Server{
		g:      g,
		log:    g.Log,
		router: mux.NewRouter(),
	}
	r := self.router
	r.HandleFunc("/navigate", self.navigate).Methods(http.MethodPost)
	r.HandleFunc("/state", self.state).Methods(http.MethodGet)
	r.HandleFunc("/progress", self.progress).Methods(http.MethodGet)
	r.HandleFunc("/preload", self.preload).Methods(http.MethodPost)
	r.HandleFunc("/reload", self.reload).Methods(http.MethodPost)
	r.HandleFunc("/input", self.input).Methods(http.MethodPost)
	r.HandleFunc("/cache", self.cache).Methods(http.MethodGet)
	r.HandleFunc("/screen.png", self.screen).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	return self
}

func (self *Server) Handler() http.Handler { return self.router }

// Serve blocks until listener fails or g.Alive is stopped.
func (self *Server) Serve(listener net.Listener) error {
	srv := &http.Server{
		Handler:           self.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if !self.g.Alive.Add(1) {
		return nil
	}
	defer self.g.Alive.Done()
	go func() {
		<-self.g.Alive.StopChan()
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}()
	self.log.Infof("http listen=%s", listener.Addr().String())
	err := srv.Serve(listener)
	if err == http.ErrServerClosed {
		return nil
	}
	return errors.Annotate(err, "http serve")
}

func (self *Server) ListenAndServe(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Annotatef(err, "http listen=%s", addr)
	}
	return self.Serve(listener)
}

type stateView struct {
	selector.State
	Missing []string `json:"missing,omitempty"`
}

func (self *Server) viewState(s selector.State) stateView {
	r := selector.Resolve(s, self.g.Widgets, self.g.WidgetDefaults())
	return stateView{State: s, Missing: r.Missing}
}

// navigate accepts request in query string or request body:
// POST /navigate?app=satellite&api_key=K
// POST /navigate with body `app=weather`
func (self *Server) navigate(w http.ResponseWriter, r *http.Request) {
	request := r.URL.RawQuery
	if request == "" {
		b, err := readBody(r)
		if err != nil {
			respondError(w, http.StatusBadRequest, err)
			return
		}
		request = strings.TrimSpace(string(b))
	}
	s := self.g.Selector.Navigate(request)
	self.log.Infof("http navigate state=%s", s.String())
	respondJSON(w, http.StatusOK, self.viewState(s))
}

func (self *Server) state(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, self.viewState(self.g.Selector.Current()))
}

// progress lists latest run per provider. Provider keys are secrets, not exposed.
func (self *Server) progress(w http.ResponseWriter, r *http.Request) {
	all := self.g.Progress.All()
	list := make([]preload.Progress, 0, len(all))
	for _, p := range all {
		list = append(list, p)
	}
	sort.Slice(list, func(a, b int) bool { return list[a].RunID < list[b].RunID })
	respondJSON(w, http.StatusOK, list)
}

// preload starts run for key from body or configured api_key, progress via GET /progress.
func (self *Server) preload(w http.ResponseWriter, r *http.Request) {
	b, err := readBody(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	key := strings.TrimSpace(string(b))
	if key == "" {
		key = self.g.WidgetDefaults()["api_key"]
	}
	if key == "" {
		respondError(w, http.StatusBadRequest, errors.NotValidf("provider key is not set"))
		return
	}
	if err := self.g.PreloadAsync(key, preload.Observers{self.g.Progress, self.g.Tele}); err != nil {
		respondError(w, http.StatusServiceUnavailable, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (self *Server) reload(w http.ResponseWriter, r *http.Request) {
	if err := self.g.Reload("http"); err != nil {
		status := http.StatusInternalServerError
		if errors.IsNotSupported(err) {
			status = http.StatusNotImplemented
		}
		respondError(w, status, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// input emits each body character as key press from emulate source.
func (self *Server) input(w http.ResponseWriter, r *http.Request) {
	b, err := readBody(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	keys := strings.TrimRight(string(b), "\r\n")
	if keys == "" {
		respondError(w, http.StatusBadRequest, errors.NotValidf("empty input"))
		return
	}
	for _, k := range keys {
		self.g.Hardware.Input.Emit(types.InputEvent{Source: input.EmulateSourceTag, Key: types.InputKey(k)})
	}
	w.WriteHeader(http.StatusNoContent)
}

func (self *Server) cache(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, self.g.Cache.Stats())
}

func (self *Server) screen(w http.ResponseWriter, r *http.Request) {
	d, err := self.g.Display()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	if d == nil {
		respondError(w, http.StatusNotFound, errors.NotFoundf("display"))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	if err := png.Encode(w, d.Snapshot()); err != nil {
		self.log.Errorf("http screen encode err=%v", err)
	}
}

func readBody(r *http.Request) ([]byte, error) {
	b, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody+1))
	if err != nil {
		return nil, errors.Annotate(err, "read body")
	}
	if len(b) > maxRequestBody {
		return nil, errors.NotValidf("body larger than %d", maxRequestBody)
	}
	return b, nil
}

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, err error) {
	respondJSON(w, status, map[string]string{"error": err.Error()})
}
