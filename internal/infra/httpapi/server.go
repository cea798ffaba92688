// internal/infra/httpapi/server.go
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"irrigation_monitor/internal/app"
	"irrigation_monitor/internal/domain/alert"
)

// Operator is the slice of the admin service the HTTP surface exposes.
// Requests act on behalf of the configured admin, so the listener must be
// bound to a private address.
type Operator interface {
	SystemStatus(ctx context.Context) app.SystemStatus
	ActiveAlerts(ctx context.Context, performingAdminID int64) ([]*alert.Alert, error)
	Acknowledge(ctx context.Context, performingAdminID int64, alertID string) (*alert.Alert, error)
	Refresh(ctx context.Context, performingAdminID int64, force bool) (*app.RefreshResult, error)
	Report(ctx context.Context, performingAdminID int64, date time.Time) (*alert.Report, error)
}

// RouteWrapper instruments a route; metrics.Metrics satisfies it.
type RouteWrapper interface {
	WrapHandler(route string, next http.Handler) http.Handler
	Handler() http.Handler
}

type Server struct {
	op      Operator
	adminID int64
	loc     *time.Location
	lg      *logrus.Entry
	router  *mux.Router
	http    *http.Server

	accessLog io.WriteCloser
}

func NewServer(addr string, op Operator, adminID int64, loc *time.Location, metrics RouteWrapper, lg *logrus.Entry) *Server {
	if loc == nil {
		loc = time.Local
	}
	s := &Server{op: op, adminID: adminID, loc: loc, lg: lg}
	s.router = NewRouter(s, metrics)
	s.accessLog = lg.WriterLevel(logrus.DebugLevel)
	logged := handlers.LoggingHandler(s.accessLog, s.router)
	s.http = &http.Server{
		Addr:              addr,
		Handler:           handlers.RecoveryHandler(handlers.RecoveryLogger(lg))(logged),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func NewRouter(s *Server, metrics RouteWrapper) *mux.Router {
	r := mux.NewRouter()
	wrap := func(route string, h http.HandlerFunc) http.Handler {
		if metrics == nil {
			return h
		}
		return metrics.WrapHandler(route, h)
	}

	r.Handle("/health", wrap("/health", s.getHealth)).Methods(http.MethodGet)
	r.Handle("/status", wrap("/status", s.getStatus)).Methods(http.MethodGet)
	r.Handle("/alerts", wrap("/alerts", s.getAlerts)).Methods(http.MethodGet)
	r.Handle("/alerts/{id}/ack", wrap("/alerts/{id}/ack", s.postAck)).Methods(http.MethodPost)
	r.Handle("/refresh", wrap("/refresh", s.postRefresh)).Methods(http.MethodPost)
	r.Handle("/report", wrap("/report", s.getReport)).Methods(http.MethodGet)
	if metrics != nil {
		r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	}
	return r
}

// Handler is the bare router, without access logging and panic recovery.
func (s *Server) Handler() http.Handler { return s.router }

// Start blocks until the server stops; a clean shutdown returns nil.
func (s *Server) Start() error {
	s.lg.WithField("bind", s.http.Addr).Info("HTTP server starting")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	s.lg.Info("HTTP server stopping")
	err := s.http.Shutdown(ctx)
	_ = s.accessLog.Close()
	return err
}

// getHealth answers 503 once a collection cadence has escalated.
func (s *Server) getHealth(w http.ResponseWriter, r *http.Request) {
	st := s.op.SystemStatus(r.Context())
	if st.Scheduler.Escalated() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, newStatusView(s.op.SystemStatus(r.Context())))
}

func (s *Server) getAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := s.op.ActiveAlerts(r.Context(), s.adminID)
	if err != nil {
		s.fail(w, err)
		return
	}
	views := make([]alertView, 0, len(alerts))
	for _, a := range alerts {
		views = append(views, newAlertView(a))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) postAck(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	a, err := s.op.Acknowledge(r.Context(), s.adminID, id)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.lg.WithField("alert_id", id).Info("Alert acknowledged over HTTP")
	writeJSON(w, http.StatusOK, newAlertView(a))
}

func (s *Server) postRefresh(w http.ResponseWriter, r *http.Request) {
	force := false
	if v := r.URL.Query().Get("force"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "force must be a boolean")
			return
		}
		force = b
	}
	res, err := s.op.Refresh(r.Context(), s.adminID, force)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newRefreshView(res))
}

func (s *Server) getReport(w http.ResponseWriter, r *http.Request) {
	var date time.Time
	if v := r.URL.Query().Get("date"); v != "" {
		d, err := time.ParseInLocation("2006-01-02", v, s.loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		date = d
	}
	rep, err := s.op.Report(r.Context(), s.adminID, date)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newReportView(rep))
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, alert.ErrAlertNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, app.ErrAdminNotAuthorized):
		writeError(w, http.StatusForbidden, err.Error())
	default:
		s.lg.WithError(err).Error("HTTP request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
