// Package api exposes the stash and lookup collaborators over HTTP: a
// health snapshot, batched symbol lookups, and a listing of locally
// known SDKs. It uses nothing beyond net/http's ServeMux.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/coresymbols/symd/internal/bufpool"
	"github.com/coresymbols/symd/internal/constants"
	"github.com/coresymbols/symd/internal/errs"
	"github.com/coresymbols/symd/internal/interfaces"
	"github.com/coresymbols/symd/lookup"
	"github.com/coresymbols/symd/sdk"
	"github.com/coresymbols/symd/stash"
)

// Stash is the subset of *stash.Stash the API server depends on.
type Stash interface {
	lookup.Stash
	ListSdks() []sdk.Info
	GetSyncStatus(ctx context.Context) (stash.SyncStatus, error)
}

// Server wires the stash and lookup collaborators to a ServeMux. It
// holds no transport-level state beyond a small TTL-cached health
// snapshot, mirroring the upstream service's own cached health check.
type Server struct {
	store   Stash
	logger  interfaces.Logger
	lookups interfaces.LookupObserver

	healthTTL time.Duration
	healthMu  sync.Mutex
	healthAt  time.Time
	health    healthResponse
}

// Config configures a Server.
type Config struct {
	Stash          Stash
	Logger         interfaces.Logger // may be nil
	Lookups        interfaces.LookupObserver // may be nil
	HealthcheckTTL time.Duration
}

// New builds a Server and its http.Handler routing table.
func New(cfg Config) *Server {
	return &Server{store: cfg.Stash, logger: cfg.Logger, lookups: cfg.Lookups, healthTTL: cfg.HealthcheckTTL}
}

// Handler returns the ServeMux routing /health, /lookup, and /sdks.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/lookup", s.handleLookup)
	mux.HandleFunc("/sdks", s.handleSdks)
	return mux
}

func (s *Server) logf(format string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Errorf(format, args...)
	}
}

type healthResponse struct {
	IsOffline bool `json:"is_offline"`
	IsHealthy bool `json:"is_healthy"`
	SyncLag   int  `json:"sync_lag"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeAPIError(w, errMethodNotAllowed)
		return
	}

	resp, err := s.checkHealth(r.Context())
	if err != nil {
		s.writeInternalError(w, "api.handleHealth", err)
		return
	}
	status := http.StatusOK
	if !resp.IsHealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// checkHealth returns a cached health snapshot if it is still within
// the configured TTL, otherwise refreshes it from the stash. This
// mirrors the upstream service's own mutex-guarded cached health check,
// which exists so a burst of /health probes from a load balancer does
// not each force a fresh remote listing.
func (s *Server) checkHealth(ctx context.Context) (healthResponse, error) {
	s.healthMu.Lock()
	defer s.healthMu.Unlock()

	if s.healthTTL > 0 && !s.healthAt.IsZero() && time.Since(s.healthAt) < s.healthTTL {
		return s.health, nil
	}

	status, err := s.store.GetSyncStatus(ctx)
	if err != nil {
		return healthResponse{}, err
	}
	resp := healthResponse{
		IsOffline: status.Offline,
		IsHealthy: status.Healthy(),
		SyncLag:   status.Lag(),
	}
	s.health, s.healthAt = resp, time.Now()
	return resp, nil
}

type symbolQuery struct {
	Addr       hexOrDecimal `json:"addr"`
	ObjectUUID *uuidHex     `json:"object_uuid,omitempty"`
	ObjectPath string       `json:"object_path,omitempty"`
}

type lookupRequest struct {
	SdkID   string        `json:"sdk_id"`
	CPUName string        `json:"cpu_name"`
	Symbols []symbolQuery `json:"symbols"`
}

type symbolResponse struct {
	ObjectName string       `json:"object_name"`
	Symbol     string       `json:"symbol"`
	Addr       hexOrDecimal `json:"addr"`
}

type lookupResponse struct {
	Symbols []*symbolResponse `json:"symbols"`
}

func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeAPIError(w, errMethodNotAllowed)
		return
	}

	if r.ContentLength < 0 {
		writeAPIError(w, errMissingContentLength)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxLookupBodyBytes)
	var req lookupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if isMaxBytesError(err) {
			writeAPIError(w, errPayloadTooLarge)
		} else {
			writeAPIError(w, apiError{Type: "bad_json", Message: fmt.Sprintf("the client sent bad json: %v", err), Status: http.StatusBadRequest})
		}
		return
	}

	queries := make([]lookup.Query, len(req.Symbols))
	for i, q := range req.Symbols {
		queries[i] = lookup.Query{
			Addr:       uint64(q.Addr),
			ObjectUUID: q.ObjectUUID.value(),
			ObjectPath: q.ObjectPath,
		}
	}

	results, err := lookup.Resolve(s.store, lookup.Request{SdkID: req.SdkID, CPUName: req.CPUName, Symbols: queries})
	if err != nil {
		s.recordLookup(0, 0, true)
		if errs.Is(err, errs.CodeUnknownSdk) {
			writeAPIError(w, errSdkNotFound)
			return
		}
		s.writeInternalError(w, "api.handleLookup", err)
		return
	}

	resp := lookupResponse{Symbols: make([]*symbolResponse, len(results))}
	resolved, missed := 0, 0
	for i, r := range results {
		if !r.Found {
			missed++
			continue
		}
		resolved++
		resp.Symbols[i] = &symbolResponse{ObjectName: r.ObjectName, Symbol: r.Symbol, Addr: hexOrDecimal(r.Addr)}
	}
	s.recordLookup(resolved, missed, false)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) recordLookup(resolved, missed int, err bool) {
	if s.lookups != nil {
		s.lookups.RecordLookup(resolved, missed, err)
	}
}

type sdksResponse struct {
	Sdks []string `json:"sdks"`
}

func (s *Server) handleSdks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeAPIError(w, errMethodNotAllowed)
		return
	}
	infos := s.store.ListSdks()
	ids := make([]string, len(infos))
	for i, info := range infos {
		ids[i] = info.String()
	}
	writeJSON(w, http.StatusOK, sdksResponse{Sdks: ids})
}

func (s *Server) writeInternalError(w http.ResponseWriter, op string, err error) {
	s.logf("%s: %v", op, err)
	writeAPIError(w, apiError{Type: "internal_server_error", Message: "the server failed with an internal error", Status: http.StatusInternalServerError})
}

// apiError is the structured error body every non-2xx response carries,
// mirroring the upstream service's ApiError{type, message} shape.
type apiError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Status  int    `json:"-"`
}

var (
	errMethodNotAllowed     = apiError{Type: "method_not_allowed", Message: "this http method is not supported here", Status: http.StatusMethodNotAllowed}
	errSdkNotFound          = apiError{Type: "sdk_not_found", Message: "the requested sdk was not found", Status: http.StatusNotFound}
	errPayloadTooLarge      = apiError{Type: "payload_too_large", Message: "the request payload is too large", Status: http.StatusRequestEntityTooLarge}
	errMissingContentLength = apiError{Type: "bad_request", Message: "content-length is required", Status: http.StatusBadRequest}
)

func writeAPIError(w http.ResponseWriter, e apiError) {
	writeJSON(w, e.Status, e)
}

// jsonEncodeBufSize is the pooled scratch buffer size used to encode a
// response body before writing it, so a response's JSON encoding doesn't
// allocate a fresh buffer per request.
const jsonEncodeBufSize = 64 * 1024

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	scratch := bufpool.Get(jsonEncodeBufSize)
	defer bufpool.Put(scratch)

	buf := bytes.NewBuffer(scratch[:0])
	if err := json.NewEncoder(buf).Encode(body); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func isMaxBytesError(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}

// hexOrDecimal marshals as a "0x…" hex string and unmarshals either a
// hex string or a plain JSON number, so a lookup query's addr field
// accepts either representation a client happens to send.
type hexOrDecimal uint64

func (h hexOrDecimal) MarshalJSON() ([]byte, error) {
	return json.Marshal(fmt.Sprintf("0x%x", uint64(h)))
}

func (h *hexOrDecimal) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
		v, err := strconv.ParseUint(s, 16, 64)
		if err != nil {
			return err
		}
		*h = hexOrDecimal(v)
		return nil
	}
	var n uint64
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*h = hexOrDecimal(n)
	return nil
}

// uuidHex unmarshals a canonical "xxxxxxxx-xxxx-..." UUID string into a
// [16]byte, the form memdb and lookup both key on.
type uuidHex [16]byte

func (u *uuidHex) value() *[16]byte {
	if u == nil {
		return nil
	}
	b := [16]byte(*u)
	return &b
}

func (u *uuidHex) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	s = strings.ReplaceAll(s, "-", "")
	if len(s) != 32 {
		return fmt.Errorf("uuidHex: %q is not a 32-hex-digit UUID", s)
	}
	for i := 0; i < 16; i++ {
		v, err := strconv.ParseUint(s[i*2:i*2+2], 16, 8)
		if err != nil {
			return err
		}
		u[i] = byte(v)
	}
	return nil
}
