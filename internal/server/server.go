// Package server exposes the assessment pipeline over HTTP.
package server

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/daru-lab/jeonseguard/internal/address"
	"github.com/daru-lab/jeonseguard/internal/assess"
	"github.com/daru-lab/jeonseguard/internal/ocr"
	"github.com/daru-lab/jeonseguard/internal/price"
	"github.com/daru-lab/jeonseguard/internal/store"
)

// Server carries the handler dependencies.
type Server struct {
	service *assess.Service
	vision  *ocr.VisionExtractor
	store   store.Store
}

// New creates a Server. vision may be nil; the document endpoint then
// responds 503.
func New(service *assess.Service, vision *ocr.VisionExtractor, st store.Store) *Server {
	return &Server{service: service, vision: vision, store: st}
}

// Router builds the chi handler tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", s.handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/analyze", s.handleAnalyze)
		r.Post("/analyze/documents", s.handleAnalyzeDocuments)
		r.Get("/results/{addressKey}", s.handleResult)
	})
	return r
}

// envelope is the uniform response wrapper.
type envelope struct {
	Meta   meta       `json:"meta"`
	Data   any        `json:"data,omitempty"`
	Errors []apiError `json:"errors,omitempty"`
}

type meta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, data any, errs ...apiError) {
	reqID := middleware.GetReqID(r.Context())
	if reqID == "" {
		reqID = uuid.New().String()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{
		Meta:   meta{RequestID: reqID, Timestamp: time.Now().UTC()},
		Data:   data,
		Errors: errs,
	})
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	writeJSON(w, r, status, nil, apiError{Code: code, Message: msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

// analyzeRequest is the plain-address analysis request. Deposit is in manwon
// (10,000 KRW units), matching how Korean lease contracts are quoted.
type analyzeRequest struct {
	Address string  `json:"address"`
	Deposit float64 `json:"deposit"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid request body")
		return
	}
	if req.Address == "" {
		writeError(w, r, http.StatusBadRequest, "BAD_REQUEST", "address is required")
		return
	}
	if req.Deposit <= 0 {
		writeError(w, r, http.StatusBadRequest, "BAD_REQUEST", "deposit must be positive")
		return
	}

	result, err := s.service.Assess(r.Context(), assess.Request{
		Address:       req.Address,
		DepositManwon: req.Deposit,
	})
	if err != nil {
		s.writeAssessError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

// documentsRequest carries base64-encoded document images. The address is
// optional; when absent it is extracted from the documents.
type documentsRequest struct {
	Address       string  `json:"address,omitempty"`
	Deposit       float64 `json:"deposit"`
	MediaType     string  `json:"media_type"`
	LedgerImage   string  `json:"ledger_image,omitempty"`
	RegistryImage string  `json:"registry_image,omitempty"`
}

func (s *Server) handleAnalyzeDocuments(w http.ResponseWriter, r *http.Request) {
	if s.vision == nil {
		writeError(w, r, http.StatusServiceUnavailable, "OCR_DISABLED", "document extraction is not configured")
		return
	}

	var req documentsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid request body")
		return
	}
	if req.Deposit <= 0 {
		writeError(w, r, http.StatusBadRequest, "BAD_REQUEST", "deposit must be positive")
		return
	}
	if req.LedgerImage == "" && req.RegistryImage == "" {
		writeError(w, r, http.StatusBadRequest, "BAD_REQUEST", "at least one document image is required")
		return
	}
	mediaType := req.MediaType
	if mediaType == "" {
		mediaType = "image/png"
	}

	var ledger, registry map[string]any
	if req.LedgerImage != "" {
		img, err := base64.StdEncoding.DecodeString(req.LedgerImage)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "BAD_REQUEST", "ledger_image is not valid base64")
			return
		}
		ledger, err = s.vision.ExtractLedger(r.Context(), img, mediaType)
		if err != nil {
			zap.L().Error("server: ledger extraction failed", zap.Error(err))
			writeError(w, r, http.StatusBadGateway, "OCR_FAILED", "building ledger could not be read")
			return
		}
	}
	if req.RegistryImage != "" {
		img, err := base64.StdEncoding.DecodeString(req.RegistryImage)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "BAD_REQUEST", "registry_image is not valid base64")
			return
		}
		registry, err = s.vision.ExtractRegistry(r.Context(), img, mediaType)
		if err != nil {
			zap.L().Error("server: registry extraction failed", zap.Error(err))
			writeError(w, r, http.StatusBadGateway, "OCR_FAILED", "registry certificate could not be read")
			return
		}
	}

	result, err := s.service.Assess(r.Context(), assess.Request{
		Address:       req.Address,
		DepositManwon: req.Deposit,
		Ledger:        ledger,
		Registry:      registry,
	})
	if err != nil {
		s.writeAssessError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	addressKey := chi.URLParam(r, "addressKey")
	rec, err := s.store.LatestAssessment(r.Context(), addressKey)
	if err != nil {
		zap.L().Error("server: result lookup failed", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "INTERNAL", "result lookup failed")
		return
	}
	if rec == nil {
		writeError(w, r, http.StatusNotFound, "NOT_FOUND", "no assessment for address key")
		return
	}
	writeJSON(w, r, http.StatusOK, rec)
}

// writeAssessError maps pipeline failures to HTTP statuses: bad input is 400,
// unpriceable parcels are 422, everything else is 500.
func (s *Server) writeAssessError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, assess.ErrNoAddress),
		errors.Is(err, address.ErrAddressFormat),
		errors.Is(err, address.ErrDistrictNotFound):
		writeError(w, r, http.StatusBadRequest, "ADDRESS_INVALID", err.Error())
	case errors.Is(err, price.ErrNoMarketPrice):
		writeError(w, r, http.StatusUnprocessableEntity, "INSUFFICIENT_PRICING_DATA",
			"no market price could be resolved for this parcel")
	default:
		zap.L().Error("server: assessment failed", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "INTERNAL", "assessment failed")
	}
}
