package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/oapi-codegen/runtime"
	"github.com/sirupsen/logrus"

	"github.com/xbeat/certicredia-sub001/internal/domain"
	"github.com/xbeat/certicredia-sub001/internal/ports"
)

// Assessments is the assessment service as seen by the HTTP layer.
type Assessments interface {
	ports.Assessments
	WriteInProgress(key domain.AssessmentKey) bool
}

// Indicators lists and resolves loaded indicator definitions.
type Indicators interface {
	ports.IndicatorSource
	IDs() []string
}

type Options struct {
	// WriteRPS and WriteBurst bound assessment writes per organization. A
	// non-positive WriteRPS disables the limit.
	WriteRPS   float64
	WriteBurst int
	// Ping, when set, backs /healthz with a storage check.
	Ping func(ctx context.Context) error
}

type Server struct {
	assessments Assessments
	orgs        ports.Organizations
	indicators  Indicators
	limiter     *writeLimiter
	ping        func(ctx context.Context) error
	log         logrus.FieldLogger
}

func New(assessments Assessments, orgs ports.Organizations, indicators Indicators, log logrus.FieldLogger, opts Options) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Server{
		assessments: assessments,
		orgs:        orgs,
		indicators:  indicators,
		limiter:     newWriteLimiter(opts.WriteRPS, opts.WriteBurst),
		ping:        opts.Ping,
		log:         log,
	}
}

func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(ensureRequestID, middleware.RequestID, middleware.RealIP, s.requestLogger, middleware.Recoverer)

	r.Get("/healthz", s.getHealthz)

	r.Route("/indicators", func(r chi.Router) {
		r.Get("/", s.listIndicators)
		r.Get("/{indicatorId}", s.getIndicator)
		r.Post("/{indicatorId}/score", s.postScore)
	})

	r.Post("/organizations", s.postOrganization)
	r.Route("/organizations/{orgId}", func(r chi.Router) {
		r.Get("/", s.getOrganization)
		r.Get("/aggregate", s.getAggregate)
		r.Get("/maturity", s.getMaturity)

		r.Get("/assessments", s.listAssessments)
		r.Post("/assessments", s.postAssessment)
		r.Route("/assessments/{indicatorId}", func(r chi.Router) {
			r.Get("/", s.getAssessment)
			r.Get("/history", s.getHistory)
			r.Post("/history", s.postHistory)
			r.Post("/reset", s.postReset)
			r.Post("/revert", s.postRevert)
		})
	})
	return r
}

func (s *Server) getHealthz(w http.ResponseWriter, r *http.Request) {
	if s.ping != nil {
		if err := s.ping(r.Context()); err != nil {
			s.log.WithError(err).Warn("storage health check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) listIndicators(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"indicators": s.indicators.IDs()})
}

func (s *Server) getIndicator(w http.ResponseWriter, r *http.Request) {
	id, err := pathParam(r, "indicatorId")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	def, err := s.indicators.Get(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, def)
}

func (s *Server) postScore(w http.ResponseWriter, r *http.Request) {
	id, err := pathParam(r, "indicatorId")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var body struct {
		Responses domain.Responses `json:"responses"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.assessments.Preview(r.Context(), id, body.Responses)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) postOrganization(w http.ResponseWriter, r *http.Request) {
	var body domain.Organization
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	// Ids and timestamps are server-assigned.
	body.ID, body.CreatedAt, body.Domain = "", time.Time{}, ""
	org, err := s.orgs.Create(r.Context(), body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, org)
}

func (s *Server) getOrganization(w http.ResponseWriter, r *http.Request) {
	orgID, err := pathParam(r, "orgId")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	org, err := s.orgs.Get(r.Context(), orgID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, org)
}

func (s *Server) getAggregate(w http.ResponseWriter, r *http.Request) {
	orgID, err := pathParam(r, "orgId")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	agg, err := s.orgs.Aggregate(r.Context(), orgID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, agg)
}

func (s *Server) getMaturity(w http.ResponseWriter, r *http.Request) {
	orgID, err := pathParam(r, "orgId")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	m, err := s.orgs.Maturity(r.Context(), orgID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) listAssessments(w http.ResponseWriter, r *http.Request) {
	orgID, err := pathParam(r, "orgId")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	recs, err := s.assessments.List(r.Context(), orgID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

type assessBody struct {
	IndicatorID string                    `json:"indicator_id"`
	Responses   domain.Responses          `json:"responses"`
	Metadata    domain.AssessmentMetadata `json:"metadata"`
	User        string                    `json:"user"`
	// Score is stored only for indicators without a loaded definition.
	Score *domain.ScoreResult `json:"score,omitempty"`
}

func (s *Server) postAssessment(w http.ResponseWriter, r *http.Request) {
	orgID, err := pathParam(r, "orgId")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var body assessBody
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	if body.IndicatorID == "" {
		s.writeError(w, r, badRequest(fmt.Errorf("indicator_id is required")))
		return
	}
	s.assess(w, r, domain.AssessmentKey{OrganizationID: orgID, IndicatorID: body.IndicatorID}, body)
}

func (s *Server) postHistory(w http.ResponseWriter, r *http.Request) {
	key, err := assessmentKey(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var body assessBody
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	if body.IndicatorID != "" && body.IndicatorID != key.IndicatorID {
		s.writeError(w, r, badRequest(fmt.Errorf("indicator_id %q does not match path", body.IndicatorID)))
		return
	}
	s.assess(w, r, key, body)
}

func (s *Server) assess(w http.ResponseWriter, r *http.Request, key domain.AssessmentKey, body assessBody) {
	var autosave bool
	if err := runtime.BindQueryParameter("form", true, false, "autosave", r.URL.Query(), &autosave); err != nil {
		s.writeError(w, r, badRequest(err))
		return
	}
	// Autosaves stand down while a reset or revert holds the record.
	if autosave && s.assessments.WriteInProgress(key) {
		writeJSON(w, http.StatusConflict, errorBody{Error: "write in progress"})
		return
	}
	if !s.limiter.allow(key.OrganizationID) {
		writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "too many writes"})
		return
	}
	v, err := s.assessments.Assess(r.Context(), ports.AssessInput{
		Key:       key,
		Responses: body.Responses,
		Metadata:  body.Metadata,
		User:      body.User,
		Result:    body.Score,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

func (s *Server) getAssessment(w http.ResponseWriter, r *http.Request) {
	key, err := assessmentKey(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	rec, err := s.assessments.Get(r.Context(), key)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) getHistory(w http.ResponseWriter, r *http.Request) {
	key, err := assessmentKey(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	history, err := s.assessments.History(r.Context(), key)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (s *Server) postReset(w http.ResponseWriter, r *http.Request) {
	key, err := assessmentKey(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var body struct {
		User string `json:"user"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	if !s.limiter.allow(key.OrganizationID) {
		writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "too many writes"})
		return
	}
	v, err := s.assessments.Reset(r.Context(), key, body.User)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

func (s *Server) postRevert(w http.ResponseWriter, r *http.Request) {
	key, err := assessmentKey(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var body struct {
		Version int    `json:"version"`
		User    string `json:"user"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	if body.Version < 1 {
		s.writeError(w, r, badRequest(fmt.Errorf("version must be a positive integer")))
		return
	}
	v, err := s.assessments.Revert(r.Context(), key, body.Version, body.User)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

func pathParam(r *http.Request, name string) (string, error) {
	var out string
	err := runtime.BindStyledParameterWithOptions("simple", name, chi.URLParam(r, name), &out, runtime.BindStyledParameterOptions{
		ParamLocation: runtime.ParamLocationPath,
		Explode:       false,
		Required:      true,
	})
	if err != nil {
		return "", badRequest(err)
	}
	return out, nil
}

func assessmentKey(r *http.Request) (domain.AssessmentKey, error) {
	orgID, err := pathParam(r, "orgId")
	if err != nil {
		return domain.AssessmentKey{}, err
	}
	indicatorID, err := pathParam(r, "indicatorId")
	if err != nil {
		return domain.AssessmentKey{}, err
	}
	return domain.AssessmentKey{OrganizationID: orgID, IndicatorID: indicatorID}, nil
}

const maxBodyBytes = 1 << 20

func decodeBody(r *http.Request, dst any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return badRequest(fmt.Errorf("decode body: %w", err))
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ensureRequestID seeds X-Request-Id so that middleware.RequestID propagates a
// uuid rather than its host-based counter.
func ensureRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(middleware.RequestIDHeader) == "" {
			r.Header.Set(middleware.RequestIDHeader, uuid.NewString())
		}
		w.Header().Set(middleware.RequestIDHeader, r.Header.Get(middleware.RequestIDHeader))
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"bytes":      ww.BytesWritten(),
			"duration":   time.Since(start),
			"request_id": middleware.GetReqID(r.Context()),
		}).Info("request")
	})
}
