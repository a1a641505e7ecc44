package analysis_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/viewportly/pkg/logger"
	"github.com/dmitrymomot/viewportly/svc/analysis"
	"github.com/dmitrymomot/viewportly/svc/billing"
)

type stubAnalyzer struct {
	err error
}

func (s stubAnalyzer) Analyze(_ context.Context, pageURL string) (*analysis.Report, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &analysis.Report{URL: pageURL, StatusCode: http.StatusOK, HasViewport: true, Responsive: true, Issues: []string{}}, nil
}

type recordingSink struct {
	mu      sync.Mutex
	intents []billing.Intent
}

func (s *recordingSink) Send(_ context.Context, in billing.Intent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.intents = append(s.intents, in)
	return nil
}

func (s *recordingSink) percents() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int, 0, len(s.intents))
	for _, in := range s.intents {
		out = append(out, in.Percent)
	}
	return out
}

type fixture struct {
	store *billing.MemoryStore
	sink  *recordingSink
	user  *billing.User
	svc   *analysis.Service
}

func newFixture(t *testing.T, analyzer analysis.Analyzer) *fixture {
	t.Helper()
	log := logger.Noop()
	store := billing.NewMemoryStore()
	sink := &recordingSink{}
	meter := billing.NewMeter(store, store, billing.DefaultCatalog("price_pro", "price_unl"),
		billing.WithMeterLogger(log),
		billing.WithMeterClock(func() time.Time { return time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC) }),
	)
	dispatcher := billing.NewDispatcher(sink, billing.WithDispatcherLogger(log))

	user := &billing.User{ID: uuid.New(), Email: "ada@example.com", Tier: billing.TierFree}
	require.NoError(t, store.CreateUser(context.Background(), user))

	return &fixture{
		store: store,
		sink:  sink,
		user:  user,
		svc:   analysis.NewService(meter, dispatcher, analyzer, analysis.WithLogger(log)),
	}
}

func TestServiceMetersSuccessfulAnalyses(t *testing.T) {
	t.Parallel()
	f := newFixture(t, stubAnalyzer{})
	ctx := context.Background()

	for range 10 {
		_, err := f.svc.Analyze(ctx, f.user.ID, "https://example.com")
		require.NoError(t, err)
	}
	assert.Equal(t, []int{80, 100}, f.sink.percents())

	_, err := f.svc.Analyze(ctx, f.user.ID, "https://example.com")
	var limitErr *billing.LimitError
	require.ErrorAs(t, err, &limitErr)
	assert.EqualValues(t, 10, limitErr.Used)

	rec, err := f.store.GetUsage(ctx, f.user.ID, "2025-05")
	require.NoError(t, err)
	assert.EqualValues(t, 10, rec.Count)
}

func TestServiceSkipsCommitOnFailure(t *testing.T) {
	t.Parallel()
	f := newFixture(t, stubAnalyzer{err: analysis.ErrFetchFailed})
	ctx := context.Background()

	_, err := f.svc.Analyze(ctx, f.user.ID, "https://example.com")
	assert.ErrorIs(t, err, analysis.ErrFetchFailed)

	_, err = f.svc.Analyze(ctx, f.user.ID, "not a url")
	assert.ErrorIs(t, err, analysis.ErrInvalidURL)

	rec, err := f.store.GetUsage(ctx, f.user.ID, "2025-05")
	require.NoError(t, err)
	assert.Zero(t, rec.Count)
}

func newRouter(f *fixture) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if id, err := uuid.Parse(r.Header.Get("X-User-ID")); err == nil {
				r = r.WithContext(billing.WithUserID(r.Context(), id))
			}
			next.ServeHTTP(w, r)
		})
	})
	r.Mount("/analyses", analysis.NewHandler(f.svc, logger.Noop()).Routes())
	return r
}

func post(h http.Handler, body string, userID uuid.UUID) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/analyses", strings.NewReader(body))
	if userID != uuid.Nil {
		req.Header.Set("X-User-ID", userID.String())
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandler(t *testing.T) {
	t.Parallel()
	f := newFixture(t, stubAnalyzer{})
	h := newRouter(f)

	assert.Equal(t, http.StatusUnauthorized, post(h, `{"url":"https://example.com"}`, uuid.Nil).Code)
	assert.Equal(t, http.StatusBadRequest, post(h, `nope`, f.user.ID).Code)
	assert.Equal(t, http.StatusBadRequest, post(h, `{"url":"mailto:a@b"}`, f.user.ID).Code)
	assert.Equal(t, http.StatusNotFound, post(h, `{"url":"https://example.com"}`, uuid.New()).Code)

	for range 10 {
		rec := post(h, `{"url":"https://example.com"}`, f.user.ID)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	rec := post(h, `{"url":"https://example.com"}`, f.user.ID)
	require.Equal(t, http.StatusPaymentRequired, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "usage_limit_exceeded", body["error"])
	assert.EqualValues(t, 10, body["limit"])
	assert.Equal(t, "2025-05", body["period"])
}

func TestHandlerAnalyzerFailure(t *testing.T) {
	t.Parallel()
	f := newFixture(t, stubAnalyzer{err: errors.Join(analysis.ErrNotHTML, errors.New("image/png"))})
	rec := post(newRouter(f), `{"url":"https://example.com/logo.png"}`, f.user.ID)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}
