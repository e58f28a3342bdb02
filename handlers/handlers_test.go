package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	stdimage "image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jknair0/beforeeach"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sahayak/authority"
	"sahayak/email"
	"sahayak/models"
	"sahayak/osm"
	"sahayak/service"
	"sahayak/stubllm"
)

const testRegistry = `{
	"Kolkata Municipal Corporation": {"Pothole": "roads@kmc.example.gov", "default": "info@kmc.example.gov"},
	"Howrah Municipal Corporation": {"default": "help@hmc.example.gov"}
}`

type fakeMailer struct {
	sent []*email.Message
	err  error
}

func (f *fakeMailer) Send(ctx context.Context, msg *email.Message) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeMailer) Transport() string { return "fake" }

var (
	llmClient     *stubllm.Client
	mailer        *fakeMailer
	store         *authority.Store
	signer        *service.RecipientSigner
	nominatim     *httptest.Server
	geocoderCalls int32
)

func setUp() {
	gin.SetMode(gin.TestMode)
	llmClient = stubllm.NewClient()
	mailer = &fakeMailer{}
	signer = service.NewRecipientSigner("test-secret")
	reg, _ := authority.Parse([]byte(testRegistry), authority.FormatJSON)
	store = authority.NewStaticStore(reg)

	atomic.StoreInt32(&geocoderCalls, 0)
	nominatim = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&geocoderCalls, 1)
		w.Write([]byte(`{"display_name":"Park Street, Kolkata, West Bengal","address":{"city":"Kolkata"}}`))
	}))
}

func tearDown() {
	nominatim.Close()
}

var it = beforeeach.Create(setUp, tearDown)

type options struct {
	noAI           bool
	noMailer       bool
	geocoderURL    string
	maxUploadBytes int64
}

func newRouter(t *testing.T, opts options) *gin.Engine {
	t.Helper()

	var classifier *service.Classifier
	var drafts *service.DraftGenerator
	if !opts.noAI {
		classifier = service.NewClassifier(llmClient, service.ImageLimits{
			MaxDimension:   1536,
			MaxUploadBytes: opts.maxUploadBytes,
		})
		drafts = service.NewDraftGenerator(llmClient)
	}

	geocoderURL := nominatim.URL
	if opts.geocoderURL != "" {
		geocoderURL = opts.geocoderURL
	}
	resolver := service.NewResolver(osm.NewClient(geocoderURL, "", time.Second), store)

	var m service.Mailer
	if !opts.noMailer {
		m = mailer
	}
	submitter := service.NewSubmitter(store, m, "sender@example.com", nil, signer)

	router, err := SetupRouter(NewHandlers(classifier, drafts, resolver, submitter, store, signer))
	require.NoError(t, err)
	return router
}

// pngUpload omits empty coordinates from the form.
func pngUpload(t *testing.T, lat, lon string) *http.Request {
	t.Helper()
	fields := map[string]string{}
	if lat != "" {
		fields["lat"] = lat
	}
	if lon != "" {
		fields["lon"] = lon
	}
	return upload(t, fields)
}

func upload(t *testing.T, fields map[string]string) *http.Request {
	t.Helper()
	var img bytes.Buffer
	require.NoError(t, png.Encode(&img, stdimage.NewRGBA(stdimage.Rect(0, 0, 8, 8))))

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("image", "issue.png")
	require.NoError(t, err)
	part.Write(img.Bytes())
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/analyze", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func jsonRequest(method, path string, body interface{}) *http.Request {
	b, _ := json.Marshal(body)
	req := httptest.NewRequest(method, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func serve(router *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestPages(t *testing.T) {
	it(func() {
		router := newRouter(t, options{})
		for path, want := range map[string]string{
			"/":                 "Start a report",
			"/index":            "Start a report",
			"/how-it-works":     "How it works",
			"/report":           "image-input",
			"/static/js/app.js": "generate_drafts",
		} {
			w := serve(router, httptest.NewRequest(http.MethodGet, path, nil))
			assert.Equal(t, http.StatusOK, w.Code, path)
			assert.Contains(t, w.Body.String(), want, path)
		}
	})
}

func TestAnalyze(t *testing.T) {
	it(func() {
		llmClient.WithReply("```json\n{\"category\": \"Water Logging\", \"severity\": 6}\n```")
		router := newRouter(t, options{})

		w := serve(router, pngUpload(t, "22.57", "88.36"))
		assert.Equal(t, http.StatusOK, w.Code)

		var got models.Analysis
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		assert.Equal(t, models.Analysis{Category: "Water Logging", Severity: 6, Lat: "22.57", Lon: "88.36"}, got)
		assert.NotContains(t, w.Body.String(), `"error"`)
		assert.Equal(t, "image/png", llmClient.LastMIMEType())
	})
}

func TestAnalyzeDegradesToDefault(t *testing.T) {
	it(func() {
		llmClient.WithError(errors.New("service unavailable"))
		router := newRouter(t, options{})

		w := serve(router, pngUpload(t, "", ""))
		assert.Equal(t, http.StatusOK, w.Code)
		body := decode(t, w)
		assert.Equal(t, "Other", body["category"])
		assert.Equal(t, float64(5), body["severity"])
		assert.Equal(t, "N/A", body["lat"])
		assert.Equal(t, "N/A", body["lon"])
		assert.Equal(t, models.ErrCodeAnalysisFailed, body["error"])
	})
}

func TestAnalyzeEmptyCoordinates(t *testing.T) {
	it(func() {
		router := newRouter(t, options{})

		w := serve(router, upload(t, map[string]string{"lat": "", "lon": ""}))
		assert.Equal(t, http.StatusOK, w.Code)
		body := decode(t, w)
		assert.Equal(t, models.LocationNotProvided, body["lat"])
		assert.Equal(t, models.LocationNotProvided, body["lon"])

		w = serve(router, upload(t, map[string]string{"lat": "22.57", "lon": ""}))
		body = decode(t, w)
		assert.Equal(t, "22.57", body["lat"])
		assert.Equal(t, models.LocationNotProvided, body["lon"])
	})
}

func TestAnalyzeUploadLimit(t *testing.T) {
	it(func() {
		router := newRouter(t, options{maxUploadBytes: 16})

		w := serve(router, pngUpload(t, "22.57", "88.36"))
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		assert.Equal(t, models.ErrCodeImageTooLarge, decode(t, w)["error"])

		// Without a declared length the body is cut off while reading.
		req := pngUpload(t, "22.57", "88.36")
		req.ContentLength = -1
		w = serve(router, req)
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		assert.Equal(t, models.ErrCodeImageTooLarge, decode(t, w)["error"])

		assert.Equal(t, 0, llmClient.Calls())
	})
}

func TestAnalyzeErrors(t *testing.T) {
	it(func() {
		w := serve(newRouter(t, options{}), httptest.NewRequest(http.MethodPost, "/analyze", nil))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, models.ErrCodeNoImage, decode(t, w)["error"])

		w = serve(newRouter(t, options{noAI: true}), pngUpload(t, "1", "2"))
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, models.ErrCodeAPIKeyNotFound, decode(t, w)["error"])
		assert.Equal(t, 0, llmClient.Calls())
	})
}

func TestGenerateDrafts(t *testing.T) {
	it(func() {
		router := newRouter(t, options{})
		w := serve(router, jsonRequest(http.MethodPost, "/generate_drafts", map[string]interface{}{
			"authority_name": "Kolkata Municipal Corporation",
			"category":       "Pothole",
			"severity":       "8",
			"location_name":  "Park Street",
		}))
		assert.Equal(t, http.StatusOK, w.Code)

		var drafts models.Drafts
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &drafts))
		assert.NotEmpty(t, drafts.DraftEN)
		assert.NotEmpty(t, drafts.DraftBN)
		assert.Contains(t, llmClient.LastPrompt(), `Severity (1-10): "8"`)
	})
}

func TestGenerateDraftsErrors(t *testing.T) {
	it(func() {
		llmClient.WithReply("Sure! Here is the email: Dear Sir...")
		router := newRouter(t, options{})

		w := serve(router, jsonRequest(http.MethodPost, "/generate_drafts", map[string]interface{}{"category": "Pothole"}))
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		body := decode(t, w)
		assert.Equal(t, models.ErrCodeDraftGenerationFailed, body["error"])
		assert.NotEmpty(t, body["message"])

		req := httptest.NewRequest(http.MethodPost, "/generate_drafts", strings.NewReader("{not json"))
		req.Header.Set("Content-Type", "application/json")
		w = serve(router, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, models.ErrCodeInvalidRequest, decode(t, w)["error"])

		w = serve(newRouter(t, options{noAI: true}), jsonRequest(http.MethodPost, "/generate_drafts", map[string]interface{}{}))
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, models.ErrCodeAPIKeyNotFound, decode(t, w)["error"])
	})
}

func TestReview(t *testing.T) {
	it(func() {
		router := newRouter(t, options{})
		q := url.Values{"lat": {"22.55"}, "lon": {"88.35"}, "category": {"Pothole"}, "severity": {"7"}, "ref": {"sms"}}

		w := serve(router, httptest.NewRequest(http.MethodGet, "/review?"+q.Encode(), nil))
		assert.Equal(t, http.StatusOK, w.Code)
		html := w.Body.String()
		assert.Contains(t, html, "Park Street, Kolkata, West Bengal")
		assert.Contains(t, html, `<option value="Kolkata Municipal Corporation" selected>`)
		assert.Contains(t, html, `<option value="Pothole" selected>`)
		assert.Contains(t, html, `value="7"`)
		assert.Contains(t, html, `name="ref" value="sms"`)
		assert.Contains(t, html, "Howrah Municipal Corporation")
		assert.Contains(t, html, `"fallback":"`+authority.FallbackRecipient+`"`)
		assert.Contains(t, html, `{"city":"Kolkata Municipal Corporation","contacts":{"Pothole":"roads@kmc.example.gov","default":"info@kmc.example.gov"}}`)
		assert.Contains(t, html, `{"city":"Howrah Municipal Corporation","contacts":{"default":"help@hmc.example.gov"}}`)
		assert.Equal(t, int32(1), atomic.LoadInt32(&geocoderCalls))
	})
}

func TestReviewWithoutLocation(t *testing.T) {
	it(func() {
		router := newRouter(t, options{})
		w := serve(router, httptest.NewRequest(http.MethodGet, "/review?lat=N/A&lon=N/A&category=Other&error=AI_ANALYSIS_FAILED", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), service.AddressNotProvided)
		assert.Contains(t, w.Body.String(), "could not classify")
		assert.Equal(t, int32(0), atomic.LoadInt32(&geocoderCalls))
	})
}

func TestReviewGeocoderDown(t *testing.T) {
	it(func() {
		down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "bad gateway", http.StatusBadGateway)
		}))
		defer down.Close()

		router := newRouter(t, options{geocoderURL: down.URL})
		w := serve(router, httptest.NewRequest(http.MethodGet, "/review?lat=22.5&lon=88.3", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), service.AddressUnavailable)
	})
}

func TestSubmitReport(t *testing.T) {
	it(func() {
		router := newRouter(t, options{})
		w := serve(router, jsonRequest(http.MethodPost, "/submit_report", models.SubmitRequest{
			Category:      "Pothole",
			LocationName:  "Park Street",
			DraftEN:       "Respected Sir/Madam",
			AuthorityCity: "Kolkata Municipal Corporation",
		}))
		assert.Equal(t, http.StatusOK, w.Code)

		var resp models.SubmitResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.True(t, resp.Success)
		assert.Equal(t, "roads@kmc.example.gov", resp.Recipient)
		assert.True(t, signer.Verify(resp.Recipient, resp.Token))

		require.Len(t, mailer.sent, 1)
		assert.Equal(t, "Civic Issue Report: Pothole in Kolkata Municipal Corporation", mailer.sent[0].Subject)
		assert.True(t, strings.HasPrefix(mailer.sent[0].Body, "Location Address: Park Street\n\n---\n"))
	})
}

func TestSubmitReportErrors(t *testing.T) {
	it(func() {
		req := models.SubmitRequest{Category: "Pothole", DraftEN: "d", AuthorityCity: "Nowhere"}

		w := serve(newRouter(t, options{noMailer: true}), jsonRequest(http.MethodPost, "/submit_report", req))
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, models.ErrCodeSenderCredentialsNotFound, decode(t, w)["error"])
		assert.Empty(t, mailer.sent)

		mailer.err = errors.New("535 5.7.8 Username and Password not accepted")
		w = serve(newRouter(t, options{}), jsonRequest(http.MethodPost, "/submit_report", req))
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		body := decode(t, w)
		assert.Equal(t, models.ErrCodeEmailSendFailed, body["error"])
		assert.Contains(t, body["message"], "Password not accepted")

		bad := httptest.NewRequest(http.MethodPost, "/submit_report", strings.NewReader("[]"))
		bad.Header.Set("Content-Type", "application/json")
		w = serve(newRouter(t, options{}), bad)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, models.ErrCodeInvalidRequest, decode(t, w)["error"])
	})
}

func TestSubmitSuccess(t *testing.T) {
	it(func() {
		router := newRouter(t, options{})
		token := signer.Sign("roads@kmc.example.gov")

		tests := []struct {
			name     string
			query    url.Values
			expected string
			verified bool
		}{
			{"default", url.Values{}, models.DefaultSuccessRecipient, false},
			{"signed", url.Values{"recipient": {"roads@kmc.example.gov"}, "token": {token}}, "roads@kmc.example.gov", true},
			{"unsigned", url.Values{"recipient": {"roads@kmc.example.gov"}}, "roads@kmc.example.gov", false},
			{"mismatched token", url.Values{"recipient": {"help@hmc.example.gov"}, "token": {token}}, "help@hmc.example.gov", false},
			{"escaped", url.Values{"recipient": {"<b>x</b>"}}, "&lt;b&gt;x&lt;/b&gt;", false},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				w := serve(router, httptest.NewRequest(http.MethodGet, "/submit_success?"+tt.query.Encode(), nil))
				assert.Equal(t, http.StatusOK, w.Code)
				assert.Contains(t, w.Body.String(), "<strong>"+tt.expected+"</strong>")
				assert.Equal(t, tt.verified, strings.Contains(w.Body.String(), `class="verified"`))
			})
		}
	})
}

func TestHealthAndMetrics(t *testing.T) {
	it(func() {
		router := newRouter(t, options{})

		w := serve(router, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		body := decode(t, w)
		assert.Equal(t, "healthy", body["status"])
		assert.Equal(t, float64(2), body["authorities"])

		w = serve(router, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})
}
