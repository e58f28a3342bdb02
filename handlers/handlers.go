package handlers

import (
	"encoding/json"
	"errors"
	"html/template"
	"io"
	"net/http"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sahayak/authority"
	"sahayak/models"
	"sahayak/service"
	"sahayak/web"
)

// Handlers serves the reporting wizard.
type Handlers struct {
	classifier *service.Classifier
	drafts     *service.DraftGenerator
	resolver   *service.Resolver
	submitter  *service.Submitter
	store      *authority.Store
	signer     *service.RecipientSigner
}

// NewHandlers creates the HTTP handlers. classifier and drafts are nil when no AI
// credential is configured; the AI endpoints then answer API_KEY_NOT_FOUND.
func NewHandlers(
	classifier *service.Classifier,
	drafts *service.DraftGenerator,
	resolver *service.Resolver,
	submitter *service.Submitter,
	store *authority.Store,
	signer *service.RecipientSigner,
) *Handlers {
	return &Handlers{
		classifier: classifier,
		drafts:     drafts,
		resolver:   resolver,
		submitter:  submitter,
		store:      store,
		signer:     signer,
	}
}

// SetupRouter builds the gin engine with templates, assets and every route.
func SetupRouter(h *Handlers) (*gin.Engine, error) {
	tmpl, err := web.Templates()
	if err != nil {
		return nil, err
	}

	router := gin.Default()
	router.SetHTMLTemplate(tmpl)
	router.StaticFS("/static", web.Static())

	router.GET("/", h.Index)
	router.GET("/index", h.Index)
	router.GET("/how-it-works", h.HowItWorks)
	router.GET("/report", h.Report)
	router.POST("/analyze", h.Analyze)
	router.POST("/generate_drafts", h.GenerateDrafts)
	router.GET("/review", h.Review)
	router.POST("/submit_report", h.SubmitReport)
	router.GET("/submit_success", h.SubmitSuccess)

	router.GET("/health", h.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return router, nil
}

type page struct {
	Title      string
	Categories []string
}

func (h *Handlers) Index(c *gin.Context) {
	c.HTML(http.StatusOK, "index.html", page{Title: "Home", Categories: models.Categories})
}

func (h *Handlers) HowItWorks(c *gin.Context) {
	c.HTML(http.StatusOK, "how_it_works.html", page{Title: "How it works"})
}

func (h *Handlers) Report(c *gin.Context) {
	c.HTML(http.StatusOK, "report.html", page{Title: "Report an issue"})
}

// Analyze classifies the uploaded photo. Classification failures still answer 200.
func (h *Handlers) Analyze(c *gin.Context) {
	if h.classifier == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": models.ErrCodeAPIKeyNotFound})
		return
	}

	limit := h.classifier.MaxUploadBytes()
	if c.Request.ContentLength > limit {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": models.ErrCodeImageTooLarge})
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)

	fileHeader, err := c.FormFile("image")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": models.ErrCodeImageTooLarge})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": models.ErrCodeNoImage})
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": models.ErrCodeNoImage})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil || len(data) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": models.ErrCodeNoImage})
		return
	}

	lat := models.OrNotProvided(c.PostForm("lat"))
	lon := models.OrNotProvided(c.PostForm("lon"))

	c.JSON(http.StatusOK, h.classifier.Classify(c.Request.Context(), data, lat, lon))
}

// GenerateDrafts returns the English and Bengali complaint drafts.
func (h *Handlers) GenerateDrafts(c *gin.Context) {
	if h.drafts == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": models.ErrCodeAPIKeyNotFound})
		return
	}

	var req models.DraftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: models.ErrCodeInvalidRequest, Message: err.Error()})
		return
	}
	if req.Severity == 0 {
		req.Severity = models.DefaultSeverity
	}

	drafts, err := h.drafts.Generate(c.Request.Context(), req)
	if err != nil {
		log.WithError(err).Error("Draft generation failed")
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: models.ErrCodeDraftGenerationFailed, Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, drafts)
}

type reviewPage struct {
	Title            string
	Categories       []string
	Authorities      []*authority.Record
	Category         string
	Severity         models.Severity
	Lat              string
	Lon              string
	SuggestedCity    string
	AuthorityMatched bool
	DisplayAddress   string
	AnalysisFailed   bool
	Params           map[string]string
	// Directory lets the page preview the recipient for the chosen authority and category.
	Directory        template.JS
}

type directoryEntry struct {
	City     string            `json:"city"`
	Contacts *authority.Record `json:"contacts"`
}

func directoryJSON(records []*authority.Record) (template.JS, error) {
	entries := make([]directoryEntry, 0, len(records))
	for _, rec := range records {
		entries = append(entries, directoryEntry{City: rec.City, Contacts: rec})
	}
	b, err := json.Marshal(map[string]interface{}{
		"fallback":    authority.FallbackRecipient,
		"authorities": entries,
	})
	if err != nil {
		return "", err
	}
	return template.JS(b), nil
}

// Review resolves the location and renders the confirmation page.
func (h *Handlers) Review(c *gin.Context) {
	params := make(map[string]string)
	for k, v := range c.Request.URL.Query() {
		if len(v) > 0 {
			params[k] = v[0]
		}
	}

	lat := models.OrNotProvided(c.Query("lat"))
	lon := models.OrNotProvided(c.Query("lon"))
	info := h.resolver.Resolve(c.Request.Context(), lat, lon)

	severity := models.Severity(models.DefaultSeverity)
	if s, ok := c.GetQuery("severity"); ok {
		severity = models.ParseSeverity(s)
	}

	records := h.store.Registry().Records()
	directory, err := directoryJSON(records)
	if err != nil {
		log.WithError(err).Warn("Failed to encode authority directory")
		directory = "null"
	}

	c.HTML(http.StatusOK, "review.html", reviewPage{
		Title:            "Review your report",
		Categories:       models.Categories,
		Authorities:      records,
		Category:         models.NormalizeCategory(c.Query("category")),
		Severity:         severity,
		Lat:              lat,
		Lon:              lon,
		SuggestedCity:    info.City,
		AuthorityMatched: info.Authority != nil,
		DisplayAddress:   info.DisplayAddress,
		AnalysisFailed:   c.Query("error") != "",
		Params:           params,
		Directory:        directory,
	})
}

// SubmitReport mails the confirmed English draft to the resolved authority.
func (h *Handlers) SubmitReport(c *gin.Context) {
	var req models.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: models.ErrCodeInvalidRequest, Message: err.Error()})
		return
	}

	resp, err := h.submitter.Submit(c.Request.Context(), req)
	switch {
	case errors.Is(err, service.ErrSenderCredentials):
		log.Error("Sender credentials are not configured")
		c.JSON(http.StatusInternalServerError, gin.H{"error": models.ErrCodeSenderCredentialsNotFound})
	case err != nil:
		log.WithError(err).Error("Failed to send email")
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: models.ErrCodeEmailSendFailed, Message: err.Error()})
	default:
		c.JSON(http.StatusOK, resp)
	}
}

type successPage struct {
	Title     string
	Recipient string
	Verified  bool
}

// SubmitSuccess shows the recipient from the query string. Verified marks a
// recipient whose token was issued by SubmitReport.
func (h *Handlers) SubmitSuccess(c *gin.Context) {
	recipient := c.Query("recipient")
	verified := recipient != "" && h.signer.Verify(recipient, c.Query("token"))
	if recipient == "" {
		recipient = models.DefaultSuccessRecipient
	}
	c.HTML(http.StatusOK, "submit.html", successPage{Title: "Report sent", Recipient: recipient, Verified: verified})
}

// HealthCheck handles health check requests
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":       "healthy",
		"service":      "sahayak",
		"ai_available": h.classifier != nil,
		"authorities":  h.store.Registry().Len(),
	})
}
