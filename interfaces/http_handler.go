package interfaces

import (
	"context"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"forms-api/domain"
)

// maxCareerBody bounds a career request body; anything larger is rejected as
// an oversized résumé without being parsed.
const maxCareerBody = 4 * domain.MaxResumeSize

// maxContactBody bounds a contact request body.
const maxContactBody = 64 << 10

const readinessTimeout = 5 * time.Second

const (
	fileTooLarge = "File size must be less than 5MB"
	bodyTooLarge = "Request body too large"
)

// Submitter runs a submission through the pipeline.
type Submitter interface {
	Submit(ctx context.Context, sub domain.Submission) (*domain.Result, error)
}

// ReadinessChecker reports whether the backing stores are reachable.
type ReadinessChecker interface {
	Ready(ctx context.Context) error
}

type HTTPHandler struct {
	Pipeline Submitter
	Verifier domain.Verifier
	Secrets  map[domain.Kind]string
	// Readiness is optional; without it /health/ready always succeeds.
	Readiness ReadinessChecker
	Logger    *zap.Logger
}

func NewHTTPHandler(router *gin.Engine, h *HTTPHandler) {
	if h.Logger == nil {
		h.Logger = zap.NewNop()
	}

	router.GET("/", h.Root)
	router.GET("/health", h.Health)
	router.GET("/health/ready", h.Ready)

	api := router.Group("/api")
	{
		api.POST("/contact", h.SubmitContact)
		api.POST("/career", h.SubmitCareer)
		api.POST("/verify-turnstile", h.VerifyTurnstile)
	}
}

func (h *HTTPHandler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "message": "Forms API is running"})
}

func (h *HTTPHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// Ready reports 503 when the configured ledger cannot be reached.
func (h *HTTPHandler) Ready(c *gin.Context) {
	if h.Readiness != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
		defer cancel()
		if err := h.Readiness.Ready(ctx); err != nil {
			h.Logger.Warn("readiness check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "detail": "Ledger unreachable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

type contactForm struct {
	Name           string `form:"name" json:"name"`
	Email          string `form:"email" json:"email"`
	Phone          string `form:"phone" json:"phone"`
	Company        string `form:"company" json:"company"`
	Message        string `form:"message" json:"message"`
	TurnstileToken string `form:"turnstileToken" json:"turnstileToken"`
}

// careerForm accepts both camelCase and snake_case names for the position
// and cover letter fields.
type careerForm struct {
	Name                 string `form:"name"`
	Email                string `form:"email"`
	Phone                string `form:"phone"`
	PositionApplied      string `form:"positionApplied"`
	PositionAppliedSnake string `form:"position_applied"`
	CoverLetter          string `form:"coverLetter"`
	CoverLetterSnake     string `form:"cover_letter"`
	TurnstileToken       string `form:"turnstileToken"`
}

// SubmitContact handles the contact inquiry form.
func (h *HTTPHandler) SubmitContact(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxContactBody)

	var form contactForm
	if err := c.ShouldBind(&form); err != nil {
		h.badRequest(c, err, bodyTooLarge)
		return
	}

	h.submit(c, &domain.ContactSubmission{
		Name:           form.Name,
		Email:          form.Email,
		Phone:          form.Phone,
		Company:        form.Company,
		Message:        form.Message,
		TurnstileToken: form.TurnstileToken,
	})
}

// SubmitCareer handles the job application form and its résumé upload.
func (h *HTTPHandler) SubmitCareer(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxCareerBody)

	var form careerForm
	if err := c.ShouldBind(&form); err != nil {
		h.badRequest(c, err, fileTooLarge)
		return
	}

	sub := &domain.CareerSubmission{
		Name:            form.Name,
		Email:           form.Email,
		Phone:           form.Phone,
		PositionApplied: firstNonEmpty(form.PositionApplied, form.PositionAppliedSnake),
		CoverLetter:     firstNonEmpty(form.CoverLetter, form.CoverLetterSnake),
		TurnstileToken:  form.TurnstileToken,
	}

	header, err := c.FormFile("resume")
	switch {
	case err == nil:
		file, err := header.Open()
		if err != nil {
			h.badRequest(c, err, fileTooLarge)
			return
		}
		defer file.Close()

		sub.Resume = &domain.ResumeFile{
			Filename:  header.Filename,
			MediaType: resumeMediaType(header, file),
			Size:      header.Size,
			Content:   file,
		}
	case errors.Is(err, http.ErrMissingFile):
		// reported by validation
	default:
		h.badRequest(c, err, fileTooLarge)
		return
	}

	h.submit(c, sub)
}

func (h *HTTPHandler) submit(c *gin.Context, sub domain.Submission) {
	res, err := h.Pipeline.Submit(c.Request.Context(), sub)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": res.Message})
}

// fail maps pipeline errors onto the {detail} envelope. Causes are logged,
// never returned.
func (h *HTTPHandler) fail(c *gin.Context, err error) {
	var se *domain.SubmissionError
	if errors.As(err, &se) && se.ClientFault() {
		c.JSON(http.StatusBadRequest, gin.H{"detail": se.Detail})
		return
	}

	h.Logger.Error("submission failed",
		zap.String("request_id", c.GetString("request_id")),
		zap.String("path", c.FullPath()),
		zap.Error(err),
	)
	detail := "Internal Server Error"
	if se != nil {
		detail = se.Detail
	}
	c.JSON(http.StatusInternalServerError, gin.H{"detail": detail})
}

// badRequest answers an unreadable body; tooLarge is the detail used when the
// body exceeded its limit.
func (h *HTTPHandler) badRequest(c *gin.Context, err error, tooLarge string) {
	h.Logger.Info("unreadable form",
		zap.String("request_id", c.GetString("request_id")),
		zap.Error(err),
	)
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) || strings.Contains(err.Error(), "request body too large") {
		c.JSON(http.StatusBadRequest, gin.H{"detail": tooLarge})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid form data received"})
}

type verifyRequest struct {
	Token    string `json:"token"`
	FormType string `json:"formType"`
}

// VerifyTurnstile checks a token without submitting anything, so the frontend
// can validate the widget before posting the form.
func (h *HTTPHandler) VerifyTurnstile(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request body"})
		return
	}
	if req.Token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Missing token"})
		return
	}

	kind := domain.Kind(req.FormType)
	if kind != domain.KindContact && kind != domain.KindCareer {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid form type"})
		return
	}

	secret := h.Secrets[kind]
	if secret == "" {
		c.JSON(http.StatusOK, gin.H{"success": true, "skipped": true})
		return
	}
	if !h.Verifier.Verify(c.Request.Context(), req.Token, secret) {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Verification failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// resumeMediaType trusts the declared part type unless it is missing or
// generic, in which case the content is sniffed.
func resumeMediaType(header *multipart.FileHeader, file multipart.File) string {
	declared := header.Header.Get("Content-Type")
	if mt, _, err := mime.ParseMediaType(declared); err == nil {
		declared = mt
	}
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}

	detected, err := mimetype.DetectReader(file)
	if _, serr := file.Seek(0, io.SeekStart); serr != nil || err != nil {
		return declared
	}
	mt, _, _ := strings.Cut(detected.String(), ";")
	return mt
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
