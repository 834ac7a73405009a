package handlers

import (
	"github.com/gofiber/fiber/v2"

	"brochure-pdf/internal/config"
	"brochure-pdf/internal/domain"
	"brochure-pdf/internal/infra/cache"
	"brochure-pdf/internal/infra/logging"
	"brochure-pdf/internal/render"
)

// Messages returned to HTTP clients when rendering fails.
const (
	MsgRenderFailed = "Error generating PDF from HTML."
	MsgUnexpected   = "Error generating PDF: "
)

// StatsProvider is implemented by renderers that can describe their engine.
type StatsProvider interface {
	Stats() render.EngineStats
}

// PDFService bundles configuration and dependencies for PDF rendering.
type PDFService struct {
	Config   *config.Config
	Renderer render.Renderer
	Cache    *cache.PDFCache
}

// NewPDFService creates a new PDFService. cache may be nil.
func NewPDFService(cfg config.Config, r render.Renderer, c *cache.PDFCache) *PDFService {
	return &PDFService{
		Config:   &cfg,
		Renderer: r,
		Cache:    c,
	}
}

// HandleGeneratePDF converts the html_content of a JSON body into a PDF attachment.
func (svc *PDFService) HandleGeneratePDF(c *fiber.Ctx) error {
	html, err := domain.ParseConversionRequest(c.Body(), c.App().Config().JSONDecoder)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, domain.InvalidRequestMessage)
	}

	requestID := c.GetRespHeader(fiber.HeaderXRequestID)
	key := cache.Key(svc.engineName(), html)
	if cached := svc.Cache.Get(c.UserContext(), key); cached != nil {
		return svc.sendPDF(c, cached)
	}

	pdf, err := svc.Renderer.Render(c.UserContext(), html, render.DefaultEncoding)
	if err != nil {
		return renderFailure(err, requestID)
	}

	svc.Cache.Set(c.UserContext(), key, pdf)
	logging.Info("PDF generated", "bytes", len(pdf), "request_id", requestID)
	return svc.sendPDF(c, pdf)
}

func (svc *PDFService) sendPDF(c *fiber.Ctx, pdf []byte) error {
	c.Set(fiber.HeaderContentType, "application/pdf")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+svc.Config.PDF.DownloadName+`"`)
	return c.Send(pdf)
}

// renderFailure maps a conversion error to its HTTP response. Declared engine
// failures are logged but their diagnostic is not sent to the client.
func renderFailure(err error, requestID string) error {
	diag := domain.DiagnosticOf(err)

	switch domain.KindOf(err) {
	case domain.KindRender:
		logging.Error("PDF rendering failed", "diagnostic", diag, "request_id", requestID)
		return fiber.NewError(fiber.StatusInternalServerError, MsgRenderFailed)
	default:
		logging.Error("PDF generation raised an error", "error", diag, "request_id", requestID)
		return fiber.NewError(fiber.StatusInternalServerError, MsgUnexpected+diag)
	}
}

func (svc *PDFService) engineName() string {
	if sp, ok := svc.Renderer.(StatsProvider); ok {
		return sp.Stats().Engine
	}
	return svc.Config.PDF.Engine
}

// HandleRendererStats exposes the engine name, timeout and pool usage.
func (svc *PDFService) HandleRendererStats(c *fiber.Ctx) error {
	sp, ok := svc.Renderer.(StatsProvider)
	if !ok {
		return c.JSON(render.EngineStats{Engine: svc.Config.PDF.Engine, TimeoutSecs: svc.Config.PDF.TimeoutSecs})
	}
	return c.JSON(sp.Stats())
}
