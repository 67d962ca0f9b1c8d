package http

import (
	"errors"
	"net/http"

	"github.com/couchcryptid/pothole-monitor/internal/domain"
	"github.com/couchcryptid/pothole-monitor/internal/view"
	"github.com/gin-gonic/gin"
)

// Response messages are in the dashboard's language.
const (
	msgLoadFailed     = "No se pudo leer las detecciones"
	msgNoValid        = "Sin mediciones válidas"
	msgInvalidPayload = "Payload inválido"
	msgSaveFailed     = "Error procesando el payload"
	msgInvalidFilter  = "Filtro inválido"
)

func errorBody(message string, err error) gin.H {
	body := gin.H{"ok": false, "message": message}
	if err != nil {
		body["detail"] = err.Error()
	}
	return body
}

// filtered loads the feed and applies the query-string filter. It writes the
// error response itself and returns ok=false when the request is done.
func (s *Server) filtered(c *gin.Context) ([]domain.Detection, bool) {
	f := view.DefaultFilter()
	if err := c.ShouldBindQuery(&f); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(msgInvalidFilter, err))
		return nil, false
	}
	if err := f.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(msgInvalidFilter, err))
		return nil, false
	}

	detections, err := s.svc.Latest(c.Request.Context())
	if err != nil {
		s.logger.Error("load detections failed", "error", err)
		c.JSON(http.StatusInternalServerError, errorBody(msgLoadFailed, err))
		return nil, false
	}
	if !f.IsDefault() {
		detections = view.Apply(detections, f)
	}
	return detections, true
}

// GET /api/detections
func (s *Server) listDetections(c *gin.Context) {
	detections, ok := s.filtered(c)
	if !ok {
		return
	}
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, domain.NewFeedPage(detections))
}

// POST /api/detections
func (s *Server) createDetections(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody(msgInvalidPayload, err))
		return
	}

	res, err := s.svc.SubmitJSON(c.Request.Context(), body)
	switch {
	case errors.Is(err, domain.ErrInvalidPayload):
		c.JSON(http.StatusBadRequest, errorBody(msgInvalidPayload, err))
		return
	case errors.Is(err, domain.ErrNoValidReadings):
		c.JSON(http.StatusBadRequest, errorBody(msgNoValid, nil))
		return
	case err != nil:
		s.logger.Error("store detections failed", "error", err)
		c.JSON(http.StatusInternalServerError, errorBody(msgSaveFailed, err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "stored": res.Stored})
}

// GET /api/detections/summary
func (s *Server) summarize(c *gin.Context) {
	detections, ok := s.filtered(c)
	if !ok {
		return
	}
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, gin.H{
		"summary": view.Summarize(detections),
		"sources": view.Sources(detections),
	})
}

// GET /api/calibration
func (s *Server) calibration(c *gin.Context) {
	cal := s.svc.Calibration()
	c.JSON(http.StatusOK, gin.H{
		"calibration": cal,
		"thresholds":  cal.Thresholds(),
	})
}
