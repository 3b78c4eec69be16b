package server

import (
	"errors"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"github.com/zulandar/atlas/internal/calllog"
	"github.com/zulandar/atlas/internal/coords"
	"github.com/zulandar/atlas/internal/game"
	"github.com/zulandar/atlas/internal/gateway"
)

// multipartOverhead is the allowance for form boundaries and headers on top
// of the photo itself.
const multipartOverhead = 1 << 20

// registerRoutes sets up all API routes on the Gin router.
func registerRoutes(router *gin.Engine, opts Opts) {
	eng := opts.Engine

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	api.GET("/state", handleState(eng))
	api.POST("/image", handleImage(eng, opts.MaxUploadBytes))
	api.POST("/reveal", handleReveal(eng))
	api.POST("/flight", handleFlight(eng))
	api.POST("/reset", handleReset(eng))
	api.PUT("/drafts", handleDrafts(eng))
	api.GET("/artifact", handleArtifact(eng))
	api.GET("/events", handleSSE(eng, opts.Heartbeat))
	api.GET("/calls", handleCalls(opts.Calls))
	api.GET("/calls/summary", handleCallSummary(opts.Calls))
	api.GET("/coords", handleCoords())
}

func handleState(eng *game.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, eng.Snapshot())
	}
}

func handleImage(eng *game.Engine, maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes+multipartOverhead)
		fh, err := c.FormFile("photo")
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				abort(c, http.StatusRequestEntityTooLarge, "photo too large")
				return
			}
			abort(c, http.StatusBadRequest, "multipart field \"photo\" is required")
			return
		}
		if fh.Size > maxBytes {
			abort(c, http.StatusRequestEntityTooLarge, "photo too large")
			return
		}

		data, err := readUpload(fh)
		if err != nil {
			abort(c, http.StatusBadRequest, err.Error())
			return
		}
		mt := mimetype.Detect(data)
		if !strings.HasPrefix(mt.String(), "image/") {
			abort(c, http.StatusBadRequest, "unsupported file type "+mt.String())
			return
		}

		_, err = eng.SubmitImage(game.Artifact{
			Filename: fh.Filename,
			Image:    gateway.Image{MIMEType: mt.String(), Data: data},
		})
		if err != nil {
			abort(c, statusFor(err), err.Error())
			return
		}
		c.JSON(http.StatusAccepted, eng.Snapshot())
	}
}

func readUpload(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

type revealRequest struct {
	Location string `json:"location"`
}

func handleReveal(eng *game.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req revealRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			abort(c, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if _, err := eng.SubmitReveal(req.Location); err != nil {
			abort(c, statusFor(err), err.Error())
			return
		}
		c.JSON(http.StatusAccepted, eng.Snapshot())
	}
}

type flightRequest struct {
	Coordinates string `json:"coordinates"`
}

func handleFlight(eng *game.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req flightRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			abort(c, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if _, err := eng.SubmitFlight(req.Coordinates); err != nil {
			abort(c, statusFor(err), err.Error())
			return
		}
		c.JSON(http.StatusAccepted, eng.Snapshot())
	}
}

func handleReset(eng *game.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		eng.Reset()
		c.JSON(http.StatusOK, eng.Snapshot())
	}
}

// draftsRequest uses pointers so a client can update one buffer without
// clobbering the other.
type draftsRequest struct {
	Reveal      *string `json:"reveal"`
	Coordinates *string `json:"coordinates"`
}

func handleDrafts(eng *game.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req draftsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			abort(c, http.StatusBadRequest, "invalid JSON body")
			return
		}
		d := eng.Snapshot().Drafts
		if req.Reveal != nil {
			d.Reveal = *req.Reveal
		}
		if req.Coordinates != nil {
			d.Coordinates = *req.Coordinates
		}
		eng.SetDrafts(d)
		c.JSON(http.StatusOK, d)
	}
}

func handleArtifact(eng *game.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		a, ok := eng.Artifact()
		if !ok {
			abort(c, http.StatusNotFound, "no photo uploaded")
			return
		}
		if a.Filename != "" {
			c.Header("Content-Disposition", "inline; filename="+strconv.Quote(a.Filename))
		}
		c.Data(http.StatusOK, a.Image.MIMEType, a.Image.Data)
	}
}

func handleCalls(calls CallSource) gin.HandlerFunc {
	return func(c *gin.Context) {
		if calls == nil {
			abort(c, http.StatusNotFound, "call log disabled")
			return
		}
		limit := calllog.DefaultRecentLimit
		if s := c.Query("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n <= 0 {
				abort(c, http.StatusBadRequest, "limit must be a positive integer")
				return
			}
			limit = n
		}
		rows, err := calls.Recent(c.Request.Context(), limit)
		if err != nil {
			log.Printf("server: list calls: %v", err)
			abort(c, http.StatusInternalServerError, "list calls failed")
			return
		}
		c.JSON(http.StatusOK, gin.H{"calls": rows})
	}
}

func handleCallSummary(calls CallSource) gin.HandlerFunc {
	return func(c *gin.Context) {
		if calls == nil {
			abort(c, http.StatusNotFound, "call log disabled")
			return
		}
		summary, err := calls.Summary(c.Request.Context())
		if err != nil {
			log.Printf("server: summarize calls: %v", err)
			abort(c, http.StatusInternalServerError, "summarize calls failed")
			return
		}
		c.JSON(http.StatusOK, gin.H{"operations": summary})
	}
}

func handleCoords() gin.HandlerFunc {
	return func(c *gin.Context) {
		q := c.Query("q")
		if strings.TrimSpace(q) == "" {
			abort(c, http.StatusBadRequest, "query parameter q is required")
			return
		}
		c.JSON(http.StatusOK, coords.Resolve(q))
	}
}

// statusFor maps engine rejections onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, game.ErrWrongPhase), errors.Is(err, game.ErrNoArtifact):
		return http.StatusConflict
	case errors.Is(err, game.ErrRejected):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func abort(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}
