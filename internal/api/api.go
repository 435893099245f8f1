package api

import (
	"bytes"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/celerix-dev/celerix-pond/internal/interaction"
	"github.com/celerix-dev/celerix-pond/internal/pond"
	"github.com/celerix-dev/celerix-pond/internal/session"
	"github.com/celerix-dev/celerix-pond/pkg/schema"
	"github.com/celerix-dev/celerix-pond/pkg/sdk"
)

// Buttons accepted by PressButton.
const (
	ButtonRun       = "run"
	ButtonReset     = "reset"
	ButtonDocs      = "docs"
	ButtonCloseDocs = "close-docs"
	ButtonHelp      = "help"
	// ButtonFinish is pressed by the page when the browser-side battle ends.
	ButtonFinish = "finish"
)

type Handler struct {
	Store    sdk.CelerixStore
	Sessions *session.Registry
}

// Register mounts every route on g.
func (h *Handler) Register(g gin.IRoutes) {
	g.POST("/sessions", h.CreateSession)
	g.GET("/sessions/:id", h.GetSession)
	g.DELETE("/sessions/:id", h.CloseSession)
	g.POST("/sessions/:id/buttons/:button", h.PressButton)
	g.GET("/sessions/:id/records", h.GetRecords)
	g.DELETE("/sessions/:id/records", h.ClearRecords)
	g.GET("/sessions/:id/report", h.GetReport)
	g.GET("/learners/:learner", h.GetLearner)

	g.GET("/personas", h.GetPersonas)
	g.GET("/personas/:persona/apps", h.GetApps)
	g.GET("/personas/:persona/apps/:app", h.GetAppStore)
	g.GET("/global/:app/:key", h.GetGlobal)
}

func (h *Handler) CreateSession(c *gin.Context) {
	var input schema.CreateSessionRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s, err := h.Sessions.Create(input.Learner, input.Level, input.Lang)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"id":            s.ID,
		"state":         s.Controller.State(),
		"notifications": notifications(s),
	})
}

func (h *Handler) GetSession(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":      s.ID,
		"learner": s.Learner,
		"state":   s.Controller.State(),
	})
}

func (h *Handler) CloseSession(c *gin.Context) {
	if err := h.Sessions.Close(c.Param("id")); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

func (h *Handler) PressButton(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	var input schema.ButtonRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	in := pond.Input(input.Input)
	if in != "" && in != pond.InputClick && in != pond.InputTouchEnd {
		c.JSON(http.StatusBadRequest, gin.H{"error": "input must be click or touchend"})
		return
	}
	// Level and workspace only change for presses that are acted on.
	setLevel := func() {
		if input.Level != "" {
			s.Controller.SetLevel(input.Level)
		}
	}

	res := schema.ButtonResponse{Accepted: true}
	switch c.Param("button") {
	case ButtonRun:
		res.Accepted = s.Controller.Run(in, setLevel, func() { s.Workspace.Set(input.Workspace) })
	case ButtonReset:
		res.Accepted = s.Controller.Reset(in, setLevel)
	case ButtonDocs:
		res.DocsURL, res.Accepted = s.Controller.OpenDocs(setLevel)
	case ButtonCloseDocs:
		setLevel()
		s.Controller.CloseDocs()
	case ButtonHelp:
		setLevel()
		s.Controller.Help()
	case ButtonFinish:
		res.Accepted = s.Arena.Finish()
		if res.Accepted {
			setLevel()
		}
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown button " + c.Param("button")})
		return
	}

	res.State = s.Controller.State()
	res.Notifications = notifications(s)
	c.JSON(http.StatusOK, res)
}

func (h *Handler) GetRecords(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	e, err := s.Log.Enumerate()
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error(), "notifications": notifications(s)})
		return
	}
	if e.Records == nil {
		e.Records = []interaction.Record{}
	}
	c.JSON(http.StatusOK, e)
}

func (h *Handler) ClearRecords(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	if err := s.Controller.Clear(); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error(), "notifications": notifications(s)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "state": s.Controller.State()})
}

func (h *Handler) GetReport(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := s.Controller.Export(&buf); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}

func (h *Handler) GetLearner(c *gin.Context) {
	rec, err := h.Sessions.Learner(c.Param("learner"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *Handler) GetPersonas(c *gin.Context) {
	personas, err := h.Store.GetPersonas()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, personas)
}

func (h *Handler) GetApps(c *gin.Context) {
	personaID := c.Param("persona")
	apps, err := h.Store.GetApps(personaID)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, apps)
}

func (h *Handler) GetAppStore(c *gin.Context) {
	personaID := c.Param("persona")
	appID := c.Param("app")
	data, err := h.Store.GetAppStore(personaID, appID)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, data)
}

func (h *Handler) GetGlobal(c *gin.Context) {
	appID := c.Param("app")
	key := c.Param("key")
	val, persona, err := h.Store.GetGlobal(appID, key)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"persona": persona,
		"value":   val,
	})
}

// session resolves :id or writes a 404.
func (h *Handler) session(c *gin.Context) (*session.Session, bool) {
	s, err := h.Sessions.Get(c.Param("id"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return nil, false
	}
	return s, true
}

func notifications(s *session.Session) []string {
	msgs := s.Notices.Drain()
	if msgs == nil {
		msgs = []string{}
	}
	return msgs
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrNotFound),
		errors.Is(err, sdk.ErrPersonaNotFound),
		errors.Is(err, sdk.ErrAppNotFound),
		errors.Is(err, sdk.ErrKeyNotFound):
		return http.StatusNotFound
	case errors.Is(err, interaction.ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, interaction.ErrQuotaExceeded):
		return http.StatusInsufficientStorage
	default:
		return http.StatusInternalServerError
	}
}
