// Package api exposes the HTTP control surface of the relay server.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/kiliankoe/chainrelay/internal/game"
	"github.com/kiliankoe/chainrelay/internal/storage/sqlite"
	"github.com/rs/zerolog"
	qrcode "github.com/skip2/go-qrcode"
)

const qrSize = 256

// Results reads archived games back.
type Results interface {
	LoadGame(ctx context.Context, code string) (sqlite.Game, error)
}

// Presence reports whether a participant has a live realtime channel.
type Presence interface {
	Connected(participantID string) bool
}

type Handler struct {
	Games    *game.Manager
	Results  Results
	Presence Presence
	// BaseURL is encoded in join QR codes. Derived from the request when empty.
	BaseURL string
	Log     zerolog.Logger
}

// Register mounts every API route on r.
func (h *Handler) Register(r gin.IRouter) {
	g := r.Group("/api/sessions")
	g.POST("", h.createSession)
	g.POST("/:code/join", h.joinSession)
	g.POST("/:code/start", h.startSession)
	g.POST("/:code/links", h.submitLink)
	g.GET("/:code", h.getSession)
	g.GET("/:code/results", h.getResults)
	g.GET("/:code/qr", h.getQR)
}

type participantRequest struct {
	ParticipantID string `json:"participantId"`
	Name          string `json:"name"`
}

type linkRequest struct {
	ParticipantID string `json:"participantId"`
	Kind          string `json:"kind"`
	Text          string `json:"text"`
	ImageURL      string `json:"imageUrl"`
}

type participantView struct {
	game.Participant
	Connected bool `json:"connected"`
}

type sessionView struct {
	Code         string            `json:"code"`
	Phase        game.Phase        `json:"phase"`
	TotalRounds  int               `json:"totalRounds"`
	Started      bool              `json:"started"`
	Complete     bool              `json:"complete"`
	Participants []participantView `json:"participants"`
}

func (h *Handler) createSession(c *gin.Context) {
	var req participantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json body")
		return
	}
	id := participantID(req.ParticipantID)
	code, err := h.Games.CreateSession(id, req.Name)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"sessionCode": code, "participantId": id})
}

func (h *Handler) joinSession(c *gin.Context) {
	var req participantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json body")
		return
	}
	id := participantID(req.ParticipantID)
	if err := h.Games.JoinSession(sessionCode(c), id, req.Name); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"participantId": id})
}

func (h *Handler) startSession(c *gin.Context) {
	var req participantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json body")
		return
	}
	if err := h.Games.StartSession(sessionCode(c), req.ParticipantID); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handler) submitLink(c *gin.Context) {
	var req linkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json body")
		return
	}
	link := game.Link{Kind: game.LinkKind(req.Kind), Text: req.Text, ImageURL: req.ImageURL}
	if err := h.Games.SubmitLink(sessionCode(c), req.ParticipantID, link); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handler) getSession(c *gin.Context) {
	s, err := h.Games.Get(sessionCode(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	rec := s.Snapshot()
	view := sessionView{
		Code:         rec.Code,
		Phase:        game.PhaseFor(rec.RoundIx, len(rec.Participants)),
		TotalRounds:  game.TotalRounds(len(rec.Participants)),
		Started:      rec.Started,
		Complete:     rec.Complete,
		Participants: make([]participantView, 0, len(rec.Participants)),
	}
	for _, p := range rec.Participants {
		pv := participantView{Participant: p}
		if h.Presence != nil {
			pv.Connected = h.Presence.Connected(p.ID)
		}
		view.Participants = append(view.Participants, pv)
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) getResults(c *gin.Context) {
	if h.Results == nil {
		c.JSON(http.StatusNotFound, gin.H{"code": "session_not_found", "message": "results are not stored"})
		return
	}
	g, err := h.Results.LoadGame(c.Request.Context(), sessionCode(c))
	if err != nil {
		if errors.Is(err, sqlite.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"code": "session_not_found", "message": "no archived game for this code"})
			return
		}
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, g)
}

func (h *Handler) getQR(c *gin.Context) {
	code := sessionCode(c)
	if _, err := h.Games.Get(code); err != nil {
		h.fail(c, err)
		return
	}
	png, err := qrcode.Encode(h.joinURL(c, code), qrcode.Medium, qrSize)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

func (h *Handler) joinURL(c *gin.Context, code string) string {
	base := strings.TrimRight(h.BaseURL, "/")
	if base == "" {
		scheme := "http"
		if c.Request.TLS != nil {
			scheme = "https"
		}
		base = fmt.Sprintf("%s://%s", scheme, c.Request.Host)
	}
	return base + "/?session=" + code
}

func (h *Handler) fail(c *gin.Context, err error) {
	code := game.ErrorCode(err)
	status := statusFor(code)
	if status == http.StatusInternalServerError {
		h.Log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	}
	c.JSON(status, gin.H{"code": code, "message": err.Error()})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"code": "bad_request", "message": msg})
}

func statusFor(code string) int {
	switch code {
	case "session_not_found", "participant_not_found":
		return http.StatusNotFound
	case "bad_request":
		return http.StatusBadRequest
	case "not_owner":
		return http.StatusForbidden
	case "conflict":
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func sessionCode(c *gin.Context) string {
	return strings.ToUpper(strings.TrimSpace(c.Param("code")))
}

// participantID keeps a client-chosen identity or mints a new one.
func participantID(id string) string {
	if id = strings.TrimSpace(id); id != "" {
		return id
	}
	return uuid.NewString()
}
