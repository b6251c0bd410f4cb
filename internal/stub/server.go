// Package stub is an in-memory development backend: the matchmaking REST
// surface, a small question bank, attempt recording and the collaboration
// stream. It exists so the client can be exercised end to end without the
// production platform.
package stub

import (
	"net/http"
	"sync"
	"time"

	"pairprep/internal/platform"
	"pairprep/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Server holds all in-memory backend state.
type Server struct {
	mu       sync.Mutex
	requests map[string]*matchRequest
	matches  map[string]*matchRecord
	sessions map[string]*sessionRecord
	attempts []platform.AttemptRead

	questions map[string]platform.Question
	rooms     *roomSet
}

type matchRequest struct {
	ID         string
	UserID     string
	Topic      string
	Difficulty string
	Status     string
	MatchID    string
}

type matchRecord struct {
	ID        string
	RequestA  string
	RequestB  string
	Confirmed map[string]bool // request id -> confirmed
	SessionID string
}

type sessionRecord struct {
	ID         string
	QuestionID string
	Topic      string
	Difficulty string
}

// NewServer creates a stub backend seeded with the built-in question bank.
func NewServer() *Server {
	s := &Server{
		requests:  make(map[string]*matchRequest),
		matches:   make(map[string]*matchRecord),
		sessions:  make(map[string]*sessionRecord),
		questions: seedQuestions(),
	}
	s.rooms = newRoomSet()
	return s
}

// Router builds the HTTP surface.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger())

	matching := router.Group("/api/matching")
	matching.POST("/request", s.createRequest)
	matching.GET("/requests/:id/status", s.requestStatus)
	matching.DELETE("/request/:id", s.cancelRequest)
	matching.POST("/confirm", s.confirmMatch)
	matching.GET("/matches/:id/status", s.matchStatus)
	matching.GET("/sessions/:id", s.getSession)

	router.GET("/api/questions/:id", s.getQuestion)
	router.POST("/api/attempts", s.createAttempt)
	router.POST("/api/v2/execute", s.execute)
	router.GET("/ws/collab/:session_id", s.rooms.serveStream)

	return router
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		logger.Info(
			c.Request.Context(),
			"request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

type createRequestBody struct {
	Topic      string `json:"topic" binding:"required"`
	Difficulty string `json:"difficulty" binding:"required"`
}

func (s *Server) createRequest(c *gin.Context) {
	var body createRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "topic and difficulty are required"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	req := &matchRequest{
		ID:         uuid.NewString(),
		UserID:     c.GetHeader("Authorization"),
		Topic:      body.Topic,
		Difficulty: body.Difficulty,
		Status:     platform.RequestStatusPending,
	}
	s.requests[req.ID] = req
	s.tryPairLocked(req)

	c.JSON(http.StatusCreated, gin.H{
		"id":         req.ID,
		"topic":      req.Topic,
		"difficulty": req.Difficulty,
		"status":     req.Status,
	})
}

// tryPairLocked matches the new request against the oldest compatible
// pending one.
func (s *Server) tryPairLocked(req *matchRequest) {
	for _, other := range s.requests {
		if other.ID == req.ID || other.Status != platform.RequestStatusPending {
			continue
		}
		if other.Topic != req.Topic || other.Difficulty != req.Difficulty {
			continue
		}
		match := &matchRecord{
			ID:        uuid.NewString(),
			RequestA:  other.ID,
			RequestB:  req.ID,
			Confirmed: make(map[string]bool),
		}
		s.matches[match.ID] = match
		other.Status = platform.RequestStatusMatched
		other.MatchID = match.ID
		req.Status = platform.RequestStatusMatched
		req.MatchID = match.ID
		return
	}
}

func (s *Server) requestStatus(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[c.Param("id")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "request not found"})
		return
	}
	out := gin.H{"status": req.Status}
	if req.MatchID != "" {
		out["match_id"] = req.MatchID
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) cancelRequest(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.requests[c.Param("id")]; !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "request not found"})
		return
	}
	delete(s.requests, c.Param("id"))
	c.Status(http.StatusNoContent)
}

type confirmBody struct {
	MatchID   string `json:"match_id" binding:"required"`
	Confirmed bool   `json:"confirmed"`
	RequestID string `json:"request_id"`
}

func (s *Server) confirmMatch(c *gin.Context) {
	var body confirmBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "match_id is required"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	match, ok := s.matches[body.MatchID]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "match not found"})
		return
	}

	// Without real user identity each confirm call flips the next
	// unconfirmed side. Good enough for a two-party dev stub.
	side := body.RequestID
	if side == "" {
		side = match.RequestA
		if match.Confirmed[side] {
			side = match.RequestB
		}
	}
	match.Confirmed[side] = body.Confirmed

	if match.Confirmed[match.RequestA] && match.Confirmed[match.RequestB] {
		if match.SessionID == "" {
			match.SessionID = s.createSessionLocked(match)
		}
		c.JSON(http.StatusOK, gin.H{"status": platform.ConfirmSessionReady, "session_id": match.SessionID})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": platform.ConfirmWaitingForPartner})
}

func (s *Server) createSessionLocked(match *matchRecord) string {
	req := s.requests[match.RequestB]
	session := &sessionRecord{
		ID:         uuid.NewString(),
		QuestionID: s.pickQuestionID(req),
	}
	if req != nil {
		session.Topic = req.Topic
		session.Difficulty = req.Difficulty
	}
	s.sessions[session.ID] = session
	return session.ID
}

// pickQuestionID selects a bank question by topic and difficulty, falling
// back to any question.
func (s *Server) pickQuestionID(req *matchRequest) string {
	var fallback string
	for id, q := range s.questions {
		fallback = id
		if req == nil {
			continue
		}
		if q.Difficulty == req.Difficulty && hasTopic(q, req.Topic) {
			return id
		}
	}
	return fallback
}

func hasTopic(q platform.Question, topic string) bool {
	for _, t := range q.Topics {
		if t == topic {
			return true
		}
	}
	return false
}

func (s *Server) matchStatus(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	match, ok := s.matches[c.Param("id")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "match not found"})
		return
	}
	out := gin.H{"status": "confirming"}
	if match.SessionID != "" {
		out["status"] = platform.ConfirmSessionReady
		out["session_id"] = match.SessionID
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) getSession(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[c.Param("id")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":          session.ID,
		"status":      "active",
		"question_id": session.QuestionID,
		"topic":       session.Topic,
		"difficulty":  session.Difficulty,
	})
}

func (s *Server) getQuestion(c *gin.Context) {
	q, ok := s.questions[c.Param("id")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "question not found"})
		return
	}
	c.JSON(http.StatusOK, q)
}

func (s *Server) createAttempt(c *gin.Context) {
	var body platform.AttemptCreate
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid attempt payload"})
		return
	}

	attempt := platform.AttemptRead{
		ID:          uuid.NewString(),
		QuestionID:  body.QuestionID,
		Language:    body.Language,
		PassedTests: body.PassedTests,
		TotalTests:  body.TotalTests,
		CreatedAt:   time.Now().UTC(),
	}

	s.mu.Lock()
	s.attempts = append(s.attempts, attempt)
	s.mu.Unlock()

	c.JSON(http.StatusCreated, attempt)
}

// execute is a placeholder sandbox: it accepts the contract but runs
// nothing, reporting a clean exit with empty output. Point the client at a
// real sandbox for verdicts.
func (s *Server) execute(c *gin.Context) {
	var body map[string]interface{}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid execute payload"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"run": gin.H{"code": 0, "stdout": "", "stderr": ""},
	})
}
