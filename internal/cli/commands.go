package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"pairprep/internal/collab"
	"pairprep/internal/runner"
)

func (s *Session) handleMatch(ctx context.Context, args []string, params map[string]string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: match start|status|confirm|cancel|retry|ack")
	}
	switch args[0] {
	case "start":
		topic := params["topic"]
		difficulty := params["difficulty"]
		if topic == "" || difficulty == "" {
			return fmt.Errorf("usage: match start topic=arrays difficulty=easy")
		}
		return s.machine.StartSearch(ctx, topic, difficulty)
	case "status":
		snap := s.machine.Snapshot()
		s.printLine("match: %s", snap.State)
		return nil
	case "confirm":
		return s.machine.ConfirmMatch(ctx)
	case "cancel":
		return s.machine.CancelSearch(ctx)
	case "retry":
		return s.machine.Retry(ctx)
	case "ack":
		return s.machine.Acknowledge()
	default:
		return fmt.Errorf("unknown match command: %s", args[0])
	}
}

func (s *Session) handleRoom(ctx context.Context, args []string, params map[string]string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: room join|chat|lock|unlock|leave|end")
	}
	switch args[0] {
	case "join":
		sessionID := params["session_id"]
		if sessionID == "" {
			sessionID = s.machine.SessionID()
		}
		if sessionID == "" {
			return fmt.Errorf("no session to join; finish matchmaking or pass session_id=")
		}
		return s.joinRoom(ctx, sessionID)
	case "chat":
		text := params["text"]
		if text == "" && len(args) > 1 {
			text = strings.Join(args[1:], " ")
		}
		if text == "" {
			return fmt.Errorf("usage: room chat <text>")
		}
		return s.sendChat(text)
	case "lock":
		line, err := lineParam(params)
		if err != nil {
			return err
		}
		return s.sendToRoom(&collab.RequestLineLock{Line: line})
	case "unlock":
		line, err := lineParam(params)
		if err != nil {
			return err
		}
		return s.sendToRoom(&collab.ReleaseLineLock{Line: line})
	case "leave":
		s.leaveRoom()
		s.printLine("left the room")
		return nil
	case "end":
		if err := s.sendToRoom(&collab.EndSession{}); err != nil {
			return err
		}
		s.leaveRoom()
		s.printLine("session ended")
		return nil
	default:
		return fmt.Errorf("unknown room command: %s", args[0])
	}
}

func lineParam(params map[string]string) (int, error) {
	raw, ok := params["line"]
	if !ok {
		return 0, fmt.Errorf("missing line= param")
	}
	line, err := strconv.Atoi(raw)
	if err != nil || line < 0 {
		return 0, fmt.Errorf("invalid line number: %s", raw)
	}
	return line, nil
}

func (s *Session) handleQuestion(ctx context.Context, args []string, params map[string]string) error {
	if len(args) == 0 || args[0] != "show" {
		return fmt.Errorf("usage: question show [id=...]")
	}
	if id := params["id"]; id != "" {
		question, err := s.client.GetQuestion(ctx, id)
		if err != nil {
			return err
		}
		s.mu.Lock()
		s.question = &question
		s.mu.Unlock()
	}

	s.mu.Lock()
	question := s.question
	s.mu.Unlock()
	if question == nil {
		return fmt.Errorf("no question loaded; pass id= or finish matchmaking")
	}

	s.printLine("%s (%s)", question.Title, question.Difficulty)
	if len(question.Topics) > 0 {
		s.printLine("topics: %s", strings.Join(question.Topics, ", "))
	}
	s.printLine("%s", question.Description)
	for i, ex := range question.Examples {
		s.printLine("example %d: input=%s output=%s", i+1, ex.Input, ex.Output)
	}
	s.printLine("%d test cases", len(question.TestCases))
	return nil
}

func (s *Session) handleLang(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: lang python|javascript|typescript|java")
	}
	lang := runner.Language(strings.ToLower(args[0]))
	supported := false
	for _, l := range runner.SessionLanguages {
		if l == lang {
			supported = true
			break
		}
	}
	if !supported {
		return fmt.Errorf("unsupported language %q", args[0])
	}

	s.mu.Lock()
	s.language = lang
	store := s.store
	s.mu.Unlock()
	if store != nil {
		store.SetLanguage(string(lang))
	}
	s.printLine("language set to %s", lang)
	return nil
}

func (s *Session) handleCode(_ context.Context, args []string, params map[string]string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: code load file=... | code show")
	}
	switch args[0] {
	case "load":
		path := params["file"]
		if path == "" {
			return fmt.Errorf("usage: code load file=./solution.py")
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read code file failed: %w", err)
		}
		s.setCode(string(data))
		s.printLine("loaded %d bytes from %s", len(data), path)
		return nil
	case "show":
		code := s.currentCode()
		if code == "" {
			s.printLine("<no code>")
			return nil
		}
		s.printLine("%s", code)
		return nil
	default:
		return fmt.Errorf("unknown code command: %s", args[0])
	}
}

// setCode updates the working copy and, when a room is open, broadcasts the
// new code to the partner.
func (s *Session) setCode(code string) {
	s.mu.Lock()
	s.code = code
	store := s.store
	channel := s.channel
	s.mu.Unlock()

	if store != nil {
		store.Apply(&collab.CodeUpdate{Code: code})
	}
	if channel != nil {
		channel.Send(&collab.CodeUpdate{Code: code})
	}
}

// currentCode prefers the shared session code over the local buffer so a
// partner's last edit is what runs.
func (s *Session) currentCode() string {
	s.mu.Lock()
	store := s.store
	local := s.code
	s.mu.Unlock()
	if store != nil {
		if code := store.Snapshot().Code; code != "" {
			return code
		}
	}
	return local
}

func (s *Session) handleRun(ctx context.Context, submit bool) error {
	s.mu.Lock()
	question := s.question
	language := s.language
	s.mu.Unlock()

	if question == nil {
		return fmt.Errorf("no question loaded; use 'question show id=...' first")
	}
	code := s.currentCode()
	if strings.TrimSpace(code) == "" {
		return fmt.Errorf("no code to run; use 'code load file=...' first")
	}

	if submit {
		result, attempt, err := s.runner.Submit(ctx, *question, language, code)
		s.renderRun(result)
		if err != nil {
			return err
		}
		s.printLine("attempt %s recorded: %d/%d passed", attempt.ID, result.Passed, result.Total)
		return nil
	}

	result, err := s.runner.Run(ctx, *question, language, code)
	if err != nil {
		return err
	}
	s.renderRun(result)
	return nil
}

func (s *Session) renderRun(result runner.RunResult) {
	if result.Failure != "" {
		s.printLine("execution failed: %s", result.Failure)
		return
	}
	for _, c := range result.Cases {
		switch {
		case c.NoVerdict:
			s.printLine("case %d: no verdict (%s)", c.Index+1, c.Message)
		case c.Passed:
			s.printLine("case %d: pass", c.Index+1)
		default:
			s.printLine("case %d: fail (expected %s, got %s)", c.Index+1, c.Expected, c.Actual)
		}
	}
	s.printLine("%d/%d passed", result.Passed, result.Total)
}

func (s *Session) sendChat(text string) error {
	s.mu.Lock()
	channel := s.channel
	store := s.store
	s.mu.Unlock()
	if channel == nil {
		return fmt.Errorf("not in a room")
	}
	msg := &collab.ChatMessage{
		UserID:    s.identity.UserID,
		Username:  s.identity.Username,
		Text:      text,
		Timestamp: time.Now(),
	}
	channel.Send(msg)
	if store != nil {
		store.Apply(msg)
	}
	return nil
}

func (s *Session) sendToRoom(env collab.Envelope) error {
	s.mu.Lock()
	channel := s.channel
	s.mu.Unlock()
	if channel == nil {
		return fmt.Errorf("not in a room")
	}
	channel.Send(env)
	return nil
}

// joinRoom opens a fresh store and channel for the session. Any previous
// room is closed first; channels never outlive the room they were opened
// for.
func (s *Session) joinRoom(ctx context.Context, sessionID string) error {
	if s.identity.UserID == "" {
		return fmt.Errorf("sign in first with 'set token'")
	}
	s.leaveRoom()

	store := collab.NewStore(sessionID, s.identity.UserID, nil)
	s.mu.Lock()
	s.store = store
	if s.language != "" {
		store.SetLanguage(string(s.language))
	}
	s.mu.Unlock()

	channel, err := collab.Open(ctx, s.cfg.Platform.WSBaseURL, sessionID,
		s.identity.UserID, s.identity.Username, s.handleEnvelope)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.channel = channel
	s.mu.Unlock()
	s.printLine("joined room %s", sessionID)
	return nil
}

// leaveRoom closes the channel but keeps the final session view readable.
func (s *Session) leaveRoom() {
	s.mu.Lock()
	channel := s.channel
	s.channel = nil
	s.mu.Unlock()
	if channel != nil {
		channel.Close()
	}
}

// handleEnvelope runs on the channel's read goroutine. It reduces the
// envelope into the store and echoes anything user-visible that the
// reduction produced.
func (s *Session) handleEnvelope(env collab.Envelope) {
	s.mu.Lock()
	store := s.store
	s.mu.Unlock()
	if store == nil {
		return
	}

	for _, entry := range store.Apply(env) {
		if entry.System {
			s.printLine("* %s", entry.Text)
		} else if entry.UserID != s.identity.UserID {
			s.printLine("[%s] %s", entry.Username, entry.Text)
		}
	}

	switch e := env.(type) {
	case *collab.PartnerLeft:
		s.printLine("* your partner left; the session stays open for you")
	case *collab.EndSession:
		s.printLine("* the session was ended")
		s.leaveRoom()
	case *collab.CodeUpdate:
		s.mu.Lock()
		s.code = e.Code
		s.mu.Unlock()
	case *collab.LineLockDenied:
		s.printLine("* line %d is locked by someone else", e.Line)
	}
}
