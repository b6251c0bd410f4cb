// Package cli is the interactive shell tying the matchmaking machine, the
// collaboration channel and the run orchestrator together.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"pairprep/internal/auth"
	"pairprep/internal/collab"
	"pairprep/internal/config"
	"pairprep/internal/match"
	"pairprep/internal/platform"
	"pairprep/internal/runner"
	"pairprep/pkg/utils/logger"

	"github.com/chzyer/readline"
	"github.com/google/shlex"
	"go.uber.org/zap"
)

// Session holds REPL state.
type Session struct {
	cfg        *config.Config
	client     *platform.Client
	machine    *match.Machine
	runner     *runner.Orchestrator
	tokenState *auth.TokenState
	statePath  string
	identity   auth.Identity

	mu       sync.Mutex
	store    *collab.Store
	channel  *collab.Channel
	question *platform.Question
	language runner.Language
	code     string

	outMu sync.Mutex
	out   *bufio.Writer
}

// New wires a REPL session from configuration and persisted token state.
func New(cfg *config.Config, tokenState *auth.TokenState, statePath string) (*Session, error) {
	s := &Session{
		cfg:        cfg,
		tokenState: tokenState,
		statePath:  statePath,
		language:   runner.LangPython,
		out:        bufio.NewWriter(os.Stdout),
	}
	s.client = platform.NewClient(cfg.Platform.BaseURL, cfg.Platform.HTTPTimeout, func() string {
		return tokenState.AccessToken
	})
	sandbox := runner.NewSandboxClient(cfg.Sandbox.BaseURL, cfg.Sandbox.Timeout)
	s.runner = runner.NewOrchestrator(sandbox, s.client)
	s.machine = match.NewMachine(s.client, match.Timings{
		PollInterval:        cfg.Matching.PollInterval,
		SearchTimeout:       cfg.Matching.SearchTimeout,
		PartnerPollInterval: cfg.Matching.PartnerPollInterval,
	}, s.onTransition)

	if tokenState.AccessToken != "" {
		identity, err := auth.IdentityFromToken(tokenState.AccessToken)
		if err != nil {
			s.printLine("warning: stored token is unusable: %v", err)
		} else {
			s.identity = identity
		}
	}
	return s, nil
}

// Run drives the read-eval loop until exit or EOF.
func (s *Session) Run(ctx context.Context) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "pairprep> ",
		HistoryFile:     filepath.Join(filepath.Dir(s.statePath), "history"),
		InterruptPrompt: "^C",
	})
	if err != nil {
		return fmt.Errorf("init readline failed: %w", err)
	}
	defer func() { _ = rl.Close() }()

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF {
			s.shutdown()
			return nil
		}
		if err != nil {
			return fmt.Errorf("read input failed: %w", err)
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if s.handleSystemCommand(line) {
			s.shutdown()
			return nil
		}
	}
}

// handleSystemCommand dispatches one input line. It returns true only on
// exit.
func (s *Session) handleSystemCommand(line string) bool {
	switch line {
	case "exit", "quit":
		s.printLine("bye")
		return true
	case "help":
		s.printHelp()
		return false
	}
	if err := s.handleCommand(context.Background(), line); err != nil {
		s.printLine("error: %v", err)
	}
	return false
}

func (s *Session) handleCommand(ctx context.Context, line string) error {
	tokens, err := shlex.Split(line)
	if err != nil {
		return fmt.Errorf("parse command failed: %w", err)
	}
	if len(tokens) == 0 {
		return nil
	}

	params, err := parseParams(tokens)
	if err != nil {
		return err
	}

	switch tokens[0] {
	case "set":
		return s.handleSet(tokens[1:])
	case "show":
		return s.handleShow(tokens[1:])
	case "match":
		return s.handleMatch(ctx, tokens[1:], params)
	case "room":
		return s.handleRoom(ctx, tokens[1:], params)
	case "question":
		return s.handleQuestion(ctx, tokens[1:], params)
	case "lang":
		return s.handleLang(tokens[1:])
	case "code":
		return s.handleCode(ctx, tokens[1:], params)
	case "run":
		return s.handleRun(ctx, false)
	case "submit":
		return s.handleRun(ctx, true)
	default:
		return fmt.Errorf("unknown command: %s", tokens[0])
	}
}

// parseParams collects key=value tokens; positional tokens are left to the
// individual handlers.
func parseParams(tokens []string) (map[string]string, error) {
	params := make(map[string]string)
	for _, token := range tokens {
		if !strings.Contains(token, "=") {
			continue
		}
		parts := strings.SplitN(token, "=", 2)
		if parts[0] == "" {
			return nil, fmt.Errorf("invalid param: %s", token)
		}
		params[parts[0]] = parts[1]
	}
	return params, nil
}

func (s *Session) handleSet(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: set token <access_token>")
	}
	switch args[0] {
	case "token":
		identity, err := auth.IdentityFromToken(args[1])
		if err != nil {
			return err
		}
		s.tokenState.AccessToken = args[1]
		if err := auth.Save(s.statePath, *s.tokenState); err != nil {
			return err
		}
		s.identity = identity
		s.printLine("token saved; signed in as %s", identity.Username)
		return nil
	default:
		return fmt.Errorf("unknown set command: %s", args[0])
	}
}

func (s *Session) handleShow(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: show token|config|state")
	}
	switch args[0] {
	case "token":
		token := s.tokenState.AccessToken
		if token == "" {
			s.printLine("token: <empty>")
			return nil
		}
		if len(token) > 12 {
			token = token[:6] + "..." + token[len(token)-4:]
		}
		s.printLine("token: %s (user %s)", token, s.identity.Username)
	case "config":
		s.printLine("platform: %s", s.cfg.Platform.BaseURL)
		s.printLine("stream:   %s", s.cfg.Platform.WSBaseURL)
		s.printLine("sandbox:  %s", s.cfg.Sandbox.BaseURL)
		s.printLine("tokenStatePath: %s", s.statePath)
	case "state":
		s.showState()
	default:
		return fmt.Errorf("usage: show token|config|state")
	}
	return nil
}

func (s *Session) showState() {
	snap := s.machine.Snapshot()
	s.printLine("match: %s", snap.State)
	if snap.Topic != "" {
		s.printLine("  topic=%s difficulty=%s", snap.Topic, snap.Difficulty)
	}
	if snap.SessionID != "" {
		s.printLine("  session=%s", snap.SessionID)
	}

	s.mu.Lock()
	store := s.store
	question := s.question
	language := s.language
	s.mu.Unlock()

	s.printLine("language: %s", language)
	if question != nil {
		s.printLine("question: %s (%s)", question.Title, question.Difficulty)
	}
	if store == nil {
		return
	}
	session := store.Snapshot()
	s.printLine("room: %s status=%s", session.ID, session.Status)
	for _, p := range session.Participants {
		s.printLine("  - %s (%s)", p.Username, p.UserID)
	}
	if session.PartnerLeft {
		s.printLine("  partner has left")
	}
	if session.Ended {
		s.printLine("  session ended")
	}
	for line, holder := range session.LineLocks {
		s.printLine("  lock line %d held by %s", line, holder)
	}
}

func (s *Session) printHelp() {
	s.printLine("usage:")
	s.printLine("  set token <access_token>")
	s.printLine("  show token|config|state")
	s.printLine("  match start topic=arrays difficulty=easy")
	s.printLine("  match status | confirm | cancel | retry | ack")
	s.printLine("  room join [session_id=...] | chat <text> | leave | end")
	s.printLine("  room lock line=3 | unlock line=3")
	s.printLine("  question show [id=...]")
	s.printLine("  lang python|javascript|typescript|java")
	s.printLine("  code load file=./solution.py | code show")
	s.printLine("  run | submit")
	s.printLine("  help | exit")
}

// shutdown leaves any open room before the process exits.
func (s *Session) shutdown() {
	s.mu.Lock()
	channel := s.channel
	s.channel = nil
	s.mu.Unlock()
	if channel != nil {
		channel.Close()
	}
	logger.Sync()
}

func (s *Session) printLine(format string, args ...interface{}) {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	_, _ = fmt.Fprintf(s.out, format+"\n", args...)
	_ = s.out.Flush()
}

// onTransition renders matchmaking transitions. It runs under the machine's
// lock, so anything touching the machine again is deferred to a goroutine.
func (s *Session) onTransition(snap match.Snapshot) {
	switch snap.State {
	case match.StateSearching:
		s.printLine("searching for a partner (topic=%s difficulty=%s)...", snap.Topic, snap.Difficulty)
	case match.StateFound:
		s.printLine("match found! use 'match confirm' to accept")
	case match.StateNoMatch:
		s.printLine("no match found; 'match retry' to search again or 'match ack' to go back")
	case match.StateWaitingForPartner:
		s.printLine("confirmed; waiting for your partner...")
	case match.StatePreparingSession:
		s.printLine("both sides confirmed; preparing session %s", snap.SessionID)
		go s.prepareSession(snap.SessionID)
	case match.StateIdle:
	}
	logger.Debug(context.Background(), "matchmaking transition", zap.String("state", string(snap.State)))
}

// prepareSession fetches the session handle and its question, then joins the
// collaboration room.
func (s *Session) prepareSession(sessionID string) {
	ctx := logger.WithSessionID(context.Background(), sessionID)

	info, err := s.client.GetSession(ctx, sessionID)
	if err != nil {
		s.printLine("fetch session failed: %v", err)
		return
	}
	if info.QuestionID != "" {
		question, err := s.client.GetQuestion(ctx, info.QuestionID)
		if err != nil {
			s.printLine("fetch question failed: %v", err)
		} else {
			s.mu.Lock()
			s.question = &question
			s.mu.Unlock()
			s.printLine("question: %s (%s)", question.Title, question.Difficulty)
		}
	}
	if err := s.joinRoom(ctx, sessionID); err != nil {
		s.printLine("join room failed: %v", err)
	}
}
