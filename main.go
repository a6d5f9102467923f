package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/peterh/liner"

	"github.com/askaudacity/chatcore/internal/assistant"
	"github.com/askaudacity/chatcore/internal/chat"
	"github.com/askaudacity/chatcore/internal/chat/export"
	"github.com/askaudacity/chatcore/internal/chat/model"
	"github.com/askaudacity/chatcore/internal/chat/repo"
	"github.com/askaudacity/chatcore/internal/core"
	logx "github.com/askaudacity/chatcore/pkg/logger"
	pkgredis "github.com/askaudacity/chatcore/pkg/redis"
)

// AppConfig defines all configurable parameters for the application, sourced
// from environment variables (loaded from .env for local runs).
type AppConfig struct {
	Environment string `envconfig:"APP_ENV" default:"development"`

	// External answering service
	Assistant assistant.Config

	// Infrastructure (used when the redis session backend is selected)
	Redis pkgredis.Config

	// Engine behaviour
	Engine model.EngineConfig
}

func main() {
	ctx := context.Background()

	// Load .env file
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	// Load structured config from env
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("Failed to process environment config: %v", err)
	}

	logx.Init(core.ParseEnvironment(cfg.Environment))

	timeout, err := time.ParseDuration(cfg.Engine.RequestTimeout)
	if err != nil {
		log.Fatalf("Invalid REQUEST_TIMEOUT '%s': %v", cfg.Engine.RequestTimeout, err)
	}

	sessions, err := buildSessionRepository(ctx, &cfg)
	if err != nil {
		log.Fatalf("Failed to initialise session backend: %v", err)
	}

	engine, err := chat.New(ctx, cfg.Assistant.New(), sessions, chat.Options{
		RequestTimeout: timeout,
		Exporter:       export.NewExporter(cfg.Engine.ExportDir),
	})
	if err != nil {
		log.Fatalf("Failed to initialise engine: %v", err)
	}

	runREPL(ctx, engine)
}

func buildSessionRepository(ctx context.Context, cfg *AppConfig) (model.SessionRepository, error) {
	switch cfg.Engine.SessionBackend {
	case "redis":
		if cfg.Redis.URL == "" {
			return nil, fmt.Errorf("REDIS_URL must be set for the redis session backend")
		}
		ttl, err := time.ParseDuration(cfg.Engine.SessionTTL)
		if err != nil {
			return nil, fmt.Errorf("invalid SESSION_TTL '%s': %w", cfg.Engine.SessionTTL, err)
		}
		rdb, err := cfg.Redis.New(ctx)
		if err != nil {
			return nil, err
		}
		return repo.NewRedisSessionRepository(rdb, ttl), nil
	case "memory", "":
		return repo.NewMemorySessionRepository(), nil
	default:
		return nil, fmt.Errorf("unknown SESSION_BACKEND '%s'", cfg.Engine.SessionBackend)
	}
}

const replHelp = `commands:
  /new [title]          start a new session (title optional)
  /switch <id>          switch to a saved session
  /sessions             list saved sessions
  /mode chat|document   select the query pipeline
  /select <path>        stage a document for document questions
  /clear                clear the working log
  /export               write the working log to chat.txt
  /help                 show this help
  /quit                 exit
anything else is submitted as a question`

func runREPL(ctx context.Context, engine *chat.Engine) {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	fmt.Println("Ask Audacity — type /help for commands")

	for {
		input, err := line.Prompt(prompt(engine))
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Println()
				return
			}
			logx.Error().Err(err).Msg("failed to read input")
			return
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		if strings.HasPrefix(input, "/") {
			if quit := runCommand(ctx, engine, input); quit {
				return
			}
			continue
		}

		submit(ctx, engine, input)
	}
}

func prompt(engine *chat.Engine) string {
	return fmt.Sprintf("[%s #%d]> ", engine.Mode(), engine.ActiveSessionID())
}

func runCommand(ctx context.Context, engine *chat.Engine, input string) (quit bool) {
	fields := strings.Fields(input)
	arg := strings.TrimSpace(strings.TrimPrefix(input, fields[0]))

	switch fields[0] {
	case "/quit", "/exit":
		return true
	case "/help":
		fmt.Println(replHelp)
	case "/new":
		s, err := engine.NewSession(ctx, arg)
		if err != nil {
			fmt.Println("could not create session:", err)
			break
		}
		fmt.Printf("session #%d %q\n", s.ID, s.Title)
	case "/switch":
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			fmt.Println("usage: /switch <id>")
			break
		}
		if err := engine.SwitchSession(ctx, id); err != nil {
			fmt.Println("could not switch session:", err)
			break
		}
		printLog(engine.WorkingLog())
	case "/sessions":
		sessions, err := engine.Sessions(ctx)
		if err != nil {
			fmt.Println("could not list sessions:", err)
			break
		}
		for _, s := range sessions {
			marker := " "
			if s.ID == engine.ActiveSessionID() {
				marker = "*"
			}
			fmt.Printf("%s #%d %s (%d turns)\n", marker, s.ID, s.Title, len(s.Log))
		}
	case "/mode":
		m, ok := model.ParseMode(arg)
		if !ok {
			fmt.Println("usage: /mode chat|document")
			break
		}
		if err := engine.SetMode(ctx, m); err != nil {
			fmt.Println("could not switch mode:", err)
			break
		}
	case "/select":
		if err := engine.SelectDocument(arg); err != nil {
			fmt.Println("could not select document:", err)
			break
		}
		fmt.Printf("document %q selected\n", engine.Document().Name)
	case "/clear":
		engine.ClearLog()
	case "/export":
		path, err := engine.Export()
		if err != nil {
			fmt.Println("could not export:", err)
			break
		}
		fmt.Println("written", path)
	default:
		fmt.Println("unknown command; /help lists them")
	}
	return false
}

func submit(ctx context.Context, engine *chat.Engine, input string) {
	var (
		turn model.Turn
		err  error
	)
	if engine.Mode() == model.ModeDocument {
		turn, err = engine.SubmitDocumentQuestion(ctx, input)
	} else {
		turn, err = engine.SubmitChat(ctx, input)
	}

	switch {
	case errors.Is(err, chat.ErrBusy):
		fmt.Println("still waiting on the previous question")
	case errors.Is(err, chat.ErrNoDocument):
		fmt.Println("select a document first: /select <path>")
	case err != nil:
		fmt.Println("no reply:", err)
	case turn.ID == "":
		// log was cleared while the request was in flight
	default:
		fmt.Printf("bot> %s (%s)\n", turn.Bot, turn.Time.Format("15:04:05"))
	}
}

func printLog(l model.Log) {
	for _, t := range l {
		fmt.Printf("you> %s\n", t.User)
		if !t.Pending() {
			fmt.Printf("bot> %s\n", t.Bot)
		}
	}
}
