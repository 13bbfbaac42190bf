package main

import (
	"bufio"
	"chat-relay/client"
	"chat-relay/errors"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gookit/color"
	"github.com/kelseyhightower/envconfig"
	"github.com/mama165/sdk-go/logs"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

type Config struct {
	BaseURL  string `envconfig:"RELAY_URL" default:"http://localhost:8080"`
	Email    string `envconfig:"CHAT_EMAIL" required:"true"`
	Password string `envconfig:"CHAT_PASSWORD" required:"true"`
	// CHAT_USERNAME signs the account up first when set
	Username       string        `envconfig:"CHAT_USERNAME"`
	HistoryLimit   int           `envconfig:"CHAT_HISTORY_LIMIT" default:"50"`
	PersistTimeout time.Duration `envconfig:"CHAT_PERSIST_TIMEOUT" default:"5s"`
	LogLevel       string        `envconfig:"LOG_LEVEL" default:"WARN"`
	Colours        bool          `envconfig:"CHAT_COLOURS" default:"true"`
}

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Client error: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rest := client.NewStoreClient(config.BaseURL, nil)
	if config.Username != "" {
		err := rest.Signup(ctx, config.Email, config.Username, config.Password)
		if err != nil && !errors.Is(err, errors.ErrUserAlreadyExists) {
			return exitRuntime, fmt.Errorf("signup failed: %w", err)
		}
	}
	token, username, err := rest.Login(ctx, config.Email, config.Password)
	if err != nil {
		return exitRuntime, fmt.Errorf("login failed: %w", err)
	}

	c := client.New(log, client.Config{
		BaseURL:          config.BaseURL,
		SocketURL:        socketURL(config.BaseURL),
		Token:            token,
		Author:           username,
		HistoryLimit:     config.HistoryLimit,
		HandshakeTimeout: 5 * time.Second,
		PersistTimeout:   config.PersistTimeout,
	}, rest)

	r := renderer{colours: config.Colours}
	go r.render(c.Reconciler().Notices())
	go readLines(ctx, c, r)

	if err := c.Run(ctx); err != nil {
		return exitRuntime, err
	}
	return exitOK, nil
}

func socketURL(baseURL string) string {
	switch {
	case strings.HasPrefix(baseURL, "https://"):
		return "wss://" + strings.TrimPrefix(baseURL, "https://") + "/api/socket"
	default:
		return "ws://" + strings.TrimPrefix(baseURL, "http://") + "/api/socket"
	}
}

func readLines(ctx context.Context, c *client.Client, r renderer) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if _, err := c.Send(ctx, text); err != nil {
			r.problem(err)
		}
	}
}

type renderer struct {
	colours bool
}

func (r renderer) render(notices <-chan client.Notice) {
	for n := range notices {
		switch n.Kind {
		case client.EntryAdded:
			r.entry(n.Entry)
		case client.EntryUpdated:
			if n.Entry.Provenance == client.Optimistic && n.Entry.Message.ID != "" {
				r.paint(color.FgGray, fmt.Sprintf("  ✓ stored %s", n.Entry.Message.ID))
			}
		case client.StateChanged:
			line := fmt.Sprintf("-- %s --", n.State)
			if n.Err != nil {
				line = fmt.Sprintf("-- %s: %v --", n.State, n.Err)
			}
			r.paint(color.FgYellow, line)
		case client.EmitFailed, client.PersistFailed:
			r.problem(n.Err)
		}
	}
}

func (r renderer) entry(e client.Entry) {
	at := e.Message.CreatedAt.Local().Format("15:04:05")
	line := fmt.Sprintf("[%s] %s: %s", at, e.Message.Author, e.Message.Text)
	switch e.Provenance {
	case client.Optimistic:
		r.paint(color.FgCyan, line+" (sending)")
	case client.Broadcast:
		r.paint(color.FgGreen, line)
	default:
		r.paint(color.FgWhite, line)
	}
}

func (r renderer) problem(err error) {
	r.paint(color.FgRed, fmt.Sprintf("!! %v", err))
}

func (r renderer) paint(c color.Color, line string) {
	if r.colours {
		line = c.Render(line)
	}
	fmt.Println(line)
}
