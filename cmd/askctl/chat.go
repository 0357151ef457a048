package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"

	"github.com/askislamically/backend/internal/model/chat"
	"github.com/askislamically/backend/internal/service/ai"
	chatService "github.com/askislamically/backend/internal/service/chat"
	"github.com/askislamically/backend/internal/service/gateway"
)

type chatCmd struct {
	Gateway    string `help:"Completion gateway URL; empty uses the configured AI provider in-process." env:"GATEWAY_URL"`
	Name       string `help:"Name used in the greeting." default:"friend"`
	UserType   string `help:"muslim or non-muslim." default:"muslim" enum:"muslim,non-muslim" name:"user-type"`
	Profession string `help:"Profession, used for non-muslim users."`
	Beliefs    string `help:"Beliefs, used for non-muslim users."`
	Question   string `arg:"" optional:"" help:"Initial question."`
}

// terminalListener prints new messages and notices as the session publishes them.
type terminalListener struct {
	out io.Writer

	mu   sync.Mutex
	seen map[string]bool
}

func newTerminalListener(out io.Writer) *terminalListener {
	return &terminalListener{out: out, seen: make(map[string]bool)}
}

func (l *terminalListener) StateChanged(s chat.Snapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(s.Messages) < len(l.seen) {
		// cleared
		l.seen = make(map[string]bool)
	}
	for _, m := range s.Messages {
		if l.seen[m.ID] {
			continue
		}
		l.seen[m.ID] = true
		if m.Role == chat.RoleAssistant {
			fmt.Fprintf(l.out, "\n%s\n\n", m.Content)
		}
	}
	if s.Loading {
		fmt.Fprintln(l.out, "…")
	}
}

func (l *terminalListener) Notify(n chat.Notification) {
	fmt.Fprintf(l.out, "[%s] %s\n", n.Title, n.Description)
}

func (l *terminalListener) ScrollToLatest() {}
func (l *terminalListener) FocusInput()     {}

func (c *chatCmd) completer(ctx context.Context, g *Globals) (gateway.Completer, error) {
	cfg, err := g.load()
	if err != nil {
		return nil, err
	}
	url := c.Gateway
	if url == "" {
		url = cfg.Gateway.URL
	}
	if url != "" {
		return gateway.NewClient(url, cfg.Gateway.Timeout), nil
	}
	return ai.NewService(ctx, cfg.AI)
}

func (c *chatCmd) Run(g *Globals) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	completer, err := c.completer(ctx, g)
	if err != nil {
		return err
	}
	identity, err := chat.NewIdentity(c.Name, c.UserType, c.Question, &chat.UserData{
		Profession: c.Profession,
		Beliefs:    c.Beliefs,
	})
	if err != nil {
		return err
	}

	svc := chatService.NewService(completer, chatService.Options{})
	defer svc.Shutdown()

	session, err := svc.Open(ctx, identity, chatService.Options{Listener: newTerminalListener(os.Stdout)})
	if err != nil {
		return err
	}
	if err := session.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}

	fmt.Println("Commands: /regen /clear /export /quit")
	return c.loop(ctx, session, os.Stdin)
}

func (c *chatCmd) loop(ctx context.Context, session *chatService.Session, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())

		var err error
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/regen":
			err = session.Regenerate(ctx)
		case "/clear":
			session.Reset()
		case "/export":
			err = writeExport(session)
		default:
			err = session.Ask(ctx, line)
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func writeExport(session *chatService.Session) error {
	artifact, err := session.Export()
	if err != nil {
		return err
	}
	if artifact == nil {
		return nil
	}
	if err := os.WriteFile(artifact.Filename, artifact.Body, 0o644); err != nil {
		return err
	}
	fmt.Println("saved", artifact.Filename)
	return nil
}
