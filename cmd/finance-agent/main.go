// Command finance-agent is an interactive chat with the finance assistant.
//
// Configuration is read from the environment, and from .env if present:
//
//	USER_ID            ID of the user, required
//	MCP_SERVER_URL     URL of the finance-mcp endpoint, http://localhost:8080/mcp by default
//	LLM_CONFIG         path of the LLM providers config, Gemini with GOOGLE_API_KEY by default
//	REDIS_URL          chat history is kept in Redis when set, in memory otherwise
//	AGENT_INSTRUCTION  path of an instruction replacing the built-in one,
//	                   Jinja2 for .j2 files, Go template otherwise
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/finassist/agent"
	"github.com/effective-security/finassist/assistants"
	"github.com/effective-security/finassist/callbacks"
	"github.com/effective-security/finassist/mcpclient"
	"github.com/effective-security/finassist/pkg/llmfactory"
	"github.com/effective-security/finassist/pkg/llms"
	"github.com/effective-security/finassist/store"
	"github.com/effective-security/finassist/tools"
	"github.com/effective-security/finassist/tools/expenses"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

const (
	envUserID       = "USER_ID"
	envMCPServerURL = "MCP_SERVER_URL"
	envLLMConfig    = "LLM_CONFIG"
	envGoogleAPIKey = "GOOGLE_API_KEY"
	envRedisURL     = "REDIS_URL"
	envInstruction  = "AGENT_INSTRUCTION"

	defaultMCPServerURL = "http://localhost:8080/mcp"
	defaultModel        = "gemini-2.0-flash"
	redisPrefix         = "finassist"
)

type flags struct {
	verbose bool
	debug   bool
	stats   bool
	model   string
}

func main() {
	var f flags
	flag.BoolVar(&f.verbose, "verbose", false, "print assistant and tool events")
	flag.BoolVar(&f.debug, "debug", false, "enable debug logs")
	flag.BoolVar(&f.stats, "stats", false, "print the run transcript after each answer")
	flag.StringVar(&f.model, "model", "", "preferred model name")
	flag.Parse()

	if err := run(f); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %+v\n", err)
		os.Exit(1)
	}
}

func run(f flags) error {
	// .env is optional
	_ = godotenv.Load()

	xlog.SetFormatter(xlog.NewStringFormatter(os.Stderr))
	if f.debug {
		xlog.SetGlobalLogLevel(xlog.DEBUG)
	} else {
		xlog.SetGlobalLogLevel(xlog.ERROR)
	}

	userID := strings.TrimSpace(os.Getenv(envUserID))
	if userID == "" {
		return errors.WithStack(agent.ErrUserIDRequired)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	llm, err := loadLLM(f.model)
	if err != nil {
		return err
	}

	serverURL := values.StringsCoalesce(os.Getenv(envMCPServerURL), defaultMCPServerURL)
	toolset, err := agent.Connect(ctx, serverURL, userID)
	if err != nil {
		return err
	}

	st, closeStore, err := newStore()
	if err != nil {
		return err
	}
	defer closeStore()

	mode := callbacks.ModeDefault
	if f.verbose {
		mode = callbacks.ModeVerbose
	}
	scratchpad := callbacks.NewScratchpad(mode)
	callback := callbacks.NewFanout(
		scratchpad,
		callbacks.NewPackageLogger(xlog.NewPackageLogger("github.com/effective-security/finassist", "finance-agent")),
	)
	if f.verbose {
		callback.Add(callbacks.NewPrinter(os.Stderr, mode))
	}

	instr := agent.DefaultInstruction()
	if location := os.Getenv(envInstruction); location != "" {
		if instr, err = agent.LoadInstruction(location); err != nil {
			return err
		}
	}

	assistant, err := agent.NewWithInstruction(llm, userID, toolset.Tools(), instr,
		assistants.WithStore(st),
		assistants.WithCallback(callback),
	)
	if err != nil {
		return err
	}

	renderer, err := newRenderer(100)
	if err != nil {
		return errors.Wrap(err, "failed to create renderer")
	}

	r := &repl{
		session:   agent.NewSession(assistant, userID, scratchpad),
		toolset:   toolset,
		render:    renderer.Render,
		out:       color.Output,
		stats:     f.stats,
		prompt:    color.New(color.FgGreen, color.Bold),
		faint:     color.New(color.Faint),
		failure:   color.New(color.FgRed),
		model:     llm.GetName(),
		serverURL: serverURL,
	}
	return r.loop(ctx, os.Stdin)
}

func loadLLM(preferred string) (llms.Model, error) {
	var cfg *llmfactory.Config
	if location := os.Getenv(envLLMConfig); location != "" {
		var err error
		cfg, err = llmfactory.LoadConfig(location)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = &llmfactory.Config{
			DefaultProvider: "GEMINI",
			Providers: []*llmfactory.ProviderConfig{
				{
					Name:         "GEMINI",
					Type:         string(llms.ProviderGoogleAI),
					Token:        os.Getenv(envGoogleAPIKey),
					DefaultModel: defaultModel,
				},
			},
		}
	}

	var preferredModels []string
	if preferred != "" {
		preferredModels = append(preferredModels, preferred)
	}
	llm, err := llmfactory.New(cfg).AssistantModel(agent.Name, preferredModels...)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to create LLM")
	}
	return llm, nil
}

func newStore() (store.MessageStore, func(), error) {
	redisURL := os.Getenv(envRedisURL)
	if redisURL == "" {
		return store.NewMemoryStore(), func() {}, nil
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, nil, errors.Wrap(err, "invalid REDIS_URL")
	}
	client := redis.NewClient(opts)
	return store.NewRedisStore(client, redisPrefix), func() { _ = client.Close() }, nil
}

type repl struct {
	session   *agent.Session
	toolset   *mcpclient.Toolset
	render    func(string) (string, error)
	out       io.Writer
	stats     bool
	prompt    *color.Color
	faint     *color.Color
	failure   *color.Color
	model     string
	serverURL string
}

const help = "comandos: /despesas, /ajuda, /sair"

func (r *repl) loop(ctx context.Context, in io.Reader) error {
	fmt.Fprintln(r.out, r.faint.Sprintf("%s (%s) conectado a %s", agent.Name, r.model, r.serverURL))
	fmt.Fprintln(r.out, r.faint.Sprint(help))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines, errc := readLines(ctx, in)
	for {
		if ctx.Err() != nil {
			return nil
		}
		r.prompt.Fprint(r.out, "> ")

		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(r.out)
			return nil
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(r.out)
				select {
				case err := <-errc:
					return err
				default:
					return nil
				}
			}
			line = strings.TrimSpace(l)
		}

		switch line {
		case "":
			continue
		case "/sair", "/exit", "/quit":
			return nil
		case "/ajuda", "/help":
			fmt.Fprintln(r.out, r.faint.Sprint(help))
		case "/despesas":
			r.listExpenses(ctx)
		default:
			r.ask(ctx, line)
		}
	}
}

// readLines scans in until EOF or ctx is done.
// The scanner error, if any, is sent before lines is closed.
func readLines(ctx context.Context, in io.Reader) (<-chan string, <-chan error) {
	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		errc <- scanner.Err()
	}()
	return lines, errc
}

func (r *repl) ask(ctx context.Context, question string) {
	fmt.Fprintln(r.out, r.faint.Sprint("pensando..."))

	answer, err := r.session.Ask(ctx, question)
	if answer != nil && r.stats && len(answer.Transcript) > 0 {
		fmt.Fprint(r.out, r.faint.Sprint(string(answer.Transcript)))
	}
	if err != nil {
		fmt.Fprintln(r.out, r.failure.Sprintf("erro: %s", err.Error()))
		return
	}
	r.print(answer.Text)
}

// listExpenses calls the list tool directly, the user is pinned by the toolset.
func (r *repl) listExpenses(ctx context.Context) {
	tool := tools.Find(r.toolset.Tools(), expenses.ListToolName)
	if tool == nil {
		fmt.Fprintln(r.out, r.failure.Sprintf("erro: ferramenta %s não disponível", expenses.ListToolName))
		return
	}
	out, err := tool.Call(ctx, `{}`)
	if err != nil {
		fmt.Fprintln(r.out, r.failure.Sprintf("erro: %s", err.Error()))
		return
	}
	list, err := parseExpenses(out)
	if err != nil {
		fmt.Fprintln(r.out, r.failure.Sprintf("erro: %s", err.Error()))
		return
	}
	r.print(expensesTable(list))
}

func (r *repl) print(md string) {
	rendered, err := r.render(md)
	if err != nil {
		rendered = md
	}
	fmt.Fprintln(r.out, strings.TrimSpace(rendered))
}
