package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/CTAG07/markovbot/pkg/markov"
	"github.com/CTAG07/markovbot/pkg/snapshot"
	"github.com/joho/godotenv"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

const usage = `usage: markovbot [-config path] <command> [flags]

commands:
  ingest    train a database from files or stdin
  generate  print generated sentences
  clear     clear one database, or the whole store with -all
  stats     print per-database statistics as JSON
  export    write the store as a JSON snapshot
  import    load a JSON snapshot into the store
  serve     run the HTTP API
  keygen    create an API key and print its config entry
  version   print build information`

func main() {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "markovbot:", err)
		os.Exit(1)
	}
}

// app carries what every subcommand needs.
type app struct {
	config *Config
	logger *slog.Logger
	store  *markov.Store
	stdin  io.Reader
	stdout io.Writer
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	fs := flag.NewFlagSet("markovbot", flag.ContinueOnError)
	fs.Usage = func() { fmt.Fprintln(fs.Output(), usage) }
	configPath := fs.String("config", defaultConfigPath(), "path to the JSON or YAML config file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return errors.New("no command given")
	}
	command, rest := fs.Arg(0), fs.Args()[1:]

	switch command {
	case "version":
		_, err := fmt.Fprintf(stdout, "markovbot %s (commit %s, built %s)\n", Version, Commit, BuildDate)
		return err
	case "serve":
		return serve(ctx, *configPath)
	case "keygen":
		return keygen(rest, stdout)
	}

	config, err := LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger := newLogger(config.Server)
	store := newStore(config, logger)
	if err = loadStore(ctx, store, config.Server.StatePath, true); err != nil {
		return fmt.Errorf("failed to load state: %w", err)
	}

	a := &app{config: config, logger: logger, store: store, stdin: stdin, stdout: stdout}
	switch command {
	case "ingest":
		return a.ingest(ctx, rest)
	case "generate":
		return a.generate(ctx, rest)
	case "clear":
		return a.clear(ctx, rest)
	case "stats":
		return a.stats(rest)
	case "export":
		return a.export(ctx, rest)
	case "import":
		return a.importSnapshot(ctx, rest)
	default:
		fs.Usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

// keygen prints a new raw key once, followed by the api_keys entry that
// authorizes it. Only the entry belongs in the config.
func keygen(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("keygen", flag.ContinueOnError)
	scopes := fs.String("scopes", scopeAll, "space-separated scopes granted to the key")
	description := fs.String("description", "", "note stored with the key")
	if err := fs.Parse(args); err != nil {
		return err
	}

	entry := APIKey{Scopes: strings.Fields(*scopes), Description: *description}
	if len(entry.Scopes) == 0 {
		return errors.New("keygen needs at least one scope")
	}
	for _, scope := range entry.Scopes {
		if _, ok := knownScopes[scope]; !ok {
			return fmt.Errorf("unknown scope %q", scope)
		}
	}

	rawKey, err := generateAPIKey()
	if err != nil {
		return err
	}
	entry.KeyHash = hashAPIKey(rawKey)

	if _, err = fmt.Fprintf(stdout, "key: %s\n", rawKey); err != nil {
		return err
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(entry)
}

func defaultConfigPath() string {
	if v := os.Getenv("MARKOVBOT_CONFIG"); v != "" {
		return v
	}
	return "./config.json"
}

func newStore(config *Config, logger *slog.Logger) *markov.Store {
	store := markov.NewStore(markov.NewDefaultTokenizer(markov.WithMinLength(config.Generator.MinTokenLength)))
	store.SetLogger(logger)
	return store
}

// serve runs the API, reloading config and state whenever a restart is requested.
func serve(ctx context.Context, configPath string) error {
	actionChan := make(chan string, 1)
	for {
		config, err := LoadConfig(configPath)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		logger := newLogger(config.Server)
		logger.Info("Starting server cycle...")

		store := newStore(config, logger)
		if err = loadStore(ctx, store, config.Server.StatePath, true); err != nil {
			return fmt.Errorf("failed to load state: %w", err)
		}
		logger.Info("State loaded", "path", config.Server.StatePath, "databases", len(store.Databases()))

		action, err := runServer(ctx, config, logger, store, actionChan)
		if err != nil {
			return err
		}
		if action == actionRestart && ctx.Err() == nil {
			logger.Info("--- Server Restarting ---")
			continue
		}
		logger.Info("markovbot has shut down.")
		return nil
	}
}

func (a *app) save(ctx context.Context) error {
	if err := saveStore(ctx, a.store, a.config.Server.StatePath); err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}
	return nil
}

func (a *app) ingest(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	database := fs.String("db", a.config.Generator.DefaultDatabase, "database to train")
	overwrite := fs.Bool("overwrite", false, "replace the database instead of appending")
	if err := fs.Parse(args); err != nil {
		return err
	}

	files := fs.Args()
	if len(files) == 0 {
		files = []string{"-"}
	}
	for i, file := range files {
		// Only the first source may truncate, the rest append to it.
		ow := *overwrite && i == 0
		var err error
		if file == "-" {
			err = a.store.Train(ctx, *database, a.stdin, ow)
		} else {
			err = snapshot.TrainFile(ctx, a.store, file, *database, ow)
		}
		if err != nil {
			return fmt.Errorf("failed to ingest %s: %w", file, err)
		}
	}
	return a.save(ctx)
}

// stringList collects a repeatable string flag.
type stringList []string

func (l *stringList) String() string { return strings.Join(*l, ",") }

func (l *stringList) Set(v string) error {
	*l = append(*l, v)
	return nil
}

func (a *app) generate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("generate", flag.ContinueOnError)
	database := fs.String("db", a.config.Generator.DefaultDatabase, "database to generate from")
	count := fs.Int("n", 1, "number of sentences")
	maxLength := fs.Int("max-length", a.config.Generator.MaxLength, "maximum words before trimming")
	maxTries := fs.Int("max-tries", a.config.Generator.MaxTries, "attempts before giving up")
	verbose := fs.Bool("verbose", a.config.Generator.Verbose, "log failed attempts at info level")
	var seeds stringList
	fs.Var(&seeds, "seed", "seed word or two-word phrase (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *count < 1 {
		return fmt.Errorf("%w: -n must be at least 1, got %d", markov.ErrInvalidArgument, *count)
	}

	opts := []markov.GenerateOption{
		markov.WithMaxLength(*maxLength),
		markov.WithMaxTries(*maxTries),
		markov.WithSeedWords(seeds...),
		markov.WithVerbose(*verbose),
	}
	for i := 0; i < *count; i++ {
		text, err := a.store.Generate(ctx, *database, opts...)
		if err != nil {
			return err
		}
		if _, err = fmt.Fprintln(a.stdout, text); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) clear(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("clear", flag.ContinueOnError)
	database := fs.String("db", a.config.Generator.DefaultDatabase, "database to clear")
	all := fs.Bool("all", false, "reset the whole store")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *all {
		a.store.Reset()
	} else if err := a.store.Clear(*database); err != nil {
		return err
	}
	return a.save(ctx)
}

func (a *app) stats(args []string) error {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(a.store.Stats())
}

func (a *app) export(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	out := fs.String("o", "-", "snapshot file (.chain or .json), - for stdout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *out == "-" {
		return a.store.Export(ctx, a.stdout)
	}
	return snapshot.SaveFile(ctx, a.store, *out)
}

func (a *app) importSnapshot(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	overwrite := fs.Bool("overwrite", false, "replace the store instead of merging")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("import takes exactly one snapshot file, or - for stdin")
	}

	var err error
	if file := fs.Arg(0); file == "-" {
		err = a.store.Import(ctx, a.stdin, *overwrite)
	} else {
		err = snapshot.LoadFile(ctx, a.store, file, *overwrite)
	}
	if err != nil {
		return err
	}
	return a.save(ctx)
}
