package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/omniql-engine/querycraft"
	"github.com/omniql-engine/querycraft/config"
	"github.com/omniql-engine/querycraft/engine/translator"
	"github.com/omniql-engine/querycraft/engine/validator"
	"github.com/omniql-engine/querycraft/server"
)

const usage = `usage: querycraft [-config file] [-format json|text|proto] <command> [flags] [query]

commands:
  convert   translate SQL to MongoDB (-type hint, -exec to run it against mongo.uri)
  reverse   translate a MongoDB command or pipeline to SQL (-collection name)
  validate  check SQL against a grammar (-dialect mysql|postgresql|mongodb)
  serve     run the HTTP service

The query is read from stdin when it is omitted or "-".
`

func main() {
	var (
		configPath string
		format     string
	)
	flag.StringVar(&configPath, "config", "", "Path to querycraft.yaml (default: $QUERYCRAFT_CONFIG or ./querycraft.yaml)")
	flag.StringVar(&format, "format", "text", "Output format: json, text, proto")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}
	if format != "json" && format != "text" && format != "proto" {
		fmt.Fprintf(os.Stderr, "Error: unknown format %q\n", format)
		os.Exit(2)
	}

	cfg, err := config.Load(configPath, os.Getenv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	logger := newLogger(cfg.Log)

	out := &output{w: os.Stdout, format: format}
	cmd, args := flag.Arg(0), flag.Args()[1:]
	switch cmd {
	case "convert":
		err = runConvert(cfg, args, out)
	case "reverse":
		err = runReverse(args, out)
	case "validate":
		err = runValidate(args, out)
	case "serve":
		err = runServe(cfg, logger)
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command %q\n\n", cmd)
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		level.Error(logger).Log("msg", cmd+" failed", "err", err)
		os.Exit(1)
	}
}

func newLogger(cfg config.LogConfig) log.Logger {
	var logger log.Logger
	if cfg.Format == "json" {
		logger = log.NewJSONLogger(log.NewSyncWriter(os.Stderr))
	} else {
		logger = log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	}
	logger = log.With(logger, "ts", log.DefaultTimestampUTC)
	logger = log.With(logger, "caller", log.DefaultCaller)

	var allow level.Option
	switch cfg.Level {
	case "debug":
		allow = level.AllowDebug()
	case "warn":
		allow = level.AllowWarn()
	case "error":
		allow = level.AllowError()
	default:
		allow = level.AllowInfo()
	}
	return level.NewFilter(logger, allow)
}

func runConvert(cfg *config.Config, args []string, out *output) error {
	fs := flag.NewFlagSet("convert", flag.ExitOnError)
	queryType := fs.String("type", "", "Query type hint: select, join, aggregate, insert, update, delete")
	exec := fs.Bool("exec", false, "Execute the statement against mongo.uri / mongo.database")
	timeout := fs.Duration("timeout", 30*time.Second, "Execution timeout")
	fs.Parse(args)

	sql, err := readQuery(fs.Args())
	if err != nil {
		return err
	}

	if *exec {
		return execute(cfg, sql, *timeout, out)
	}

	tr := querycraft.New(cfg.TranslatorOptions())
	res, err := tr.Convert(context.Background(), querycraft.Request{SQL: sql, QueryType: *queryType})
	if err != nil {
		return err
	}
	return out.write(res, func(w io.Writer) {
		fmt.Fprintln(w, res.PrimaryMongoDB)
		fmt.Fprintf(w, "\n%s\n", res.Explanation)
		writeNotes(w, res.Notes)
		for _, a := range res.Approaches {
			fmt.Fprintf(w, "\n## %s\n%s\n", a.Title, a.Code)
			fmt.Fprintf(w, "Pros: %s\nCons: %s\nUse case: %s\n", strings.Join(a.Pros, "; "), strings.Join(a.Cons, "; "), a.UseCase)
		}
		if res.SchemaSuggestions != "" {
			fmt.Fprintf(w, "\nSchema suggestions:\n%s\n", res.SchemaSuggestions)
		}
	})
}

func execute(cfg *config.Config, sql string, timeout time.Duration, out *output) error {
	if cfg.Mongo.URI == "" || cfg.Mongo.Database == "" {
		return errors.New("-exec needs mongo.uri and mongo.database in the configuration")
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.Mongo.URI))
	if err != nil {
		return fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	defer client.Disconnect(context.Background())

	t := cfg.Translator
	db := querycraft.WrapMongo(client.Database(cfg.Mongo.Database),
		querycraft.WithMaxTokens(t.MaxTokens),
		querycraft.WithRenameID(t.RenameID),
		querycraft.WithCaseInsensitiveLike(t.CaseInsensitiveLike))
	rows, err := db.Query(ctx, sql)
	if err != nil {
		return err
	}

	result := map[string]any{"rows": rows}
	return out.write(result, func(w io.Writer) {
		for _, row := range rows {
			line, _ := server.MarshalJSON(row)
			fmt.Fprintln(w, string(line))
		}
	})
}

func runReverse(args []string, out *output) error {
	fs := flag.NewFlagSet("reverse", flag.ExitOnError)
	collection := fs.String("collection", "", "Table name for a bare aggregation pipeline")
	fs.Parse(args)

	query, err := readQuery(fs.Args())
	if err != nil {
		return err
	}
	res, err := querycraft.ConvertToSQL(query, querycraft.WithCollection(*collection))
	if err != nil {
		return err
	}
	return out.write(res, func(w io.Writer) {
		fmt.Fprintln(w, res.SQL)
		fmt.Fprintf(w, "\n%s\n", res.Explanation)
		writeNotes(w, res.Notes)
	})
}

func runValidate(args []string, out *output) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	dialectName := fs.String("dialect", "mysql", "Grammar: mysql, postgresql, mongodb")
	fs.Parse(args)

	dialect, err := validator.ParseDialect(*dialectName)
	if err != nil {
		return err
	}
	query, err := readQuery(fs.Args())
	if err != nil {
		return err
	}
	res, err := validator.ValidateWithDetails(query, dialect)
	if err != nil {
		return err
	}
	return out.write(res, func(w io.Writer) {
		if res.Valid {
			fmt.Fprintf(w, "valid %s\n", dialect.Display())
			return
		}
		fmt.Fprintf(w, "invalid %s: %s\n", dialect.Display(), res.Error)
	})
}

func runServe(cfg *config.Config, logger log.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	opts := []server.Option{server.WithLogger(logger), server.WithRegistry(reg)}
	if cfg.Cache.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.Password,
			DB:       cfg.Cache.DB,
		})
		defer rdb.Close()

		cache := server.NewRedisCache(rdb, cfg.Cache.TTL, cfg.Cache.Prefix)
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := cache.Ping(pingCtx); err != nil {
			level.Warn(logger).Log("msg", "redis unreachable, requests are served uncached until it recovers", "addr", cfg.Cache.RedisAddr, "err", err)
		} else {
			level.Info(logger).Log("msg", "result cache enabled", "addr", cfg.Cache.RedisAddr, "ttl", cfg.Cache.TTL)
		}
		cancel()
		opts = append(opts, server.WithCache(cache))
	}

	srv := server.New(cfg.Server, translator.New(cfg.TranslatorOptions()), opts...)
	if err := srv.Run(ctx); err != nil {
		return err
	}
	level.Info(logger).Log("msg", "shutdown complete")
	return nil
}

func readQuery(args []string) (string, error) {
	if len(args) > 0 && args[0] != "-" {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	return string(bytes.TrimSpace(data)), nil
}

func writeNotes(w io.Writer, notes []string) {
	if len(notes) == 0 {
		return
	}
	fmt.Fprintln(w, "\nNotes:")
	for _, n := range notes {
		fmt.Fprintf(w, "  - %s\n", n)
	}
}

type output struct {
	w      io.Writer
	format string
}

// write prints v in the selected format; text uses the command's renderer
func (o *output) write(v any, text func(io.Writer)) error {
	switch o.format {
	case "json":
		enc := json.NewEncoder(o.w)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "proto":
		data, err := server.MarshalProto(v)
		if err != nil {
			return err
		}
		_, err = o.w.Write(data)
		return err
	}
	text(o.w)
	return nil
}
