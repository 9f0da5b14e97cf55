package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pavelanni/examflow/internal/evaluator"
	"github.com/pavelanni/examflow/internal/handler"
	appI18n "github.com/pavelanni/examflow/internal/i18n"
	"github.com/pavelanni/examflow/internal/judge"
	"github.com/pavelanni/examflow/internal/model"
	"github.com/pavelanni/examflow/internal/selector"
	"github.com/pavelanni/examflow/internal/session"
	"github.com/pavelanni/examflow/internal/store"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "examflow",
		Short: "Adaptive exam session engine",
	}

	serve := serveCmd()
	root.AddCommand(serve, exportCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `examflow --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the exam session HTTP server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", "examflow.db", "SQLite database path")
	f.StringSliceP("items", "q", nil, "Paths to item JSON files to import on startup (repeatable)")
	f.String("exam-id", "default", "Exam the imported item files belong to")
	f.String("judge-url", "", "OpenAI-compatible API base URL for the external judge (empty disables the judge)")
	f.String("judge-key", "", "API key for the external judge")
	f.String("judge-model", "llama3.2", "Judge model name")
	f.Duration("judge-timeout", 0, "Judge call timeout (0 = 30s default)")
	f.StringP("lang", "l", "en", "Language for student-facing messages (en, ru)")
	f.IntP("num-questions", "n", 10, "Number of questions per session")
	f.String("level-mix", "", "Comma-separated level 3,4,5 fractions for stratified sampling (e.g. 0.3,0.3,0.4)")
	f.Bool("adaptive", false, "Use stepwise adaptive selection instead of a fixed stratified order")
	f.Uint64("seed", 0, "Random seed for item sampling (0 = nondeterministic)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export finalized grade reports as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db", "examflow.db", "SQLite database path")
	f.String("exam-id", "", "Exam identifier for output (required)")
	f.String("subject", "", "Subject name for output (required)")
	f.String("date", "", "Exam date in YYYY-MM-DD format (required)")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")

	_ = cmd.MarkFlagRequired("exam-id")
	_ = cmd.MarkFlagRequired("subject")
	_ = cmd.MarkFlagRequired("date")

	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("EXAMFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("examflow")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/examflow")
	v.AddConfigPath("/etc/examflow")
	v.AddConfigPath("/data")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	examID := v.GetString("exam-id")
	if err := loadItems(db, examID, v.GetStringSlice("items")); err != nil {
		return fmt.Errorf("load items: %w", err)
	}

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	// Optional external judge; when disabled, heuristic evaluation covers
	// everything.
	var evalOpts []evaluator.Option
	if judgeURL := v.GetString("judge-url"); judgeURL != "" {
		judgeClient := judge.New(judgeURL, v.GetString("judge-key"), v.GetString("judge-model"))
		if err := judgeClient.Ping(context.Background()); err != nil {
			return fmt.Errorf("judge health check: %w", err)
		}
		slog.Info("judge endpoint OK", "url", judgeURL, "model", v.GetString("judge-model"))
		evalOpts = append(evalOpts, evaluator.WithJudge(judgeClient, v.GetDuration("judge-timeout")))
	}
	eval := evaluator.New(evalOpts...)

	mix, err := parseLevelMix(v.GetString("level-mix"))
	if err != nil {
		return fmt.Errorf("parse level-mix: %w", err)
	}

	seed := v.GetUint64("seed")
	if seed == 0 {
		seed = rand.Uint64()
	}
	rng := rand.New(rand.NewPCG(seed, seed))

	cfg := model.ExamConfig{
		NumQuestions: v.GetInt("num-questions"),
		LevelMix:     mix,
		Adaptive:     v.GetBool("adaptive"),
		Seed:         seed,
	}

	var sel selector.Selector
	if cfg.Adaptive {
		sel = selector.NewStepwise(db, rng)
	} else {
		sel = selector.NewStratified(db, rng, cfg.LevelMix)
	}

	manager := session.NewManager(db, eval, sel, session.LevelHints{}, cfg)
	h := handler.New(db, manager)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware(lang))
	h.Routes(r)

	addr := v.GetString("addr")
	slog.Info("starting server",
		"addr", addr,
		"exam_id", examID,
		"num_questions", cfg.NumQuestions,
		"adaptive", cfg.Adaptive,
		"judge", v.GetString("judge-url") != "",
		"lang", lang,
	)
	return http.ListenAndServe(addr, r)
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	reports, err := db.ExportAllReports()
	if err != nil {
		return fmt.Errorf("export reports: %w", err)
	}

	export := model.ResultsExport{
		ExamID:     v.GetString("exam-id"),
		Subject:    v.GetString("subject"),
		Date:       v.GetString("date"),
		NumReports: len(reports),
		Reports:    reports,
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = os.Stdout
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	_, err = w.Write(data)
	if err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)

	return nil
}

// parseLevelMix parses "0.3,0.3,0.4" into per-level fractions for levels
// 3, 4 and 5. An empty string yields the default mix.
func parseLevelMix(s string) (map[model.Level]float64, error) {
	if s == "" {
		return model.DefaultLevelMix(), nil
	}
	parts := strings.Split(s, ",")
	if len(parts) != int(model.MaxLevel-model.MinLevel)+1 {
		return nil, fmt.Errorf("expected %d fractions, got %d", int(model.MaxLevel-model.MinLevel)+1, len(parts))
	}
	mix := make(map[model.Level]float64)
	sum := 0.0
	for i, p := range parts {
		frac, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("fraction %q: %w", p, err)
		}
		if frac < 0 {
			return nil, fmt.Errorf("fraction %q is negative", p)
		}
		mix[model.MinLevel+model.Level(i)] = frac
		sum += frac
	}
	if sum == 0 {
		return nil, fmt.Errorf("level mix sums to zero")
	}
	return mix, nil
}

func loadItems(db *store.Store, examID string, paths []string) error {
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}

		hash := sha256sum(data)
		storedHash, err := db.GetImportedFileHash(path)
		if err != nil {
			return fmt.Errorf("check import status for %s: %w", path, err)
		}

		if storedHash == hash {
			slog.Info("items file unchanged, skipping", "path", path)
			continue
		}
		if storedHash != "" {
			slog.Warn("items file changed since last import, skipping to avoid breaking existing sessions",
				"path", path)
			continue
		}

		var imports []model.ItemImport
		if err := json.Unmarshal(data, &imports); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}

		for _, qi := range imports {
			if !qi.Level.Valid() {
				return fmt.Errorf("item %q in %s: invalid level %d", qi.Text, path, qi.Level)
			}
			_, err := db.InsertItem(model.Item{
				ExamID:        examID,
				Text:          qi.Text,
				Type:          qi.Type,
				Level:         qi.Level,
				Topic:         qi.Topic,
				CorrectAnswer: qi.CorrectAnswer,
				SampleAnswer:  qi.SampleAnswer,
				Keywords:      qi.Keywords,
				Options:       qi.Options,
				GradingNotes:  qi.GradingNotes,
			})
			if err != nil {
				return fmt.Errorf("insert item from %s: %w", path, err)
			}
		}

		if err := db.SetImportedFileHash(path, hash); err != nil {
			return fmt.Errorf("record import for %s: %w", path, err)
		}
		slog.Info("imported items", "path", path, "count", len(imports))
	}

	return nil
}

func sha256sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
