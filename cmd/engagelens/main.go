package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/goccy/go-json"

	"engagelens/internal/analytics"
	"engagelens/internal/blob"
	"engagelens/internal/cmdlog"
	"engagelens/internal/config"
	"engagelens/internal/dataset"
	"engagelens/internal/features"
	"engagelens/internal/jobs"
	"engagelens/internal/logging"
	"engagelens/internal/metrics"
	"engagelens/internal/model"
	"engagelens/internal/predictor"
	"engagelens/internal/schedule"
	"engagelens/internal/server"
	"engagelens/internal/store/sqlitevec"
	"engagelens/internal/suggest"
	"engagelens/internal/theme"
)

const defaultConfig = "./engagelens.yaml"

func main() {
	cmd := ""
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}
	switch cmd {
	case "init":
		cmdInit()
	case "preprocess":
		run(cmd, cmdPreprocess)
	case "train":
		run(cmd, cmdTrain)
	case "score":
		run(cmd, cmdScore)
	case "encode":
		run(cmd, cmdEncode)
	case "predict":
		run(cmd, cmdPredict)
	case "best-day":
		run(cmd, cmdBestDay)
	case "classes":
		run(cmd, cmdClasses)
	case "serve":
		run(cmd, cmdServe)
	default:
		printHelp()
	}
}

func printHelp() {
	theme.PrintBanner()
	fmt.Println("Usage: engagelens <command> [options]")
	fmt.Println("Commands:")
	fmt.Println("  init        Create a config file at ./engagelens.yaml")
	fmt.Println("  preprocess  Clean raw data, fit encoders and scaler, store the matrix")
	fmt.Println("  train       Train the model on the stored train split")
	fmt.Println("  score       Score a labeled CSV and write error reports")
	fmt.Println("  encode      Print the feature vector for one post")
	fmt.Println("  predict     Predict engagement for one post with tips")
	fmt.Println("  best-day    Rank posting days for one post")
	fmt.Println("  classes     Print fitted encoder classes")
	fmt.Println("  serve       Run the HTTP API")
}

func run(cmd string, f func(args []string) error) {
	if err := cmdlog.Run(cmd, func() error { return f(os.Args[2:]) }); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func cmdInit() {
	out := flag.NewFlagSet("init", flag.ExitOnError)
	path := out.String("path", defaultConfig, "path to write config")
	_ = out.Parse(os.Args[2:])
	cfg := config.Default()
	if err := config.Save(*path, cfg); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
	abs, _ := filepath.Abs(*path)
	theme.PrintBanner()
	fmt.Println("Config written to:", abs)
}

// env bundles what most subcommands need. close releases every handle.
type env struct {
	cfg   config.Config
	db    *sqlitevec.DB
	store blob.Store
	close func()
}

func setup(ctx context.Context, cfgPath string) (*env, error) {
	cfg, err := config.Load(cfgPath)
	if errors.Is(err, os.ErrNotExist) {
		cfg = config.Default()
		cfg.ResolveEnv()
	} else if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	metrics.StartServer(cfg.Server.MetricsAddr)

	db, err := sqlitevec.Open(cfg.Storage.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	e := &env{cfg: cfg, db: db, close: func() { _ = db.Close() }}
	switch cfg.Artifacts.Backend {
	case "fs":
		e.store = blob.NewFSStore(cfg.Artifacts.Dir)
	case "sqlite":
		e.store = db
	case "s3":
		s := cfg.Artifacts.S3
		e.store, err = blob.NewS3Store(ctx, blob.S3Config{
			Bucket: s.Bucket, Prefix: s.Prefix, Region: s.Region, Endpoint: s.Endpoint,
			AccessKey: s.AccessKey, SecretKey: s.SecretKey,
		})
	case "redis":
		var rs *blob.RedisStore
		rs, err = blob.NewRedisStore(ctx, cfg.Artifacts.Redis.URL, cfg.Artifacts.Redis.Prefix)
		if err == nil {
			e.store = rs
			e.close = func() { _ = rs.Close(); _ = db.Close() }
		}
	}
	if err != nil {
		e.close()
		return nil, fmt.Errorf("open %s artifact store: %w", cfg.Artifacts.Backend, err)
	}
	return e, nil
}

func (e *env) predictor() predictor.Predictor {
	m := e.cfg.Model
	if m.Kind == "http" {
		return predictor.NewHTTPClient(predictor.HTTPConfig{
			Endpoint: m.Endpoint, Token: m.Token, Timeout: m.Timeout, MaxAttempts: m.MaxAttempts,
			RPS: m.RPS, Burst: m.Burst, BreakerFailures: m.BreakerFailures, BreakerTimeout: m.BreakerTimeout,
		})
	}
	return e.bridge()
}

func (e *env) bridge() *predictor.Bridge {
	m := e.cfg.Model
	return &predictor.Bridge{Bin: m.Bin, ModelPath: m.ModelPath, Args: m.TrainArgs}
}

func (e *env) advisor() (*suggest.Advisor, error) {
	return suggest.NewAdvisor(e.cfg.AdviceRules())
}

func cmdPreprocess(args []string) error {
	fs := flag.NewFlagSet("preprocess", flag.ExitOnError)
	cfgPath := fs.String("config", defaultConfig, "config path")
	raw := fs.String("raw", "", "raw CSV path (overrides config)")
	_ = fs.Parse(args)
	ctx := context.Background()
	e, err := setup(ctx, *cfgPath)
	if err != nil {
		return err
	}
	defer e.close()

	var src dataset.Source = dataset.FileSource{Path: e.cfg.Data.RawPath}
	switch {
	case *raw != "":
		src = dataset.FileSource{Path: *raw}
	case e.cfg.Data.RawKey != "":
		src = dataset.BlobSource{Store: e.store, Key: e.cfg.Data.RawKey}
	}
	res, err := jobs.RunPreprocess(ctx, src, e.store, e.db, jobs.PreprocessOptions{
		OutputDir:    e.cfg.Data.OutputDir,
		TestFraction: e.cfg.Data.TestFraction,
		Seed:         e.cfg.Data.Seed,
	})
	if err != nil {
		return err
	}
	fmt.Printf("Rows read: %d  dropped: %d  filled cells: %d\n", res.Clean.Read, res.Clean.Dropped, res.Clean.Filled)
	fmt.Printf("Matrix: %d rows x %d features (train=%d test=%d)\n", res.Rows, features.NumColumns, res.Train, res.Test)
	for _, col := range res.Artifacts.Encoders.Columns() {
		enc, _ := res.Artifacts.Encoders.Encoder(col)
		fmt.Printf("  %-28s %d classes\n", col, enc.Len())
	}
	return nil
}

func cmdTrain(args []string) error {
	fs := flag.NewFlagSet("train", flag.ExitOnError)
	cfgPath := fs.String("config", defaultConfig, "config path")
	_ = fs.Parse(args)
	ctx := context.Background()
	e, err := setup(ctx, *cfgPath)
	if err != nil {
		return err
	}
	defer e.close()
	if e.cfg.Model.Kind != "exec" {
		return errors.New("train needs model.kind exec")
	}
	met, err := jobs.TrainFromDB(ctx, e.db, e.bridge())
	if err != nil {
		return err
	}
	fmt.Println("Model written to:", e.cfg.Model.ModelPath)
	printMetrics(met)
	return nil
}

func cmdScore(args []string) error {
	fs := flag.NewFlagSet("score", flag.ExitOnError)
	cfgPath := fs.String("config", defaultConfig, "config path")
	raw := fs.String("raw", "", "labeled CSV path (default: config rawPath)")
	out := fs.String("out", "", "report dir (default: config outputDir)")
	_ = fs.Parse(args)
	ctx := context.Background()
	e, err := setup(ctx, *cfgPath)
	if err != nil {
		return err
	}
	defer e.close()
	path := *raw
	if path == "" {
		path = e.cfg.Data.RawPath
	}
	rc, err := dataset.FileSource{Path: path}.Open(ctx)
	if err != nil {
		return err
	}
	recs, err := dataset.ReadCSV(rc)
	_ = rc.Close()
	if err != nil {
		return err
	}
	samples, _, err := dataset.Clean(recs)
	if err != nil {
		return err
	}
	arts, err := features.LoadArtifacts(ctx, e.store)
	if err != nil {
		return err
	}
	rep, err := jobs.ScoreBatch(ctx, arts, e.predictor(), samples, e.cfg.Server.EncodeWorkers)
	if err != nil {
		return err
	}
	dir := *out
	if dir == "" {
		dir = e.cfg.Data.OutputDir
	}
	if err := jobs.WriteScoreReport(dir, rep); err != nil {
		return err
	}
	printMetrics(rep.Metrics)
	fmt.Println("Bucket           count   mean    model_mae  baseline_mae")
	for _, b := range rep.Buckets {
		fmt.Printf("%-16s %5d   %.4f  %.4f     %.4f\n", b.Bucket, b.Count, b.Mean, b.ModelMAE, b.BaselineMAE)
	}
	fmt.Println("Reports written to:", dir)
	return nil
}

func printMetrics(m analytics.Metrics) {
	if m.N == 0 {
		fmt.Println("No held-out rows to evaluate")
		return
	}
	fmt.Printf("n=%d  MAE=%.4f  RMSE=%.4f  R2=%.4f\n", m.N, m.MAE, m.RMSE, m.R2)
}

// postFlags registers the pre-posting attributes on fs. -json reads a post
// from a file instead.
func postFlags(fs *flag.FlagSet) func() (model.PostFeatures, error) {
	var p model.PostFeatures
	path := fs.String("json", "", "read the post from a JSON file")
	fs.StringVar(&p.DayOfWeek, "day", "", "day of week, e.g. Monday")
	fs.StringVar(&p.Platform, "platform", "", "platform, e.g. Instagram")
	fs.StringVar(&p.TopicCategory, "topic", "", "topic category")
	fs.StringVar(&p.Location, "location", "", "location")
	fs.StringVar(&p.Language, "language", "", "language")
	fs.StringVar(&p.EmotionType, "emotion", "", "emotion type")
	fs.Float64Var(&p.SentimentScore, "sentiment", 0, "sentiment score in [-1,1]")
	fs.Float64Var(&p.ToxicityScore, "toxicity", 0, "toxicity score in [0,1]")
	fs.Float64Var(&p.UserPastSentimentAvg, "past-sentiment", 0, "user past sentiment average in [-1,1]")
	fs.Float64Var(&p.UserEngagementGrowth, "growth", 0, "user engagement growth in [-1,1]")
	return func() (model.PostFeatures, error) {
		if *path == "" {
			return p, nil
		}
		b, err := os.ReadFile(*path)
		if err != nil {
			return model.PostFeatures{}, err
		}
		var fromFile model.PostFeatures
		if err := json.Unmarshal(b, &fromFile); err != nil {
			return model.PostFeatures{}, fmt.Errorf("parse %s: %w", *path, err)
		}
		return fromFile, nil
	}
}

func cmdEncode(args []string) error {
	fs := flag.NewFlagSet("encode", flag.ExitOnError)
	cfgPath := fs.String("config", defaultConfig, "config path")
	getPost := postFlags(fs)
	_ = fs.Parse(args)
	ctx := context.Background()
	e, err := setup(ctx, *cfgPath)
	if err != nil {
		return err
	}
	defer e.close()
	p, err := getPost()
	if err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		return err
	}
	arts, err := features.LoadArtifacts(ctx, e.store)
	if err != nil {
		return err
	}
	vec, err := arts.Encode(p)
	if err != nil {
		return err
	}
	b, err := json.MarshalIndent(vec.Named(), "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}

func cmdPredict(args []string) error {
	fs := flag.NewFlagSet("predict", flag.ExitOnError)
	cfgPath := fs.String("config", defaultConfig, "config path")
	getPost := postFlags(fs)
	_ = fs.Parse(args)
	ctx := context.Background()
	e, err := setup(ctx, *cfgPath)
	if err != nil {
		return err
	}
	defer e.close()
	p, err := getPost()
	if err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		return err
	}
	arts, err := features.LoadArtifacts(ctx, e.store)
	if err != nil {
		return err
	}
	adv, err := e.advisor()
	if err != nil {
		return err
	}
	vec, err := arts.Encode(p)
	if err != nil {
		return err
	}
	raw, err := predictor.PredictOne(ctx, e.predictor(), vec)
	if err != nil {
		return err
	}
	rate := predictor.Clip(raw)
	lvl := model.ClassifyRate(rate)
	tips, err := adv.Recommend(p, rate)
	if err != nil {
		return err
	}
	fmt.Printf("Predicted engagement: %.4f (%d%%)\n", rate, model.Percent(rate))
	fmt.Printf("Level: %s - %s\n", lvl, lvl.Describe())
	fmt.Println("Recommendations:")
	for i, t := range tips {
		fmt.Printf("  %d. %s\n", i+1, t)
	}
	return nil
}

func cmdBestDay(args []string) error {
	fs := flag.NewFlagSet("best-day", flag.ExitOnError)
	cfgPath := fs.String("config", defaultConfig, "config path")
	getPost := postFlags(fs)
	_ = fs.Parse(args)
	ctx := context.Background()
	e, err := setup(ctx, *cfgPath)
	if err != nil {
		return err
	}
	defer e.close()
	p, err := getPost()
	if err != nil {
		return err
	}
	if err := p.ValidateForDaySearch(); err != nil {
		return err
	}
	arts, err := features.LoadArtifacts(ctx, e.store)
	if err != nil {
		return err
	}
	plan, err := schedule.BestDay(ctx, arts, e.predictor(), p)
	if err != nil {
		return err
	}
	fmt.Printf("Best day: %s (%.4f)\n", plan.Best.Day, plan.Best.Rate)
	for _, d := range plan.Ranking {
		fmt.Printf("  %-10s %.4f\n", d.Day, d.Rate)
	}
	return nil
}

func cmdClasses(args []string) error {
	fs := flag.NewFlagSet("classes", flag.ExitOnError)
	cfgPath := fs.String("config", defaultConfig, "config path")
	_ = fs.Parse(args)
	ctx := context.Background()
	e, err := setup(ctx, *cfgPath)
	if err != nil {
		return err
	}
	defer e.close()
	arts, err := features.LoadArtifacts(ctx, e.store)
	if err != nil {
		return err
	}
	b, err := json.MarshalIndent(arts.Classes(), "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}

func cmdServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	cfgPath := fs.String("config", defaultConfig, "config path")
	addr := fs.String("addr", "", "listen address (overrides config)")
	_ = fs.Parse(args)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	e, err := setup(ctx, *cfgPath)
	if err != nil {
		return err
	}
	defer e.close()
	arts, err := features.LoadArtifacts(ctx, e.store)
	if err != nil {
		return err
	}
	adv, err := e.advisor()
	if err != nil {
		return err
	}
	srv := server.New(server.Options{
		Artifacts:     arts,
		Store:         e.store,
		Predictor:     e.predictor(),
		Advisor:       adv,
		DB:            e.db,
		RPS:           e.cfg.Server.RPS,
		Burst:         e.cfg.Server.Burst,
		EncodeWorkers: e.cfg.Server.EncodeWorkers,
	})
	listen := e.cfg.Server.Addr
	if *addr != "" {
		listen = *addr
	}
	hs := &http.Server{Addr: listen, Handler: srv.Routes(), ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- hs.ListenAndServe() }()
	logging.Info("serve_start", map[string]any{"addr": listen})
	theme.PrintBanner()
	fmt.Println("Listening on", listen)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return hs.Shutdown(shutdownCtx)
}
