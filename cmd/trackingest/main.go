package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/goccy/go-json"
	"github.com/joho/godotenv"

	"github.com/lucasjlepore/trackingest/config"
	"github.com/lucasjlepore/trackingest/ingest"
	"github.com/lucasjlepore/trackingest/logging"
	"github.com/lucasjlepore/trackingest/metrics"
	"github.com/lucasjlepore/trackingest/store"
	"github.com/lucasjlepore/trackingest/trackfile"
)

type fileStatus struct {
	Status     string `json:"status"`
	Kind       string `json:"kind,omitempty"`
	Reason     string `json:"reason,omitempty"`
	UploadID   string `json:"upload_id,omitempty"`
	ActivityID string `json:"activity_id,omitempty"`
}

func main() {
	var (
		userID  = flag.String("user", "", "Owning user identifier")
		jsonOut = flag.Bool("json", false, "Emit the per-file status map as JSON")
		dryRun  = flag.Bool("dry-run", false, "Decode and aggregate only; nothing is written")
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s --user <id> [flags] <file.fit|file.gpx>...\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() < 1 || (*userID == "" && !*dryRun) {
		flag.Usage()
		os.Exit(2)
	}

	_ = godotenv.Load(".env.local")
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config failed: %v\n", err)
		os.Exit(1)
	}
	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
	})
	loc, err := cfg.Ingest.Location()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config failed: %v\n", err)
		os.Exit(1)
	}

	uploads := make([]ingest.Upload, 0, flag.NArg())
	for _, path := range flag.Args() {
		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "read %s failed: %v\n", path, err)
			os.Exit(1)
		}
		uploads = append(uploads, ingest.Upload{UserID: *userID, Filename: filepath.Base(path), Data: data})
	}

	if *dryRun {
		os.Exit(preview(uploads, cfg, loc))
	}

	ctx := context.Background()
	if cfg.Metrics.Enabled {
		srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: metrics.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logging.Err(err).Str("addr", cfg.Metrics.Addr).Msg("metrics listener stopped")
			}
		}()
		defer srv.Close()
	}

	st, err := store.Open(ctx, cfg.Database.Path, store.Options{
		BusyTimeout:     cfg.Database.BusyTimeout,
		RecordBatchSize: cfg.Ingest.RecordBatchSize,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "open database failed: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	ing := ingest.New(st, ingest.Options{
		MaxUploadBytes:       cfg.Ingest.MaxUploadBytes,
		MovingSpeedThreshold: cfg.Ingest.MovingSpeedThreshold,
		FITLocation:          loc,
	})
	results := ing.IngestBatch(ctx, uploads)

	statuses := make(map[string]fileStatus, len(results))
	failures := 0
	for name, res := range results {
		statuses[name] = fileStatus{
			Status:     string(res.Status),
			Kind:       ingest.Kind(res.Err),
			Reason:     res.Reason,
			UploadID:   res.UploadID,
			ActivityID: res.ActivityID,
		}
		if res.Status == ingest.StatusFailed {
			failures++
		}
	}

	if *jsonOut {
		out, err := json.MarshalIndent(statuses, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "json encode failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(string(out))
	} else {
		names := make([]string, 0, len(results))
		for name := range results {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Printf("%-32s %s\n", name, results[name])
		}
	}

	if failures > 0 {
		st.Close()
		os.Exit(1)
	}
}

func preview(uploads []ingest.Upload, cfg *config.Config, loc *time.Location) int {
	code := 0
	for _, u := range uploads {
		p, err := trackfile.Analyze(u.Filename, u.Data, cfg.Ingest.MaxUploadBytes, trackfile.Options{
			FITLocation:          loc,
			MovingSpeedThreshold: cfg.Ingest.MovingSpeedThreshold,
		})
		if err != nil {
			fmt.Printf("%-32s failed: %v\n", u.Filename, err)
			code = 1
			continue
		}
		agg := p.Aggregate
		fmt.Printf("%-32s %s | %d points (%d positioned) | start %s | %.0fs",
			u.Filename, p.Format, agg.PointCount, agg.PositionedCount,
			agg.StartTime.UTC().Format(time.RFC3339), *agg.TotalElapsedTime)
		if agg.TotalDistance != nil {
			fmt.Printf(" | %.1f m", *agg.TotalDistance)
		}
		if len(p.Decoded.Warnings) > 0 {
			fmt.Printf(" | %d warnings", len(p.Decoded.Warnings))
		}
		fmt.Println()
	}
	return code
}
