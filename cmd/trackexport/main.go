package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"github.com/lucasjlepore/trackingest/config"
	"github.com/lucasjlepore/trackingest/export"
	"github.com/lucasjlepore/trackingest/logging"
	"github.com/lucasjlepore/trackingest/store"
)

func main() {
	var (
		activityID = flag.String("activity", "", "Activity ID to export")
		userID     = flag.String("user", "", "Resolve the activity from this user's upload (with --file)")
		filename   = flag.String("file", "", "Original upload filename (with --user)")
		outDir     = flag.String("out", "", "Output directory")
		format     = flag.String("format", "", "Sample format: parquet|csv (default from config)")
		overwrite  = flag.Bool("overwrite", false, "Replace existing output files")
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s (--activity <id> | --user <id> --file <name>) --out outdir [--format parquet|csv]\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Parse()

	byUpload := *userID != "" && *filename != ""
	if strings.TrimSpace(*outDir) == "" || (*activityID == "" && !byUpload) {
		flag.Usage()
		os.Exit(2)
	}

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config failed: %v\n", err)
		os.Exit(1)
	}
	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format, Timestamp: true})
	if *format == "" {
		*format = cfg.Export.Format
	}

	ctx := context.Background()
	st, err := store.Open(ctx, cfg.Database.Path, store.Options{BusyTimeout: cfg.Database.BusyTimeout})
	if err != nil {
		fmt.Fprintf(os.Stderr, "open database failed: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	if *activityID == "" {
		upload, err := st.FindUpload(ctx, *userID, *filename)
		if err != nil {
			fmt.Fprintf(os.Stderr, "trackexport failed: upload %q: %v\n", *filename, err)
			st.Close()
			os.Exit(1)
		}
		if upload.ActivityID == nil {
			fmt.Fprintf(os.Stderr, "trackexport failed: upload %q is %s\n", *filename, upload.Status)
			st.Close()
			os.Exit(1)
		}
		*activityID = *upload.ActivityID
	}

	result, err := export.Run(ctx, st, export.Options{
		ActivityID: *activityID,
		OutDir:     *outDir,
		Format:     *format,
		Overwrite:  *overwrite,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "trackexport failed: %v\n", err)
		st.Close()
		os.Exit(1)
	}

	fmt.Printf("trackexport complete\n")
	fmt.Printf("Output dir:          %s\n", result.OutputDir)
	fmt.Printf("samples:             %s (%d rows)\n", result.SamplesPath, result.Samples)
	fmt.Printf("activity summary:    %s\n", result.ActivitySummaryPath)
}
