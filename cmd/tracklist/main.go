package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/goccy/go-json"
	"github.com/joho/godotenv"

	"github.com/lucasjlepore/trackingest/config"
	"github.com/lucasjlepore/trackingest/logging"
	"github.com/lucasjlepore/trackingest/store"
)

func main() {
	var (
		userID  = flag.String("user", "", "User whose uploads to list")
		bounds  = flag.Bool("bounds", false, "Emit {filename: [[min_lat,min_lon],[max_lat,max_lon]]} as JSON")
		geojson = flag.String("geojson", "", "Emit the GeoJSON FeatureCollection of this uploaded filename")
		uploads = flag.Bool("uploads", false, "List uploads with their processing status")
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s --user <id> [--bounds | --geojson <filename> | --uploads]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if *userID == "" {
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

	ctx := context.Background()
	st, err := store.Open(ctx, cfg.Database.Path, store.Options{BusyTimeout: cfg.Database.BusyTimeout})
	if err != nil {
		fmt.Fprintf(os.Stderr, "open database failed: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	switch {
	case *bounds:
		m, err := st.ListUploadBounds(ctx, *userID)
		if err != nil {
			fail(st, "list bounds", err)
		}
		emitJSON(st, m)
	case *geojson != "":
		fc, err := st.ActivityGeoJSON(ctx, *userID, *geojson)
		if errors.Is(err, store.ErrNotFound) {
			fmt.Fprintf(os.Stderr, "no parsed upload named %q for user %s\n", *geojson, *userID)
			st.Close()
			os.Exit(1)
		}
		if err != nil {
			fail(st, "load geojson", err)
		}
		data, err := fc.Marshal()
		if err != nil {
			fail(st, "json encode", err)
		}
		fmt.Println(string(data))
	case *uploads:
		list, err := st.ListUploads(ctx, *userID)
		if err != nil {
			fail(st, "list uploads", err)
		}
		for _, u := range list {
			line := fmt.Sprintf("%-32s %-3s %-7s %s", u.OriginalFilename, u.FileType, u.Status, u.UploadedAt.Format("2006-01-02 15:04"))
			if u.ParseError != nil {
				line += " | " + *u.ParseError
			}
			fmt.Println(line)
		}
	default:
		activities, err := st.ListActivities(ctx, *userID)
		if err != nil {
			fail(st, "list activities", err)
		}
		for _, a := range activities {
			fmt.Printf("- %s | %-24s | %-10s | %7.0fs", a.StartTime.Format("2006-01-02 15:04"), a.Name, a.Sport, a.TotalElapsedTime)
			if a.TotalDistance != nil {
				fmt.Printf(" | %8.1f m", *a.TotalDistance)
			}
			if a.AvgHeartRate != nil {
				fmt.Printf(" | %3d bpm", *a.AvgHeartRate)
			}
			fmt.Println()
		}
	}
}

func emitJSON(st *store.Store, v any) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fail(st, "json encode", err)
	}
	fmt.Println(string(out))
}

func fail(st *store.Store, what string, err error) {
	fmt.Fprintf(os.Stderr, "%s failed: %v\n", what, err)
	st.Close()
	os.Exit(1)
}
