// scan-stills runs the detection pipeline over a directory of still images
// without a camera or a database: print the score for every frame, flag the
// ones that would trigger, and suggest a threshold from the score
// distribution. Useful for tuning against a recorded session.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"text/tabwriter"

	"github.com/banshee-data/chambercam/internal/capture"
	"github.com/banshee-data/chambercam/internal/chamber"
	"github.com/banshee-data/chambercam/internal/monitoring"
)

var (
	dir        = flag.String("dir", "", "Directory of stills to scan (required)")
	configPath = flag.String("config", "", "Optional tuning config JSON")
	quiet      = flag.Bool("quiet", false, "Only print the summary")
)

func main() {
	flag.Parse()
	if *dir == "" {
		flag.Usage()
		os.Exit(1)
	}
	// Pipeline logs would drown the table output.
	monitoring.SetLogger(func(string, ...interface{}) {})

	var cfg *chamber.TuningConfig
	if *configPath != "" {
		var err error
		cfg, err = chamber.LoadTuningConfig(*configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}

	src, err := capture.NewReplaySource(*dir, 1000, false, nil)
	if err != nil {
		log.Fatalf("failed to open stills: %v", err)
	}
	defer src.Close()

	engine := chamber.NewEngine(nil)
	settings := cfg.Resolve()
	settings.CooldownEnabled = false // score every frame independently
	settings.SaveEvents = false
	if err := engine.Apply(settings); err != nil {
		log.Fatalf("failed to apply config: %v", err)
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	if !*quiet {
		fmt.Fprintln(tw, "FRAME\tSCORE\tTRIGGER")
	}

	ctx := context.Background()
	candidates := 0
	frames := 0
	for {
		f, err := src.NextFrame(ctx)
		if err == chamber.ErrSourceClosed {
			break
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "skipping frame: %v\n", err)
			continue
		}
		res, err := engine.ProcessFrame(f)
		if err != nil {
			fmt.Fprintf(os.Stderr, "skipping frame %d: %v\n", f.Seq, err)
			continue
		}
		frames++
		if res.Candidate {
			candidates++
		}
		if !*quiet {
			mark := ""
			if res.Candidate {
				mark = "*"
			}
			fmt.Fprintf(tw, "%d\t%.0f\t%s\n", res.Seq, res.Score, mark)
		}
	}
	tw.Flush()

	snap := engine.Stats().Snapshot()
	fmt.Printf("\n%d frames, %d above threshold %.0f\n", frames, candidates, settings.TriggerThreshold)
	fmt.Printf("score mean %.1f stddev %.1f p95 %.1f\n", snap.ScoreMean, snap.ScoreStdDev, snap.ScoreP95)
	fmt.Printf("suggested threshold: %.0f\n", snap.SuggestedThreshold)
}
