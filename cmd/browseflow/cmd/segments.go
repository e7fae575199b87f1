package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/mfenderov/browseflow/internal/pipeline"
	"github.com/spf13/cobra"
)

var segmentsFormat string

var segmentsCmd = &cobra.Command{
	Use:   "segments",
	Short: "Show activity segments found in captured events",
	Long: `Split captured events into activity segments at break points, label
them heuristically and print those above the confidence threshold.

No LLM is needed, which makes this useful for tuning thresholds.

Examples:
  browseflow segments --input capture.json
  browseflow segments --db --format json`,
	RunE: runSegments,
}

func init() {
	rootCmd.AddCommand(segmentsCmd)

	segmentsCmd.Flags().StringSliceVar(&generateInputs, "input", nil, "event batch file(s) to process")
	segmentsCmd.Flags().BoolVar(&generateFromDB, "db", false, "read events from the event database")
	segmentsCmd.Flags().Int64Var(&generateFrom, "from", 0, "with --db, first timestamp (ms) to include")
	segmentsCmd.Flags().Int64Var(&generateTo, "to", 0, "with --db, timestamp (ms) to stop before (0 = no limit)")
	segmentsCmd.Flags().StringVar(&segmentsFormat, "format", "text", "Output format: text or json")
}

// segmentView is a segment without its events.
type segmentView struct {
	Source          string   `json:"source"`
	Domain          string   `json:"domain"`
	SegmentType     string   `json:"segment_type"`
	ConfidenceScore float64  `json:"confidence_score"`
	Events          int      `json:"events"`
	StartTime       int64    `json:"start_time"`
	DurationMS      int64    `json:"duration_ms"`
	EventTypes      []string `json:"event_types"`
}

func runSegments(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := GetConfig()
	sources, err := loadSources(ctx, &cfg)
	if err != nil {
		return err
	}

	segmenter := pipeline.NewSegmenter(pipelineConfig(&cfg))

	views := []segmentView{}
	for _, src := range sources {
		segs, err := segmenter.Segments(ctx, src.events)
		if err != nil {
			return err
		}
		for _, s := range segs {
			views = append(views, segmentView{
				Source:          src.name,
				Domain:          s.Domain,
				SegmentType:     s.SegmentType,
				ConfidenceScore: s.ConfidenceScore,
				Events:          len(s.Events),
				StartTime:       s.StartTime,
				DurationMS:      s.DurationMS,
				EventTypes:      s.EventTypes,
			})
		}
	}

	if segmentsFormat == "json" {
		output, err := json.MarshalIndent(views, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(output))
		return nil
	}

	if len(views) == 0 {
		fmt.Println("No segments found.")
		return nil
	}

	fmt.Printf("Found %d segments:\n\n", len(views))
	for i, v := range views {
		fmt.Printf("─── Segment %d ───\n", i+1)
		fmt.Printf("Source:     %s\n", v.Source)
		fmt.Printf("Domain:     %s\n", v.Domain)
		fmt.Printf("Type:       %s\n", v.SegmentType)
		fmt.Printf("Confidence: %.2f\n", v.ConfidenceScore)
		fmt.Printf("Events:     %d over %v\n", v.Events, time.Duration(v.DurationMS)*time.Millisecond)
		fmt.Printf("Started:    %s\n\n", time.UnixMilli(v.StartTime).UTC().Format(time.RFC3339))
	}
	return nil
}
