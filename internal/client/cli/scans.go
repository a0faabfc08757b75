package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/kappi/internal/client/models"
)

// Scan captures a scan. With only an image it runs the classifier; a label
// and confidence on the command line are taken as the classifier's output.
//
//	scan <image> [label confidence [severity [stage]]]
func (a *App) Scan(ctx context.Context, args []string) error {
	if len(args) != 1 && (len(args) < 3 || len(args) > 5) {
		printlnFn("Usage: scan <image> [label confidence [severity [stage]]]")
		return nil
	}

	var (
		rec models.CapturedRecord
		err error
	)
	if len(args) == 1 {
		rec, err = a.scans.Scan(ctx, args[0], nil, nil)
	} else {
		var raw models.ClassificationResult
		raw, err = parseClassification(args[1:])
		if err != nil {
			return err
		}
		rec, err = a.scans.Capture(ctx, args[0], raw, nil, nil)
	}
	if err != nil {
		return err
	}

	printlnFn(fmt.Sprintf("Saved %s: %s", rec.ID, describe(rec.Payload)))
	printTreatment(rec.Payload, a.variety)
	return nil
}

func parseClassification(args []string) (models.ClassificationResult, error) {
	confidence, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return models.ClassificationResult{}, fmt.Errorf("invalid confidence %q", args[1])
	}
	raw := models.ClassificationResult{Disease: args[0], Confidence: confidence}
	if len(args) > 2 {
		raw.Severity = models.Severity(args[2])
	}
	if len(args) > 3 {
		raw.Stage = models.Stage(args[3])
	}
	return raw, nil
}

// List prints scans waiting to be sent with the treatment advised for each.
// "all" includes deleted ones; a variety name overrides the current one for
// this listing.
//
//	list [all] [arabica|robusta]
func (a *App) List(ctx context.Context, args []string) error {
	includeDeleted := false
	variety := a.variety
	for _, arg := range args {
		if arg == "all" {
			includeDeleted = true
			continue
		}
		v, ok := models.ParseVariety(arg)
		if !ok {
			printlnFn("Usage: list [all] [arabica|robusta]")
			return nil
		}
		variety = v
	}

	recs, err := a.scans.List(ctx, includeDeleted)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		printlnFn("No scans waiting")
		return nil
	}

	for _, r := range recs {
		line := fmt.Sprintf("%s  %s  %s", r.ID,
			time.UnixMilli(r.CreatedAtMillis).Format(time.DateTime), describe(r.Payload))
		if r.Deleted {
			printlnFn(line + "  [deleted]")
			continue
		}
		printlnFn(line)
		printTreatment(r.Payload, variety)
	}
	return nil
}

// Variety shows or sets the coffee variety treatments are looked up for.
func (a *App) Variety(_ context.Context, args []string) error {
	switch len(args) {
	case 0:
		printlnFn("Variety:", a.variety)
	case 1:
		v, ok := models.ParseVariety(args[0])
		if !ok {
			printlnFn("Usage: variety [arabica|robusta]")
			return nil
		}
		a.variety = v
		printlnFn("Variety:", v)
	default:
		printlnFn("Usage: variety [arabica|robusta]")
	}
	return nil
}

func (a *App) Delete(ctx context.Context, args []string) error {
	if len(args) != 1 {
		printlnFn("Usage: delete <id>")
		return nil
	}
	if err := a.scans.Delete(ctx, args[0]); err != nil {
		return err
	}
	printlnFn("Deleted", args[0])
	return nil
}

func (a *App) Sync(ctx context.Context) error {
	rep, err := a.scans.Sync(ctx)
	if err != nil {
		return err
	}

	if rep.Skipped {
		printlnFn("Not logged in; scans stay on this device")
		return nil
	}
	printlnFn(fmt.Sprintf("Sent %d of %d, %d waiting", rep.Submitted, rep.Attempted, rep.Remaining))
	for _, f := range rep.Failures {
		printlnFn(fmt.Sprintf("  %s: %v", f.RecordID, f.Err))
	}
	return nil
}

// History prints the scans the server already has, newest first.
func (a *App) History(ctx context.Context) error {
	scans, err := a.scans.History(ctx)
	if err != nil {
		return err
	}
	if len(scans) == 0 {
		printlnFn("No scans on the server yet")
		return nil
	}

	for _, s := range scans {
		printlnFn(fmt.Sprintf("%s  %s  %s", s.ID, s.CreatedAt, describe(models.ClassificationResult{
			Disease: s.Disease, Confidence: s.Confidence, Severity: s.Severity, Stage: s.Stage,
		})))
	}
	return nil
}

func printTreatment(r models.ClassificationResult, variety models.Variety) {
	t, ok := models.Recommendation(r.Disease, r.Stage, variety)
	if !ok {
		return
	}
	printlnFn(fmt.Sprintf("  Treatment (%s):", variety))
	for _, c := range t.Chemical {
		printlnFn("    chemical:", c)
	}
	for _, c := range t.Cultural {
		printlnFn("    cultural:", c)
	}
	printlnFn("    sources:", strings.Join(t.Sources, ", "))
}

func describe(r models.ClassificationResult) string {
	return fmt.Sprintf("%s %.0f%% (%s, %s)", r.Disease, r.Confidence, r.Severity, r.Stage)
}
