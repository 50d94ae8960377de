// Package main prints what a data directory holds: the stored keys, and
// for every organization its mapping statistics and learned rules.
//
// Usage:
//
//	go run ./cmd/dbinspect -storage sqlite -data-path ~/OCRMapper/data
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/parishrecords/ocrmapper/internal/config"
	"github.com/parishrecords/ocrmapper/internal/di/providers"
	"github.com/parishrecords/ocrmapper/internal/domain"
	"github.com/parishrecords/ocrmapper/internal/suggest"
	"github.com/parishrecords/ocrmapper/internal/util"
)

var (
	backend  = flag.String("storage", config.BackendBadger, "Storage backend (badger, sqlite)")
	dataPath = flag.String("data-path", os.ExpandEnv("$HOME/OCRMapper/data"), "Data directory")
	org      = flag.String("org", "", "Only inspect this organization")
	keys     = flag.Bool("keys", false, "List every stored key")
)

func main() {
	flag.Parse()
	ctx := context.Background()

	kv, err := providers.OpenBackend(config.StorageConfig{Backend: *backend, DataPath: *dataPath}, nil)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer kv.Close()

	fmt.Println("=== Store Inspection ===")
	fmt.Printf("Backend: %s\nPath: %s\n\n", *backend, *dataPath)

	if *keys {
		all, err := kv.Keys(ctx, "")
		if err != nil {
			log.Fatalf("Failed to list keys: %v", err)
		}
		fmt.Printf("Keys (%d):\n", len(all))
		for _, k := range all {
			fmt.Printf("  %s\n", k)
		}
		fmt.Println()
	}

	orgs, err := suggest.StoredOrgs(ctx, kv)
	if err != nil {
		log.Fatalf("Failed to list organizations: %v", err)
	}
	if *org != "" {
		orgs = []string{util.OrgSlug(*org)}
	}
	if len(orgs) == 0 {
		fmt.Println("No organizations stored.")
		return
	}

	for _, o := range orgs {
		e := suggest.New(ctx, kv, o, suggest.Options{})
		stats := e.Stats()

		fmt.Printf("Organization: %s\n", o)
		fmt.Printf("  Mappings:       %d\n", stats.TotalMappings)
		fmt.Printf("  Manual edits:   %d (%.1f%%)\n", stats.ManualEdits, stats.EditRate)
		fmt.Printf("  Avg confidence: %.3f\n", stats.AvgConfidence)

		fields := make([]string, 0, len(stats.FieldFrequency))
		for f := range stats.FieldFrequency {
			fields = append(fields, string(f))
		}
		sort.Strings(fields)
		for _, f := range fields {
			fmt.Printf("    %-20s %d\n", f, stats.FieldFrequency[domain.Field(f)])
		}

		rules := e.Rules()
		fmt.Printf("  Rules (%d):\n", len(rules))
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "    FIELD\tPATTERN\tUSES\tSUCCESS\tCONFIDENCE")
		for _, r := range rules {
			fmt.Fprintf(tw, "    %s\t%s\t%d\t%.2f\t%.2f\n",
				r.FieldName, r.Pattern.Key(), r.UsageCount, r.SuccessRate, r.Confidence)
		}
		_ = tw.Flush()
		fmt.Println()
	}
}
