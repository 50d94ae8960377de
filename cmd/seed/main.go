// Package main seeds an organization with realistic mapping history so the
// suggestion engine has something to learn from.
//
// It records confirmed mappings for generated funeral, baptism and marriage
// records, with a share of them marked as hand-corrected.
//
// Usage:
//
//	go run ./cmd/seed -org st-nicholas -records 40
//	go run ./cmd/seed -storage sqlite -data-path ~/OCRMapper/data -org holy-trinity
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/parishrecords/ocrmapper/internal/config"
	"github.com/parishrecords/ocrmapper/internal/di/providers"
	"github.com/parishrecords/ocrmapper/internal/domain"
	"github.com/parishrecords/ocrmapper/internal/store"
	"github.com/parishrecords/ocrmapper/internal/suggest"
	"github.com/parishrecords/ocrmapper/internal/util"
)

var (
	backend  = flag.String("storage", config.BackendBadger, "Storage backend (badger, sqlite)")
	dataPath = flag.String("data-path", os.ExpandEnv("$HOME/OCRMapper/data"), "Data directory")
	org      = flag.String("org", "st-nicholas", "Organization to seed (a parish name is slugged)")
	records  = flag.Int("records", 25, "Records to generate")
	editRate = flag.Float64("edit-rate", 0.2, "Share of mappings marked as hand-corrected")
)

var (
	firstNames = []string{"John", "Mary", "Nicholas", "Anna", "George", "Helen", "Peter", "Sophia"}
	lastNames  = []string{"Smith", "Papadopoulos", "Ivanov", "Kowalski", "Nowak", "Petrov"}
	priests    = []string{"Fr. Michael", "Fr. Dimitri", "Rev. Stephen", "Fr. Basil"}
	cemeteries = []string{"St. Nicholas Cemetery", "Holy Cross Cemetery", "Evergreen Cemetery"}
)

func main() {
	flag.Parse()

	if *backend == config.BackendMemory {
		log.Fatal("Seeding the memory backend would be lost on exit")
	}

	kv, err := providers.OpenBackend(config.StorageConfig{Backend: *backend, DataPath: *dataPath}, nil)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	async := store.NewAsync(kv, 0, nil)
	defer async.Close()

	orgID := util.OrgSlug(*org)
	if orgID == "" {
		log.Fatalf("Cannot derive an organization id from %q", *org)
	}

	ctx := context.Background()
	fmt.Printf("Seeding %d records for %s into %s (%s)\n", *records, orgID, *dataPath, *backend)

	engine := suggest.New(ctx, async, orgID, suggest.Options{})
	before := engine.Stats().TotalMappings

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	for i := range *records {
		for _, m := range recordMappings(rng, i) {
			engine.RecordMapping(ctx, m)
		}
	}

	if err := async.Flush(ctx); err != nil {
		log.Fatalf("Failed to flush store: %v", err)
	}

	stats := engine.Stats()
	fmt.Printf("Recorded %d mappings (%d in history, %.1f%% edited)\n",
		stats.TotalMappings-before, stats.TotalMappings, stats.EditRate)
	fmt.Printf("Rules learned: %d\n", len(engine.Rules()))
}

// recordMappings generates the confirmed fields of one funeral record.
func recordMappings(rng *rand.Rand, n int) []suggest.Mapping {
	pick := func(from []string) string { return from[rng.Intn(len(from))] }

	name := pick(firstNames) + " " + pick(lastNames)
	death := time.Date(1950+rng.Intn(70), time.Month(1+rng.Intn(12)), 1+rng.Intn(28), 0, 0, 0, 0, time.UTC)
	burial := death.AddDate(0, 0, 2+rng.Intn(4))

	values := []struct {
		field domain.Field
		text  string
	}{
		{"name", name},
		{"death_date", death.Format("01/02/2006")},
		{"burial_date", burial.Format("01/02/2006")},
		{"age", fmt.Sprintf("%d years", 1+rng.Intn(99))},
		{"priest_officiated", pick(priests)},
		{"burial_location", pick(cemeteries)},
	}

	out := make([]suggest.Mapping, 0, len(values))
	for _, v := range values {
		m := suggest.Mapping{
			Text:       v.text,
			Field:      v.field,
			Confidence: 0.7 + rng.Float64()*0.3,
		}
		if rng.Float64() < *editRate {
			// Simulate an OCR misread that was fixed by hand.
			m.Text = garble(rng, v.text)
			m.WasManuallyEdited = true
			m.CorrectedText = v.text
			m.Confidence *= 0.6
		}
		out = append(out, m)
	}

	if n%10 == 0 {
		fmt.Printf("  record %d: %s\n", n+1, name)
	}
	return out
}

// garble swaps characters commonly confused by OCR.
func garble(rng *rand.Rand, s string) string {
	swaps := []struct{ from, to string }{
		{"o", "0"}, {"l", "1"}, {"S", "5"}, {"rn", "m"}, {"e", "c"},
	}
	sw := swaps[rng.Intn(len(swaps))]
	if !strings.Contains(s, sw.from) {
		return s + "."
	}
	return strings.Replace(s, sw.from, sw.to, 1)
}
