//go:build ignore

// Package main generates a synthetic civic corpus for benchmarking.
// Usage: go run scripts/generate-test-corpus.go -files 1000 -output testdata/bench
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"
)

var (
	numFiles  = flag.Int("files", 1000, "Number of files to generate")
	outputDir = flag.String("output", "testdata/bench", "Output directory")
	seed      = flag.Int64("seed", 42, "Random seed for reproducibility")
)

var ordinanceTemplate = `---
kind: ordinance
title: An Ordinance %s %s
number: "%d-%02d"
date: %s
---
AN ORDINANCE OF THE CITY COUNCIL %s %s.

WHEREAS, the council finds that %s along %s requires regulation in
the interest of public health, safety, and welfare; and

WHEREAS, staff presented findings at the %s public hearing and
recommended the amendments set out below;

NOW, THEREFORE, BE IT ORDAINED by the City Council:

SECTION 1. Chapter %d of the Municipal Code is amended to provide
that %s shall be %s within the %s district.

SECTION 2. A violation of this ordinance is a civil infraction
punishable by a fine of not more than $%d per occurrence. Each day a
violation continues is a separate occurrence.

SECTION 3. If any provision of this ordinance is held invalid, the
remaining provisions continue in effect.

SECTION 4. This ordinance takes effect %d days after publication.
`

var minutesTemplate = `# %s Session of the City Council

Date: %s
Location: Council Chambers, City Hall

## Attendance

Present: Councilmembers %s, %s, %s, and %s. Mayor %s presiding.
Absent: none.

## Agenda

1. Call to order and roll call.
2. Approval of the minutes of the prior session.
3. Public comment on %s.
4. Old business: %s on %s.
5. New business: %s.

## Discussion

Residents of %s spoke regarding %s. Staff summarized the options and
estimated costs. Councilmember %s moved to direct staff to prepare an
ordinance addressing %s; Councilmember %s seconded.

The motion carried by a vote of %d to %d.

## Adjournment

The meeting adjourned at %d:%02d p.m. The next regular session is
scheduled two weeks out at the same location.
`

var budgetTemplate = `---
kind: budget
title: FY%d %s Budget
date: %s
---
# FY%d %s Budget

## Summary

Total appropriations for fiscal year %d are $%s across all funds,
an increase of %d percent over the prior year. The largest drivers
are %s and %s.

## General Fund

| Department | Appropriation |
|------------|---------------|
| Public Works | $%s |
| Parks and Recreation | $%s |
| Police | $%s |
| Fire | $%s |
| Administration | $%s |

## Enterprise Funds

The %s fund is projected to end the year with a reserve of $%s.
Rate revenue supports debt service on the %s project through %d.

## Capital Program

Planned capital spending includes %s, %s, and %s resurfacing.
`

var noticeTemplate = `PUBLIC NOTICE

The City of %s gives notice that a public hearing will be held on
%s at %d:%02d p.m. in the Council Chambers, City Hall, concerning
%s %s.

All interested persons may appear and be heard. Written comments may
be submitted to the City Clerk until noon on the day of the hearing.
Materials are available for inspection at the Clerk's office during
regular business hours.

Published by order of the City Council.
`

// Word pools for generating plausible municipal records.
var (
	actions = []string{
		"Regulating", "Amending", "Establishing", "Prohibiting", "Adopting",
		"Repealing", "Authorizing", "Vacating", "Rezoning", "Restricting",
	}
	subjects = []string{
		"Noise Levels in Residential Districts", "Short-Term Rentals",
		"Parking on Collector Streets", "Sidewalk Maintenance Duties",
		"Water and Sewer Rates", "Park Hours and Closures",
		"Food Truck Operations", "Accessory Dwelling Units",
		"Stormwater Drainage Fees", "Sign Dimensions in Commercial Zones",
	}
	topics = []string{
		"noise complaints", "parking congestion", "sidewalk repairs",
		"stormwater flooding", "traffic calming", "leaf pickup",
		"snow removal", "streetlight outages", "crosswalk safety",
		"tree trimming", "water main replacement", "transit shelters",
	}
	streets = []string{
		"Elm Street", "Miller Avenue", "Grand Boulevard", "Oak Lane",
		"Riverside Drive", "Second Street", "Prospect Avenue",
		"Washington Street", "Cedar Court", "Fairview Road",
	}
	districts = []string{
		"downtown", "riverfront", "northside residential", "industrial",
		"mixed commercial", "historic", "southgate", "harbor",
	}
	surnames = []string{
		"Alvarez", "Chen", "Dawson", "Eriksen", "Fontaine", "Garza",
		"Hoffman", "Iwata", "Jensen", "Khoury", "Lindqvist", "Moreau",
		"Novak", "Okafor", "Petrov", "Quintana", "Reyes", "Sato",
	}
	funds = []string{
		"water utility", "sewer", "stormwater", "parking", "transit",
		"solid waste", "golf course", "marina",
	}
	projects = []string{
		"reservoir expansion", "treatment plant upgrade", "bridge deck",
		"trail connector", "pump station", "fiber conduit",
	}
	sessionKinds = []string{"Regular", "Special", "Work", "Emergency"}
	cityNames    = []string{"Fairmont", "Lakeview", "Riverton", "Maplewood"}
)

func main() {
	flag.Parse()
	rng := rand.New(rand.NewSource(*seed))

	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating output directory: %v\n", err)
		os.Exit(1)
	}

	// Create subdirectories
	subdirs := []string{"ordinances", "minutes", "budgets", "notices"}
	for _, subdir := range subdirs {
		if err := os.MkdirAll(filepath.Join(*outputDir, subdir), 0755); err != nil {
			fmt.Fprintf(os.Stderr, "Error creating subdirectory %s: %v\n", subdir, err)
			os.Exit(1)
		}
	}

	fmt.Printf("Generating %d files in %s...\n", *numFiles, *outputDir)

	// Distribute files across record kinds
	ordinanceFiles := *numFiles * 40 / 100 // 40% ordinances
	minutesFiles := *numFiles * 30 / 100   // 30% minutes
	budgetFiles := *numFiles * 10 / 100    // 10% budgets
	noticeFiles := *numFiles - ordinanceFiles - minutesFiles - budgetFiles

	generated := 0

	for i := 0; i < ordinanceFiles; i++ {
		if err := generateOrdinance(rng, i); err != nil {
			fmt.Fprintf(os.Stderr, "Error generating ordinance %d: %v\n", i, err)
		}
		generated++
	}

	for i := 0; i < minutesFiles; i++ {
		if err := generateMinutes(rng, i); err != nil {
			fmt.Fprintf(os.Stderr, "Error generating minutes %d: %v\n", i, err)
		}
		generated++
	}

	for i := 0; i < budgetFiles; i++ {
		if err := generateBudget(rng, i); err != nil {
			fmt.Fprintf(os.Stderr, "Error generating budget %d: %v\n", i, err)
		}
		generated++
	}

	for i := 0; i < noticeFiles; i++ {
		if err := generateNotice(rng, i); err != nil {
			fmt.Fprintf(os.Stderr, "Error generating notice %d: %v\n", i, err)
		}
		generated++
	}

	fmt.Printf("Generated %d files successfully.\n", generated)
}

func randomWord(rng *rand.Rand, pool []string) string {
	return pool[rng.Intn(len(pool))]
}

func randomDate(rng *rand.Rand) time.Time {
	start := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	return start.AddDate(0, 0, rng.Intn(365*3))
}

// dollars renders a random amount in the given range with thousands
// separators, the way budget documents print figures.
func dollars(rng *rand.Rand, low, high int) string {
	n := low + rng.Intn(high-low)
	s := fmt.Sprintf("%d", n)
	var out []byte
	for i, c := range []byte(s) {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, c)
	}
	return string(out)
}

func generateOrdinance(rng *rand.Rand, index int) error {
	date := randomDate(rng)
	action := randomWord(rng, actions)
	subject := randomWord(rng, subjects)

	content := fmt.Sprintf(ordinanceTemplate,
		action, subject,
		date.Year(), index%100,
		date.Format("2006-01-02"),
		action, subject,
		randomWord(rng, topics), randomWord(rng, streets),
		date.AddDate(0, 0, -14).Format("January 2"),
		10+rng.Intn(40),
		randomWord(rng, topics), []string{"permitted", "prohibited", "restricted"}[rng.Intn(3)],
		randomWord(rng, districts),
		100*(1+rng.Intn(10)),
		30+rng.Intn(31),
	)

	filename := filepath.Join(*outputDir, "ordinances",
		fmt.Sprintf("ord-%d-%02d-%d.md", date.Year(), index%100, index))
	return os.WriteFile(filename, []byte(content), 0644)
}

func generateMinutes(rng *rand.Rand, index int) error {
	date := randomDate(rng)
	yes := 3 + rng.Intn(3)
	no := 5 - yes

	content := fmt.Sprintf(minutesTemplate,
		randomWord(rng, sessionKinds),
		date.Format("January 2, 2006"),
		randomWord(rng, surnames), randomWord(rng, surnames),
		randomWord(rng, surnames), randomWord(rng, surnames),
		randomWord(rng, surnames),
		randomWord(rng, topics),
		randomWord(rng, topics), randomWord(rng, streets),
		randomWord(rng, subjects),
		randomWord(rng, streets), randomWord(rng, topics),
		randomWord(rng, surnames),
		randomWord(rng, topics),
		randomWord(rng, surnames),
		yes, no,
		7+rng.Intn(3), rng.Intn(60),
	)

	filename := filepath.Join(*outputDir, "minutes",
		fmt.Sprintf("%s-%d.md", date.Format("2006-01-02"), index))
	return os.WriteFile(filename, []byte(content), 0644)
}

func generateBudget(rng *rand.Rand, index int) error {
	date := randomDate(rng)
	year := date.Year() + 1
	scope := []string{"Adopted", "Proposed", "Amended"}[rng.Intn(3)]

	content := fmt.Sprintf(budgetTemplate,
		year, scope,
		date.Format("2006-01-02"),
		year, scope,
		year, dollars(rng, 20_000_000, 90_000_000),
		1+rng.Intn(8),
		randomWord(rng, projects), randomWord(rng, topics),
		dollars(rng, 2_000_000, 9_000_000),
		dollars(rng, 1_000_000, 4_000_000),
		dollars(rng, 5_000_000, 12_000_000),
		dollars(rng, 4_000_000, 9_000_000),
		dollars(rng, 800_000, 3_000_000),
		randomWord(rng, funds), dollars(rng, 500_000, 5_000_000),
		randomWord(rng, projects), year+10+rng.Intn(10),
		randomWord(rng, projects), randomWord(rng, projects),
		randomWord(rng, streets),
	)

	filename := filepath.Join(*outputDir, "budgets",
		fmt.Sprintf("fy%d-%s-%d.md", year, scope, index))
	return os.WriteFile(filename, []byte(content), 0644)
}

func generateNotice(rng *rand.Rand, index int) error {
	date := randomDate(rng)

	content := fmt.Sprintf(noticeTemplate,
		randomWord(rng, cityNames),
		date.Format("January 2, 2006"),
		5+rng.Intn(3), rng.Intn(60),
		[]string{"a proposed ordinance", "proposed rates for", "the vacation of",
			"a special assessment for"}[rng.Intn(4)],
		randomWord(rng, subjects),
	)

	filename := filepath.Join(*outputDir, "notices",
		fmt.Sprintf("notice-%s-%d.txt", date.Format("2006-01-02"), index))
	return os.WriteFile(filename, []byte(content), 0644)
}
