package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/amishk599/jobcatalog/internal/filter"
	"github.com/amishk599/jobcatalog/internal/search"
)

var searchOpts struct {
	locations []string
	company   string
	jobType   string
	salaryMin float64
	salaryMax float64
	currency  string
	skills    []string
	limit     int
}

var searchCmd = &cobra.Command{
	Use:   "search [text]",
	Short: "Search the catalog",
	Long:  "Ranks canonical jobs by keyword and semantic relevance, then applies the filters.",
	RunE:  runSearch,
}

func init() {
	f := searchCmd.Flags()
	f.StringSliceVar(&searchOpts.locations, "location", nil, "location substring (repeatable, any matches)")
	f.StringVar(&searchOpts.company, "company", "", "company name")
	f.StringVar(&searchOpts.jobType, "type", "", "employment type (full_time, contract, ...)")
	f.Float64Var(&searchOpts.salaryMin, "salary-min", 0, "minimum yearly salary")
	f.Float64Var(&searchOpts.salaryMax, "salary-max", 0, "maximum yearly salary")
	f.StringVar(&searchOpts.currency, "currency", "", "salary currency (ISO 4217)")
	f.StringSliceVar(&searchOpts.skills, "skill", nil, "required skill (repeatable, all must match)")
	f.IntVarP(&searchOpts.limit, "limit", "n", 20, "maximum results")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	cfg, logger, closeLog, err := setup()
	if err != nil {
		return err
	}
	defer closeLog()

	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	results, err := a.searcher.Search(ctx, search.Query{
		Text: strings.Join(args, " "),
		Filters: filter.Criteria{
			Locations: searchOpts.locations,
			Company:   searchOpts.company,
			JobType:   searchOpts.jobType,
			SalaryMin: searchOpts.salaryMin,
			SalaryMax: searchOpts.salaryMax,
			Currency:  searchOpts.currency,
			Skills:    searchOpts.skills,
		},
		Limit: searchOpts.limit,
	})
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Println("No matching jobs.")
		return nil
	}

	for i, r := range results {
		j := r.Job
		fmt.Printf("%2d. %s · %s", i+1, j.Title, j.Company)
		if j.Location != "" {
			fmt.Printf(" · %s", j.Location)
		}
		fmt.Println()
		details := []string{fmt.Sprintf("score %.2f (kw %.2f, sem %.2f)", r.Score, r.Keyword, r.Semantic)}
		if j.Salary != nil {
			details = append(details, fmt.Sprintf("%s %.0f-%.0f", j.Salary.Currency, j.Salary.Min, j.Salary.Max))
		}
		if len(j.Skills) > 0 {
			details = append(details, strings.Join(j.Skills, ", "))
		}
		fmt.Printf("    %s\n", strings.Join(details, " | "))
		if j.URL != "" {
			fmt.Printf("    %s\n", j.URL)
		}
	}
	return nil
}
