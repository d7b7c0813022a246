// cmd/tools/filter-compiler/commands.go
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"listing-workers/internal/search/executor"
	"listing-workers/internal/search/filter"
	"listing-workers/internal/search/sortkey"
	"listing-workers/internal/search/status"
)

type rootOptions struct {
	Format string // "json" | "text"
}

var validFormats = []string{"text", "json"}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "filter-compiler",
		Short: "Compile listing search filters to SQL",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			for _, f := range validFormats {
				if f == opts.Format {
					return nil
				}
			}
			return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, validFormats)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(newCompileCommand(opts))
	cmd.AddCommand(newSortsCommand(opts))
	cmd.AddCommand(newStatusesCommand(opts))
	return cmd
}

type compileOptions struct {
	File     string
	Page     int
	PageSize int
	Select   bool
}

type compileOutput struct {
	Where               string                 `json:"where"`
	Args                []interface{}          `json:"args"`
	Query               string                 `json:"query,omitempty"`
	QueryArgs           []interface{}          `json:"queryArgs,omitempty"`
	OrderBy             sortkey.Order          `json:"orderBy"`
	IsDirectLookup      bool                   `json:"isDirectLookup"`
	HasSchoolFilters    bool                   `json:"hasSchoolFilters"`
	SchoolCriteria      map[string]interface{} `json:"schoolCriteria,omitempty"`
	OverfetchMultiplier int                    `json:"overfetchMultiplier"`
	IncludesArchived    bool                   `json:"includesArchived"`
}

func newCompileCommand(rootOpts *rootOptions) *cobra.Command {
	opts := &compileOptions{}

	cmd := &cobra.Command{
		Use:   "compile [filters-json]",
		Short: "Compile a filter document",
		Long: `Compile a JSON object of search parameters.

The document is read from the argument, from --file, or from stdin when
neither is given. With --select the full SELECT for one page is printed.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readFilters(cmd.InOrStdin(), opts.File, args)
			if err != nil {
				return err
			}
			return runCompile(cmd.OutOrStdout(), rootOpts, opts, raw)
		},
	}

	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "read filters from file")
	cmd.Flags().IntVar(&opts.Page, "page", 1, "page number for --select")
	cmd.Flags().IntVar(&opts.PageSize, "page-size", 24, "page size for --select")
	cmd.Flags().BoolVar(&opts.Select, "select", false, "print the full SELECT statement")
	return cmd
}

func readFilters(stdin io.Reader, file string, args []string) (filter.RawInput, error) {
	var data []byte
	var err error
	switch {
	case len(args) == 1:
		data = []byte(args[0])
	case file != "":
		data, err = os.ReadFile(file)
	default:
		data, err = io.ReadAll(stdin)
	}
	if err != nil {
		return nil, fmt.Errorf("read filters: %w", err)
	}

	raw := filter.RawInput{}
	if strings.TrimSpace(string(data)) == "" {
		return raw, nil
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse filters: %w", err)
	}
	return raw, nil
}

func runCompile(w io.Writer, rootOpts *rootOptions, opts *compileOptions, raw filter.RawInput) error {
	result, err := filter.Compile(raw)
	if err != nil {
		return err
	}
	where, args, err := result.Where(1)
	if err != nil {
		return err
	}

	out := compileOutput{
		Where:               where,
		Args:                args,
		OrderBy:             result.OrderBy,
		IsDirectLookup:      result.IsDirectLookup,
		HasSchoolFilters:    result.HasSchoolFilters,
		SchoolCriteria:      result.SchoolCriteria,
		OverfetchMultiplier: result.OverfetchMultiplier,
		IncludesArchived:    result.IncludesArchived,
	}

	if opts.Select {
		if opts.Page < 1 || opts.PageSize < 1 {
			return fmt.Errorf("page and page-size must be positive")
		}
		limit, offset := executor.FirstWindow(result, executor.Page{Number: opts.Page, Size: opts.PageSize})
		out.Query, out.QueryArgs, err = executor.BuildQuery(result, limit, offset)
		if err != nil {
			return err
		}
	}

	if rootOpts.Format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	if out.Query != "" {
		fmt.Fprintln(w, out.Query)
		printArgs(w, out.QueryArgs)
	} else {
		fmt.Fprintln(w, "WHERE", out.Where)
		printArgs(w, out.Args)
		fmt.Fprintf(w, "ORDER BY %s %s\n", out.OrderBy.Column, out.OrderBy.Direction)
	}
	fmt.Fprintf(w, "direct lookup: %t, school filters: %t, overfetch: %dx, archived: %t\n",
		out.IsDirectLookup, out.HasSchoolFilters, out.OverfetchMultiplier, out.IncludesArchived)
	return nil
}

func printArgs(w io.Writer, args []interface{}) {
	for i, a := range args {
		fmt.Fprintf(w, "  $%d = %v\n", i+1, a)
	}
}

func newSortsCommand(rootOpts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sorts",
		Short: "List the supported sort keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			orders := make(map[string]sortkey.Order)
			for _, k := range sortkey.Keys() {
				orders[k] = sortkey.Resolve(k)
			}
			w := cmd.OutOrStdout()
			if rootOpts.Format == "json" {
				return json.NewEncoder(w).Encode(orders)
			}
			for _, k := range sortkey.Keys() {
				marker := ""
				if k == sortkey.DefaultKey {
					marker = " (default)"
				}
				fmt.Fprintf(w, "%-14s %s %s%s\n", k, orders[k].Column, orders[k].Direction, marker)
			}
			return nil
		},
	}
}

func newStatusesCommand(rootOpts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "statuses",
		Short: "List the recognised status tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cats := make(map[string]status.Category)
			for _, tok := range status.Tokens() {
				cats[tok], _ = status.Lookup(tok)
			}
			w := cmd.OutOrStdout()
			if rootOpts.Format == "json" {
				return json.NewEncoder(w).Encode(cats)
			}
			for _, tok := range status.Tokens() {
				c := cats[tok]
				fmt.Fprintf(w, "%-16s %-8s archived=%t %s\n", tok, c.Name, c.Archived, strings.Join(c.Statuses, ", "))
			}
			return nil
		},
	}
}
