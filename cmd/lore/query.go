package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/xhad/lore/pkg/lore"
	"github.com/xhad/lore/pkg/render"
)

var (
	searchLimit        int
	searchCategory     string
	searchMinRelevance float64
	searchJSON         bool

	lookupCategory string

	contextEntities  []string
	contextMaxLength int

	randomCategory string

	clearYes bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search lore entries by meaning",
	Args:  cobra.ExactArgs(1),
	RunE:  runSearch,
}

var lookupCmd = &cobra.Command{
	Use:   "lookup [name]",
	Short: "Look up a named character, place or faction",
	Long: `Look up a named entity. An entry whose title matches exactly wins;
otherwise the closest entry by meaning is returned.`,
	Args: cobra.ExactArgs(1),
	RunE: runLookup,
}

var contextCmd = &cobra.Command{
	Use:   "context [situation]",
	Short: "Pack the lore relevant to a situation into a prompt block",
	Args:  cobra.ExactArgs(1),
	RunE:  runContext,
}

var randomCmd = &cobra.Command{
	Use:   "random",
	Short: "Show a random lore entry",
	Args:  cobra.NoArgs,
	RunE:  runRandom,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show index readiness and entry count",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every entry from the index",
	Args:  cobra.NoArgs,
	RunE:  runClear,
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", lore.DefaultLimit, "maximum number of results")
	searchCmd.Flags().StringVarP(&searchCategory, "category", "c", "", "restrict to a category")
	searchCmd.Flags().Float64Var(&searchMinRelevance, "min-relevance", 0, "relevance floor, negative to disable (default from config)")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "print results as JSON")

	lookupCmd.Flags().StringVarP(&lookupCategory, "category", "c", "", "restrict to a category")

	contextCmd.Flags().StringSliceVarP(&contextEntities, "entity", "e", nil, "entity to include in the query (repeatable)")
	contextCmd.Flags().IntVar(&contextMaxLength, "max-length", lore.DefaultMaxContextLength, "maximum context length in characters")

	randomCmd.Flags().StringVarP(&randomCategory, "category", "c", "", "restrict to a category")

	clearCmd.Flags().BoolVarP(&clearYes, "yes", "y", false, "do not ask for confirmation")

	rootCmd.AddCommand(searchCmd, lookupCmd, contextCmd, randomCmd, statusCmd, clearCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	category, err := parseCategory(searchCategory)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	results, err := a.service.Search(ctx, args[0], lore.SearchOptions{
		Limit:        searchLimit,
		Category:     category,
		MinRelevance: searchMinRelevance,
	})
	if err != nil {
		return err
	}

	if searchJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}
	fmt.Fprintln(cmd.OutOrStdout(), render.Search(args[0], results))
	return nil
}

func runLookup(cmd *cobra.Command, args []string) error {
	category, err := parseCategory(lookupCategory)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.service.LookupEntity(ctx, args[0], category)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), render.Lookup(args[0], result))
	return nil
}

func runContext(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	packed, err := a.service.ContextForSituation(ctx, args[0], contextEntities, contextMaxLength)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), render.Context(packed))
	return nil
}

func runRandom(cmd *cobra.Command, _ []string) error {
	category, err := parseCategory(randomCategory)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.service.GetRandomLore(ctx, category)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), render.Random(result))
	return nil
}

// runStatus reports even when initialization fails, so the user can see why.
func runStatus(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	initErr := a.repo.Initialize(ctx)
	fmt.Fprintln(cmd.OutOrStdout(), render.Status(a.service.Status(ctx)))
	if initErr != nil {
		color.New(color.FgRed).Fprintf(cmd.ErrOrStderr(), "initialization failed: %v\n", initErr)
	}
	return nil
}

func runClear(cmd *cobra.Command, _ []string) error {
	if !clearYes {
		cmd.Print("Remove every lore entry from the index? [y/N] ")
		var answer string
		if _, err := fmt.Fscanln(cmd.InOrStdin(), &answer); err != nil || !strings.EqualFold(strings.TrimSpace(answer), "y") {
			cmd.Println("Aborted.")
			return nil
		}
	}

	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.repo.Clear(ctx); err != nil {
		return err
	}
	color.New(color.FgGreen).Fprintln(cmd.OutOrStdout(), "✓ Index cleared")
	return nil
}
