// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/research-assistant/pkg/types"
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer one question through the router",
	Long: `Ask classifies the question, consults the sources its category needs
(model only, vector search, trait lookup, tools), and prints the answer.
The category and sources used are printed to stderr.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func runAsk(cmd *cobra.Command, args []string) error {
	q := types.Query{Text: strings.Join(args, " ")}
	q.UserID, _ = cmd.Flags().GetString("user")
	q.SessionID, _ = cmd.Flags().GetString("session")
	q.PageContext, _ = cmd.Flags().GetString("page")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	a, err := newApp(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.router.RouteAndExecute(cmd.Context(), q)
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	fmt.Println(res.Response)
	sources := make([]string, len(res.SourcesUsed))
	for i, s := range res.SourcesUsed {
		sources[i] = string(s)
	}
	fmt.Fprintf(os.Stderr, "\ncategory: %s (%.2f), sources: %s, tokens: %d, %dms\n",
		res.Category, res.Confidence, strings.Join(sources, ", "), res.TokenUsage.Total(), res.ElapsedMS)
	return nil
}

func init() {
	askCmd.Flags().String("user", "", "user id for usage accounting")
	askCmd.Flags().String("session", "", "session id for conversation memory")
	askCmd.Flags().String("page", "", "page context the question was asked from")
	askCmd.Flags().Bool("json", false, "output the routing result as JSON")

	rootCmd.AddCommand(askCmd)
}
