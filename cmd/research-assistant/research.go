// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/research-assistant/internal/research"
	"github.com/pdiddy/research-assistant/pkg/types"
)

var researchCmd = &cobra.Command{
	Use:   "research [query]",
	Short: "Run the deep-research workflow on a query",
	Long: `Research may ask clarification questions, then retrieves and reranks
source chunks and synthesizes a cited answer. Clarification questions are
asked on the terminal unless --skip-clarification is set; an empty answer
skips a question.

Output formats: text (answer followed by a Harvard reference list), bibtex
(entries for the sources only), or json (the response envelope).`,
	Args: cobra.MinimumNArgs(1),
	RunE: runResearch,
}

func runResearch(cmd *cobra.Command, args []string) error {
	req := types.ResearchRequest{Query: strings.Join(args, " ")}
	req.TopK, _ = cmd.Flags().GetInt("top-k")
	req.SkipClarification, _ = cmd.Flags().GetBool("skip-clarification")
	req.UserID, _ = cmd.Flags().GetString("user")
	format, _ := cmd.Flags().GetString("format")
	stream, _ := cmd.Flags().GetBool("stream")

	switch format {
	case "text", "bibtex", "json":
	default:
		return fmt.Errorf("unsupported format %q: use text, bibtex, or json", format)
	}
	if err := research.Validate(req); err != nil {
		return err
	}

	a, err := newApp(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	wf, err := a.requireResearch()
	if err != nil {
		return err
	}

	if stream {
		return streamResearch(cmd.Context(), wf, req, os.Stdout, os.Stderr)
	}

	in := bufio.NewReader(os.Stdin)
	for {
		out, err := wf.Research(cmd.Context(), req)
		if err != nil {
			return err
		}
		nc, ok := out.(*research.NeedsClarification)
		if !ok {
			return printOutcome(os.Stdout, out, format)
		}
		req.SessionID = nc.SessionID
		req.Questions = nc.Questions
		req.Answers = askQuestions(in, os.Stderr, nc.Questions)
		if len(req.Answers) == 0 {
			// Nothing answered: proceed with the original query.
			req.SkipClarification = true
		}
	}
}

// askQuestions prompts for each clarification question and returns the
// non-empty answers.
func askQuestions(in *bufio.Reader, w io.Writer, questions []types.ClarificationQuestion) []types.ClarificationAnswer {
	fmt.Fprintln(w, "A few questions to focus the research (press Enter to skip):")
	var answers []types.ClarificationAnswer
	for i, q := range questions {
		fmt.Fprintf(w, "\n%d. %s\n", i+1, q.Question)
		if len(q.SuggestedAnswers) > 0 {
			fmt.Fprintf(w, "   e.g. %s\n", strings.Join(q.SuggestedAnswers, " / "))
		}
		fmt.Fprint(w, "> ")
		line, err := in.ReadString('\n')
		if answer := strings.TrimSpace(line); answer != "" {
			answers = append(answers, types.ClarificationAnswer{QuestionID: q.ID, Answer: answer})
		}
		if err != nil {
			break
		}
	}
	return answers
}

// printOutcome renders a final outcome in format.
func printOutcome(w io.Writer, out research.Outcome, format string) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(research.NewEnvelope(out))
	}
	switch v := out.(type) {
	case *research.Failed:
		return fmt.Errorf("%s", v.Message)
	case *research.Completed:
		if format == "bibtex" {
			_, err := io.WriteString(w, research.BibTeX(v.Sources))
			return err
		}
		fmt.Fprintln(w, v.Response)
		if len(v.Sources) > 0 {
			fmt.Fprintf(w, "\nReferences\n\n%s", research.FormatReferences(v.Sources))
		}
		fmt.Fprintf(os.Stderr, "\n%d of %d sources used, %d tokens, %dms\n",
			len(v.Sources), v.TotalSourcesFound, v.Usage.Total(), v.ElapsedMS)
		return nil
	}
	return fmt.Errorf("unexpected research outcome %T", out)
}

// streamResearch prints progress events to progress and the answer to w.
// Clarification questions are listed but not asked in streaming mode.
func streamResearch(ctx context.Context, wf *research.Workflow, req types.ResearchRequest, w, progress io.Writer) error {
	var sources []types.Source
	for ev := range wf.Stream(ctx, req) {
		switch ev.Type {
		case types.EventPhaseUpdate:
			fmt.Fprintf(progress, "[%s]\n", ev.Phase)
		case types.EventClarification:
			fmt.Fprintf(progress, "? %s\n", ev.Clarification.Question)
		case types.EventSource:
			sources = append(sources, *ev.Source)
		case types.EventContent:
			fmt.Fprintln(w, ev.Content)
		case types.EventDone:
			if len(sources) > 0 {
				fmt.Fprintf(w, "\nReferences\n\n%s", research.FormatReferences(sources))
			}
			if ev.Metadata["status"] == string(types.StatusNeedsClarification) {
				fmt.Fprintln(progress, "Re-run without --stream to answer, or with --skip-clarification.")
			}
		case types.EventError:
			return fmt.Errorf("%s", ev.Error)
		}
	}
	return nil
}

func init() {
	researchCmd.Flags().Int("top-k", 0, "chunks kept after reranking (1-50, default from research.default_top_k)")
	researchCmd.Flags().Bool("skip-clarification", false, "proceed straight to retrieval")
	researchCmd.Flags().String("user", "", "user id for usage accounting")
	researchCmd.Flags().String("format", "text", "output format: text, bibtex, or json")
	researchCmd.Flags().Bool("stream", false, "print progress events as the workflow runs")

	rootCmd.AddCommand(researchCmd)
}
