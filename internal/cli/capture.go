package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/nexa/internal/beads"
)

func init() {
	insight := &cobra.Command{
		Use:   "insight [content]",
		Short: "Record an insight bead",
		Long:  "Record an insight bead. Content can be a positional arg or piped via stdin.",
		Run:   runInsight,
	}
	insight.Flags().StringP("source", "s", "cli", "Skill, session or document that produced it")
	insight.Flags().StringP("tags", "t", "", "Comma-separated tags")
	insight.Flags().StringP("confidence", "c", "medium", "Confidence: high, medium, low")
	insight.Flags().String("connect", "", "Comma-separated ids of related beads")

	decision := &cobra.Command{
		Use:   "decision [content]",
		Short: "Record a decision bead",
		Long:  "Record a decision bead. Content can be a positional arg or piped via stdin.",
		Run:   runDecision,
	}
	decision.Flags().StringP("source", "s", "cli", "Skill or session that made the decision")
	decision.Flags().StringP("path", "p", "", "Path of the decision document")
	decision.Flags().StringP("tags", "t", "", "Comma-separated tags")

	rate := &cobra.Command{
		Use:   "rate",
		Short: "Rate a generated output from 1 to 5",
		Run:   runRate,
	}
	rate.Flags().String("file", "", "Path of the rated output")
	rate.Flags().String("skill", "", "Skill that produced the output (required)")
	rate.Flags().Int("rating", 0, "Rating from 1 (poor) to 5 (excellent) (required)")
	rate.Flags().String("feedback", "", "Optional feedback")
	rate.MarkFlagRequired("skill")
	rate.MarkFlagRequired("rating")

	RootCmd.AddCommand(insight, decision, rate)
}

func runInsight(cmd *cobra.Command, args []string) {
	source, _ := cmd.Flags().GetString("source")
	tagsStr, _ := cmd.Flags().GetString("tags")
	confidence, _ := cmd.Flags().GetString("confidence")
	connect, _ := cmd.Flags().GetString("connect")

	content := readContent(args)
	if content == "" {
		exitErr("insight", fmt.Errorf("content is required (positional arg or stdin)"))
	}

	b, err := openRepo().CreateInsight(cmd.Context(), beads.InsightParams{
		Content:     content,
		Source:      source,
		Tags:        splitTags(tagsStr),
		Confidence:  confidence,
		Connections: splitTags(connect),
	})
	if err != nil {
		exitCapture("insight", err)
	}
	printJSON(b)
}

func runDecision(cmd *cobra.Command, args []string) {
	source, _ := cmd.Flags().GetString("source")
	path, _ := cmd.Flags().GetString("path")
	tagsStr, _ := cmd.Flags().GetString("tags")

	content := readContent(args)
	if content == "" {
		exitErr("decision", fmt.Errorf("content is required (positional arg or stdin)"))
	}

	b, err := openRepo().CreateDecision(cmd.Context(), beads.DecisionParams{
		Content:      content,
		Source:       source,
		DecisionPath: path,
		Tags:         splitTags(tagsStr),
	})
	if err != nil {
		exitCapture("decision", err)
	}
	printJSON(b)
}

func runRate(cmd *cobra.Command, args []string) {
	file, _ := cmd.Flags().GetString("file")
	skill, _ := cmd.Flags().GetString("skill")
	rating, _ := cmd.Flags().GetInt("rating")
	feedback, _ := cmd.Flags().GetString("feedback")

	b, err := openRepo().CreateRating(cmd.Context(), beads.RatingParams{
		OutputFile: file,
		Skill:      skill,
		Rating:     rating,
		Feedback:   feedback,
	})
	if err != nil {
		exitCapture("rate", err)
	}
	printJSON(b)
}
