package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rcliao/nexa/internal/model"
	"github.com/rcliao/nexa/internal/state"
)

func init() {
	stateCmd := &cobra.Command{
		Use:   "state",
		Short: "Read and update session state",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the state document",
		Run:   runStateShow,
	}
	show.Flags().Bool("summary", false, "Print the condensed status summary instead")

	next := &cobra.Command{
		Use:   "next [action]",
		Short: "Set the suggested next action",
		Args:  cobra.MinimumNArgs(1),
		Run:   runStateNext,
	}

	phase := &cobra.Command{
		Use:   "phase [phase]",
		Short: "Set the algorithm phase",
		Args:  cobra.ExactArgs(1),
		Run:   runStatePhase,
	}

	logErr := &cobra.Command{
		Use:   "error",
		Short: "Append an entry to the capped error log",
		Run:   runStateError,
	}
	logErr.Flags().String("job", "", "Job id the error belongs to")
	logErr.Flags().String("source", "", "Source path that failed")
	logErr.Flags().StringP("message", "m", "", "Error message (required)")
	logErr.MarkFlagRequired("message")

	session := &cobra.Command{
		Use:       "session [start|end]",
		Short:     "Start or end a work session",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"start", "end"},
		Run:       runStateSession,
	}

	job := &cobra.Command{
		Use:   "job",
		Short: "Track the current job",
	}
	jobStart := &cobra.Command{
		Use:   "start [inputs...]",
		Short: "Start a job",
		Run:   runJobStart,
	}
	jobStart.Flags().String("type", "", "Job type (required)")
	jobStart.MarkFlagRequired("type")
	jobFinish := &cobra.Command{
		Use:   "finish",
		Short: "Finish the current job",
		Run:   runJobFinish,
	}
	jobFinish.Flags().Bool("failed", false, "Record the job as failed")
	job.AddCommand(jobStart, jobFinish)

	daemon := &cobra.Command{
		Use:   "daemon [running|stopped|error]",
		Short: "Set the daemon status",
		Args:  cobra.ExactArgs(1),
		Run:   runStateDaemon,
	}
	daemon.Flags().Int("pid", 0, "Daemon process id (default: this process)")

	heartbeat := &cobra.Command{
		Use:   "heartbeat",
		Short: "Stamp the daemon heartbeat",
		Run:   runStateHeartbeat,
	}

	brief := &cobra.Command{
		Use:   "brief",
		Short: "Update the rolling brief",
		Run:   runStateBrief,
	}
	brief.Flags().String("themes", "", "Comma-separated top themes")
	brief.Flags().String("risks", "", "Comma-separated risk flags")
	brief.Flags().String("delta", "", "Latest delta summary")

	ingest := &cobra.Command{
		Use:   "ingest",
		Short: "Record an ingested source",
		Run:   runStateIngest,
	}
	ingest.Flags().String("source", "", "Source path (required)")
	ingest.Flags().String("path", "", "Path of the ingested copy")
	ingest.Flags().String("hash", "", "Content hash")
	ingest.Flags().String("fingerprint", "", "Content fingerprint")
	ingest.Flags().String("status", "extracted", "Ingest status")
	ingest.MarkFlagRequired("source")

	stateCmd.AddCommand(show, next, phase, logErr, session, job, daemon, heartbeat, brief, ingest)
	RootCmd.AddCommand(stateCmd)
}

func runStateShow(cmd *cobra.Command, args []string) {
	summary, _ := cmd.Flags().GetBool("summary")
	st, err := openState().Load()
	if err != nil {
		exitErr("load state", err)
	}
	if summary {
		printJSON(state.Summarize(st))
		return
	}
	printJSON(st)
}

func runStateNext(cmd *cobra.Command, args []string) {
	action := strings.Join(args, " ")
	if err := openState().SetNextAction(cmd.Context(), action); err != nil {
		exitErr("set next action", err)
	}
	fmt.Printf(`{"ok":true,"next_action":%q}`+"\n", action)
}

func runStatePhase(cmd *cobra.Command, args []string) {
	if err := openState().SetPhase(cmd.Context(), args[0]); err != nil {
		exitErr("set phase", err)
	}
	fmt.Printf(`{"ok":true,"phase":%q}`+"\n", args[0])
}

func runStateError(cmd *cobra.Command, args []string) {
	job, _ := cmd.Flags().GetString("job")
	source, _ := cmd.Flags().GetString("source")
	message, _ := cmd.Flags().GetString("message")

	err := openState().LogError(cmd.Context(), model.ErrorEntry{
		JobID:        job,
		SourcePath:   source,
		ErrorMessage: message,
	})
	if err != nil {
		exitErr("log error", err)
	}
	fmt.Println(`{"ok":true}`)
}

func runStateSession(cmd *cobra.Command, args []string) {
	s := openState()
	switch args[0] {
	case "start":
		started, err := s.StartSession(cmd.Context())
		if err != nil {
			exitErr("start session", err)
		}
		fmt.Printf(`{"ok":true,"session_start_time":%q}`+"\n", started)
	case "end":
		minutes, ok, err := s.EndSession(cmd.Context())
		if err != nil {
			exitErr("end session", err)
		}
		if !ok {
			fmt.Println(`{"ok":true,"duration_minutes":null}`)
			return
		}
		fmt.Printf(`{"ok":true,"duration_minutes":%d}`+"\n", minutes)
	}
}

func runJobStart(cmd *cobra.Command, args []string) {
	jobType, _ := cmd.Flags().GetString("type")
	job, err := openState().SetCurrentJob(cmd.Context(), jobType, args)
	if err != nil {
		exitErr("start job", err)
	}
	printJSON(job)
}

func runJobFinish(cmd *cobra.Command, args []string) {
	failed, _ := cmd.Flags().GetBool("failed")
	last, err := openState().CompleteCurrentJob(cmd.Context(), !failed)
	if err != nil {
		exitErr("finish job", err)
	}
	if last == nil {
		exitErr("finish job", fmt.Errorf("no job is running"))
	}
	printJSON(last)
}

func runStateDaemon(cmd *cobra.Command, args []string) {
	pid, _ := cmd.Flags().GetInt("pid")
	if err := openState().UpdateDaemonStatus(cmd.Context(), args[0], pid); err != nil {
		exitErr("daemon status", err)
	}
	fmt.Printf(`{"ok":true,"status":%q}`+"\n", args[0])
}

func runStateHeartbeat(cmd *cobra.Command, args []string) {
	if err := openState().Heartbeat(cmd.Context()); err != nil {
		exitErr("heartbeat", err)
	}
	fmt.Println(`{"ok":true}`)
}

func runStateBrief(cmd *cobra.Command, args []string) {
	var u state.BriefUpdate
	if cmd.Flags().Changed("themes") {
		themes, _ := cmd.Flags().GetString("themes")
		u.TopThemes = nonNilTags(themes)
	}
	if cmd.Flags().Changed("risks") {
		risks, _ := cmd.Flags().GetString("risks")
		u.RiskFlags = nonNilTags(risks)
	}
	if cmd.Flags().Changed("delta") {
		delta, _ := cmd.Flags().GetString("delta")
		u.LatestDelta = &delta
	}

	brief, err := openState().UpdateBrief(cmd.Context(), u)
	if err != nil {
		exitErr("update brief", err)
	}
	printJSON(brief)
}

func runStateIngest(cmd *cobra.Command, args []string) {
	source, _ := cmd.Flags().GetString("source")
	path, _ := cmd.Flags().GetString("path")
	hash, _ := cmd.Flags().GetString("hash")
	fingerprint, _ := cmd.Flags().GetString("fingerprint")
	status, _ := cmd.Flags().GetString("status")

	entry := model.IngestEntry{
		SourcePath:  source,
		IngestPath:  path,
		ContentHash: hash,
		Fingerprint: fingerprint,
		Status:      status,
		ExtractedAt: model.FormatTime(time.Now()),
	}
	if err := openState().AddIngestEntry(cmd.Context(), entry); err != nil {
		exitErr("ingest", err)
	}
	printJSON(entry)
}

// nonNilTags splits s like splitTags but never returns nil, so an explicit
// empty flag clears the list.
func nonNilTags(s string) []string {
	tags := splitTags(s)
	if tags == nil {
		return []string{}
	}
	return tags
}
