// package formatter renders queue and instance listings for the operator CLI (plain text, CSV, JSON)
package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/desertthunder/nostodon/internal/models"
	"github.com/desertthunder/nostodon/internal/shared"
)

// Format selects an output encoding.
type Format string

const (
	FormatText Format = "text"
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// ParseFormat converts s into a [Format].
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatText, FormatCSV, FormatJSON:
		return f, nil
	case "":
		return FormatText, nil
	default:
		return "", fmt.Errorf("%w: format %q (want text, csv or json)", shared.ErrInvalidArgument, s)
	}
}

const maxErrorWidth = 60

var jobHeaders = []string{"ID", "External Post ID", "Status", "User", "Handle", "Claimed At", "Updated At", "Error"}

// ExportJobsToCSV converts jobs to CSV with one row per job.
func ExportJobsToCSV(jobs []models.ScheduledPost) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write(jobHeaders); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, job := range jobs {
		record := []string{
			strconv.FormatInt(job.ID, 10),
			job.ExternalPostID,
			string(job.Status),
			job.UserID,
			job.Profile.NIP05,
			formatTime(job.ClaimedAt),
			formatTime(job.UpdatedAt),
			job.ErrorMessage,
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}
	return buf.Bytes(), nil
}

// ExportJobsToText renders jobs as an aligned table. Error messages are truncated.
func ExportJobsToText(jobs []models.ScheduledPost) ([]byte, error) {
	var buf bytes.Buffer
	if len(jobs) == 0 {
		buf.WriteString("No jobs.\n")
		return buf.Bytes(), nil
	}

	tw := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join([]string{"ID", "POST", "STATUS", "HANDLE", "UPDATED", "ERROR"}, "\t"))
	for _, job := range jobs {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			job.ID, job.ExternalPostID, job.Status, job.Profile.NIP05, formatTime(job.UpdatedAt), truncate(job.ErrorMessage, maxErrorWidth))
	}
	if err := tw.Flush(); err != nil {
		return nil, fmt.Errorf("failed to render table: %w", err)
	}
	return buf.Bytes(), nil
}

// ExportJobsToJSON converts jobs to an indented JSON array.
func ExportJobsToJSON(jobs []models.ScheduledPost) ([]byte, error) {
	if jobs == nil {
		jobs = []models.ScheduledPost{}
	}
	data, err := json.MarshalIndent(jobs, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode jobs: %w", err)
	}
	return append(data, '\n'), nil
}

// ExportJobs renders jobs in format.
func ExportJobs(jobs []models.ScheduledPost, format Format) ([]byte, error) {
	switch format {
	case FormatCSV:
		return ExportJobsToCSV(jobs)
	case FormatJSON:
		return ExportJobsToJSON(jobs)
	default:
		return ExportJobsToText(jobs)
	}
}

// WriteJobs renders jobs in format to w.
func WriteJobs(w io.Writer, jobs []models.ScheduledPost, format Format) error {
	data, err := ExportJobs(jobs, format)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

// ExportStatsToText renders per-status counts in lifecycle order followed by the total.
func ExportStatsToText(stats models.JobStats) []byte {
	var buf bytes.Buffer
	for _, status := range []models.JobStatus{models.JobNew, models.JobRunning, models.JobFinished, models.JobErrored} {
		fmt.Fprintf(&buf, "%-9s %d\n", status, stats[status])
	}
	fmt.Fprintf(&buf, "%-9s %d\n", "total", stats.Total())
	return buf.Bytes()
}

// ExportInstancesToText renders instances sorted by URL with their blacklist flag.
func ExportInstancesToText(instances []models.Instance) []byte {
	var buf bytes.Buffer
	if len(instances) == 0 {
		buf.WriteString("No instances.\n")
		return buf.Bytes()
	}

	sorted := slices.Clone(instances)
	slices.SortFunc(sorted, func(a, b models.Instance) int { return strings.Compare(a.URL, b.URL) })

	tw := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "URL\tBLACKLISTED\tFIRST SEEN")
	for _, inst := range sorted {
		fmt.Fprintf(tw, "%s\t%t\t%s\n", inst.URL, inst.Blacklisted, formatTime(inst.CreatedAt))
	}
	tw.Flush()
	return buf.Bytes()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-1]) + "…"
}
