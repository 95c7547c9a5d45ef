package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/nostodon/internal/models"
	"github.com/desertthunder/nostodon/internal/shared"
	th "github.com/desertthunder/nostodon/internal/testing"
)

func testJobs() []models.ScheduledPost {
	updated := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return []models.ScheduledPost{
		{
			ID:             1,
			ExternalPostID: "111",
			UserID:         "user-1",
			Status:         models.JobFinished,
			Profile:        models.Profile{NIP05: "alice.mastodon.social"},
			UpdatedAt:      updated,
		},
		{
			ID:             2,
			ExternalPostID: "112",
			UserID:         "user-2",
			Status:         models.JobErrored,
			Profile:        models.Profile{NIP05: "bob.hachyderm.io"},
			ErrorMessage:   "failed to publish: publish failed, \"no relay accepted\"\n" + strings.Repeat("x", 80),
			ClaimedAt:      updated.Add(-time.Minute),
			UpdatedAt:      updated,
		},
	}
}

func TestParseFormat(t *testing.T) {
	for _, tt := range []struct {
		in   string
		want Format
	}{
		{"", FormatText},
		{"text", FormatText},
		{"CSV", FormatCSV},
		{"json", FormatJSON},
	} {
		got, err := ParseFormat(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ParseFormat(%q) = %s, %v", tt.in, got, err)
		}
	}

	if _, err := ParseFormat("yaml"); !errors.Is(err, shared.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestExporters(t *testing.T) {
	t.Run("ExportJobsToCSV", func(t *testing.T) {
		data, err := ExportJobsToCSV(testJobs())
		if err != nil {
			t.Fatalf("ExportJobsToCSV failed: %v", err)
		}

		records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
		if err != nil {
			t.Fatalf("output is not valid CSV: %v", err)
		}
		if len(records) != 3 {
			t.Fatalf("expected header and 2 rows, got %d", len(records))
		}
		if strings.Join(records[0], ",") != "ID,External Post ID,Status,User,Handle,Claimed At,Updated At,Error" {
			t.Errorf("unexpected headers %v", records[0])
		}
		if records[2][2] != "errored" || records[2][4] != "bob.hachyderm.io" {
			t.Errorf("unexpected row %v", records[2])
		}
		if records[1][5] != "" {
			t.Errorf("expected empty claimed_at for unclaimed job, got %q", records[1][5])
		}
		if !strings.Contains(records[2][7], `"no relay accepted"`) {
			t.Errorf("expected quoted error to round trip, got %q", records[2][7])
		}
	})

	t.Run("ExportJobsToText", func(t *testing.T) {
		data, err := ExportJobsToText(testJobs())
		if err != nil {
			t.Fatalf("ExportJobsToText failed: %v", err)
		}

		output := string(data)
		lines := strings.Split(strings.TrimSpace(output), "\n")
		if len(lines) != 3 {
			t.Fatalf("expected 3 lines, got %d:\n%s", len(lines), output)
		}
		if !strings.HasPrefix(lines[0], "ID") || !strings.Contains(lines[0], "STATUS") {
			t.Errorf("missing header line: %s", lines[0])
		}
		if !strings.Contains(output, "alice.mastodon.social") || !strings.Contains(output, "2024-05-01T12:00:00Z") {
			t.Errorf("missing job fields:\n%s", output)
		}
		if strings.Contains(output, strings.Repeat("x", 80)) {
			t.Error("expected long error to be truncated")
		}
	})

	t.Run("ExportJobsToText empty", func(t *testing.T) {
		data, _ := ExportJobsToText(nil)
		if string(data) != "No jobs.\n" {
			t.Errorf("unexpected output %q", data)
		}
	})

	t.Run("ExportJobsToJSON", func(t *testing.T) {
		data, err := ExportJobsToJSON(testJobs())
		if err != nil {
			t.Fatalf("ExportJobsToJSON failed: %v", err)
		}

		var decoded []models.ScheduledPost
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("output is not valid JSON: %v", err)
		}
		if len(decoded) != 2 || decoded[1].Status != models.JobErrored {
			t.Errorf("unexpected decoded jobs %+v", decoded)
		}
	})

	t.Run("ExportJobsToJSON empty", func(t *testing.T) {
		data, _ := ExportJobsToJSON(nil)
		if strings.TrimSpace(string(data)) != "[]" {
			t.Errorf("expected empty array, got %s", data)
		}
	})

	t.Run("ExportStatsToText", func(t *testing.T) {
		output := string(ExportStatsToText(models.JobStats{models.JobNew: 3, models.JobErrored: 1}))
		for _, want := range []string{"new       3", "running   0", "errored   1", "total     4"} {
			if !strings.Contains(output, want) {
				t.Errorf("missing %q in:\n%s", want, output)
			}
		}
		if strings.Index(output, "new") > strings.Index(output, "errored") {
			t.Error("expected lifecycle order")
		}
	})

	t.Run("ExportInstancesToText", func(t *testing.T) {
		output := string(ExportInstancesToText([]models.Instance{
			{URL: "https://z.example/", Blacklisted: true},
			{URL: "https://a.example/"},
		}))
		if strings.Index(output, "a.example") > strings.Index(output, "z.example") {
			t.Errorf("expected instances sorted by url:\n%s", output)
		}
		if !strings.Contains(output, "true") {
			t.Errorf("expected blacklist flag:\n%s", output)
		}
	})
}

func TestWriteJobs(t *testing.T) {
	t.Run("Writes selected format", func(t *testing.T) {
		var buf bytes.Buffer
		if err := WriteJobs(&buf, testJobs(), FormatCSV); err != nil {
			t.Fatalf("WriteJobs failed: %v", err)
		}
		if !strings.HasPrefix(buf.String(), "ID,External Post ID") {
			t.Errorf("expected CSV output, got %s", buf.String())
		}
	})

	t.Run("Write failure", func(t *testing.T) {
		if err := WriteJobs(&th.FWriter{}, testJobs(), FormatText); err == nil {
			t.Error("expected write error")
		}
	})
}
