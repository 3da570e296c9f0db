package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"vidslide/internal/batch"
	"vidslide/internal/textutil"
	"vidslide/internal/workflow"
)

func renderBatchList(summaries []batch.Summary, colorize bool) string {
	rows := make([][]string, 0, len(summaries))
	for _, s := range summaries {
		status := paint(batchStatusKind(s.Status), textutil.Humanize(string(s.Status)), colorize)
		rows = append(rows, []string{
			s.ID,
			status,
			strconv.Itoa(s.TaskCount),
			fmt.Sprintf("%d/%d", s.CompletedCount, s.FailedCount),
			strconv.Itoa(s.TotalImages),
			formatPercent(s.GlobalProgress),
			formatRelativeTime(s.UpdatedAt),
		})
	}
	return renderTable(
		[]string{"ID", "Status", "Tasks", "Done/Failed", "Images", "Progress", "Updated"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignLeft},
	)
}

func renderBatchDetail(snap batch.Snapshot, colorize bool) string {
	var b strings.Builder
	for _, line := range renderSectionHeader("Batch "+snap.ID, colorize) {
		b.WriteString(line + "\n")
	}
	b.WriteString(renderStatusLine("Status", batchStatusKind(snap.Status), textutil.Humanize(string(snap.Status)), colorize) + "\n")
	b.WriteString(renderStatusLine("Directory", statusInfo, snap.Dir, colorize) + "\n")
	b.WriteString(renderStatusLine("Created", statusInfo, formatDisplayTime(snap.CreatedAt), colorize) + "\n")
	b.WriteString(renderStatusLine("Workers", statusInfo, strconv.Itoa(snap.MaxWorkers), colorize) + "\n")
	b.WriteString(renderStatusLine("Progress", statusInfo, formatPercent(snap.GlobalProgress), colorize) + "\n")
	b.WriteString(renderStatusLine("Images", statusInfo, strconv.Itoa(snap.TotalImages), colorize) + "\n")
	b.WriteString(renderStatusLine("Params", statusInfo, formatParams(snap), colorize) + "\n")
	if snap.PauseAfterCurrent {
		b.WriteString(renderStatusLine("Pause pending", statusWarn, "after running tasks finish", colorize) + "\n")
	}

	zones := []struct {
		title   string
		records []batch.TaskRecord
	}{
		{"Staged", snap.Zones.Staged},
		{"Queued", snap.Zones.Queued},
		{"Completed", snap.Zones.Completed},
		{"Trashed", snap.Zones.Trashed},
	}
	for _, zone := range zones {
		if len(zone.records) == 0 {
			continue
		}
		b.WriteString("\n")
		b.WriteString(renderTaskTable(zone.title, zone.records, colorize))
	}
	return b.String()
}

func renderTaskTable(title string, records []batch.TaskRecord, colorize bool) string {
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		detail := rec.ErrorMessage
		if detail == "" {
			detail = rec.Reason
		}
		rows = append(rows, []string{
			rec.ID,
			rec.DisplayName,
			colorizeStatus(rec.Status, colorize),
			formatPercent(rec.Progress),
			strconv.Itoa(rec.SavedCount),
			formatSeconds(rec.ETASeconds),
			detail,
		})
	}
	return renderTableSpec(tableSpec{
		title:   fmt.Sprintf("%s (%d)", title, len(records)),
		headers: []string{"ID", "Name", "Status", "Progress", "Slides", "ETA", "Detail"},
		aligns:  []columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft},
	}, rows)
}

func renderExportResults(results []workflow.ExportResult) string {
	rows := make([][]string, 0, len(results))
	failed := 0
	for _, res := range results {
		outcome := res.File
		if res.Error != "" {
			outcome = "failed: " + res.Error
			failed++
		}
		rows = append(rows, []string{res.TaskID, res.Name, outcome})
	}
	return renderTableSpec(tableSpec{
		headers: []string{"Task", "Name", "Package"},
		footer:  []string{"", "", fmt.Sprintf("%d exported, %d failed", len(results)-failed, failed)},
	}, rows)
}

func batchStatusKind(status batch.BatchStatus) statusKind {
	return textutil.Ternary(status == batch.BatchProcessing, statusOK, statusInfo)
}

func formatParams(snap batch.Snapshot) string {
	p := snap.Params
	roi := "full frame"
	if p.ROI != nil {
		roi = fmt.Sprintf("%.2f,%.2f,%.2f,%.2f", p.ROI.X1, p.ROI.Y1, p.ROI.X2, p.ROI.Y2)
	}
	return fmt.Sprintf("threshold %.3f, %s, history %d, roi %s", p.Threshold, p.SpeedMode, p.MaxHistory, roi)
}

func formatPercent(value int) string {
	return fmt.Sprintf("%d%%", value)
}

func formatSeconds(seconds float64) string {
	if seconds <= 0 {
		return "-"
	}
	return (time.Duration(seconds) * time.Second).String()
}

func formatDisplayTime(ts time.Time) string {
	if ts.IsZero() {
		return "-"
	}
	return ts.Local().Format("2006-01-02 15:04")
}

func formatRelativeTime(ts time.Time) string {
	if ts.IsZero() {
		return "-"
	}
	return humanize.Time(ts)
}

func yesNo(value bool) string {
	return textutil.Ternary(value, "yes", "no")
}

const payloadPreviewLimit = 160

func summarizePayload(payload any) string {
	if payload == nil {
		return ""
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprintf("%v", payload)
	}
	text := string(data)
	if len(text) > payloadPreviewLimit {
		text = text[:payloadPreviewLimit] + "..."
	}
	return text
}
