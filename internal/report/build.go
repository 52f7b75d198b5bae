package report

import (
	"archive/zip"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/olekukonko/tablewriter"

	"image-optimizer/internal/database"
	"image-optimizer/internal/logging"
	"image-optimizer/internal/storage"
)

// BuildText renders the human-readable report: a header block, the
// per-file table, and a savings summary.
func BuildText(data *Data) string {
	var buf bytes.Buffer

	finished := "-"
	if data.FinishedAt != nil {
		finished = data.FinishedAt.Format(time.RFC3339)
	}
	fmt.Fprintf(&buf, "Report for job #%d\n", data.JobID)
	fmt.Fprintf(&buf, "Preset: %s (%s)\n", orDash(data.PresetLabel), orDash(data.PresetID))
	fmt.Fprintf(&buf, "Date: %s\n", data.GeneratedAt.Format(time.RFC3339))
	fmt.Fprintf(&buf, "Final status: %s\n", StatusLabel(data.Status))
	fmt.Fprintf(&buf, "Files: %d/%d\n", data.ProcessedFiles, data.TotalFiles)
	fmt.Fprintf(&buf, "Finished: %s\n\n", finished)

	table := tablewriter.NewWriter(&buf)
	table.Header(Columns())
	for i := range data.Rows {
		table.Append(data.Rows[i].Values())
	}
	table.Render()

	savingsMB := float64(data.TotalSavings()) / (1024 * 1024)
	fmt.Fprintf(&buf, "\nSummary\n")
	fmt.Fprintf(&buf, "Total savings: %.2f MB\n", savingsMB)
	if avg := data.AverageReduction(); avg != nil {
		fmt.Fprintf(&buf, "Average reduction: %v%%\n", *avg)
	} else {
		fmt.Fprintf(&buf, "Average reduction: -%%\n")
	}
	return buf.String()
}

// BuildCSV renders the same table as comma-separated values.
func BuildCSV(data *Data) (string, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if err := writer.Write(Columns()); err != nil {
		return "", fmt.Errorf("failed to write csv header: %w", err)
	}
	for i := range data.Rows {
		if err := writer.Write(data.Rows[i].Values()); err != nil {
			return "", fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// BuildArchive writes the job's ZIP: every output variant under its
// final name plus both report files. Archive entries are de-duplicated
// by name so a variant listed twice is only packed once.
func BuildArchive(w io.Writer, data *Data, files []*database.JobFile, store storage.BlobStore) error {
	archive := zip.NewWriter(w)
	added := make(map[string]bool)

	for _, file := range files {
		for _, out := range file.Outputs {
			if out.Name == "" || out.Key == "" || added[out.Name] {
				continue
			}
			payload, err := store.Read(out.Key)
			if err != nil {
				logging.Warn("Skipping missing output %s for job %d: %v", out.Name, data.JobID, err)
				continue
			}
			entry, err := archive.Create(out.Name)
			if err != nil {
				return fmt.Errorf("failed to add %s to archive: %w", out.Name, err)
			}
			if _, err := entry.Write(payload); err != nil {
				return fmt.Errorf("failed to write %s to archive: %w", out.Name, err)
			}
			added[out.Name] = true
		}
		// primary output, in case the variants list is missing
		if file.OutputName != "" && file.OutputKey != "" && !added[file.OutputName] {
			payload, err := store.Read(file.OutputKey)
			if err != nil {
				logging.Warn("Skipping missing output %s for job %d: %v", file.OutputName, data.JobID, err)
				continue
			}
			entry, err := archive.Create(file.OutputName)
			if err != nil {
				return fmt.Errorf("failed to add %s to archive: %w", file.OutputName, err)
			}
			if _, err := entry.Write(payload); err != nil {
				return fmt.Errorf("failed to write %s to archive: %w", file.OutputName, err)
			}
			added[file.OutputName] = true
		}
	}

	text, err := archive.Create(TextFileName)
	if err != nil {
		return fmt.Errorf("failed to add %s: %w", TextFileName, err)
	}
	if _, err := text.Write([]byte(BuildText(data))); err != nil {
		return err
	}

	csvBody, err := BuildCSV(data)
	if err != nil {
		return err
	}
	csvEntry, err := archive.Create(CSVFileName)
	if err != nil {
		return fmt.Errorf("failed to add %s: %w", CSVFileName, err)
	}
	if _, err := csvEntry.Write([]byte(csvBody)); err != nil {
		return err
	}

	return archive.Close()
}

// ArchiveName builds the download file name for a job archive.
func ArchiveName(jobID int64, at time.Time) string {
	return fmt.Sprintf("job_%d_%s.zip", jobID, at.UTC().Format("20060102150405"))
}
