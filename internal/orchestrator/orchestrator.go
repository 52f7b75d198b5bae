package orchestrator

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"image-optimizer/internal/analyzer"
	"image-optimizer/internal/codec"
	"image-optimizer/internal/database"
	"image-optimizer/internal/imagemeta"
	"image-optimizer/internal/logging"
	"image-optimizer/internal/memory"
	"image-optimizer/internal/metrics"
	"image-optimizer/internal/naming"
	"image-optimizer/internal/presets"
	"image-optimizer/internal/procerror"
	"image-optimizer/internal/recommend"
	"image-optimizer/internal/render"
	"image-optimizer/internal/report"
	"image-optimizer/internal/resolve"
	"image-optimizer/internal/storage"
)

// Orchestrator runs claimed jobs end to end: analyze, recommend,
// resolve, render and persist every file, then build the report
// archive and settle the job's final status.
type Orchestrator struct {
	db      *database.DB
	store   storage.BlobStore
	catalog *presets.Catalog

	// maxImageMP rejects images above this many megapixels before
	// decode; 0 disables the guard.
	maxImageMP int

	mem *memory.Monitor
}

// SetMemoryMonitor enables memory backpressure between files.
func (o *Orchestrator) SetMemoryMonitor(m *memory.Monitor) {
	o.mem = m
}

// New creates an orchestrator over the given database, blob store and
// preset catalog.
func New(db *database.DB, store storage.BlobStore, catalog *presets.Catalog, maxImageMP int) *Orchestrator {
	return &Orchestrator{db: db, store: store, catalog: catalog, maxImageMP: maxImageMP}
}

// ProcessJob runs one job to completion. A file failure is recorded on
// the file and does not stop the run; pause and cancel requests are
// honored between files. The report archive is built whenever the run
// reaches a terminal status.
func (o *Orchestrator) ProcessJob(ctx context.Context, jobID int64) error {
	job, err := o.db.GetJob(jobID)
	if err != nil {
		return err
	}
	switch job.Status {
	case database.StatusPaused:
		return nil
	case database.StatusCanceled:
		return o.db.MarkJobFinished(jobID, database.StatusCanceled, "")
	}

	if err := o.db.MarkJobStarted(jobID); err != nil {
		return err
	}
	start := time.Now()
	logging.Info("Job %d started (preset %q)", jobID, job.Preset)

	files, err := o.db.ListJobFiles(jobID)
	if err != nil {
		return err
	}
	total := len(files)
	if err := o.db.SetJobTotals(jobID, total); err != nil {
		return err
	}

	data, err := o.catalog.Load()
	if err != nil {
		o.db.MarkJobFinished(jobID, database.StatusError, "Preset catalog could not be loaded.")
		return err
	}
	list, err := o.catalog.List()
	if err != nil {
		o.db.MarkJobFinished(jobID, database.StatusError, "Preset catalog could not be loaded.")
		return err
	}

	// A job preset that no longer resolves (e.g. a custom preset
	// deleted after submission) fails the whole job up front.
	if job.Preset != "" {
		if p, err := o.catalog.Get(job.Preset); err != nil || p == nil {
			logging.Warn("Job %d: preset %q no longer exists", jobID, job.Preset)
			return o.db.MarkJobFinished(jobID, database.StatusError, "The selected preset no longer exists.")
		}
	}

	// Output names already taken by files processed in an earlier run
	// of this job stay reserved.
	names := naming.NewUniqueSet()
	for _, f := range files {
		for _, out := range f.Outputs {
			names.Ensure(out.Name)
		}
	}

	processed := 0
	failures := 0
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		cur, err := o.db.GetJob(jobID)
		if err != nil {
			return err
		}
		switch cur.Status {
		case database.StatusPaused:
			logging.Info("Job %d paused after %d/%d files", jobID, processed, total)
			return nil
		case database.StatusCanceled:
			logging.Info("Job %d canceled after %d/%d files", jobID, processed, total)
			return o.db.MarkJobFinished(jobID, database.StatusCanceled, "")
		}

		if f.Status != database.FileStatusDone {
			if o.mem != nil && !o.mem.WaitIfPaused() {
				logging.Info("Job %d interrupted by shutdown after %d/%d files", jobID, processed, total)
				return nil
			}
			fileStart := time.Now()
			if err := o.processFile(f, cur, data, list, names); err != nil {
				msg := procerror.Humanize(err, logging.IsDebugEnabled())
				if dbErr := o.db.SetFileError(f.ID, msg); dbErr != nil {
					return dbErr
				}
				failures++
				metrics.FilesProcessed.WithLabelValues("error").Inc()
				logging.Warn("Job %d: file %q failed: %v", jobID, f.OriginalName, err)
			} else {
				metrics.FilesProcessed.WithLabelValues("ok").Inc()
			}
			metrics.FileDuration.Observe(time.Since(fileStart).Seconds())
		}

		processed++
		progress := 100
		if total > 0 {
			progress = processed * 100 / total
		}
		if err := o.db.UpdateJobCounters(jobID, processed, progress); err != nil {
			return err
		}
	}

	status := database.StatusDone
	errMsg := ""
	if failures > 0 {
		status = database.StatusError
		errMsg = fmt.Sprintf("%d of %d files failed", failures, total)
	}
	// A failed archive fails the job; outputs already written stay.
	if err := o.buildArchive(jobID, status); err != nil {
		logging.Warn("Job %d: report archive failed: %v", jobID, err)
		status = database.StatusError
		errMsg = procerror.Humanize(err, logging.IsDebugEnabled())
	}
	if err := o.db.MarkJobFinished(jobID, status, errMsg); err != nil {
		return err
	}
	metrics.JobsCompleted.WithLabelValues(status).Inc()
	metrics.JobDuration.Observe(time.Since(start).Seconds())
	logging.Info("Job %d finished with status %s (%d/%d files, %d failed)", jobID, status, processed, total, failures)
	return nil
}

// processFile takes one file through the whole pipeline and persists
// every intermediate stage, so a crash mid-job leaves inspectable
// state.
func (o *Orchestrator) processFile(f *database.JobFile, job *database.Job, data *presets.Data, list []presets.Preset, names *naming.UniqueSet) error {
	if err := o.db.MarkFileProcessing(f.ID); err != nil {
		return err
	}
	f.Status = database.FileStatusProcessing

	orig, err := o.store.Read(f.OriginalKey)
	if err != nil {
		return procerror.New(procerror.KindOf(err), err)
	}

	_, width, height, err := codec.Probe(orig)
	if err != nil {
		return err
	}
	if o.maxImageMP > 0 && width*height > o.maxImageMP*1_000_000 {
		return procerror.Invalid("The image is too large (%d MP). The maximum allowed is %d MP.",
			(width*height+999_999)/1_000_000, o.maxImageMP)
	}

	img, _, err := codec.Decode(orig)
	if err != nil {
		return err
	}
	meta := imagemeta.Extract(orig)

	analysis := analyzer.Analyze(img, meta)
	f.OriginalWidth = analysis.Width
	f.OriginalHeight = analysis.Height
	f.Orientation = analysis.Orientation
	f.AspectLabel = analysis.AspectLabel
	f.HasTransparency = analysis.HasTransparency
	f.AnalysisType = analysis.Type
	f.MetadataTags = analysis.MetadataTags
	if err := o.db.SaveAnalysis(f); err != nil {
		return err
	}

	jobPreset, err := o.catalog.Get(job.Preset)
	if err != nil {
		return err
	}
	rec := recommend.Build(&analysis, jobPreset, list, &data.Defaults)
	f.RecommendedPresetID = rec.PresetID
	f.RecommendedPresetLabel = rec.PresetLabel
	f.RecommendedFormats = rec.Formats
	f.RecommendedQuality = rec.Quality
	f.RecommendedCropMode = rec.CropMode
	f.RecommendedCropReason = rec.CropReason
	f.RecommendedNotes = rec.Notes
	if err := o.db.SaveRecommendation(f); err != nil {
		return err
	}

	eff, err := resolve.Settings(f, job, o.catalog)
	if err != nil {
		return err
	}
	result, err := render.File(img, meta, f, eff, data, names)
	if err != nil {
		return err
	}

	var outputs []database.OutputInfo
	for i, v := range result.Variants {
		key, err := o.store.Write(storage.PrefixOutputs, v.Name, v.Data)
		if err != nil {
			return procerror.New(procerror.KindOf(err), err)
		}
		outputs = append(outputs, database.OutputInfo{
			Name:   v.Name,
			Format: v.Format,
			Scale:  v.Scale,
			Width:  v.Width,
			Height: v.Height,
			Size:   int64(len(v.Data)),
			Key:    key,
		})
		metrics.VariantsRendered.WithLabelValues(v.Format).Inc()
		if i == result.PrimaryIndex {
			f.OutputName = v.Name
			f.OutputKey = key
			f.OutputSize = int64(len(v.Data))
			f.OutputWidth = v.Width
			f.OutputHeight = v.Height
		}
	}

	f.Outputs = outputs
	f.Status = database.FileStatusDone
	f.Error = ""
	f.AppliedPresetID = eff.PresetID
	f.AppliedPresetLabel = eff.PresetLabel
	f.AppliedFormat = result.PrimaryFormat
	f.AppliedQuality = result.Quality
	f.OutputFormats = eff.OutputFormats
	f.Generate2x = result.Generate2x
	f.GenerateSharpened = result.GenerateSharpened
	f.TransparencyAction = result.Meta.TransparencyAction
	f.ProcessNotes = result.Meta.Note
	if err := o.db.SaveRenderResult(f); err != nil {
		return err
	}

	if saved := f.OriginalSize - f.OutputSize; saved > 0 {
		metrics.BytesSaved.Add(float64(saved))
	}
	logging.Debug("File %q done: %d variant(s), primary %s", f.OriginalName, len(outputs), f.OutputName)
	return nil
}

// buildArchive regenerates the job's report archive from the current
// database state and replaces the previous one.
func (o *Orchestrator) buildArchive(jobID int64, status string) error {
	job, err := o.db.GetJob(jobID)
	if err != nil {
		return err
	}
	files, err := o.db.ListJobFiles(jobID)
	if err != nil {
		return err
	}

	data := o.reportData(job, files, status)
	var buf bytes.Buffer
	if err := report.BuildArchive(&buf, data, files, o.store); err != nil {
		return err
	}

	if job.ZipKey != "" {
		if err := o.store.Delete(job.ZipKey); err != nil {
			logging.Warn("Failed to delete previous archive for job %d: %v", jobID, err)
		}
	}
	name := report.ArchiveName(job.ID, data.GeneratedAt)
	key, err := o.store.Write(storage.PrefixZips, name, buf.Bytes())
	if err != nil {
		return err
	}
	return o.db.SetJobZip(jobID, key, name)
}

// reportData assembles the report input. The archive is written before
// the job row is stamped, so the terminal status is passed in rather
// than read back.
func (o *Orchestrator) reportData(job *database.Job, files []*database.JobFile, status string) *report.Data {
	label := ""
	if p, err := o.catalog.Get(job.Preset); err == nil && p != nil {
		label = p.Label
	}
	data := &report.Data{
		JobID:          job.ID,
		PresetID:       job.Preset,
		PresetLabel:    label,
		GeneratedAt:    time.Now().UTC(),
		Status:         status,
		TotalFiles:     job.TotalFiles,
		ProcessedFiles: job.ProcessedFiles,
		FinishedAt:     job.FinishedAt,
	}
	if data.FinishedAt == nil {
		data.FinishedAt = &data.GeneratedAt
	}
	for _, f := range files {
		data.Rows = append(data.Rows, report.RowFromFile(f))
	}
	return data
}

// ReprocessJob clears all results and queues the job again. It refuses
// while the job is running.
func (o *Orchestrator) ReprocessJob(jobID int64) error {
	job, err := o.db.GetJob(jobID)
	if err != nil {
		return err
	}
	if job.Active() {
		return procerror.Invalid("The job is still running; wait for it to finish.")
	}

	files, err := o.db.ListJobFiles(jobID)
	if err != nil {
		return err
	}
	for _, f := range files {
		o.deleteOutputs(f)
		if err := o.db.ResetFileResults(f.ID); err != nil {
			return err
		}
	}
	if job.ZipKey != "" {
		if err := o.store.Delete(job.ZipKey); err != nil {
			logging.Warn("Failed to delete archive for job %d: %v", jobID, err)
		}
		if err := o.db.SetJobZip(jobID, "", ""); err != nil {
			return err
		}
	}

	ok, err := o.db.RequestStatus(jobID, database.StatusPending,
		database.StatusDone, database.StatusError, database.StatusCanceled, database.StatusPaused)
	if err != nil {
		return err
	}
	if !ok {
		return procerror.Invalid("The job cannot be reprocessed from its current status.")
	}
	logging.Info("Job %d queued for reprocessing", jobID)
	return nil
}

// ReprocessFile re-runs a single file of a settled job with its
// current overrides, then recomputes the job status and rebuilds the
// archive. The processing error, if any, is returned to the caller.
func (o *Orchestrator) ReprocessFile(fileID int64) error {
	f, err := o.db.GetJobFile(fileID)
	if err != nil {
		return err
	}
	job, err := o.db.GetJob(f.JobID)
	if err != nil {
		return err
	}
	if job.Active() {
		return procerror.Invalid("The job is still running; wait for it to finish.")
	}

	siblings, err := o.db.ListJobFiles(job.ID)
	if err != nil {
		return err
	}
	var taken []string
	for _, s := range siblings {
		if s.ID == fileID {
			continue
		}
		for _, out := range s.Outputs {
			taken = append(taken, out.Name)
		}
	}
	names := naming.NewUniqueSet(taken...)

	o.deleteOutputs(f)
	if err := o.db.ResetFileResults(fileID); err != nil {
		return err
	}
	f, err = o.db.GetJobFile(fileID)
	if err != nil {
		return err
	}

	data, err := o.catalog.Load()
	if err != nil {
		return err
	}
	list, err := o.catalog.List()
	if err != nil {
		return err
	}

	procErr := o.processFile(f, job, data, list, names)
	if procErr != nil {
		msg := procerror.Humanize(procErr, logging.IsDebugEnabled())
		if err := o.db.SetFileError(fileID, msg); err != nil {
			return err
		}
		metrics.FilesProcessed.WithLabelValues("error").Inc()
	} else {
		metrics.FilesProcessed.WithLabelValues("ok").Inc()
	}

	if err := o.settleAfterReprocess(job.ID); err != nil {
		return err
	}
	return procErr
}

// settleAfterReprocess recomputes counters, final status and the
// archive from the files as they now stand.
func (o *Orchestrator) settleAfterReprocess(jobID int64) error {
	files, err := o.db.ListJobFiles(jobID)
	if err != nil {
		return err
	}
	failures := 0
	for _, f := range files {
		if f.Status == database.FileStatusError {
			failures++
		}
	}
	if err := o.db.UpdateJobCounters(jobID, len(files), 100); err != nil {
		return err
	}
	status := database.StatusDone
	errMsg := ""
	if failures > 0 {
		status = database.StatusError
		errMsg = fmt.Sprintf("%d of %d files failed", failures, len(files))
	}
	if err := o.buildArchive(jobID, status); err != nil {
		logging.Warn("Job %d: report archive failed: %v", jobID, err)
		status = database.StatusError
		errMsg = procerror.Humanize(err, logging.IsDebugEnabled())
	}
	return o.db.MarkJobFinished(jobID, status, errMsg)
}

// PurgeFile removes one file from a job that is not running: its
// original and output blobs and its row. Settled jobs get their
// counters, status and archive recomputed from the remaining files.
func (o *Orchestrator) PurgeFile(fileID int64) error {
	f, err := o.db.GetJobFile(fileID)
	if err != nil {
		return err
	}
	job, err := o.db.GetJob(f.JobID)
	if err != nil {
		return err
	}
	if job.Status == database.StatusProcessing {
		return procerror.Invalid("The job is still running; wait for it to finish.")
	}

	if f.OriginalKey != "" {
		if err := o.store.Delete(f.OriginalKey); err != nil {
			logging.Warn("Failed to delete original %q: %v", f.OriginalName, err)
		}
	}
	o.deleteOutputs(f)
	if err := o.db.DeleteJobFile(fileID); err != nil {
		return err
	}

	files, err := o.db.ListJobFiles(job.ID)
	if err != nil {
		return err
	}
	if err := o.db.SetJobTotals(job.ID, len(files)); err != nil {
		return err
	}
	if job.Status == database.StatusDone || job.Status == database.StatusError {
		if err := o.settleAfterReprocess(job.ID); err != nil {
			return err
		}
	}
	logging.Info("File %d removed from job %d", fileID, job.ID)
	return nil
}

// PurgeJob deletes the job's blobs and its rows.
func (o *Orchestrator) PurgeJob(jobID int64) error {
	job, err := o.db.GetJob(jobID)
	if err != nil {
		return err
	}
	if job.Active() {
		return procerror.Invalid("The job is still running; cancel it first.")
	}
	files, err := o.db.ListJobFiles(jobID)
	if err != nil {
		return err
	}
	for _, f := range files {
		if f.OriginalKey != "" {
			if err := o.store.Delete(f.OriginalKey); err != nil {
				logging.Warn("Failed to delete original %q: %v", f.OriginalName, err)
			}
		}
		o.deleteOutputs(f)
	}
	if job.ZipKey != "" {
		if err := o.store.Delete(job.ZipKey); err != nil {
			logging.Warn("Failed to delete archive for job %d: %v", jobID, err)
		}
	}
	return o.db.DeleteJob(jobID)
}

func (o *Orchestrator) deleteOutputs(f *database.JobFile) {
	for _, out := range f.Outputs {
		if out.Key == "" {
			continue
		}
		if err := o.store.Delete(out.Key); err != nil {
			logging.Warn("Failed to delete output %q: %v", out.Name, err)
		}
	}
}
