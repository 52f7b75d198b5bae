package orchestrator

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"image-optimizer/internal/database"
	"image-optimizer/internal/presets"
	"image-optimizer/internal/storage"
)

const testCatalog = `{
  "version": 1,
  "naming": {
    "pattern": "{name-normalized}.{ext}",
    "normalize": {
      "lowercase": true,
      "removeAccents": true,
      "replaceSpacesWith": "-",
      "collapseDashes": true
    }
  },
  "defaults": {
    "output": { "recommendedFormat": "jpg" },
    "quality": {
      "photo": { "webp": 80, "jpg": 82 },
      "ui": { "webp": 90, "png": 0 }
    },
    "crop": { "mode": "cover" },
    "resize": {
      "noUpscale": true,
      "density": { "scaleFactor": 1.33 }
    }
  },
  "presets": [
    {
      "id": "thumb-100",
      "label": "Thumbnail 100x100",
      "width": 100,
      "height": 100,
      "aspect": "1:1",
      "typeHint": "photo",
      "recommendedFormat": "jpg"
    }
  ]
}`

func newTestOrchestrator(t *testing.T) (*Orchestrator, *database.DB, storage.BlobStore) {
	t.Helper()
	dir := t.TempDir()

	db, err := database.New(dir)
	if err != nil {
		t.Fatalf("database.New failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store, err := storage.NewDiskStore(filepath.Join(dir, "blobs"))
	if err != nil {
		t.Fatalf("NewDiskStore failed: %v", err)
	}

	catalogPath := filepath.Join(dir, "presets.json")
	if err := os.WriteFile(catalogPath, []byte(testCatalog), 0o644); err != nil {
		t.Fatalf("write catalog: %v", err)
	}
	catalog := presets.NewCatalog(catalogPath, db)

	return New(db, store, catalog, 100), db, store
}

func encodeJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 7), G: uint8(y * 5), B: 120, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("jpeg.Encode failed: %v", err)
	}
	return buf.Bytes()
}

func addFile(t *testing.T, db *database.DB, store storage.BlobStore, jobID int64, name string, data []byte) *database.JobFile {
	t.Helper()
	key, err := store.Write(storage.PrefixOriginals, name, data)
	if err != nil {
		t.Fatalf("store.Write failed: %v", err)
	}
	f, err := db.CreateJobFile(jobID, name, key, int64(len(data)), false, true)
	if err != nil {
		t.Fatalf("CreateJobFile failed: %v", err)
	}
	return f
}

func TestProcessJobCompletes(t *testing.T) {
	orch, db, store := newTestOrchestrator(t)

	job, err := db.CreateJob("thumb-100")
	if err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}
	addFile(t, db, store, job.ID, "Playa Verano.jpg", encodeJPEG(t, 400, 300))
	addFile(t, db, store, job.ID, "retrato.jpg", encodeJPEG(t, 300, 400))

	if err := orch.ProcessJob(context.Background(), job.ID); err != nil {
		t.Fatalf("ProcessJob failed: %v", err)
	}

	got, err := db.GetJob(job.ID)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if got.Status != database.StatusDone {
		t.Fatalf("status = %q (error %q), want DONE", got.Status, got.Error)
	}
	if got.Progress != 100 || got.ProcessedFiles != 2 || got.TotalFiles != 2 {
		t.Errorf("counters = progress %d, processed %d, total %d", got.Progress, got.ProcessedFiles, got.TotalFiles)
	}
	if got.StartedAt == nil || got.FinishedAt == nil {
		t.Error("expected start and finish timestamps")
	}
	if got.ZipKey == "" || !strings.HasSuffix(got.ZipName, ".zip") {
		t.Errorf("archive = key %q, name %q", got.ZipKey, got.ZipName)
	}
	if !store.Exists(got.ZipKey) {
		t.Error("archive blob missing")
	}

	files, err := db.ListJobFiles(job.ID)
	if err != nil {
		t.Fatalf("ListJobFiles failed: %v", err)
	}
	for _, f := range files {
		if f.Status != database.FileStatusDone {
			t.Errorf("file %q status = %q", f.OriginalName, f.Status)
		}
		if f.OutputName == "" || f.OutputKey == "" {
			t.Errorf("file %q has no primary output", f.OriginalName)
		}
		if !store.Exists(f.OutputKey) {
			t.Errorf("file %q output blob missing", f.OriginalName)
		}
		if f.OutputWidth != 100 || f.OutputHeight != 100 {
			t.Errorf("file %q dims = %dx%d, want 100x100", f.OriginalName, f.OutputWidth, f.OutputHeight)
		}
	}
	if files[0].OutputName != "playa-verano.webp" {
		t.Errorf("output name = %q, want playa-verano.webp", files[0].OutputName)
	}
}

func TestProcessJobFileFailureIsolated(t *testing.T) {
	orch, db, store := newTestOrchestrator(t)

	job, err := db.CreateJob("thumb-100")
	if err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}
	addFile(t, db, store, job.ID, "roto.jpg", []byte("this is not an image"))
	addFile(t, db, store, job.ID, "bueno.jpg", encodeJPEG(t, 200, 200))

	if err := orch.ProcessJob(context.Background(), job.ID); err != nil {
		t.Fatalf("ProcessJob failed: %v", err)
	}

	got, err := db.GetJob(job.ID)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if got.Status != database.StatusError {
		t.Fatalf("status = %q, want ERROR", got.Status)
	}
	if got.Error != "1 of 2 files failed" {
		t.Errorf("error = %q", got.Error)
	}
	if got.Progress != 100 || got.ProcessedFiles != 2 {
		t.Errorf("counters = progress %d, processed %d", got.Progress, got.ProcessedFiles)
	}
	if got.ZipKey == "" {
		t.Error("archive should be built even when files fail")
	}

	files, err := db.ListJobFiles(job.ID)
	if err != nil {
		t.Fatalf("ListJobFiles failed: %v", err)
	}
	if files[0].Status != database.FileStatusError || files[0].Error == "" {
		t.Errorf("broken file = status %q, error %q", files[0].Status, files[0].Error)
	}
	if files[1].Status != database.FileStatusDone {
		t.Errorf("good file status = %q", files[1].Status)
	}
}

func TestProcessJobHonorsCancel(t *testing.T) {
	orch, db, store := newTestOrchestrator(t)

	job, err := db.CreateJob("thumb-100")
	if err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}
	addFile(t, db, store, job.ID, "foto.jpg", encodeJPEG(t, 200, 200))

	if _, err := db.RequestStatus(job.ID, database.StatusCanceled, database.StatusPending); err != nil {
		t.Fatalf("RequestStatus failed: %v", err)
	}
	if err := orch.ProcessJob(context.Background(), job.ID); err != nil {
		t.Fatalf("ProcessJob failed: %v", err)
	}

	got, err := db.GetJob(job.ID)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if got.Status != database.StatusCanceled {
		t.Errorf("status = %q, want CANCELED", got.Status)
	}
	if got.FinishedAt == nil {
		t.Error("canceled job should carry finished_at")
	}

	files, err := db.ListJobFiles(job.ID)
	if err != nil {
		t.Fatalf("ListJobFiles failed: %v", err)
	}
	if files[0].Status != database.FileStatusPending {
		t.Errorf("file status = %q, want PENDING", files[0].Status)
	}
}

func TestProcessJobSkipsPaused(t *testing.T) {
	orch, db, store := newTestOrchestrator(t)

	job, err := db.CreateJob("thumb-100")
	if err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}
	addFile(t, db, store, job.ID, "foto.jpg", encodeJPEG(t, 200, 200))

	if _, err := db.RequestStatus(job.ID, database.StatusPaused, database.StatusPending); err != nil {
		t.Fatalf("RequestStatus failed: %v", err)
	}
	if err := orch.ProcessJob(context.Background(), job.ID); err != nil {
		t.Fatalf("ProcessJob failed: %v", err)
	}

	got, err := db.GetJob(job.ID)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if got.Status != database.StatusPaused {
		t.Errorf("status = %q, want PAUSED", got.Status)
	}
}

func TestReprocessJobResetsEverything(t *testing.T) {
	orch, db, store := newTestOrchestrator(t)

	job, err := db.CreateJob("thumb-100")
	if err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}
	addFile(t, db, store, job.ID, "foto.jpg", encodeJPEG(t, 200, 200))
	if err := orch.ProcessJob(context.Background(), job.ID); err != nil {
		t.Fatalf("ProcessJob failed: %v", err)
	}

	done, err := db.GetJob(job.ID)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	oldZip := done.ZipKey

	if err := orch.ReprocessJob(job.ID); err != nil {
		t.Fatalf("ReprocessJob failed: %v", err)
	}

	got, err := db.GetJob(job.ID)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if got.Status != database.StatusPending {
		t.Errorf("status = %q, want PENDING", got.Status)
	}
	if got.ZipKey != "" {
		t.Errorf("zip key = %q, want empty", got.ZipKey)
	}
	if store.Exists(oldZip) {
		t.Error("old archive blob should be gone")
	}

	files, err := db.ListJobFiles(job.ID)
	if err != nil {
		t.Fatalf("ListJobFiles failed: %v", err)
	}
	if files[0].Status != database.FileStatusPending || files[0].OutputKey != "" {
		t.Errorf("file not reset: %+v", files[0])
	}
}

func TestReprocessJobRefusesWhileRunning(t *testing.T) {
	orch, db, _ := newTestOrchestrator(t)

	job, err := db.CreateJob("thumb-100")
	if err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}
	if _, err := db.RequestStatus(job.ID, database.StatusProcessing, database.StatusPending); err != nil {
		t.Fatalf("RequestStatus failed: %v", err)
	}
	if err := orch.ReprocessJob(job.ID); err == nil {
		t.Fatal("expected an error for a running job")
	}
}

func TestReprocessFile(t *testing.T) {
	orch, db, store := newTestOrchestrator(t)

	job, err := db.CreateJob("thumb-100")
	if err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}
	f1 := addFile(t, db, store, job.ID, "uno.jpg", encodeJPEG(t, 200, 200))
	addFile(t, db, store, job.ID, "dos.jpg", encodeJPEG(t, 200, 200))
	if err := orch.ProcessJob(context.Background(), job.ID); err != nil {
		t.Fatalf("ProcessJob failed: %v", err)
	}

	before, err := db.GetJobFile(f1.ID)
	if err != nil {
		t.Fatalf("GetJobFile failed: %v", err)
	}
	oldKey := before.OutputKey

	if err := orch.ReprocessFile(f1.ID); err != nil {
		t.Fatalf("ReprocessFile failed: %v", err)
	}

	after, err := db.GetJobFile(f1.ID)
	if err != nil {
		t.Fatalf("GetJobFile failed: %v", err)
	}
	if after.Status != database.FileStatusDone {
		t.Errorf("file status = %q (error %q)", after.Status, after.Error)
	}
	if after.OutputName != "uno.webp" {
		t.Errorf("output name = %q, want uno.webp", after.OutputName)
	}
	if after.OutputKey == oldKey {
		t.Error("expected a fresh output blob")
	}
	if store.Exists(oldKey) {
		t.Error("old output blob should be gone")
	}

	gotJob, err := db.GetJob(job.ID)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if gotJob.Status != database.StatusDone || gotJob.Progress != 100 {
		t.Errorf("job = status %q, progress %d", gotJob.Status, gotJob.Progress)
	}
	if gotJob.ZipKey == "" {
		t.Error("archive should be rebuilt")
	}
}

func TestProcessJobRejectsOversizedImage(t *testing.T) {
	orch, db, store := newTestOrchestrator(t)
	orch.maxImageMP = 1

	job, err := db.CreateJob("thumb-100")
	if err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}
	addFile(t, db, store, job.ID, "enorme.jpg", encodeJPEG(t, 1200, 1200))

	if err := orch.ProcessJob(context.Background(), job.ID); err != nil {
		t.Fatalf("ProcessJob failed: %v", err)
	}

	files, err := db.ListJobFiles(job.ID)
	if err != nil {
		t.Fatalf("ListJobFiles failed: %v", err)
	}
	if files[0].Status != database.FileStatusError {
		t.Fatalf("file status = %q, want ERROR", files[0].Status)
	}
	if !strings.Contains(files[0].Error, "too large") {
		t.Errorf("error = %q", files[0].Error)
	}
}

func TestPurgeJob(t *testing.T) {
	orch, db, store := newTestOrchestrator(t)

	job, err := db.CreateJob("thumb-100")
	if err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}
	f := addFile(t, db, store, job.ID, "foto.jpg", encodeJPEG(t, 200, 200))
	if err := orch.ProcessJob(context.Background(), job.ID); err != nil {
		t.Fatalf("ProcessJob failed: %v", err)
	}

	done, err := db.GetJobFile(f.ID)
	if err != nil {
		t.Fatalf("GetJobFile failed: %v", err)
	}
	gotJob, err := db.GetJob(job.ID)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}

	if err := orch.PurgeJob(job.ID); err != nil {
		t.Fatalf("PurgeJob failed: %v", err)
	}
	if _, err := db.GetJob(job.ID); err != database.ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	for _, key := range []string{done.OriginalKey, done.OutputKey, gotJob.ZipKey} {
		if key != "" && store.Exists(key) {
			t.Errorf("blob %q should be gone", key)
		}
	}
}

func TestPurgeFileFromSettledJob(t *testing.T) {
	orch, db, store := newTestOrchestrator(t)

	job, err := db.CreateJob("thumb-100")
	if err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}
	keep := addFile(t, db, store, job.ID, "keep.jpg", encodeJPEG(t, 400, 300))
	drop := addFile(t, db, store, job.ID, "drop.jpg", encodeJPEG(t, 300, 400))

	if err := orch.ProcessJob(context.Background(), job.ID); err != nil {
		t.Fatalf("ProcessJob failed: %v", err)
	}
	dropped, err := db.GetJobFile(drop.ID)
	if err != nil {
		t.Fatalf("GetJobFile failed: %v", err)
	}

	if err := orch.PurgeFile(drop.ID); err != nil {
		t.Fatalf("PurgeFile failed: %v", err)
	}

	if _, err := db.GetJobFile(drop.ID); err == nil {
		t.Error("expected the file row to be gone")
	}
	if store.Exists(dropped.OriginalKey) {
		t.Error("original blob should be deleted")
	}
	for _, out := range dropped.Outputs {
		if store.Exists(out.Key) {
			t.Errorf("output blob %q should be deleted", out.Name)
		}
	}

	got, err := db.GetJob(job.ID)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if got.TotalFiles != 1 || got.ProcessedFiles != 1 {
		t.Errorf("counters = total %d, processed %d, want 1/1", got.TotalFiles, got.ProcessedFiles)
	}
	if got.Status != database.StatusDone {
		t.Errorf("status = %q, want DONE", got.Status)
	}
	if got.ZipKey == "" || !store.Exists(got.ZipKey) {
		t.Error("archive should be rebuilt from the remaining files")
	}

	remaining, err := db.ListJobFiles(job.ID)
	if err != nil {
		t.Fatalf("ListJobFiles failed: %v", err)
	}
	if len(remaining) != 1 || remaining[0].ID != keep.ID {
		t.Fatalf("remaining files = %d", len(remaining))
	}
}

func TestPurgeFileRefusesWhileRunning(t *testing.T) {
	orch, db, store := newTestOrchestrator(t)

	job, err := db.CreateJob("thumb-100")
	if err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}
	f := addFile(t, db, store, job.ID, "busy.jpg", encodeJPEG(t, 200, 200))

	if err := db.UpdateJobStatus(job.ID, database.StatusProcessing, ""); err != nil {
		t.Fatalf("UpdateJobStatus failed: %v", err)
	}
	if err := orch.PurgeFile(f.ID); err == nil {
		t.Fatal("expected PurgeFile to refuse a running job")
	}
	if _, err := db.GetJobFile(f.ID); err != nil {
		t.Errorf("file should still exist: %v", err)
	}
}

// zipRefusingStore simulates an output folder the server cannot write
// report archives into.
type zipRefusingStore struct {
	storage.BlobStore
}

func (s zipRefusingStore) Write(prefix, name string, data []byte) (string, error) {
	if prefix == storage.PrefixZips {
		return "", os.ErrPermission
	}
	return s.BlobStore.Write(prefix, name, data)
}

func TestProcessJobArchiveFailureFailsJob(t *testing.T) {
	orch, db, store := newTestOrchestrator(t)
	orch.store = zipRefusingStore{store}

	job, err := db.CreateJob("thumb-100")
	if err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}
	addFile(t, db, store, job.ID, "foto.jpg", encodeJPEG(t, 200, 200))

	if err := orch.ProcessJob(context.Background(), job.ID); err != nil {
		t.Fatalf("ProcessJob failed: %v", err)
	}

	got, err := db.GetJob(job.ID)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if got.Status != database.StatusError {
		t.Fatalf("status = %q, want ERROR when the archive cannot be written", got.Status)
	}
	if got.Error != "Insufficient permissions on the server output folder." {
		t.Errorf("error = %q", got.Error)
	}
	if got.ZipKey != "" {
		t.Errorf("zip key = %q, want empty", got.ZipKey)
	}

	// Outputs already written stay available.
	files, err := db.ListJobFiles(job.ID)
	if err != nil {
		t.Fatalf("ListJobFiles failed: %v", err)
	}
	if files[0].Status != database.FileStatusDone {
		t.Errorf("file status = %q, want DONE", files[0].Status)
	}
	if files[0].OutputKey == "" || !store.Exists(files[0].OutputKey) {
		t.Error("rendered output should survive the archive failure")
	}
}

func TestProcessJobFailsWhenPresetVanished(t *testing.T) {
	orch, db, store := newTestOrchestrator(t)

	job, err := db.CreateJob("retired-preset")
	if err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}
	addFile(t, db, store, job.ID, "foto.jpg", encodeJPEG(t, 200, 200))

	if err := orch.ProcessJob(context.Background(), job.ID); err != nil {
		t.Fatalf("ProcessJob failed: %v", err)
	}

	got, err := db.GetJob(job.ID)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if got.Status != database.StatusError {
		t.Fatalf("status = %q, want ERROR", got.Status)
	}
	if got.Error != "The selected preset no longer exists." {
		t.Errorf("error = %q", got.Error)
	}

	files, err := db.ListJobFiles(job.ID)
	if err != nil {
		t.Fatalf("ListJobFiles failed: %v", err)
	}
	if files[0].Status != database.FileStatusPending {
		t.Errorf("file status = %q, want PENDING", files[0].Status)
	}
}
