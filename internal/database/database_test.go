package database

import (
	"sync"
	"testing"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestJobLifecycle(t *testing.T) {
	db := newTestDB(t)

	job, err := db.CreateJob("hero-1920")
	if err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}
	if job.Status != StatusPending || job.Preset != "hero-1920" {
		t.Fatalf("unexpected job: %+v", job)
	}

	if err := db.UpdateJobProgress(job.ID, 40); err != nil {
		t.Fatalf("UpdateJobProgress failed: %v", err)
	}
	if err := db.UpdateJobStatus(job.ID, StatusDone, ""); err != nil {
		t.Fatalf("UpdateJobStatus failed: %v", err)
	}

	got, err := db.GetJob(job.ID)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if got.Status != StatusDone || got.Progress != 40 {
		t.Errorf("job = %+v", got)
	}
}

func TestJobRunBookkeeping(t *testing.T) {
	db := newTestDB(t)

	job, err := db.CreateJob("thumb-400")
	if err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}
	if err := db.SetJobTotals(job.ID, 3); err != nil {
		t.Fatalf("SetJobTotals failed: %v", err)
	}
	if err := db.MarkJobStarted(job.ID); err != nil {
		t.Fatalf("MarkJobStarted failed: %v", err)
	}
	if err := db.UpdateJobCounters(job.ID, 2, 66); err != nil {
		t.Fatalf("UpdateJobCounters failed: %v", err)
	}
	if err := db.MarkJobFinished(job.ID, StatusDone, ""); err != nil {
		t.Fatalf("MarkJobFinished failed: %v", err)
	}

	got, err := db.GetJob(job.ID)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if got.TotalFiles != 3 || got.ProcessedFiles != 2 || got.Progress != 66 {
		t.Errorf("counters = %+v", got)
	}
	if got.StartedAt == nil || got.FinishedAt == nil {
		t.Errorf("expected timestamps, got started=%v finished=%v", got.StartedAt, got.FinishedAt)
	}
	if got.Status != StatusDone {
		t.Errorf("status = %q", got.Status)
	}
}

func TestGetJobNotFound(t *testing.T) {
	db := newTestDB(t)
	if _, err := db.GetJob(9999); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestClaimPendingOrderAndExclusivity(t *testing.T) {
	db := newTestDB(t)

	var ids []int64
	for i := 0; i < 5; i++ {
		job, err := db.CreateJob("")
		if err != nil {
			t.Fatalf("CreateJob failed: %v", err)
		}
		ids = append(ids, job.ID)
	}

	claimed, err := db.ClaimPending(2)
	if err != nil {
		t.Fatalf("ClaimPending failed: %v", err)
	}
	if len(claimed) != 2 {
		t.Fatalf("claimed %d jobs, want 2", len(claimed))
	}
	// oldest first
	if claimed[0].ID != ids[0] || claimed[1].ID != ids[1] {
		t.Errorf("claimed %d, %d; want %d, %d", claimed[0].ID, claimed[1].ID, ids[0], ids[1])
	}
	for _, job := range claimed {
		if job.Status != StatusProcessing {
			t.Errorf("job %d status = %s", job.ID, job.Status)
		}
	}

	// a second claim never returns the same jobs
	again, err := db.ClaimPending(10)
	if err != nil {
		t.Fatalf("second ClaimPending failed: %v", err)
	}
	for _, job := range again {
		if job.ID == ids[0] || job.ID == ids[1] {
			t.Errorf("job %d claimed twice", job.ID)
		}
	}
	if len(again) != 3 {
		t.Errorf("second claim got %d jobs, want 3", len(again))
	}
}

func TestClaimPendingConcurrent(t *testing.T) {
	db := newTestDB(t)
	for i := 0; i < 10; i++ {
		if _, err := db.CreateJob(""); err != nil {
			t.Fatalf("CreateJob failed: %v", err)
		}
	}

	var mu sync.Mutex
	seen := make(map[int64]int)
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				claimed, err := db.ClaimPending(2)
				if err != nil {
					t.Errorf("ClaimPending failed: %v", err)
					return
				}
				if len(claimed) == 0 {
					return
				}
				mu.Lock()
				for _, job := range claimed {
					seen[job.ID]++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != 10 {
		t.Fatalf("claimed %d distinct jobs, want 10", len(seen))
	}
	for id, count := range seen {
		if count != 1 {
			t.Errorf("job %d claimed %d times", id, count)
		}
	}
}

func TestRequestStatusTransitions(t *testing.T) {
	db := newTestDB(t)
	job, err := db.CreateJob("")
	if err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}

	ok, err := db.RequestStatus(job.ID, StatusPaused, StatusPending, StatusProcessing)
	if err != nil || !ok {
		t.Fatalf("pause transition = (%v, %v)", ok, err)
	}

	// pausing a paused job is a no-op
	ok, err = db.RequestStatus(job.ID, StatusPaused, StatusPending, StatusProcessing)
	if err != nil {
		t.Fatalf("RequestStatus failed: %v", err)
	}
	if ok {
		t.Error("expected no transition from PAUSED")
	}

	ok, err = db.RequestStatus(job.ID, StatusPending, StatusPaused)
	if err != nil || !ok {
		t.Fatalf("resume transition = (%v, %v)", ok, err)
	}
}

func TestJobFileRoundTrip(t *testing.T) {
	db := newTestDB(t)
	job, err := db.CreateJob("")
	if err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}

	file, err := db.CreateJobFile(job.ID, "Foto Ñandú.jpg", "originals/abc.jpg", 12345, false, true)
	if err != nil {
		t.Fatalf("CreateJobFile failed: %v", err)
	}
	if !file.KeepTransparency {
		t.Error("KeepTransparency should default true")
	}

	file.OriginalWidth = 2000
	file.OriginalHeight = 1000
	file.Orientation = "HORIZONTAL"
	file.AspectLabel = "16:9"
	file.HasTransparency = true
	file.AnalysisType = "photo"
	file.MetadataTags = []string{"exif", "icc"}
	if err := db.SaveAnalysis(file); err != nil {
		t.Fatalf("SaveAnalysis failed: %v", err)
	}

	file.RecommendedPresetID = "hero-1920"
	file.RecommendedFormats = []string{"avif", "webp"}
	file.RecommendedQuality = map[string]int{"webp": 80}
	if err := db.SaveRecommendation(file); err != nil {
		t.Fatalf("SaveRecommendation failed: %v", err)
	}

	truth := true
	file.SelectedPresetID = "thumb-400"
	file.OutputFormats = []string{"webp", "png"}
	file.QualityWebP = 75
	file.NormalizeLowercase = &truth
	if err := db.SaveOverrides(file); err != nil {
		t.Fatalf("SaveOverrides failed: %v", err)
	}

	got, err := db.GetJobFile(file.ID)
	if err != nil {
		t.Fatalf("GetJobFile failed: %v", err)
	}
	if got.OriginalWidth != 2000 || !got.HasTransparency {
		t.Errorf("analysis lost: %+v", got)
	}
	if len(got.MetadataTags) != 2 || got.MetadataTags[0] != "exif" {
		t.Errorf("MetadataTags = %v", got.MetadataTags)
	}
	if len(got.RecommendedFormats) != 2 || got.RecommendedQuality["webp"] != 80 {
		t.Errorf("recommendation lost: %+v", got)
	}
	if got.SelectedPresetID != "thumb-400" || got.QualityWebP != 75 {
		t.Errorf("overrides lost: %+v", got)
	}
	if got.NormalizeLowercase == nil || !*got.NormalizeLowercase {
		t.Error("NormalizeLowercase pointer lost")
	}
	if got.NormalizeRemoveAccents != nil {
		t.Error("unset normalize override should stay nil")
	}
}

func TestFileStatusTransitions(t *testing.T) {
	db := newTestDB(t)
	job, err := db.CreateJob("")
	if err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}
	file, err := db.CreateJobFile(job.ID, "foto.jpg", "originals/abc.jpg", 100, false, true)
	if err != nil {
		t.Fatalf("CreateJobFile failed: %v", err)
	}
	if file.Status != FileStatusPending {
		t.Fatalf("initial status = %q, want PENDING", file.Status)
	}

	if err := db.MarkFileProcessing(file.ID); err != nil {
		t.Fatalf("MarkFileProcessing failed: %v", err)
	}
	got, err := db.GetJobFile(file.ID)
	if err != nil {
		t.Fatalf("GetJobFile failed: %v", err)
	}
	if got.Status != FileStatusProcessing {
		t.Errorf("status = %q, want PROCESSING", got.Status)
	}

	if err := db.SetFileError(file.ID, "boom"); err != nil {
		t.Fatalf("SetFileError failed: %v", err)
	}
	got, err = db.GetJobFile(file.ID)
	if err != nil {
		t.Fatalf("GetJobFile failed: %v", err)
	}
	if got.Status != FileStatusError || got.Error != "boom" {
		t.Errorf("file = status %q, error %q", got.Status, got.Error)
	}

	if err := db.MarkFileProcessing(999); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func TestSaveOverridesExclusivity(t *testing.T) {
	db := newTestDB(t)
	job, _ := db.CreateJob("")
	file, err := db.CreateJobFile(job.ID, "a.png", "originals/a.png", 1, false, true)
	if err != nil {
		t.Fatalf("CreateJobFile failed: %v", err)
	}

	file.Generate2x = true
	file.GenerateSharpened = true
	if err := db.SaveOverrides(file); err != nil {
		t.Fatalf("SaveOverrides failed: %v", err)
	}
	got, err := db.GetJobFile(file.ID)
	if err != nil {
		t.Fatalf("GetJobFile failed: %v", err)
	}
	if !got.Generate2x || got.GenerateSharpened {
		t.Errorf("exclusivity not applied: 2x=%v sharpened=%v", got.Generate2x, got.GenerateSharpened)
	}
}

func TestRenderResultAndOutputs(t *testing.T) {
	db := newTestDB(t)
	job, _ := db.CreateJob("")
	file, err := db.CreateJobFile(job.ID, "b.jpg", "originals/b.jpg", 100, false, true)
	if err != nil {
		t.Fatalf("CreateJobFile failed: %v", err)
	}

	file.Status = FileStatusDone
	file.AppliedFormat = "webp"
	file.AppliedQuality = 80
	file.OutputName = "b.webp"
	file.OutputKey = "outputs/xyz.webp"
	file.OutputSize = 50
	file.OutputWidth = 400
	file.OutputHeight = 300
	file.Outputs = []OutputInfo{
		{Name: "b.webp", Format: "webp", Scale: "1x", Width: 400, Height: 300, Size: 50, Key: "outputs/xyz.webp"},
		{Name: "b__2x.webp", Format: "webp", Scale: "2x", Width: 800, Height: 600, Size: 150, Key: "outputs/xyz2.webp"},
	}
	if err := db.SaveRenderResult(file); err != nil {
		t.Fatalf("SaveRenderResult failed: %v", err)
	}

	got, err := db.GetJobFile(file.ID)
	if err != nil {
		t.Fatalf("GetJobFile failed: %v", err)
	}
	if got.Status != FileStatusDone || len(got.Outputs) != 2 {
		t.Fatalf("render result lost: %+v", got)
	}
	if got.Outputs[1].Scale != "2x" || got.Outputs[1].Key != "outputs/xyz2.webp" {
		t.Errorf("outputs = %+v", got.Outputs)
	}

	if err := db.ResetFileResults(file.ID); err != nil {
		t.Fatalf("ResetFileResults failed: %v", err)
	}
	got, _ = db.GetJobFile(file.ID)
	if got.Status != FileStatusPending || got.OutputName != "" || len(got.Outputs) != 0 {
		t.Errorf("reset incomplete: %+v", got)
	}
}

func TestDeleteJobCascades(t *testing.T) {
	db := newTestDB(t)
	job, _ := db.CreateJob("")
	file, err := db.CreateJobFile(job.ID, "c.png", "originals/c.png", 1, false, true)
	if err != nil {
		t.Fatalf("CreateJobFile failed: %v", err)
	}

	if err := db.DeleteJob(job.ID); err != nil {
		t.Fatalf("DeleteJob failed: %v", err)
	}
	if _, err := db.GetJobFile(file.ID); err != ErrNotFound {
		t.Errorf("expected cascade delete, got %v", err)
	}
}

func TestSettings(t *testing.T) {
	db := newTestDB(t)
	s, err := db.GetSettings()
	if err != nil {
		t.Fatalf("GetSettings failed: %v", err)
	}
	if s.WorkerConcurrency != 2 {
		t.Errorf("default concurrency = %d, want 2", s.WorkerConcurrency)
	}
	if s.DefaultKeepMetadata || !s.DefaultKeepTransparency {
		t.Errorf("default policy = metadata %v, transparency %v", s.DefaultKeepMetadata, s.DefaultKeepTransparency)
	}

	s, err = db.UpdateSettings(4, true, false)
	if err != nil {
		t.Fatalf("UpdateSettings failed: %v", err)
	}
	if s.WorkerConcurrency != 4 || !s.DefaultKeepMetadata || s.DefaultKeepTransparency {
		t.Errorf("after update = concurrency %d, metadata %v, transparency %v", s.WorkerConcurrency, s.DefaultKeepMetadata, s.DefaultKeepTransparency)
	}

	s, err = db.UpdateConcurrency(50)
	if err != nil {
		t.Fatalf("UpdateConcurrency failed: %v", err)
	}
	if s.WorkerConcurrency != 50 {
		t.Errorf("stored concurrency = %d, want raw 50", s.WorkerConcurrency)
	}
	if !s.DefaultKeepMetadata {
		t.Error("UpdateConcurrency should leave the policy flags alone")
	}
	if s.ClampConcurrency() != 10 {
		t.Errorf("clamped = %d, want 10", s.ClampConcurrency())
	}

	s.WorkerConcurrency = 0
	if s.ClampConcurrency() != 1 {
		t.Errorf("clamped zero = %d, want 1", s.ClampConcurrency())
	}
}

func TestCustomPresets(t *testing.T) {
	db := newTestDB(t)

	preset := &CustomPreset{ID: "ig-reel-1080", Label: "Reel", Width: 1080, Height: 1920}
	if err := db.CreateCustomPreset(preset); err != nil {
		t.Fatalf("CreateCustomPreset failed: %v", err)
	}
	if preset.Category != "social" {
		t.Errorf("inferred category = %q, want social", preset.Category)
	}

	got, err := db.GetCustomPreset("ig-reel-1080")
	if err != nil {
		t.Fatalf("GetCustomPreset failed: %v", err)
	}
	if got == nil || got.Height != 1920 || got.Source != "custom" {
		t.Fatalf("preset = %+v", got)
	}

	missing, err := db.GetCustomPreset("nope")
	if err != nil || missing != nil {
		t.Fatalf("missing lookup = (%+v, %v)", missing, err)
	}

	list, err := db.ListCustomPresets()
	if err != nil || len(list) != 1 {
		t.Fatalf("ListCustomPresets = (%d, %v)", len(list), err)
	}

	if err := db.DeleteCustomPreset("ig-reel-1080"); err != nil {
		t.Fatalf("DeleteCustomPreset failed: %v", err)
	}
	if err := db.DeleteCustomPreset("ig-reel-1080"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if err := db.CreateCustomPreset(&CustomPreset{ID: "", Label: "x", Width: 1, Height: 1}); err == nil {
		t.Error("expected validation error for empty id")
	}
}

func TestCountJobsByStatus(t *testing.T) {
	db := newTestDB(t)
	for i := 0; i < 3; i++ {
		if _, err := db.CreateJob(""); err != nil {
			t.Fatalf("CreateJob failed: %v", err)
		}
	}
	if _, err := db.ClaimPending(1); err != nil {
		t.Fatalf("ClaimPending failed: %v", err)
	}

	counts, err := db.CountJobsByStatus()
	if err != nil {
		t.Fatalf("CountJobsByStatus failed: %v", err)
	}
	if counts[StatusPending] != 2 || counts[StatusProcessing] != 1 {
		t.Errorf("counts = %v", counts)
	}
}
