package handlers

import (
	"image-optimizer/internal/database"
	"image-optimizer/internal/orchestrator"
	"image-optimizer/internal/presets"
	"image-optimizer/internal/startup"
	"image-optimizer/internal/storage"
)

type Handlers struct {
	db      *database.DB
	store   storage.BlobStore
	catalog *presets.Catalog
	orch    *orchestrator.Orchestrator

	maxFileBytes int64
	maxJobBytes  int64
}

func New(db *database.DB, store storage.BlobStore, catalog *presets.Catalog, orch *orchestrator.Orchestrator, config *startup.Config) *Handlers {
	return &Handlers{
		db:           db,
		store:        store,
		catalog:      catalog,
		orch:         orch,
		maxFileBytes: config.MaxFileBytes(),
		maxJobBytes:  config.MaxJobBytes(),
	}
}
