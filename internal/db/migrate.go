package db

func (h *Handle) Migrate() error {
	return h.DB.AutoMigrate(&SyncRun{})
}
