package cml

import (
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// debugSaver mirrors outgoing non-image payloads to a per-session
// directory. Purely diagnostic: any failure is logged and swallowed so the
// upload path never depends on the sink.
type debugSaver struct {
	log zerolog.Logger
	dir string
}

func newDebugSaver(log zerolog.Logger, basePath string) *debugSaver {
	if basePath == "" {
		return &debugSaver{log: log}
	}
	dir := filepath.Join(basePath, uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Warn().Err(err).Str("dir", dir).Msg("debug dir create failed")
		return &debugSaver{log: log}
	}
	log.Info().Str("dir", dir).Msg("upload debug dir created")
	return &debugSaver{log: log, dir: dir}
}

func (d *debugSaver) Save(filename string, data []byte) {
	if d.dir == "" {
		return
	}
	name := time.Now().UTC().Format("20060102_150405") + "_" + filename
	if err := os.WriteFile(filepath.Join(d.dir, name), data, 0o644); err != nil {
		d.log.Warn().Err(err).Str("file", filename).Msg("debug file save failed")
	}
}
