package vault

import (
	"context"
	"log/slog"
)

// Sync walks the vault and brings the note store up to date:
//   - new/changed files are recorded and queued for indexing
//   - files seen earlier that are gone from disk are queued for deletion
func (b *Bridge) Sync(ctx context.Context) error {
	files, err := b.fs.List()
	if err != nil {
		return err
	}

	disk := make(map[string]struct{}, len(files))
	queued := 0
	for _, f := range files {
		disk[f.Path] = struct{}{}
		ok, err := b.Apply(ctx, f.Path)
		if err != nil {
			b.logger.Warn("sync: apply failed", slog.String("path", f.Path), slog.String("error", err.Error()))
			continue
		}
		if ok {
			queued++
		}
	}

	for _, p := range b.knownPaths() {
		if _, ok := disk[p]; ok {
			continue
		}
		if err := b.Remove(ctx, p); err != nil {
			b.logger.Warn("sync: remove failed", slog.String("path", p), slog.String("error", err.Error()))
		}
	}

	b.logger.Info("sync: done", slog.Int("files", len(files)), slog.Int("queued", queued))
	return nil
}
