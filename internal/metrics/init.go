package metrics

import "media-optimizer/internal/mediatypes"

// InitializeMetrics pre-populates all expected label combinations so that
// every metric is exported from the first scrape and in every textfile.
// Call this once at startup.
func InitializeMetrics() {
	for _, status := range []string{"success", "error", "dry_run"} {
		BuildsTotal.WithLabelValues(status)
	}

	for _, result := range []string{"hit", "miss"} {
		CacheLookupsTotal.WithLabelValues(result)
	}
	for _, direction := range []string{"restore", "populate"} {
		for _, outcome := range []string{"copied", "skipped"} {
			CacheCopyOutcomes.WithLabelValues(direction, outcome)
		}
	}

	for _, policy := range []string{"none", "up", "down"} {
		ReferencesProcessed.WithLabelValues(policy, "success")
		ReferencesProcessed.WithLabelValues(policy, "error")
	}

	formats := []string{
		string(mediatypes.FormatJPEG),
		string(mediatypes.FormatPNG),
		string(mediatypes.FormatGIF),
		string(mediatypes.FormatWebP),
	}
	for _, kind := range []string{"derivative", "original"} {
		for _, f := range formats {
			TranscodesTotal.WithLabelValues(kind, f, "success")
			TranscodesTotal.WithLabelValues(kind, f, "error")
			TranscodeDuration.WithLabelValues(kind, f)
		}
	}
	for _, f := range formats {
		BytesSaved.WithLabelValues(f)
	}

	for _, status := range []string{"success", "error", "timeout"} {
		ExternalToolRuns.WithLabelValues("gifsicle", status)
	}
	ExternalToolDuration.WithLabelValues("gifsicle")

	volumes := []string{"output", "cache", "unknown"}
	for _, vol := range volumes {
		for _, op := range []string{"read", "write", "copy"} {
			FilesystemOperationDuration.WithLabelValues(vol, op)
			FilesystemOperationErrors.WithLabelValues(vol, op)
		}
	}
	for _, op := range []string{"stat", "open", "read"} {
		for _, vol := range volumes {
			FilesystemRetryAttempts.WithLabelValues(op, vol)
			FilesystemRetrySuccess.WithLabelValues(op, vol)
			FilesystemRetryFailures.WithLabelValues(op, vol)
			FilesystemStaleErrors.WithLabelValues(op, vol)
			FilesystemRetryDuration.WithLabelValues(op, vol)
		}
	}

	for _, op := range []string{"initialize_schema", "record_hit", "record_miss",
		"record_populate", "begin_build", "finish_build", "stats", "recent_builds", "clear"} {
		LedgerQueryTotal.WithLabelValues(op, "success")
		LedgerQueryTotal.WithLabelValues(op, "error")
		LedgerQueryDuration.WithLabelValues(op)
	}
}
