package pipeline

import "github.com/chmdznr/oldmaps/pkg/models"

// Report aggregates sizes over records. Derivatives that were not run or
// failed are left out of the derivative sums, and each ratio compares a
// derivative total with the original size of the same files.
func Report(records []models.FileRecord) models.Report {
	var r models.Report
	r.Files = len(records)

	for _, rec := range records {
		orig := rec.SizeMB()
		r.OriginalMB += orig

		if rec.Resized.Populated() {
			r.ResizedFiles++
			r.ResizedMB += rec.Resized.SizeMB()
			r.ResizedOriginalMB += orig
		}
		if rec.Reencoded.Populated() {
			r.ReencodedFiles++
			r.ReencodedMB += rec.Reencoded.SizeMB()
			r.ReencodedOriginalMB += orig
		}
	}

	if r.ResizedMB > 0 {
		r.ResizeRatio = r.ResizedOriginalMB / r.ResizedMB
		r.HasResizeRatio = true
	}
	if r.ReencodedMB > 0 {
		r.ReencodeRatio = r.ReencodedOriginalMB / r.ReencodedMB
		r.HasReencodeRatio = true
	}
	return r
}
