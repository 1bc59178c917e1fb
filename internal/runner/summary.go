package runner

import "fmt"

// Summary is the terminal result of one job, persisted onto the JobRecord.
type Summary struct {
	Total      int `json:"total"`
	Downloaded int `json:"downloaded"`
	Imported   int `json:"imported"`
	Skipped    int `json:"skipped"`
	Failed     int `json:"failed"`
}

// DownloadMessage renders the human-readable summary of a download job.
// It distinguishes "nothing new to fetch" from partial progress so
// operators never have to guess what a completed job actually did.
func (s *Summary) DownloadMessage(aborted error) string {
	switch {
	case aborted != nil:
		return fmt.Sprintf("aborted: %v", aborted)
	case s.Total == 0:
		return "nothing published for this period"
	case s.Downloaded == 0 && s.Failed == 0:
		return fmt.Sprintf("nothing new to fetch (%d already known)", s.Skipped)
	default:
		return fmt.Sprintf("fetched %d, skipped %d, failed %d", s.Downloaded, s.Skipped, s.Failed)
	}
}

// ImportMessage renders the human-readable summary of an import job.
func (s *Summary) ImportMessage(aborted error) string {
	switch {
	case aborted != nil:
		return fmt.Sprintf("aborted: %v", aborted)
	case s.Total == 0:
		return "nothing to import"
	default:
		return fmt.Sprintf("imported %d, skipped %d, failed %d", s.Imported, s.Skipped, s.Failed)
	}
}

// AsMap converts the summary for the JobRecord's opaque result bag.
func (s *Summary) AsMap(message string) map[string]interface{} {
	return map[string]interface{}{
		"total":      s.Total,
		"downloaded": s.Downloaded,
		"imported":   s.Imported,
		"skipped":    s.Skipped,
		"failed":     s.Failed,
		"message":    message,
	}
}
