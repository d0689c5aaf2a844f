package watcher

import "slices"

// ChangeAnalysis describes what changed and what has to be redone
type ChangeAnalysis struct {
	NeedReconfigure bool // re-read config: log level, pool capacity
	NeedReload      bool // re-read the frame description
	NeedRecompile   bool
	ChangedFiles    []string
}

// AnalyzeChanges determines what to redo for a batch of changes
func AnalyzeChanges(events ...ChangeEvent) *ChangeAnalysis {
	analysis := &ChangeAnalysis{}

	for _, event := range events {
		analysis.ChangedFiles = append(analysis.ChangedFiles, event.Paths...)

		switch event.Type {
		case ChangeTypeConfig:
			// The config may point at another frame file.
			analysis.NeedReconfigure = true
			analysis.NeedReload = true
			analysis.NeedRecompile = true

		case ChangeTypeFrame:
			analysis.NeedReload = true
			analysis.NeedRecompile = true
		}
	}

	slices.Sort(analysis.ChangedFiles)
	analysis.ChangedFiles = slices.Compact(analysis.ChangedFiles)
	return analysis
}
