package internal

import (
	"log/slog"
	"runtime/debug"
	"time"
)

// BuildInfo describes the version control state the binary was built from.
type BuildInfo struct {
	Revision     string
	RevisionTime time.Time
	Modified     bool
}

// Build is the build info of the running binary. Revision is "unknown"
// when the binary was built without version control information.
var Build = readBuildInfo(debug.ReadBuildInfo)

func (b BuildInfo) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("revision", b.Revision),
		slog.Time("revisionTime", b.RevisionTime),
		slog.Bool("modified", b.Modified),
	)
}

func readBuildInfo(read func() (*debug.BuildInfo, bool)) BuildInfo {
	b := BuildInfo{Revision: "unknown"}

	info, ok := read()
	if !ok {
		return b
	}

	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			b.Revision = setting.Value
		case "vcs.time":
			// A malformed time is left zero, it's informational only.
			if t, err := time.Parse(time.RFC3339, setting.Value); err == nil {
				b.RevisionTime = t
			}
		case "vcs.modified":
			b.Modified = setting.Value == "true"
		}
	}

	return b
}
