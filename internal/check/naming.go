package check

import (
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"
)

// JobPrefix marks every schedule dqsync manages.
const JobPrefix = "dq-check-"

// maxJobNameLen is the EventBridge Scheduler limit on schedule names.
const maxJobNameLen = 64

var jobNameUnsafe = regexp.MustCompile(`[^0-9A-Za-z_.-]`)

// JobName derives the job name for a definition id. Ids that are not already
// valid schedule names, or are too long, get a stable hash suffix so distinct
// ids never collide after sanitizing.
func JobName(id string) string {
	safe := jobNameUnsafe.ReplaceAllString(id, "_")
	name := JobPrefix + safe
	if safe == id && len(name) <= maxJobNameLen {
		return name
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	suffix := fmt.Sprintf("-%08x", h.Sum32())
	room := maxJobNameLen - len(JobPrefix) - len(suffix)
	if len(safe) > room {
		safe = safe[:room]
	}
	return JobPrefix + safe + suffix
}

// IsManagedJob reports whether a schedule name belongs to dqsync.
func IsManagedJob(name string) bool {
	return strings.HasPrefix(name, JobPrefix)
}
