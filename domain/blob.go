package domain

import (
	"path"
	"strings"
	"time"
)

const ResumePrefix = "resumes/"

// ResumeKey builds the object key for an uploaded résumé. The seconds-precision
// UTC timestamp is the only uniqueness guarantee; collisions are not retried.
func ResumeKey(ownerName, filename string, now time.Time) string {
	owner := strings.ReplaceAll(ownerName, " ", "_")
	base := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	return ResumePrefix + owner + "_" + now.UTC().Format("20060102_150405") + "_" + base
}
