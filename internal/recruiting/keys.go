package recruiting

import (
	"fmt"
	"path"
	"strings"
)

const (
	jobPrefix       = "JD#"
	userPrefix      = "USER#"
	cvPrefix        = "CV#"
	resultPrefix    = "RESULT#"
	recruiterPrefix = "RECRUITER#"

	// DefaultUploadPrefix is where candidate CVs are uploaded.
	DefaultUploadPrefix = "uploads/"
	resultsObjectPrefix = "results/"
)

func JobPK(jobID string) string { return jobPrefix + strings.TrimPrefix(jobID, jobPrefix) }

func UserSK(userID string) string { return userPrefix + userID }

func CVSK(cvID string) string { return cvPrefix + cvID }

func ResultPK(jobID string) string { return resultPrefix + JobPK(jobID) }

// ResultSK scopes a result to the recruiter; ResultSKPrefix lists them all.
func ResultSK(userID, cvID string) string { return ResultSKPrefix(userID) + cvPrefix + cvID }

func ResultSKPrefix(userID string) string { return recruiterPrefix + userID + "#" }

// NormalizeJobID strips the key prefix some clients send along with the id.
func NormalizeJobID(jobID string) string {
	return strings.TrimPrefix(strings.TrimSpace(jobID), jobPrefix)
}

// JobUploadPrefix is the object prefix holding every CV uploaded for a job.
func JobUploadPrefix(uploadPrefix, jobID string) string {
	if uploadPrefix == "" {
		uploadPrefix = DefaultUploadPrefix
	}
	if !strings.HasSuffix(uploadPrefix, "/") {
		uploadPrefix += "/"
	}
	return uploadPrefix + JobPK(jobID) + "/"
}

// CVUploadKey builds the object key a candidate CV is uploaded to.
func CVUploadKey(uploadPrefix, jobID, userID, cvID, ext string) string {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return JobUploadPrefix(uploadPrefix, jobID) + userID + "#" + cvID + strings.ToLower(ext)
}

// ResultObjectKey is where the JSON analysis of a CV is stored.
func ResultObjectKey(jobID, userID, cvID string) string {
	return resultsObjectPrefix + JobPK(jobID) + "/" + userID + "#" + cvID + ".json"
}

// CVKey is the decoded form of a CV upload key.
type CVKey struct {
	JobID  string
	UserID string
	CVID   string
	Ext    string
}

// ParseCVKey decodes ".../JD#{jobId}/{userId}#{cvId}{ext}".
func ParseCVKey(key string) (CVKey, error) {
	dir, file := path.Split(key)
	jobDir := path.Base(strings.TrimSuffix(dir, "/"))
	if !strings.HasPrefix(jobDir, jobPrefix) || file == "" {
		return CVKey{}, fmt.Errorf("%w: unexpected cv key layout: %q", ErrInvalidRequest, key)
	}

	ext := path.Ext(file)
	owner, cvID, ok := strings.Cut(strings.TrimSuffix(file, ext), "#")
	if !ok || owner == "" || cvID == "" {
		return CVKey{}, fmt.Errorf("%w: cv key %q has no owner#cv segment", ErrInvalidRequest, key)
	}

	return CVKey{
		JobID:  strings.TrimPrefix(jobDir, jobPrefix),
		UserID: owner,
		CVID:   cvID,
		Ext:    strings.ToLower(ext),
	}, nil
}
