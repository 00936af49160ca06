package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type JobKind string

const (
	JobKindChat             JobKind = "chat"
	JobKindUploadAssignment JobKind = "upload_assignment"
	JobKindUploadExam       JobKind = "upload_exam"
)

var AllJobKinds = []JobKind{JobKindChat, JobKindUploadAssignment, JobKindUploadExam}

func (k JobKind) IsUpload() bool {
	return k == JobKindUploadAssignment || k == JobKindUploadExam
}

func (k JobKind) Valid() bool {
	switch k {
	case JobKindChat, JobKindUploadAssignment, JobKindUploadExam:
		return true
	}
	return false
}

type JobStatus string

const (
	JobStatusCreated    JobStatus = "created" // upload-only alias reported before parsing starts
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusDone       JobStatus = "done"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
	JobStatusConfirming JobStatus = "confirming"
	JobStatusConfirmed  JobStatus = "confirmed"
)

func (s JobStatus) String() string {
	return string(s)
}

// IsFailure reports whether the job ended without a usable result.
func (s JobStatus) IsFailure() bool {
	return s == JobStatusFailed || s == JobStatusCancelled
}

// StopsPolling reports whether the server has nothing more to say about the job.
func (s JobStatus) StopsPolling() bool {
	switch s {
	case JobStatusDone, JobStatusFailed, JobStatusCancelled, JobStatusConfirmed:
		return true
	}
	return false
}

// Settled reports whether the persisted record for a job of this kind can be
// dropped. Upload drafts stay recoverable after done until they are confirmed.
func (s JobStatus) Settled(kind JobKind) bool {
	if s.IsFailure() {
		return true
	}
	if kind.IsUpload() {
		return s == JobStatusConfirmed
	}
	return s == JobStatusDone
}

// CanConfirm is the client-side guard for the upload confirm action.
func (s JobStatus) CanConfirm() bool {
	switch s {
	case JobStatusDone, JobStatusConfirmed, JobStatusCreated:
		return true
	}
	return false
}

type Transition struct {
	From JobStatus
	To   JobStatus
}

var chatTransitions = []Transition{
	{From: JobStatusQueued, To: JobStatusProcessing},
	{From: JobStatusQueued, To: JobStatusCancelled},
	{From: JobStatusQueued, To: JobStatusFailed},
	{From: JobStatusProcessing, To: JobStatusDone},
	{From: JobStatusProcessing, To: JobStatusFailed},
	{From: JobStatusProcessing, To: JobStatusCancelled},
}

var uploadTransitions = []Transition{
	{From: JobStatusCreated, To: JobStatusQueued},
	{From: JobStatusCreated, To: JobStatusProcessing},
	{From: JobStatusQueued, To: JobStatusProcessing},
	{From: JobStatusQueued, To: JobStatusFailed},
	{From: JobStatusQueued, To: JobStatusCancelled},
	{From: JobStatusProcessing, To: JobStatusDone},
	{From: JobStatusProcessing, To: JobStatusFailed},
	{From: JobStatusProcessing, To: JobStatusCancelled},
	{From: JobStatusDone, To: JobStatusConfirming},
	{From: JobStatusDone, To: JobStatusConfirmed},
	{From: JobStatusConfirming, To: JobStatusConfirmed},
}

// IsValidTransition reports whether a status change is part of the lifecycle
// for the given kind. Staying in the same status is always valid.
func IsValidTransition(kind JobKind, from, to JobStatus) bool {
	if from == to {
		return true
	}
	table := chatTransitions
	if kind.IsUpload() {
		table = uploadTransitions
	}
	for _, t := range table {
		if t.From == from && t.To == to {
			return true
		}
	}
	return false
}

// Job is the client's view of one server-tracked unit of async work.
type Job struct {
	ID            string    `json:"job_id"`
	Kind          JobKind   `json:"kind"`
	Status        JobStatus `json:"status"`
	SessionID     string    `json:"session_id,omitempty"`
	Progress      *int      `json:"progress,omitempty"`
	QueuePosition *int      `json:"queue_position,omitempty"`
	QueueSize     *int      `json:"queue_size,omitempty"`
	Result        string    `json:"result,omitempty"`
	DraftRef      string    `json:"draft_ref,omitempty"`
	Error         string    `json:"error,omitempty"`
	Hint          string    `json:"hint,omitempty"`
	MessageCount  int       `json:"message_count,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Fingerprint is a cheap signature of the fields the UI renders. Two equal
// fingerprints mean the poll produced no new information.
func (j *Job) Fingerprint() string {
	var b strings.Builder
	b.WriteString(string(j.Status))
	b.WriteByte('|')
	b.WriteString(optInt(j.Progress))
	b.WriteByte('|')
	b.WriteString(optInt(j.QueuePosition))
	b.WriteByte('/')
	b.WriteString(optInt(j.QueueSize))
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(j.MessageCount))
	b.WriteByte('|')
	b.WriteString(j.Error)
	return b.String()
}

// ProgressPercent returns the reported progress or -1 when unknown.
func (j *Job) ProgressPercent() int {
	if j.Progress == nil {
		return -1
	}
	return *j.Progress
}

func optInt(p *int) string {
	if p == nil {
		return "-"
	}
	return strconv.Itoa(*p)
}

// PendingJobRecord is the persisted subset of a live job.
type PendingJobRecord struct {
	JobID         string    `json:"job_id"`
	Kind          JobKind   `json:"kind"`
	RequestID     string    `json:"request_id"`
	PlaceholderID string    `json:"placeholder_id"`
	UserText      string    `json:"user_text,omitempty"`
	SessionID     string    `json:"session_id,omitempty"`
	LaneID        string    `json:"lane_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

func (r *PendingJobRecord) Validate() error {
	if r.JobID == "" {
		return fmt.Errorf("pending record: missing job_id")
	}
	if !r.Kind.Valid() {
		return fmt.Errorf("pending record %s: unknown kind %q", r.JobID, r.Kind)
	}
	if r.Kind == JobKindChat && r.SessionID == "" {
		return fmt.Errorf("pending record %s: chat job without session", r.JobID)
	}
	if r.PlaceholderID == "" {
		return fmt.Errorf("pending record %s: missing placeholder_id", r.JobID)
	}
	return nil
}

// UploadMarker remembers the single upload the user is currently working on.
type UploadMarker struct {
	Kind  JobKind `json:"type"`
	JobID string  `json:"job_id"`
}
