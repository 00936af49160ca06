package store

import (
	"strings"

	"jobsync-client/internal/domain/model"
)

// Keyspace builds the per-user key layout shared by every backend:
//
//	<ns>:<scope>:pending:<kind>:<job_id>
//	<ns>:<scope>:upload:active
//	<ns>:<scope>:view_state
//	<ns>:<scope>:session:active
//	<ns>:<scope>:session:local
type Keyspace struct {
	prefix string
}

func NewKeyspace(namespace, scope string) Keyspace {
	namespace = strings.TrimSpace(namespace)
	if namespace == "" {
		namespace = "jobsync"
	}
	scope = strings.TrimSpace(scope)
	if scope == "" {
		scope = "anonymous"
	}
	return Keyspace{prefix: namespace + ":" + scope + ":"}
}

func (k Keyspace) PendingPrefix() string { return k.prefix + "pending:" }

func (k Keyspace) Pending(kind model.JobKind, jobID string) string {
	return k.PendingPrefix() + string(kind) + ":" + jobID
}

func (k Keyspace) UploadMarker() string  { return k.prefix + "upload:active" }
func (k Keyspace) ViewState() string     { return k.prefix + "view_state" }
func (k Keyspace) ActiveSession() string { return k.prefix + "session:active" }
func (k Keyspace) LocalSessions() string { return k.prefix + "session:local" }
