// Package model holds the data types shared between the core managers and
// the plugin interfaces they call through: Session, its embedded PR and
// runtime-handle records, and the small value types plugin methods accept or
// return. Keeping these in a leaf package (no dependency on plugin, session,
// or lifecycle) avoids import cycles between the core packages and the
// plugin contracts those packages consume.
package model

import "time"

// Status is a session's position in the fixed lifecycle graph.
type Status string

const (
	StatusSpawning         Status = "spawning"
	StatusWorking          Status = "working"
	StatusNeedsInput       Status = "needs_input"
	StatusStuck            Status = "stuck"
	StatusDone             Status = "done"
	StatusVerifierPending  Status = "verifier_pending"
	StatusVerifierFailed   Status = "verifier_failed"
	StatusPRReady          Status = "pr_ready"
	StatusPROpen           Status = "pr_open"
	StatusCIFailed         Status = "ci_failed"
	StatusReviewPending    Status = "review_pending"
	StatusChangesRequested Status = "changes_requested"
	StatusApproved         Status = "approved"
	StatusReviewerPending  Status = "reviewer_pending"
	StatusReviewerFailed   Status = "reviewer_failed"
	StatusReviewerPassed   Status = "reviewer_passed"
	StatusMergeable        Status = "mergeable"
	StatusMerged           Status = "merged"
	StatusErrored          Status = "errored"
	StatusKilled           Status = "killed"
	StatusCleanup          Status = "cleanup"
	StatusTerminated       Status = "terminated"
)

// Terminal statuses never transition further; see the session invariants.
func (s Status) Terminal() bool {
	switch s {
	case StatusMerged, StatusKilled:
		return true
	default:
		return false
	}
}

// Restorable reports whether a session in this status may be restore()d.
func (s Status) Restorable() bool {
	switch s {
	case StatusKilled, StatusErrored, StatusTerminated:
		return true
	default:
		return false
	}
}

// Activity is the runtime/agent-observed liveness of a session's process.
type Activity string

const (
	ActivityActive       Activity = "active"
	ActivityIdle         Activity = "idle"
	ActivityWaitingInput Activity = "waiting_input"
	ActivityBlocked      Activity = "blocked"
	ActivityExited       Activity = "exited"
)

// RuntimeHandle is the opaque token a runtime plugin uses to find an agent
// process again. Data is plugin-private and only parsed by the plugin that
// produced it.
type RuntimeHandle struct {
	ID          string `json:"id"`
	RuntimeName string `json:"runtimeName"`
	Data        string `json:"data,omitempty"`
}

// Empty reports whether the handle carries no identifying information.
func (h RuntimeHandle) Empty() bool {
	return h.ID == "" && h.RuntimeName == ""
}

// PR is a session's associated pull request.
type PR struct {
	Number     int    `json:"number"`
	URL        string `json:"url"`
	Owner      string `json:"owner"`
	Repo       string `json:"repo"`
	HeadBranch string `json:"headBranch"`
	BaseBranch string `json:"baseBranch"`
	Draft      bool   `json:"draft"`
}

// PRState is the SCM's coarse classification of a PR.
type PRState string

const (
	PRStateOpen   PRState = "open"
	PRStateMerged PRState = "merged"
	PRStateClosed PRState = "closed"
)

// CISummary is the SCM's coarse classification of CI status.
type CISummary string

const (
	CISummaryPending CISummary = "pending"
	CISummaryPassing CISummary = "passing"
	CISummaryFailing CISummary = "failing"
)

// CICheck is one named check run reported by the SCM.
type CICheck struct {
	Name       string `json:"name"`
	Conclusion string `json:"conclusion"`
	DetailsURL string `json:"detailsUrl,omitempty"`
}

// ReviewDecision is the SCM's aggregate human/bot review verdict.
type ReviewDecision string

const (
	ReviewDecisionPending           ReviewDecision = "pending"
	ReviewDecisionApproved          ReviewDecision = "approved"
	ReviewDecisionChangesRequested  ReviewDecision = "changes_requested"
)

// Comment is a pending, unresolved PR review comment.
type Comment struct {
	Author string `json:"author"`
	Body   string `json:"body"`
	Path   string `json:"path,omitempty"`
	URL    string `json:"url,omitempty"`
}

// Mergeability describes whether the SCM considers a PR ready to merge.
type Mergeability struct {
	Mergeable bool   `json:"mergeable"`
	Reason    string `json:"reason,omitempty"`
}

// Issue is a tracker-backed work item.
type Issue struct {
	ID     string   `json:"id"`
	Title  string   `json:"title"`
	Body   string   `json:"body"`
	Labels []string `json:"labels,omitempty"`
	URL    string   `json:"url,omitempty"`
	Closed bool     `json:"closed"`
}

// Project is the configuration-resolved shape plugins need to operate; the
// config package builds this from ao.yaml.
type Project struct {
	ID            string
	Prefix        string
	Path          string
	DefaultBranch string
}

// WorkspaceInfo describes a materialized source tree for a session.
type WorkspaceInfo struct {
	Path   string `json:"path"`
	Branch string `json:"branch"`
}

// LaunchConfig is the input handed to the agent and runtime plugins when
// creating or restoring a session's process.
type LaunchConfig struct {
	SessionID          string
	ProjectID          string
	IssueID            string
	WorkspacePath      string
	Branch             string
	Prompt             string
	AcceptanceContract string
	// Command is the shell command agent.GetLaunchCommand resolved for this
	// config; runtime.Create execs it. Empty until that call has run.
	Command     string
	Environment map[string]string
}

// Session is the unit of autonomous work the orchestrator supervises.
type Session struct {
	ID            string
	ProjectID     string
	Status        Status
	Activity      Activity
	Branch        string
	IssueID       string
	WorkspacePath string
	PR            *PR
	RuntimeHandle RuntimeHandle
	CreatedAt     time.Time
	LastActivityAt time.Time
	RestoredAt    time.Time
	Metadata      map[string]string
}

// Role returns the "role" metadata key, defaulting to "worker".
func (s *Session) Role() string {
	if s == nil || s.Metadata == nil {
		return "worker"
	}
	if r, ok := s.Metadata["role"]; ok && r != "" {
		return r
	}
	return "worker"
}

// Event is one lifecycle notification, dispatched to reactions and
// notifiers.
type Event struct {
	ID        string
	Type      string
	SessionID string
	ProjectID string
	Priority  Priority
	At        time.Time
	Detail    string
}

// Priority is the urgency bucket an event is routed under for notifications.
type Priority string

const (
	PriorityInfo    Priority = "info"
	PriorityWarning Priority = "warning"
	PriorityAction  Priority = "action"
	PriorityUrgent  Priority = "urgent"
)
