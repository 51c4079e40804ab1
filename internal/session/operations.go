package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ao-project/ao/internal/evidence"
	"github.com/ao-project/ao/internal/ids"
	"github.com/ao-project/ao/internal/metadata"
	"github.com/ao-project/ao/internal/model"
	"github.com/ao-project/ao/internal/paths"
	"github.com/ao-project/ao/internal/plugin"
)

// PlanTask describes a caller-supplied plan task reference for spawn's
// requireValidatedPlanTask policy check.
type PlanTask struct {
	ID        string
	Validated bool
}

// SpawnRequest is the input to Spawn.
type SpawnRequest struct {
	ProjectID string
	IssueID   string
	Branch    string
	Prompt    string
	PlanTask  *PlanTask
	Agent     string // overrides the project's configured agent plugin
	Runtime   string // overrides the project's configured runtime plugin
	// Role tags the session's metadata "role" key; empty means "worker"
	// (model.Session.Role's default). The lifecycle manager sets this to
	// "verifier" or "reviewer" when it spawns a gate session.
	Role string
	// ExtraMetadata is merged into the session's initial fields verbatim,
	// after the well-known keys are set. Used by the lifecycle manager to
	// stamp gate sessions with reviewerId/reviewerCycle/evidenceFingerprint
	// without this package needing to know those keys.
	ExtraMetadata map[string]string
}

func (m *Manager) resolvePlugins(project *ProjectRuntime, agentOverride, runtimeOverride string) (plugin.Agent, plugin.Runtime, plugin.Workspace, error) {
	agentName := project.Config.Plugins.Agent
	if agentOverride != "" {
		agentName = agentOverride
	}
	runtimeName := project.Config.Plugins.Runtime
	if runtimeOverride != "" {
		runtimeName = runtimeOverride
	}
	agent, err := m.reg.Agent(agentName)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("resolve agent plugin: %w", err)
	}
	runtime, err := m.reg.Runtime(runtimeName)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("resolve runtime plugin: %w", err)
	}
	workspace, err := m.reg.Workspace(project.Config.Plugins.Workspace)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("resolve workspace plugin: %w", err)
	}
	return agent, runtime, workspace, nil
}

// Spawn creates a new worker session: §4.2 spawn.
func (m *Manager) Spawn(ctx context.Context, req SpawnRequest) (*model.Session, error) {
	project, err := m.project(req.ProjectID)
	if err != nil {
		return nil, err
	}

	if project.Config.Policies.Spawn.RequireValidatedPlanTask {
		if req.PlanTask == nil || !req.PlanTask.Validated {
			return nil, newErr(KindPolicy, "spawn", errors.New("a validated plan task is required by policy"))
		}
	}

	agentPlugin, runtimePlugin, workspacePlugin, err := m.resolvePlugins(project, req.Agent, req.Runtime)
	if err != nil {
		return nil, newErr(KindInternal, "spawn", err)
	}

	// issueId is recorded verbatim on the session regardless of tracker
	// outcome; "ad-hoc mode" (tracker has no record of it) only changes
	// whether we have an Issue to derive a prompt/branch from.
	var issue *model.Issue
	if req.IssueID != "" && project.Config.Plugins.Tracker != "" {
		tracker, trackerErr := m.reg.Tracker(project.Config.Plugins.Tracker)
		if trackerErr != nil {
			return nil, newErr(KindInternal, "spawn", trackerErr)
		}
		iss, getErr := tracker.GetIssue(ctx, req.IssueID, project.Model)
		switch {
		case getErr == nil:
			issue = &iss
		case errors.Is(getErr, plugin.ErrIssueNotFound):
			// proceed in ad-hoc mode
		default:
			return nil, newErr(KindTrackerAuthFailure, "spawn", getErr)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	id, err := m.allocateID(project)
	if err != nil {
		return nil, newErr(KindInternal, "spawn", err)
	}

	branch, err := m.deriveBranch(ctx, project, id, req.IssueID, req.Branch)
	if err != nil {
		return nil, newErr(KindInternal, "spawn", err)
	}

	if err := evidence.Init(project.Config.Path, id); err != nil {
		return nil, newErr(KindInternal, "spawn", err)
	}

	prompt := req.Prompt
	if issue != nil {
		if generated, genErr := m.generatePrompt(ctx, project, *issue); genErr == nil && generated != "" {
			prompt = generated
		}
	}

	launch := model.LaunchConfig{
		SessionID: id,
		ProjectID: project.ID,
		IssueID:   req.IssueID,
		Branch:    branch,
		Prompt:    prompt,
	}

	workspaceInfo, err := workspacePlugin.Create(ctx, launch, project.Model)
	if err != nil {
		return nil, newErr(KindInternal, "spawn", fmt.Errorf("create workspace: %w", err))
	}
	launch.WorkspacePath = workspaceInfo.Path

	teardownWorkspace := func() { _ = workspacePlugin.Destroy(context.Background(), workspaceInfo.Path) }

	env, err := agentPlugin.GetEnvironment(launch)
	if err != nil {
		teardownWorkspace()
		return nil, newErr(KindInternal, "spawn", fmt.Errorf("get environment: %w", err))
	}
	if env == nil {
		env = map[string]string{}
	}
	env["AO_SESSION_ID"] = id
	env["AO_DATA_DIR"] = paths.SessionsDir(project.BaseDir)
	env["AO_EVIDENCE_DIR"] = evidence.Dir(workspaceInfo.Path, id)
	env["AO_EVIDENCE_SCHEMA_VERSION"] = evidence.SchemaVersion
	if project.ID != "" {
		env["AO_PROJECT_ID"] = project.ID
	}
	if req.IssueID != "" {
		env["AO_ISSUE_ID"] = req.IssueID
	}
	launch.Environment = env

	if err := agentPlugin.SetupWorkspaceHooks(ctx, workspaceInfo.Path, launch); err != nil {
		teardownWorkspace()
		return nil, newErr(KindInternal, "spawn", fmt.Errorf("setup workspace hooks: %w", err))
	}

	launchCommand, err := agentPlugin.GetLaunchCommand(launch)
	if err != nil {
		teardownWorkspace()
		return nil, newErr(KindInternal, "spawn", fmt.Errorf("get launch command: %w", err))
	}
	launch.Command = launchCommand

	handle, err := runtimePlugin.Create(ctx, launch)
	if err != nil {
		teardownWorkspace()
		return nil, newErr(KindInternal, "spawn", fmt.Errorf("create runtime: %w", err))
	}

	if err := agentPlugin.PostLaunchSetup(ctx, &model.Session{ID: id, ProjectID: project.ID, RuntimeHandle: handle}); err != nil {
		m.obs.Warn(map[string]string{"op": "spawn.post_launch_setup", "session": id, "error": err.Error()})
	}

	handleJSON, err := marshalHandle(handle)
	if err != nil {
		_ = runtimePlugin.Destroy(context.Background(), handle)
		teardownWorkspace()
		return nil, newErr(KindInternal, "spawn", err)
	}

	now := time.Now()
	fields := metadata.Fields{
		keyProject:        project.ID,
		keyWorktree:       workspaceInfo.Path,
		keyBranch:         branch,
		keyStatus:         string(model.StatusSpawning),
		keyIssue:          req.IssueID,
		keyAgent:          project.Config.Plugins.Agent,
		keyRuntime:        project.Config.Plugins.Runtime,
		keyRuntimeHandle:  handleJSON,
		keyEvidenceDir:    evidence.Dir(workspaceInfo.Path, id),
		keyCreatedAt:      formatTime(now),
		keyLastActivityAt: formatTime(now),
	}
	if req.PlanTask != nil {
		fields[keyPlanTaskID] = req.PlanTask.ID
		if req.PlanTask.Validated {
			fields[keyPlanTaskValid] = "true"
		}
	}
	if req.Role != "" {
		fields[keyRole] = req.Role
	}
	for k, v := range req.ExtraMetadata {
		fields[k] = v
	}
	if err := project.Store.Write(id, fields); err != nil {
		_ = runtimePlugin.Destroy(context.Background(), handle)
		teardownWorkspace()
		return nil, newErr(KindInternal, "spawn", err)
	}

	m.logbook.Info("spawned session %s on project %s (branch %s)", id, project.ID, branch)
	return fieldsToSession(id, fields), nil
}

// SpawnOrchestratorRequest is the input to SpawnOrchestrator.
type SpawnOrchestratorRequest struct {
	ProjectID    string
	SystemPrompt string
}

// SpawnOrchestrator creates the fixed "<prefix>-orchestrator" session: §4.2
// spawnOrchestrator.
func (m *Manager) SpawnOrchestrator(ctx context.Context, req SpawnOrchestratorRequest) (*model.Session, error) {
	project, err := m.project(req.ProjectID)
	if err != nil {
		return nil, err
	}
	agentPlugin, runtimePlugin, _, err := m.resolvePlugins(project, "", "")
	if err != nil {
		return nil, newErr(KindInternal, "spawn-orchestrator", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	id := paths.OrchestratorID(project.Config.Prefix)
	branch := project.Config.DefaultBranch

	if err := evidence.Init(project.Config.Path, id); err != nil {
		return nil, newErr(KindInternal, "spawn-orchestrator", err)
	}

	prompt := req.SystemPrompt
	if prompt != "" {
		promptPath := filepath.Join(project.Config.Path, "orchestrator-prompt.md")
		if err := os.WriteFile(promptPath, []byte(prompt), 0o644); err != nil {
			return nil, newErr(KindInternal, "spawn-orchestrator", fmt.Errorf("write system prompt: %w", err))
		}
		prompt = promptPath
	}

	launch := model.LaunchConfig{
		SessionID:     id,
		ProjectID:     project.ID,
		Branch:        branch,
		Prompt:        prompt,
		WorkspacePath: project.Config.Path,
	}
	env, err := agentPlugin.GetEnvironment(launch)
	if err != nil {
		return nil, newErr(KindInternal, "spawn-orchestrator", err)
	}
	if env == nil {
		env = map[string]string{}
	}
	env["AO_SESSION_ID"] = id
	env["AO_DATA_DIR"] = paths.SessionsDir(project.BaseDir)
	env["AO_EVIDENCE_DIR"] = evidence.Dir(project.Config.Path, id)
	env["AO_EVIDENCE_SCHEMA_VERSION"] = evidence.SchemaVersion
	if project.ID != "" {
		env["AO_PROJECT_ID"] = project.ID
	}
	launch.Environment = env

	launchCommand, err := agentPlugin.GetLaunchCommand(launch)
	if err != nil {
		return nil, newErr(KindInternal, "spawn-orchestrator", fmt.Errorf("get launch command: %w", err))
	}
	launch.Command = launchCommand

	handle, err := runtimePlugin.Create(ctx, launch)
	if err != nil {
		return nil, newErr(KindInternal, "spawn-orchestrator", fmt.Errorf("create runtime: %w", err))
	}
	handleJSON, err := marshalHandle(handle)
	if err != nil {
		_ = runtimePlugin.Destroy(context.Background(), handle)
		return nil, newErr(KindInternal, "spawn-orchestrator", err)
	}

	now := time.Now()
	fields := metadata.Fields{
		keyProject:        project.ID,
		keyWorktree:       project.Config.Path,
		keyBranch:         branch,
		keyStatus:         string(model.StatusSpawning),
		keyAgent:          project.Config.Plugins.Agent,
		keyRuntime:        project.Config.Plugins.Runtime,
		keyRuntimeHandle:  handleJSON,
		keyRole:           "orchestrator",
		keyEvidenceDir:    evidence.Dir(project.Config.Path, id),
		keyCreatedAt:      formatTime(now),
		keyLastActivityAt: formatTime(now),
	}
	if err := project.Store.Write(id, fields); err != nil {
		_ = runtimePlugin.Destroy(context.Background(), handle)
		return nil, newErr(KindInternal, "spawn-orchestrator", err)
	}

	m.logbook.Info("spawned orchestrator session %s on project %s", id, project.ID)
	return fieldsToSession(id, fields), nil
}

// List returns a session projection for every session, optionally filtered
// to one project: §4.2 list.
func (m *Manager) List(ctx context.Context, projectID string) ([]*model.Session, error) {
	var out []*model.Session
	for id, project := range m.projects {
		if projectID != "" && id != projectID {
			continue
		}
		sessionIDs, err := project.Store.List()
		if err != nil {
			return nil, newErr(KindInternal, "list", err)
		}
		for _, sessionID := range sessionIDs {
			sess, err := m.refresh(ctx, project, sessionID)
			if err != nil {
				m.obs.Warn(map[string]string{"op": "list.refresh", "session": sessionID, "error": err.Error()})
				continue
			}
			if sess != nil {
				out = append(out, sess)
			}
		}
	}
	return out, nil
}

// Get returns one session's current projection, or (nil, nil) if it does not
// exist: §4.2 get.
func (m *Manager) Get(ctx context.Context, sessionID string) (*model.Session, error) {
	project, err := m.projectForSession(sessionID)
	if err != nil {
		return nil, err
	}
	return m.refresh(ctx, project, sessionID)
}

// refresh re-derives activity/aliveness for one session, as both List and
// Get must.
func (m *Manager) refresh(ctx context.Context, project *ProjectRuntime, sessionID string) (*model.Session, error) {
	fields, err := project.Store.Read(sessionID)
	if err != nil {
		return nil, err
	}
	if fields == nil {
		return nil, nil
	}
	sess := fieldsToSession(sessionID, fields)

	if !sess.RuntimeHandle.Empty() {
		runtimePlugin, err := m.reg.Runtime(fields[keyRuntime])
		if err == nil {
			alive, aliveErr := runtimePlugin.IsAlive(ctx, sess.RuntimeHandle)
			if aliveErr == nil && !alive {
				sess.Status = model.StatusKilled
				sess.Activity = model.ActivityExited
				return sess, nil
			}
		}
		agentPlugin, err := m.reg.Agent(fields[keyAgent])
		if err == nil {
			activity, actErr := agentPlugin.GetActivityState(ctx, sess)
			if actErr == nil && activity != nil {
				sess.Activity = *activity
			}
		}
	}
	return sess, nil
}

// Kill destroys a session's runtime and workspace (best-effort) and archives
// its metadata: §4.2 kill.
func (m *Manager) Kill(ctx context.Context, sessionID string) error {
	project, err := m.projectForSession(sessionID)
	if err != nil {
		return err
	}
	fields, err := project.Store.Read(sessionID)
	if err != nil {
		return newErr(KindInternal, "kill", err)
	}
	if fields == nil {
		return newErr(KindSessionNotFound, "kill", fmt.Errorf("session %q not found", sessionID))
	}
	sess := fieldsToSession(sessionID, fields)

	if runtimePlugin, err := m.reg.Runtime(fields[keyRuntime]); err == nil && !sess.RuntimeHandle.Empty() {
		if err := runtimePlugin.Destroy(ctx, sess.RuntimeHandle); err != nil {
			m.obs.Warn(map[string]string{"op": "kill.runtime_destroy", "session": sessionID, "error": err.Error()})
		}
	}
	if workspacePlugin, err := m.reg.Workspace(project.Config.Plugins.Workspace); err == nil && sess.WorkspacePath != "" {
		if err := workspacePlugin.Destroy(ctx, sess.WorkspacePath); err != nil {
			m.obs.Warn(map[string]string{"op": "kill.workspace_destroy", "session": sessionID, "error": err.Error()})
		}
	}
	if err := project.Store.Archive(sessionID); err != nil {
		return newErr(KindInternal, "kill", err)
	}
	m.logbook.Info("killed session %s", sessionID)
	return nil
}

// Send delivers a message to a session's runtime: §4.2 send.
func (m *Manager) Send(ctx context.Context, sessionID, message string) error {
	project, err := m.projectForSession(sessionID)
	if err != nil {
		return err
	}
	fields, err := project.Store.Read(sessionID)
	if err != nil {
		return newErr(KindInternal, "send", err)
	}
	if fields == nil {
		return newErr(KindSessionNotFound, "send", fmt.Errorf("session %q not found", sessionID))
	}
	sess := fieldsToSession(sessionID, fields)
	handle := sess.RuntimeHandle
	runtimeName := fields[keyRuntime]
	if handle.Empty() {
		if runtimeName == "" {
			runtimeName = project.Config.Plugins.Runtime
		}
		handle = model.RuntimeHandle{ID: sessionID, RuntimeName: runtimeName}
	}
	runtimePlugin, err := m.reg.Runtime(runtimeName)
	if err != nil {
		return newErr(KindInternal, "send", err)
	}
	if err := runtimePlugin.SendMessage(ctx, handle, message); err != nil {
		return newErr(KindInternal, "send", err)
	}
	return nil
}

// Restore resurrects a killed/errored/terminated session: §4.2 restore.
func (m *Manager) Restore(ctx context.Context, sessionID string) (*model.Session, error) {
	project, err := m.projectForSession(sessionID)
	if err != nil {
		return nil, err
	}

	fields, err := project.Store.Read(sessionID)
	if err != nil {
		return nil, newErr(KindInternal, "restore", err)
	}
	if fields == nil {
		fields, err = project.Store.RestoreFromArchive(sessionID)
		if err != nil {
			if errors.Is(err, metadata.ErrNotFound) {
				return nil, newErr(KindSessionNotFound, "restore", fmt.Errorf("session %q not found", sessionID))
			}
			return nil, newErr(KindInternal, "restore", err)
		}
	}

	sess := fieldsToSession(sessionID, fields)
	if !sess.Status.Restorable() {
		return nil, newErr(KindSessionNotRestorable, "restore", fmt.Errorf("session %q has status %s", sessionID, sess.Status))
	}

	agentPlugin, runtimePlugin, workspacePlugin, err := m.resolvePlugins(project, fields[keyAgent], fields[keyRuntime])
	if err != nil {
		return nil, newErr(KindInternal, "restore", err)
	}

	workspacePath := sess.WorkspacePath
	if exists, existsErr := workspacePlugin.Exists(ctx, workspacePath); existsErr == nil && !exists {
		info, restoreErr := workspacePlugin.Restore(ctx, model.LaunchConfig{
			SessionID: sessionID,
			ProjectID: project.ID,
			Branch:    sess.Branch,
		}, project.Model)
		if restoreErr != nil {
			if errors.Is(restoreErr, plugin.ErrRestoreUnsupported) {
				return nil, newErr(KindWorkspaceMissing, "restore", restoreErr)
			}
			return nil, newErr(KindInternal, "restore", restoreErr)
		}
		workspacePath = info.Path
	}

	if !sess.RuntimeHandle.Empty() {
		_ = runtimePlugin.Destroy(ctx, sess.RuntimeHandle)
	}

	launch := model.LaunchConfig{
		SessionID:     sessionID,
		ProjectID:     project.ID,
		IssueID:       sess.IssueID,
		WorkspacePath: workspacePath,
		Branch:        sess.Branch,
	}
	env, err := agentPlugin.GetEnvironment(launch)
	if err != nil {
		return nil, newErr(KindInternal, "restore", err)
	}
	if env == nil {
		env = map[string]string{}
	}
	env["AO_SESSION_ID"] = sessionID
	env["AO_EVIDENCE_DIR"] = evidence.Dir(workspacePath, sessionID)
	env["AO_EVIDENCE_SCHEMA_VERSION"] = evidence.SchemaVersion
	launch.Environment = env

	restoreCmd, err := agentPlugin.GetRestoreCommand(launch)
	if err != nil {
		return nil, newErr(KindInternal, "restore", err)
	}
	if restoreCmd == "" {
		restoreCmd, err = agentPlugin.GetLaunchCommand(launch)
		if err != nil {
			return nil, newErr(KindInternal, "restore", err)
		}
	}
	launch.Command = restoreCmd

	handle, err := runtimePlugin.Create(ctx, launch)
	if err != nil {
		return nil, newErr(KindInternal, "restore", fmt.Errorf("create runtime: %w", err))
	}
	handleJSON, err := marshalHandle(handle)
	if err != nil {
		return nil, newErr(KindInternal, "restore", err)
	}

	patch := metadata.Fields{
		keyStatus:        string(model.StatusSpawning),
		keyRestoredAt:    formatTime(time.Now()),
		keyRuntimeHandle: handleJSON,
		keyWorktree:      workspacePath,
	}
	updated, err := project.Store.Update(sessionID, patch)
	if err != nil {
		return nil, newErr(KindInternal, "restore", err)
	}
	m.logbook.Info("restored session %s", sessionID)
	return fieldsToSession(sessionID, updated), nil
}

// CleanupResult reports how many sessions were killed vs skipped.
type CleanupResult struct {
	Killed  []string
	Skipped []string
}

// Cleanup kills every session in a project whose PR is merged, whose issue
// is completed, or whose runtime is dead: §4.2 cleanup.
func (m *Manager) Cleanup(ctx context.Context, projectID string) (CleanupResult, error) {
	result := CleanupResult{}
	sessions, err := m.List(ctx, projectID)
	if err != nil {
		return result, err
	}
	for _, sess := range sessions {
		shouldKill := false
		if sess.PR != nil {
			if scmPlugin, err := m.reg.SCM(m.pluginNameFor(sess.ProjectID, "scm")); err == nil {
				if state, err := scmPlugin.GetPRState(ctx, *sess.PR); err == nil && state == model.PRStateMerged {
					shouldKill = true
				}
			}
		}
		if !shouldKill && sess.IssueID != "" {
			if trackerPlugin, err := m.reg.Tracker(m.pluginNameFor(sess.ProjectID, "tracker")); err == nil {
				if issue, err := trackerPlugin.GetIssue(ctx, sess.IssueID, m.projects[sess.ProjectID].Model); err == nil && trackerPlugin.IsCompleted(issue) {
					shouldKill = true
				}
			}
		}
		if !shouldKill && sess.Status == model.StatusKilled {
			shouldKill = true
		}
		if shouldKill {
			if err := m.Kill(ctx, sess.ID); err != nil {
				m.obs.Warn(map[string]string{"op": "cleanup.kill", "session": sess.ID, "error": err.Error()})
				result.Skipped = append(result.Skipped, sess.ID)
				continue
			}
			result.Killed = append(result.Killed, sess.ID)
		} else {
			result.Skipped = append(result.Skipped, sess.ID)
		}
	}
	return result, nil
}

// Project resolves a configured project by its config id, for callers (the
// lifecycle manager, the CLI) that already know the project id rather than
// a session id.
func (m *Manager) Project(projectID string) (*ProjectRuntime, error) {
	return m.project(projectID)
}

// SessionProject resolves the project owning a session id, by matching its
// prefix.
func (m *Manager) SessionProject(sessionID string) (*ProjectRuntime, error) {
	return m.projectForSession(sessionID)
}

// ReadMetadata returns a session's raw metadata fields, or (nil, nil) if it
// does not exist. Used by the lifecycle manager, which needs direct access
// to fields session.Session does not model (escalation state, verifier
// tracking tokens, evidence fingerprints).
func (m *Manager) ReadMetadata(sessionID string) (metadata.Fields, error) {
	project, err := m.projectForSession(sessionID)
	if err != nil {
		return nil, err
	}
	return project.Store.Read(sessionID)
}

// UpdateMetadata merges patch into a session's stored fields and returns the
// resulting projection. An empty string value deletes the key.
func (m *Manager) UpdateMetadata(sessionID string, patch metadata.Fields) (*model.Session, error) {
	project, err := m.projectForSession(sessionID)
	if err != nil {
		return nil, err
	}
	updated, err := project.Store.Update(sessionID, patch)
	if err != nil {
		return nil, newErr(KindInternal, "update-metadata", err)
	}
	return fieldsToSession(sessionID, updated), nil
}

func (m *Manager) pluginNameFor(projectID, slot string) string {
	project, ok := m.projects[projectID]
	if !ok {
		return ""
	}
	switch slot {
	case "scm":
		return project.Config.Plugins.SCM
	case "tracker":
		return project.Config.Plugins.Tracker
	default:
		return ""
	}
}

func (m *Manager) projectForSession(sessionID string) (*ProjectRuntime, error) {
	prefix, _, ok := paths.ParseID(sessionID)
	if !ok {
		return nil, newErr(KindValidation, "resolve-session", fmt.Errorf("malformed session id %q", sessionID))
	}
	for _, project := range m.projects {
		if project.Config.Prefix == prefix {
			return project, nil
		}
	}
	return nil, newErr(KindSessionNotFound, "resolve-session", fmt.Errorf("no project matches session %q", sessionID))
}

func (m *Manager) allocateID(project *ProjectRuntime) (string, error) {
	active, err := project.Store.List()
	if err != nil {
		return "", err
	}
	archived, err := project.Store.AllArchivedIDs()
	if err != nil {
		return "", err
	}
	all := append(append([]string{}, active...), archived...)
	n := ids.NextN(project.Config.Prefix, all)
	return paths.FormatID(project.Config.Prefix, n), nil
}

func (m *Manager) deriveBranch(ctx context.Context, project *ProjectRuntime, sessionID, issueID, explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if issueID != "" && project.Config.Plugins.Tracker != "" {
		if trackerPlugin, err := m.reg.Tracker(project.Config.Plugins.Tracker); err == nil {
			if branch, err := trackerPlugin.BranchName(issueID, project.Model); err == nil && branch != "" {
				return branch, nil
			}
		}
	}
	if issueID != "" {
		return "feat/" + issueID, nil
	}
	return "session/" + sessionID, nil
}

func (m *Manager) generatePrompt(ctx context.Context, project *ProjectRuntime, issue model.Issue) (string, error) {
	trackerPlugin, err := m.reg.Tracker(project.Config.Plugins.Tracker)
	if err != nil {
		return "", err
	}
	return trackerPlugin.GeneratePrompt(issue, project.Model)
}
