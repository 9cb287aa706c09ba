package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// In-memory repositories backing tests and local development without a
// database. They enforce the same guards as the Postgres layer: invitation
// code uniqueness over non-deleted projects, one entry per (project, user),
// the active-member cap, and committed-status checks on transitions.

type memoryStore struct {
	mu         sync.Mutex
	projects   map[string]*Project
	members    map[string][]*Member // projectID -> entries
	tasks      map[string]*Task
	activities []*TaskActivity
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		projects: make(map[string]*Project),
		members:  make(map[string][]*Member),
		tasks:    make(map[string]*Task),
	}
}

func cloneProject(p *Project) *Project {
	cp := *p
	cp.Members = nil
	return &cp
}

func cloneMember(m *Member) *Member {
	cm := *m
	return &cm
}

func cloneTask(t *Task) *Task {
	ct := *t
	ct.Labels = append([]string(nil), t.Labels...)
	ct.Watchers = append([]string(nil), t.Watchers...)
	return &ct
}

func cloneActivity(a *TaskActivity) *TaskActivity {
	ca := *a
	return &ca
}

// ============================================
// Project repository
// ============================================

type memProjectRepository struct {
	store *memoryStore
}

func (r *memProjectRepository) Create(ctx context.Context, project *Project, creator *Member) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.projects {
		if p.Status != "deleted" && strings.EqualFold(p.InvitationCode, project.InvitationCode) {
			return ErrDuplicate
		}
	}

	now := time.Now()
	project.ID = uuid.NewString()
	project.CreatedAt = now
	project.UpdatedAt = now
	s.projects[project.ID] = cloneProject(project)

	creator.ID = uuid.NewString()
	creator.ProjectID = project.ID
	s.members[project.ID] = []*Member{cloneMember(creator)}
	return nil
}

func (r *memProjectRepository) FindByID(ctx context.Context, id string) (*Project, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok {
		return nil, nil
	}
	out := cloneProject(p)
	r.fillMetadata(out)
	return out, nil
}

func (r *memProjectRepository) fillMetadata(p *Project) {
	total, done := 0, 0
	for _, t := range r.store.tasks {
		if t.ProjectID == p.ID && !t.IsDeleted {
			total++
			if t.Status == "done" {
				done++
			}
		}
	}
	p.TotalTasks = total
	p.CompletedTasks = done
}

func (r *memProjectRepository) FindByInvitationCode(ctx context.Context, code string) (*Project, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.projects {
		if p.Status != "deleted" && strings.EqualFold(p.InvitationCode, code) {
			out := cloneProject(p)
			r.fillMetadata(out)
			return out, nil
		}
	}
	return nil, nil
}

func (r *memProjectRepository) FindByUserID(ctx context.Context, userID string, opts *ProjectListOptions) ([]*Project, int, error) {
	if opts == nil {
		opts = &ProjectListOptions{Limit: 20}
	}
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []*Project
	for _, p := range s.projects {
		var entry *Member
		for _, m := range s.members[p.ID] {
			if m.UserID == userID && m.Status == "active" {
				entry = m
				break
			}
		}
		if entry == nil {
			continue
		}
		if opts.Status != "" {
			if p.Status != opts.Status {
				continue
			}
		} else if p.Status == "deleted" {
			continue
		}
		if opts.Role != "" && entry.Role != opts.Role {
			continue
		}
		if opts.Search != "" {
			q := strings.ToLower(opts.Search)
			desc := ""
			if p.Description != nil {
				desc = *p.Description
			}
			if !strings.Contains(strings.ToLower(p.Name), q) &&
				!strings.Contains(strings.ToLower(desc), q) {
				continue
			}
		}
		out := cloneProject(p)
		r.fillMetadata(out)
		matched = append(matched, out)
	}

	sortKey := opts.Sort
	if sortKey == "" {
		sortKey = "-updatedAt"
	}
	desc := strings.HasPrefix(sortKey, "-")
	sortKey = strings.TrimPrefix(sortKey, "-")
	sort.SliceStable(matched, func(i, j int) bool {
		var less bool
		switch sortKey {
		case "name":
			less = matched[i].Name < matched[j].Name
		case "createdAt":
			less = matched[i].CreatedAt.Before(matched[j].CreatedAt)
		default:
			less = matched[i].UpdatedAt.Before(matched[j].UpdatedAt)
		}
		if desc {
			return !less
		}
		return less
	})

	total := len(matched)
	matched = paginate(matched, opts.Limit, opts.Offset)
	return matched, total, nil
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func (r *memProjectRepository) Update(ctx context.Context, project *Project) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.projects[project.ID]
	if !ok {
		return ErrInvalidID
	}
	project.CreatedAt = cur.CreatedAt
	project.UpdatedAt = time.Now()
	s.projects[project.ID] = cloneProject(project)
	return nil
}

func (r *memProjectRepository) FindMembers(ctx context.Context, projectID, status string) ([]*Member, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	var members []*Member
	for _, m := range s.members[projectID] {
		if status == "" || m.Status == status {
			members = append(members, cloneMember(m))
		}
	}
	sort.SliceStable(members, func(i, j int) bool {
		if (members[i].Role == "admin") != (members[j].Role == "admin") {
			return members[i].Role == "admin"
		}
		return members[i].JoinedAt.Before(members[j].JoinedAt)
	})
	return members, nil
}

func (r *memProjectRepository) FindMember(ctx context.Context, projectID, userID string) (*Member, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.members[projectID] {
		if m.UserID == userID && m.UserID != "" {
			return cloneMember(m), nil
		}
	}
	return nil, nil
}

func (r *memProjectRepository) FindMemberByEmail(ctx context.Context, projectID, email string) (*Member, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.members[projectID] {
		if m.Email != "" && strings.EqualFold(m.Email, email) {
			return cloneMember(m), nil
		}
	}
	return nil, nil
}

func (r *memProjectRepository) activeCount(projectID string) int {
	count := 0
	for _, m := range r.store.members[projectID] {
		if m.Status == "active" {
			count++
		}
	}
	return count
}

func (r *memProjectRepository) AddMember(ctx context.Context, member *Member, maxMembers *int) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range s.members[member.ProjectID] {
		if member.UserID != "" && m.UserID == member.UserID {
			return ErrDuplicate
		}
		if member.Email != "" && m.Email != "" && strings.EqualFold(m.Email, member.Email) {
			return ErrDuplicate
		}
	}
	if member.Status == "active" && maxMembers != nil && r.activeCount(member.ProjectID) >= *maxMembers {
		return ErrMemberLimit
	}

	member.ID = uuid.NewString()
	s.members[member.ProjectID] = append(s.members[member.ProjectID], cloneMember(member))
	return nil
}

func (r *memProjectRepository) UpdateMember(ctx context.Context, member *Member, maxMembers *int) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.members[member.ProjectID]
	for i, m := range entries {
		if m.ID != member.ID {
			continue
		}
		if member.Status == "active" && m.Status != "active" &&
			maxMembers != nil && r.activeCount(member.ProjectID) >= *maxMembers {
			return ErrMemberLimit
		}
		entries[i] = cloneMember(member)
		return nil
	}
	return ErrInvalidID
}

func (r *memProjectRepository) ExpireInvitedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	expired := 0
	for _, entries := range s.members {
		for _, m := range entries {
			if m.Status == "invited" && m.InvitationSentAt != nil && m.InvitationSentAt.Before(cutoff) {
				m.Status = "removed"
				expired++
			}
		}
	}
	return expired, nil
}

// ============================================
// Task repository
// ============================================

type memTaskRepository struct {
	store *memoryStore
}

func (r *memTaskRepository) appendActivity(a *TaskActivity) {
	if a == nil {
		return
	}
	a.ID = uuid.NewString()
	a.CreatedAt = time.Now()
	r.store.activities = append(r.store.activities, cloneActivity(a))
}

func (r *memTaskRepository) Create(ctx context.Context, task *Task, activity *TaskActivity) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	task.ID = uuid.NewString()
	task.CreatedAt = now
	task.UpdatedAt = now
	task.LastStatusChangeAt = now
	s.tasks[task.ID] = cloneTask(task)

	if activity != nil {
		activity.TaskID = task.ID
		r.appendActivity(activity)
	}
	return nil
}

func (r *memTaskRepository) FindByID(ctx context.Context, id string) (*Task, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, nil
	}
	return cloneTask(t), nil
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func (r *memTaskRepository) FindByProjectID(ctx context.Context, projectID string, f *TaskFilters) ([]*Task, int, error) {
	if f == nil {
		f = &TaskFilters{Limit: 20}
	}
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []*Task
	for _, t := range s.tasks {
		if t.ProjectID != projectID {
			continue
		}
		if !f.IncludeDeleted && t.IsDeleted {
			continue
		}
		if len(f.Status) > 0 && !contains(f.Status, t.Status) {
			continue
		}
		if len(f.Priority) > 0 && !contains(f.Priority, t.Priority) {
			continue
		}
		if len(f.Assignee) > 0 && (t.Assignee == nil || !contains(f.Assignee, *t.Assignee)) {
			continue
		}
		if len(f.Labels) > 0 {
			any := false
			for _, l := range f.Labels {
				if contains(t.Labels, l) {
					any = true
					break
				}
			}
			if !any {
				continue
			}
		}
		if f.DueFrom != nil && (t.DueDate == nil || t.DueDate.Before(*f.DueFrom)) {
			continue
		}
		if f.DueTo != nil && (t.DueDate == nil || t.DueDate.After(*f.DueTo)) {
			continue
		}
		if f.Search != "" {
			q := strings.ToLower(f.Search)
			desc := ""
			if t.Description != nil {
				desc = *t.Description
			}
			if !strings.Contains(strings.ToLower(t.Title), q) &&
				!strings.Contains(strings.ToLower(desc), q) {
				continue
			}
		}
		matched = append(matched, cloneTask(t))
	}

	sortKey := f.Sort
	if sortKey == "" {
		sortKey = "-createdAt"
	}
	desc := strings.HasPrefix(sortKey, "-")
	sortKey = strings.TrimPrefix(sortKey, "-")
	sort.SliceStable(matched, func(i, j int) bool {
		var less bool
		a, b := matched[i], matched[j]
		switch sortKey {
		case "title":
			less = a.Title < b.Title
		case "status":
			less = a.Status < b.Status
		case "priority":
			less = a.Priority < b.Priority
		case "updatedAt":
			less = a.UpdatedAt.Before(b.UpdatedAt)
		case "dueDate":
			switch {
			case a.DueDate == nil:
				less = false
			case b.DueDate == nil:
				less = true
			default:
				less = a.DueDate.Before(*b.DueDate)
			}
		default:
			less = a.CreatedAt.Before(b.CreatedAt)
		}
		if desc {
			return !less
		}
		return less
	})

	total := len(matched)
	matched = paginate(matched, f.Limit, f.Offset)
	return matched, total, nil
}

func (r *memTaskRepository) Update(ctx context.Context, task *Task, activity *TaskActivity) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.tasks[task.ID]
	if !ok {
		return ErrInvalidID
	}
	if !cur.UpdatedAt.Equal(task.UpdatedAt) {
		return ErrConflict
	}
	task.CreatedAt = cur.CreatedAt
	task.UpdatedAt = time.Now()
	s.tasks[task.ID] = cloneTask(task)
	r.appendActivity(activity)
	return nil
}

func (r *memTaskRepository) UpdateStatus(ctx context.Context, taskID, from, to string, activity *TaskActivity) (*Task, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.tasks[taskID]
	if !ok {
		return nil, ErrInvalidID
	}
	if cur.Status != from {
		return nil, ErrConflict
	}
	now := time.Now()
	cur.Status = to
	cur.LastStatusChangeAt = now
	cur.UpdatedAt = now
	r.appendActivity(activity)
	return cloneTask(cur), nil
}

func (r *memTaskRepository) SoftDelete(ctx context.Context, taskID string, activity *TaskActivity) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.tasks[taskID]
	if !ok || cur.IsDeleted {
		return ErrConflict
	}
	cur.IsDeleted = true
	cur.UpdatedAt = time.Now()
	r.appendActivity(activity)
	return nil
}

func (r *memTaskRepository) ArchiveByProject(ctx context.Context, projectID string) (int, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	archived := 0
	now := time.Now()
	for _, t := range s.tasks {
		if t.ProjectID != projectID || t.IsDeleted || t.Status == "archived" {
			continue
		}
		prev := t.Status
		t.Status = "archived"
		t.LastStatusChangeAt = now
		t.UpdatedAt = now
		r.appendActivity(&TaskActivity{
			TaskID:    t.ID,
			ProjectID: projectID,
			Action:    "archive",
			From:      JSONMap{"status": prev},
			To:        JSONMap{"status": "archived"},
			Metadata:  JSONMap{"reason": "project_archived"},
		})
		archived++
	}
	return archived, nil
}

func (r *memTaskRepository) FindDueSoon(ctx context.Context, within time.Duration) ([]*Task, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	deadline := time.Now().Add(within)
	var due []*Task
	for _, t := range s.tasks {
		if t.IsDeleted || t.Assignee == nil || t.DueDate == nil {
			continue
		}
		if t.Status == "done" || t.Status == "archived" {
			continue
		}
		if t.DueDate.After(time.Now()) && t.DueDate.Before(deadline) {
			due = append(due, cloneTask(t))
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].DueDate.Before(*due[j].DueDate) })
	return due, nil
}

// ============================================
// Activity repository (read side)
// ============================================

type memActivityRepository struct {
	store *memoryStore
}

func (r *memActivityRepository) find(match func(*TaskActivity) bool, limit, offset int) ([]*TaskActivity, int, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = 50
	}
	var all []*TaskActivity
	for _, a := range s.activities {
		if match(a) {
			all = append(all, cloneActivity(a))
		}
	}
	// newest first; ties resolved by append order
	for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
		all[i], all[j] = all[j], all[i]
	}
	total := len(all)
	return paginate(all, limit, offset), total, nil
}

func (r *memActivityRepository) FindByTaskID(ctx context.Context, taskID string, limit, offset int) ([]*TaskActivity, int, error) {
	return r.find(func(a *TaskActivity) bool { return a.TaskID == taskID }, limit, offset)
}

func (r *memActivityRepository) FindByProjectID(ctx context.Context, projectID string, limit, offset int) ([]*TaskActivity, int, error) {
	return r.find(func(a *TaskActivity) bool { return a.ProjectID == projectID }, limit, offset)
}

func (r *memActivityRepository) FindByActor(ctx context.Context, actor string, limit, offset int) ([]*TaskActivity, int, error) {
	return r.find(func(a *TaskActivity) bool { return a.Actor != nil && *a.Actor == actor }, limit, offset)
}
