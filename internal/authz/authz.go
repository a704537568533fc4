// Package authz decides whether a principal may perform a mutation on a
// loaded entity. The role table lives in an embedded casbin policy; the
// relationship each rule needs (membership, assignment, authorship) is
// checked here against the entity snapshot.
package authz

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bidyaasp/project-management/internal/metrics"
	"github.com/bidyaasp/project-management/internal/models"
	"github.com/bidyaasp/project-management/pkg/logger"
	"github.com/bidyaasp/project-management/pkg/response"
	"github.com/casbin/casbin/v3"
)

//go:embed model.conf policy.csv
var embedFS embed.FS

// Principal is the authenticated actor of a request.
type Principal struct {
	ID   uint
	Role models.Role
}

// Action is a resource/verb pair matching a policy row.
type Action struct {
	Object string
	Verb   string
}

func (a Action) String() string { return a.Object + ":" + a.Verb }

var (
	ProjectCreate  = Action{"project", "create"}
	ProjectDelete  = Action{"project", "delete"}
	ProjectUpdate  = Action{"project", "update"}
	ProjectArchive = Action{"project", "archive"}

	TaskCreate         = Action{"task", "create"}
	TaskDelete         = Action{"task", "delete"}
	TaskUpdate         = Action{"task", "update"}
	TaskAssign         = Action{"task", "assign"}
	TaskUpdateStatus   = Action{"task", "update_status"}
	TaskUpdateDeadline = Action{"task", "update_deadline"}

	CommentCreate = Action{"comment", "create"}
	CommentDelete = Action{"comment", "delete"}

	TimeLogCreate = Action{"timelog", "create"}

	UserCreate           = Action{"user", "create"}
	UserDelete           = Action{"user", "delete"}
	UserToggleActivation = Action{"user", "toggle_activation"}

	RoleList = Action{"role", "list"}
)

// Scope is the relationship a policy row requires between principal and target.
type Scope string

const (
	ScopeAny      Scope = "any"
	ScopeMember   Scope = "member"
	ScopeAssignee Scope = "assignee"
	ScopeAuthor   Scope = "author"
	ScopeOther    Scope = "other"
)

var scopes = []Scope{ScopeAny, ScopeMember, ScopeAssignee, ScopeAuthor, ScopeOther}

// Target is the snapshot facts the scopes are evaluated against.
type Target struct {
	MemberIDs  []uint
	AssigneeID *uint
	AuthorID   *uint
	UserID     *uint
}

// None is the target of actions that do not touch an existing entity.
var None = Target{}

func ProjectTarget(memberIDs []uint) Target {
	return Target{MemberIDs: memberIDs}
}

func TaskTarget(t *models.Task) Target {
	return Target{AssigneeID: t.AssigneeID}
}

func CommentTarget(c *models.Comment, task *models.Task) Target {
	return Target{AuthorID: c.AuthorID, AssigneeID: task.AssigneeID}
}

func UserTarget(u *models.User) Target {
	id := u.ID
	return Target{UserID: &id}
}

// Authorizer evaluates the embedded policy.
type Authorizer struct {
	enforcer *casbin.Enforcer
}

// New loads the embedded model and policy into a casbin enforcer.
func New() (*Authorizer, error) {
	dir, err := os.MkdirTemp("", "pms-casbin-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	for _, name := range []string{"model.conf", "policy.csv"} {
		data, err := embedFS.ReadFile(name)
		if err != nil {
			return nil, err
		}
		if err := os.WriteFile(filepath.Join(dir, name), data, 0600); err != nil {
			return nil, err
		}
	}

	enforcer, err := casbin.NewEnforcer(
		filepath.Join(dir, "model.conf"),
		filepath.Join(dir, "policy.csv"),
	)
	if err != nil {
		return nil, fmt.Errorf("load authz policy: %w", err)
	}
	return &Authorizer{enforcer: enforcer}, nil
}

// Authorize returns nil when p may perform action on target and a
// Forbidden AppError otherwise.
func (a *Authorizer) Authorize(p Principal, action Action, target Target) error {
	allowed, err := a.Allowed(p, action, target)
	if err != nil {
		metrics.AuthzDecisions.WithLabelValues(action.String(), "error").Inc()
		return fmt.Errorf("authorize %s: %w", action, err)
	}
	if !allowed {
		metrics.AuthzDecisions.WithLabelValues(action.String(), "deny").Inc()
		logger.Debug().
			Uint("user_id", p.ID).
			Str("role", string(p.Role)).
			Str("action", action.String()).
			Msg("mutation denied")
		return response.NewForbidden()
	}
	metrics.AuthzDecisions.WithLabelValues(action.String(), "allow").Inc()
	return nil
}

// Allowed reports whether any policy row for the principal's role matches
// action with a scope that holds for target.
func (a *Authorizer) Allowed(p Principal, action Action, target Target) (bool, error) {
	if !p.Role.Valid() {
		return false, nil
	}
	for _, scope := range scopes {
		ok, err := a.enforcer.Enforce(string(p.Role), action.Object, action.Verb, string(scope))
		if err != nil {
			return false, err
		}
		if ok && scope.holds(p, target) {
			return true, nil
		}
	}
	return false, nil
}

func (s Scope) holds(p Principal, t Target) bool {
	switch s {
	case ScopeAny:
		return true
	case ScopeMember:
		for _, id := range t.MemberIDs {
			if id == p.ID {
				return true
			}
		}
		return false
	case ScopeAssignee:
		return t.AssigneeID != nil && *t.AssigneeID == p.ID
	case ScopeAuthor:
		return t.AuthorID != nil && *t.AuthorID == p.ID
	case ScopeOther:
		return t.UserID != nil && *t.UserID != p.ID
	default:
		return false
	}
}
