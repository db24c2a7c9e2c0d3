package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/roadwatch/roadwatch/internal/models"
)

// RecipientKind distinguishes role tags from explicit user ids.
type RecipientKind int

const (
	RecipientUser RecipientKind = iota
	RecipientRole
)

// Recipient is one element of a recipient specification: either a role tag or a user id.
type Recipient struct {
	Kind  RecipientKind
	Value string
}

// RoleRecipient targets every active user holding role. models.RoleAll targets everyone.
func RoleRecipient(role string) Recipient {
	return Recipient{Kind: RecipientRole, Value: strings.ToLower(strings.TrimSpace(role))}
}

// UserRecipient targets a single user.
func UserRecipient(id string) Recipient {
	return Recipient{Kind: RecipientUser, Value: strings.TrimSpace(id)}
}

// Users builds user recipients from ids, skipping blanks.
func Users(ids ...string) []Recipient {
	out := make([]Recipient, 0, len(ids))
	for _, id := range ids {
		if strings.TrimSpace(id) == "" {
			continue
		}
		out = append(out, UserRecipient(id))
	}
	return out
}

// IsRoleTag reports whether value names one of the closed set of role tags.
func IsRoleTag(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case models.RoleAdmin, models.RoleStaff, models.RoleCitizen, models.RoleAll:
		return true
	default:
		return false
	}
}

// ParseRecipients classifies raw strings by membership in the role tag set; anything else is
// a user id. Blank entries are skipped.
func ParseRecipients(values []string) []Recipient {
	out := make([]Recipient, 0, len(values))
	for _, value := range values {
		if strings.TrimSpace(value) == "" {
			continue
		}
		if IsRoleTag(value) {
			out = append(out, RoleRecipient(value))
			continue
		}
		out = append(out, UserRecipient(value))
	}
	return out
}

// UserDirectory answers the questions fan-out needs about the platform's users.
type UserDirectory interface {
	// ActiveUserIDsByRole lists active users holding role; models.RoleAll lists every active user.
	ActiveUserIDsByRole(ctx context.Context, role string) ([]string, error)
	// Lookup returns the users found among ids, keyed by id.
	Lookup(ctx context.Context, ids []string) (map[string]models.User, error)
}

// RecipientResolver expands recipient specifications into concrete user ids.
type RecipientResolver struct {
	directory UserDirectory
}

// NewRecipientResolver constructs a resolver backed by directory.
func NewRecipientResolver(directory UserDirectory) (*RecipientResolver, error) {
	if directory == nil {
		return nil, errors.New("recipient resolver: directory is required")
	}
	return &RecipientResolver{directory: directory}, nil
}

// Resolve returns the deduplicated, sorted set of user ids named by recipients. Role tags
// expand to active users; explicit ids pass through unchanged.
func (r *RecipientResolver) Resolve(ctx context.Context, recipients []Recipient) ([]string, error) {
	ctx = ensureContext(ctx)
	if len(recipients) == 0 {
		return []string{}, nil
	}

	var (
		ids   []string
		roles = make(map[string]struct{})
	)
	for _, recipient := range recipients {
		switch recipient.Kind {
		case RecipientRole:
			roles[strings.ToLower(strings.TrimSpace(recipient.Value))] = struct{}{}
		default:
			ids = append(ids, recipient.Value)
		}
	}

	// "all" already covers every other role.
	if _, ok := roles[models.RoleAll]; ok {
		roles = map[string]struct{}{models.RoleAll: {}}
	}

	for role := range roles {
		if !IsRoleTag(role) {
			return nil, validationError("unknown role %q", role)
		}
		members, err := r.directory.ActiveUserIDsByRole(ctx, role)
		if err != nil {
			return nil, persistenceError(fmt.Sprintf("resolve role %s", role), err)
		}
		ids = append(ids, members...)
	}

	resolved := normaliseIDs(ids)
	if resolved == nil {
		return []string{}, nil
	}
	sort.Strings(resolved)
	return resolved, nil
}
