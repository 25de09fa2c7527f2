// Package groups resolves display names for group and contact ids,
// caching them in the database and refreshing on miss.
package groups

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"

	"sigclaw/internal/constants"
	"sigclaw/internal/models"

	"github.com/sirupsen/logrus"
)

// Lister fetches the account's current group list from the transport
type Lister interface {
	ListGroups(ctx context.Context) ([]models.Group, error)
}

// NameDatabase is the cache storage the service needs
type NameDatabase interface {
	SaveGroup(ctx context.Context, group *models.Group) error
	GetGroup(ctx context.Context, groupID string) (*models.Group, error)
	SaveContact(ctx context.Context, contact *models.Contact) error
	GetContact(ctx context.Context, phoneNumber string) (*models.Contact, error)
}

// Service provides cached name lookups with TTL and refresh-on-miss
type Service struct {
	db              NameDatabase
	lister          Lister
	cacheValidHours int
	logger          *logrus.Logger
}

// NewService creates a name service with the default cache TTL
func NewService(db NameDatabase, lister Lister, logger *logrus.Logger) *Service {
	return NewServiceWithConfig(db, lister, constants.DefaultGroupCacheHours, logger)
}

// NewServiceWithConfig creates a name service with a custom cache TTL
func NewServiceWithConfig(db NameDatabase, lister Lister, cacheValidHours int, logger *logrus.Logger) *Service {
	if cacheValidHours <= 0 {
		cacheValidHours = constants.DefaultGroupCacheHours
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Service{
		db:              db,
		lister:          lister,
		cacheValidHours: cacheValidHours,
		logger:          logger,
	}
}

// GetGroupName returns the display name for a group id. Cache misses and
// stale entries trigger a refresh of the whole group list; if that fails
// the raw id is returned so message handling never blocks on naming.
func (s *Service) GetGroupName(ctx context.Context, groupID string) string {
	group, err := s.db.GetGroup(ctx, groupID)
	if err != nil {
		s.logger.WithError(err).WithField("group_id", groupID).Warn("Group cache lookup failed")
		return groupID
	}
	if group != nil && !s.expired(group.CachedAt) {
		return group.Name
	}

	if err := s.RefreshGroups(ctx); err != nil {
		s.logger.WithError(err).WithField("group_id", groupID).Warn("Group refresh failed, using cached or raw id")
		if group != nil {
			return group.Name
		}
		return groupID
	}

	group, err = s.db.GetGroup(ctx, groupID)
	if err != nil || group == nil {
		return groupID
	}
	return group.Name
}

// RefreshGroups fetches the full group list and updates the cache
func (s *Service) RefreshGroups(ctx context.Context) error {
	if s.lister == nil {
		return fmt.Errorf("no group lister configured")
	}

	listed, err := s.lister.ListGroups(ctx)
	if err != nil {
		return fmt.Errorf("failed to list groups: %w", err)
	}

	for i := range listed {
		group := listed[i]
		group.CachedAt = time.Now().UTC()
		if err := s.db.SaveGroup(ctx, &group); err != nil {
			s.logger.WithError(err).WithField("group_id", group.GroupID).Warn("Failed to cache group name")
		}
	}

	s.logger.WithField("groups", len(listed)).Debug("Group name cache refreshed")
	return nil
}

// GetContactName returns a display name for a sender. A name carried on
// the envelope is authoritative and refreshes the cache; otherwise the
// cache is consulted, falling back to the raw phone number.
func (s *Service) GetContactName(ctx context.Context, phoneNumber, envelopeName string) string {
	if envelopeName != "" {
		s.rememberContact(ctx, phoneNumber, envelopeName)
		return envelopeName
	}

	contact, err := s.db.GetContact(ctx, phoneNumber)
	if err != nil {
		s.logger.WithError(err).WithField("phone", phoneNumber).Warn("Contact cache lookup failed")
		return phoneNumber
	}
	if contact != nil && contact.Name != "" {
		return contact.Name
	}
	return phoneNumber
}

func (s *Service) rememberContact(ctx context.Context, phoneNumber, name string) {
	existing, err := s.db.GetContact(ctx, phoneNumber)
	if err == nil && existing != nil && existing.Name == name && !s.expired(existing.CachedAt) {
		return
	}
	if err := s.db.SaveContact(ctx, &models.Contact{
		PhoneNumber: phoneNumber,
		Name:        name,
		CachedAt:    time.Now().UTC(),
	}); err != nil {
		s.logger.WithError(err).WithField("phone", phoneNumber).Warn("Failed to cache contact name")
	}
}

func (s *Service) expired(cachedAt time.Time) bool {
	return time.Since(cachedAt) > time.Duration(s.cacheValidHours)*time.Hour
}

// CLILister shells out to `signal-cli listGroups` for the group list
type CLILister struct {
	CLIPath string
	Account string
}

type listedGroup struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ListGroups fetches the current group list from signal-cli
func (l *CLILister) ListGroups(ctx context.Context) ([]models.Group, error) {
	out, err := exec.CommandContext(ctx, l.CLIPath, "-a", l.Account, "-o", "json", "listGroups").Output()
	if err != nil {
		return nil, fmt.Errorf("listGroups failed: %w", err)
	}

	var listed []listedGroup
	if err := json.Unmarshal(out, &listed); err != nil {
		return nil, fmt.Errorf("failed to decode group list: %w", err)
	}

	groups := make([]models.Group, 0, len(listed))
	for _, g := range listed {
		if g.ID == "" {
			continue
		}
		name := g.Name
		if name == "" {
			name = g.ID
		}
		groups = append(groups, models.Group{GroupID: g.ID, Name: name})
	}
	return groups, nil
}
