package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rulescraft/cursorrulescraft/internal/apperror"
	"github.com/rulescraft/cursorrulescraft/internal/model"
	"github.com/rulescraft/cursorrulescraft/internal/repository"
)

const (
	MaxRuleNameLength    = 100
	MaxRuleContentLength = 100000 // ~100KB of rule text
)

// RuleService is the cursor-rule CRUD. Access follows the owning
// repository: whoever can see the repository can manage its rules.
type RuleService struct {
	store  repository.ScopedStore
	logger *slog.Logger
}

// NewRuleService creates a RuleService.
func NewRuleService(store repository.ScopedStore, logger *slog.Logger) *RuleService {
	return &RuleService{store: store, logger: logger}
}

// authorizedRepository verifies the acting user can see the repository the
// rule hangs off. Same membership-or-NotFound policy as RepoService.
func (s *RuleService) authorizedRepository(ctx context.Context, userID, repositoryID string) (*model.Repository, error) {
	repo, err := s.store.GetRepositoryByID(ctx, repositoryID)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.GetWorkspaceForMember(ctx, repo.WorkspaceID, userID); err != nil {
		return nil, apperror.NotFound("repository", repositoryID)
	}
	return repo, nil
}

func validateRule(name, content string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", apperror.ValidationFailed("name", "rule name is required")
	}
	if len(name) > MaxRuleNameLength {
		return "", apperror.ValidationFailed("name",
			fmt.Sprintf("rule name must be %d characters or less", MaxRuleNameLength))
	}
	if len(content) > MaxRuleContentLength {
		return "", apperror.ValidationFailed("content",
			fmt.Sprintf("rule content must be %d characters or less", MaxRuleContentLength))
	}
	return name, nil
}

// List returns a repository's rules.
func (s *RuleService) List(ctx context.Context, userID, repositoryID string) ([]model.Rule, error) {
	if _, err := s.authorizedRepository(ctx, userID, repositoryID); err != nil {
		return nil, err
	}
	return s.store.ListRules(ctx, repositoryID)
}

// Get returns one rule.
func (s *RuleService) Get(ctx context.Context, userID, ruleID string) (*model.Rule, error) {
	rule, err := s.store.GetRuleByID(ctx, ruleID)
	if err != nil {
		return nil, err
	}
	if _, err := s.authorizedRepository(ctx, userID, rule.RepositoryID); err != nil {
		return nil, apperror.NotFound("rule", ruleID)
	}
	return rule, nil
}

// Create adds a rule to a repository.
func (s *RuleService) Create(ctx context.Context, userID, repositoryID string, rule *model.Rule) (*model.Rule, error) {
	if _, err := s.authorizedRepository(ctx, userID, repositoryID); err != nil {
		return nil, err
	}

	name, err := validateRule(rule.Name, rule.Content)
	if err != nil {
		return nil, err
	}
	rule.Name = name
	rule.RepositoryID = repositoryID
	rule.Description = strings.TrimSpace(rule.Description)

	if err := s.store.CreateRule(ctx, rule); err != nil {
		return nil, err
	}

	s.logger.Info("rule created",
		slog.String("ruleID", rule.ID),
		slog.String("repositoryID", repositoryID),
		slog.String("name", rule.Name),
	)
	return rule, nil
}

// Update rewrites a rule's fields.
func (s *RuleService) Update(ctx context.Context, userID, ruleID string, update *model.Rule) (*model.Rule, error) {
	rule, err := s.Get(ctx, userID, ruleID)
	if err != nil {
		return nil, err
	}

	name, err := validateRule(update.Name, update.Content)
	if err != nil {
		return nil, err
	}
	rule.Name = name
	rule.Description = strings.TrimSpace(update.Description)
	rule.Content = update.Content
	rule.Globs = update.Globs
	rule.AlwaysApply = update.AlwaysApply

	if err := s.store.UpdateRule(ctx, rule); err != nil {
		return nil, err
	}

	s.logger.Info("rule updated", slog.String("ruleID", rule.ID))
	return rule, nil
}

// Delete removes a rule.
func (s *RuleService) Delete(ctx context.Context, userID, ruleID string) error {
	if _, err := s.Get(ctx, userID, ruleID); err != nil {
		return err
	}
	if err := s.store.DeleteRule(ctx, ruleID); err != nil {
		return err
	}
	s.logger.Info("rule deleted", slog.String("ruleID", ruleID))
	return nil
}
