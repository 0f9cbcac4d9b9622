package validate

import (
	"context"
	"errors"
	"fmt"

	"github.com/slok/scriptrun/internal/binder"
	"github.com/slok/scriptrun/internal/log"
	"github.com/slok/scriptrun/internal/model"
	"github.com/slok/scriptrun/internal/policy"
	"github.com/slok/scriptrun/internal/storage"
)

// ServiceConfig is the configuration for the validate service.
type ServiceConfig struct {
	Scripts   storage.ScriptRepository
	Validator *policy.Validator
	Logger    log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Scripts == nil {
		return fmt.Errorf("scripts repository is required")
	}
	if c.Validator == nil {
		return fmt.Errorf("validator is required")
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Validate"})

	return nil
}

// Service checks scripts against the content policy without running them.
type Service struct {
	scripts   storage.ScriptRepository
	validator *policy.Validator
	logger    log.Logger
}

// NewService creates a new validate service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		scripts:   cfg.Scripts,
		validator: cfg.Validator,
		logger:    cfg.Logger,
	}, nil
}

// Request represents the validate request parameters.
type Request struct {
	ScriptPath string
	Trust      model.TrustLevel
	// Values are optional parameter values to check the binding with, nil skips the binding check.
	Values map[string]any
}

// Response is the validation report of a script.
type Response struct {
	Script  model.ScriptSource
	Trust   model.TrustLevel
	Allowed bool
	// Issues are the policy issues.
	Issues []string
	// BindingIssues are the parameter binding problems.
	BindingIssues []string
}

// Valid returns true if the script would be accepted.
func (r Response) Valid() bool { return r.Allowed && len(r.BindingIssues) == 0 }

// Run validates the script. Policy or binding rejections are not errors, they
// are reported on the response.
func (s *Service) Run(ctx context.Context, req Request) (*Response, error) {
	script, err := s.scripts.GetScript(ctx, req.ScriptPath)
	if err != nil {
		return nil, fmt.Errorf("could not load script: %w", err)
	}

	trust := req.Trust
	if trust != model.TrustLevelPrivileged {
		trust = model.TrustLevelRestricted
	}

	allowed, issues := s.validator.Validate(script.Content, trust)
	resp := &Response{
		Script:  script,
		Trust:   trust,
		Allowed: allowed,
		Issues:  issues,
	}

	if req.Values != nil {
		if _, err := binder.Bind(script.Parameters, req.Values); err != nil {
			resp.BindingIssues = bindingIssues(err)
		}
	}

	s.logger.Debugf("script %q validated at %s trust: %d issues", script.Name, trust, len(resp.Issues)+len(resp.BindingIssues))
	return resp, nil
}

func bindingIssues(err error) []string {
	var joined interface{ Unwrap() []error }
	if !errors.As(err, &joined) {
		return []string{err.Error()}
	}

	var issues []string
	for _, e := range joined.Unwrap() {
		issues = append(issues, e.Error())
	}
	return issues
}
