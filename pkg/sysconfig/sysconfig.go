// Package sysconfig holds the system policy knobs as an explicit,
// reloadable service object injected into the components that need it.
package sysconfig

import (
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

// ReviewPolicy decides how check-engine findings map to the initial order
// status at submission time.
type ReviewPolicy string

const (
	// PolicyRejectOnError rejects only when the check reports errors.
	PolicyRejectOnError ReviewPolicy = "reject-on-error"
	// PolicyRejectOnWarning rejects when the check reports warnings or errors.
	PolicyRejectOnWarning ReviewPolicy = "reject-on-warning"
)

// Config is the full set of policy and runtime knobs.
type Config struct {
	ReviewPolicy       ReviewPolicy  `validate:"oneof=reject-on-error reject-on-warning"`
	EnableBackupSwitch bool          // When false, backup is forced on engines that support it
	DisableStar        bool          // Reject query orders containing SELECT *
	ArtifactDir        string        `validate:"required"`
	NotifyQueue        string        // Redis list the notify dispatcher pushes to
	PollInterval       time.Duration `validate:"min=1s"`
}

// Default returns the configuration used when no overrides are supplied.
func Default() Config {
	return Config{
		ReviewPolicy: PolicyRejectOnError,
		ArtifactDir:  "./artifacts",
		NotifyQueue:  "sqlcron:notifications",
		PollInterval: time.Minute,
	}
}

// Service serves the current configuration and accepts explicit reloads.
// Readers always see a complete snapshot.
type Service struct {
	mu       sync.RWMutex
	cfg      Config
	validate *validator.Validate
}

// NewService validates and installs the initial configuration.
func NewService(cfg Config) (*Service, error) {
	s := &Service{validate: validator.New(validator.WithRequiredStructEnabled())}
	if err := s.Reload(cfg); err != nil {
		return nil, err
	}

	return s, nil
}

// Get returns the current configuration snapshot.
func (s *Service) Get() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.cfg
}

// Reload validates and atomically installs a new configuration. Callers
// invoke it on configuration-change events.
func (s *Service) Reload(cfg Config) error {
	if err := s.validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid system configuration: %w", err)
	}

	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()

	return nil
}
