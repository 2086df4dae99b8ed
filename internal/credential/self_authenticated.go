package credential

import (
	"context"

	"github.com/tinywideclouds/go-broadcast-service/pkg/notify"
)

// SelfAuthenticated stands in for the Manager when the driver signs its own
// requests (firebase SDK, APNs). It hands out an empty access token.
type SelfAuthenticated struct {
	ProjectID       string
	RequiresProject bool
}

func (s SelfAuthenticated) Validate() error {
	if s.RequiresProject && s.ProjectID == "" {
		return &notify.MissingCredentialConfigError{Field: "project_id"}
	}
	return nil
}

func (s SelfAuthenticated) AccessToken(context.Context) (string, error) {
	if err := s.Validate(); err != nil {
		return "", err
	}
	return "", nil
}
