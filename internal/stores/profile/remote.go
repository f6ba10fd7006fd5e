package profile

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/url"

	"project-recommender/internal/common/errors"
	commonhttp "project-recommender/internal/common/http"
	"project-recommender/internal/models"
)

// RemoteStore reads profiles from the marketplace API.
type RemoteStore struct {
	config *Config
	client *commonhttp.Client
}

func NewRemoteStore(config *Config, client *commonhttp.Client) *RemoteStore {
	if config == nil {
		config = LoadConfig()
	}
	return &RemoteStore{config: config, client: client}
}

func (s *RemoteStore) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	var profile models.Profile
	err := s.client.GetJSON(ctx, fmt.Sprintf(s.config.RemotePath, url.PathEscape(userID)), nil, &profile)
	if err != nil {
		var statusErr *commonhttp.StatusError
		if stderrors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
			return nil, errors.NewResourceNotFoundError("profile", userID)
		}
		return nil, errors.NewUpstreamUnavailableError("profile-api", err)
	}
	if profile.ID == "" {
		profile.ID = userID
	}
	return &profile, nil
}
