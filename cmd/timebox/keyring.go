package main

import (
	"timebox/internal/config"
	"timebox/internal/identity"
)

// fileKeyring keeps credentials in the auth section of the config file.
type fileKeyring struct {
	path string
	cfg  *config.Client
}

func (k *fileKeyring) Load() (*identity.Credentials, error) {
	c := k.cfg.Auth
	if c == nil || c.RefreshToken == "" {
		return nil, nil
	}
	return &identity.Credentials{
		Identity:     identity.Identity{UserID: c.UserID, Name: c.Name, Email: c.Email},
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
	}, nil
}

func (k *fileKeyring) Save(c identity.Credentials) error {
	k.cfg.Auth = &config.Credentials{
		UserID:       c.UserID,
		Name:         c.Name,
		Email:        c.Email,
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
	}
	return config.SaveClient(k.path, k.cfg)
}

func (k *fileKeyring) Clear() error {
	k.cfg.Auth = nil
	return config.SaveClient(k.path, k.cfg)
}
