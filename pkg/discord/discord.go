package discord

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// Error sentinels for Discord API operations.
var (
	// ErrAPI indicates a failure calling the Discord API.
	ErrAPI = errors.New("Discord API error")
)

const (
	// Discord API endpoints.
	defaultAPIURL = "https://discord.com/api/v10"

	// AuthorizeURL is the OAuth2 authorization endpoint.
	AuthorizeURL = "https://discord.com/oauth2/authorize"

	// TokenURL is the OAuth2 token endpoint.
	TokenURL = "https://discord.com/api/oauth2/token"

	// Default HTTP timeout.
	defaultTimeout = 30 * time.Second
)

// Client provides Discord API operations. User-scoped endpoints take the
// member's OAuth2 access token per call; guild endpoints use the
// application-level bot token.
type Client struct {
	log        logrus.FieldLogger
	botToken   string
	apiURL     string
	httpClient *http.Client
}

// NewClient creates a new Discord API client.
func NewClient(log logrus.FieldLogger, botToken string) *Client {
	return &Client{
		log:      log.WithField("component", "discord_client"),
		botToken: botToken,
		apiURL:   defaultAPIURL,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
}

// CurrentUser fetches the profile of the user the access token belongs to.
func (c *Client) CurrentUser(ctx context.Context, accessToken string) (*User, error) {
	var user User
	if err := c.get(ctx, "/users/@me", "Bearer "+accessToken, &user); err != nil {
		return nil, err
	}

	c.log.WithFields(logrus.Fields{
		"user_id":  user.ID,
		"username": user.Username,
	}).Debug("Fetched current user")

	return &user, nil
}

// UserConnections fetches the external accounts linked to the user the
// access token belongs to.
func (c *Client) UserConnections(ctx context.Context, accessToken string) ([]Connection, error) {
	var connections []Connection
	if err := c.get(ctx, "/users/@me/connections", "Bearer "+accessToken, &connections); err != nil {
		return nil, err
	}

	return connections, nil
}

// GuildRoles fetches all roles of a guild using the bot credential.
func (c *Client) GuildRoles(ctx context.Context, guildID string) ([]Role, error) {
	var roles []Role
	if err := c.get(ctx, fmt.Sprintf("/guilds/%s/roles", guildID), "Bot "+c.botToken, &roles); err != nil {
		return nil, err
	}

	return roles, nil
}

// GuildMember fetches a guild member using the bot credential.
func (c *Client) GuildMember(ctx context.Context, guildID, userID string) (*Member, error) {
	var member Member
	if err := c.get(ctx, fmt.Sprintf("/guilds/%s/members/%s", guildID, userID), "Bot "+c.botToken, &member); err != nil {
		return nil, err
	}

	return &member, nil
}

// get performs an authenticated GET request and decodes the JSON response.
func (c *Client) get(ctx context.Context, path, authorization string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+path, nil)
	if err != nil {
		return fmt.Errorf("%w: creating request: %v", ErrAPI, err)
	}

	req.Header.Set("Authorization", authorization)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrAPI, path, err)
	}

	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: %s: reading response: %v", ErrAPI, path, err)
	}

	if resp.StatusCode != http.StatusOK {
		c.log.WithFields(logrus.Fields{
			"path":        path,
			"status_code": resp.StatusCode,
		}).Error("Discord API request failed")

		return fmt.Errorf("%w: %s: status %d", ErrAPI, path, resp.StatusCode)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %s: parsing response: %v", ErrAPI, path, err)
	}

	return nil
}
