package directory

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/approvers/members-db/pkg/discord"
	"github.com/approvers/members-db/pkg/repository"
)

// Connection kinds surfaced in directory rows. Other kinds are ignored.
const (
	connectionKindTwitter = "twitter"
	connectionKindGitHub  = "github"
)

// TokenRefresher obtains a fresh access token for a member.
type TokenRefresher interface {
	Refresh(ctx context.Context, memberID string) (string, error)
}

// GuildClient is the subset of the Discord API the aggregator consumes.
type GuildClient interface {
	UserConnections(ctx context.Context, accessToken string) ([]discord.Connection, error)
	GuildRoles(ctx context.Context, guildID string) ([]discord.Role, error)
	GuildMember(ctx context.Context, guildID, userID string) (*discord.Member, error)
}

// Service aggregates stored member credentials with live Discord data.
type Service struct {
	log         logrus.FieldLogger
	store       repository.Store
	refresher   TokenRefresher
	discord     GuildClient
	guildID     string
	concurrency int
}

// NewService creates a new directory service.
func NewService(
	log logrus.FieldLogger,
	store repository.Store,
	refresher TokenRefresher,
	guildClient GuildClient,
	guildID string,
	concurrency int,
) *Service {
	if concurrency < 1 {
		concurrency = 1
	}

	return &Service{
		log:         log.WithField("component", "directory"),
		store:       store,
		refresher:   refresher,
		discord:     guildClient,
		guildID:     guildID,
		concurrency: concurrency,
	}
}

// ListMembers resolves every linked member into a directory row. Rows are
// resolved concurrently, bounded by the configured limit, and keep the
// repository's read order. Every row is attempted, but if any resolution
// failed the whole call fails; no partial directory is returned.
func (s *Service) ListMembers(ctx context.Context) ([]Row, error) {
	credentials, err := s.store.ListMemberCredentials(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing member credentials: %w", err)
	}

	rows := make([]Row, len(credentials))

	// A plain group (no shared cancellation) so one failing row does not
	// stop the others from being attempted.
	var g errgroup.Group

	g.SetLimit(s.concurrency)

	for i, credential := range credentials {
		i, credential := i, credential

		g.Go(func() error {
			row, err := s.resolveRow(ctx, credential)
			if err != nil {
				s.log.WithField("member_id", credential.MemberID).WithError(err).Error("Failed to resolve member row")

				return err
			}

			rows[i] = *row

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return rows, nil
}

// GetMember resolves a single member's directory row. Returns (nil, nil)
// when the member has never linked an account.
func (s *Service) GetMember(ctx context.Context, memberID string) (*Row, error) {
	credential, err := s.store.GetMemberCredential(ctx, memberID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}

		return nil, fmt.Errorf("getting member credential: %w", err)
	}

	return s.resolveRow(ctx, credential)
}

// resolveRow builds one directory row. The refresh happens first so the
// connections fetch always uses a current token. Role data is cosmetic and
// degrades to "no role" on failure; refresh and connections failures are
// fatal to the row.
func (s *Service) resolveRow(ctx context.Context, credential *repository.MemberCredential) (*Row, error) {
	accessToken, err := s.refresher.Refresh(ctx, credential.MemberID)
	if err != nil {
		return nil, fmt.Errorf("refreshing token: %w", err)
	}

	connections, err := s.discord.UserConnections(ctx, accessToken)
	if err != nil {
		return nil, fmt.Errorf("fetching connections: %w", err)
	}

	row := &Row{
		MemberID:    credential.MemberID,
		DisplayName: credential.DisplayName,
		Twitter:     make([]string, 0, len(connections)),
		GitHub:      make([]string, 0, len(connections)),
	}

	for _, connection := range connections {
		switch connection.Kind {
		case connectionKindTwitter:
			row.Twitter = append(row.Twitter, connection.ID)
		case connectionKindGitHub:
			row.GitHub = append(row.GitHub, connection.ID)
		}
	}

	if role := s.highestRole(ctx, credential.MemberID); role != nil {
		row.Role = &RoleInfo{
			Name:  role.Name,
			Color: role.HexColor(),
		}
	}

	return row, nil
}

// highestRole determines the member's highest guild role. Failures here are
// downgraded to "no role" rather than failing the row.
func (s *Service) highestRole(ctx context.Context, memberID string) *discord.Role {
	guildRoles, err := s.discord.GuildRoles(ctx, s.guildID)
	if err != nil {
		s.log.WithField("guild_id", s.guildID).WithError(err).Warn("Could not fetch guild roles")

		return nil
	}

	member, err := s.discord.GuildMember(ctx, s.guildID, memberID)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"guild_id":  s.guildID,
			"member_id": memberID,
		}).WithError(err).Warn("Could not fetch guild member")

		return nil
	}

	rolesByID := make(map[string]*discord.Role, len(guildRoles))
	for i := range guildRoles {
		rolesByID[guildRoles[i].ID] = &guildRoles[i]
	}

	var highest *discord.Role

	for _, roleID := range member.Roles {
		role, ok := rolesByID[roleID]
		if !ok {
			// The member may hold a role our view of the guild is stale
			// about.
			s.log.WithFields(logrus.Fields{
				"guild_id": s.guildID,
				"role_id":  roleID,
			}).Warn("Assigned role not present in guild role list")

			continue
		}

		if highest == nil || roleOutranks(role, highest) {
			highest = role
		}
	}

	return highest
}

// roleOutranks reports whether candidate ranks above best: greater position
// wins, and on equal positions the numerically smaller role ID wins (older
// roles rank first on a dead heat).
func roleOutranks(candidate, best *discord.Role) bool {
	if candidate.Position != best.Position {
		return candidate.Position > best.Position
	}

	return snowflakeLess(candidate.ID, best.ID)
}

// snowflakeLess compares two snowflake IDs numerically, falling back to
// lexicographic order if either fails to parse.
func snowflakeLess(a, b string) bool {
	ai, errA := strconv.ParseUint(a, 10, 64)
	bi, errB := strconv.ParseUint(b, 10, 64)

	if errA != nil || errB != nil {
		return a < b
	}

	return ai < bi
}
