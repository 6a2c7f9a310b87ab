package server

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/sirupsen/logrus"

	"github.com/approvers/members-db/pkg/authflow"
	"github.com/approvers/members-db/pkg/config"
	"github.com/approvers/members-db/pkg/directory"
	"github.com/approvers/members-db/pkg/discord"
	"github.com/approvers/members-db/pkg/members"
	"github.com/approvers/members-db/pkg/repository"
)

// Builder constructs and wires all dependencies for the HTTP server.
type Builder struct {
	log logrus.FieldLogger
	cfg *config.Config
}

// NewBuilder creates a new server builder.
func NewBuilder(log logrus.FieldLogger, cfg *config.Config) *Builder {
	return &Builder{
		log: log.WithField("component", "builder"),
		cfg: cfg,
	}
}

// Build constructs all dependencies and returns the server service.
func (b *Builder) Build(ctx context.Context) (Service, error) {
	b.log.Info("Building members-db server dependencies")

	store, lifecycles, err := b.buildStore(ctx)
	if err != nil {
		return nil, fmt.Errorf("building repository: %w", err)
	}

	discordClient := discord.NewClient(b.log, b.cfg.Discord.BotToken)

	flow := authflow.NewFlow(b.log, b.cfg.Discord, store, discordClient)

	directorySvc := directory.NewService(
		b.log,
		store,
		flow,
		discordClient,
		b.cfg.Discord.GuildID,
		b.cfg.Directory.ResolveConcurrency,
	)

	membersSvc := members.NewService(b.log, store)

	b.log.WithFields(logrus.Fields{
		"repository_backend":  b.cfg.Repository.Backend,
		"guild_id":            b.cfg.Discord.GuildID,
		"resolve_concurrency": b.cfg.Directory.ResolveConcurrency,
	}).Info("Server dependencies built")

	return NewService(
		b.log,
		b.cfg.Server,
		b.cfg.RateLimits,
		flow,
		directorySvc,
		membersSvc,
		lifecycles...,
	), nil
}

// buildStore creates the configured repository backend and any lifecycles
// the server must manage for it.
func (b *Builder) buildStore(ctx context.Context) (repository.Store, []Lifecycle, error) {
	switch b.cfg.Repository.Backend {
	case config.RepositoryBackendMemory:
		store := repository.NewMemoryStore(b.log)

		return store, []Lifecycle{store}, nil

	case config.RepositoryBackendFirestore:
		client, err := firestore.NewClient(ctx, b.cfg.Repository.ProjectID)
		if err != nil {
			return nil, nil, fmt.Errorf("creating firestore client: %w", err)
		}

		store := repository.NewFirestoreStore(
			b.log,
			client,
			b.cfg.Repository.PendingAuthCollection,
			b.cfg.Repository.MembersCollection,
		)

		return store, []Lifecycle{&firestoreLifecycle{client: client}}, nil

	default:
		return nil, nil, fmt.Errorf("unknown repository backend: %s", b.cfg.Repository.Backend)
	}
}

// firestoreLifecycle closes the Firestore client on shutdown.
type firestoreLifecycle struct {
	client *firestore.Client
}

func (f *firestoreLifecycle) Start(_ context.Context) error {
	return nil
}

func (f *firestoreLifecycle) Stop() error {
	return f.client.Close()
}
