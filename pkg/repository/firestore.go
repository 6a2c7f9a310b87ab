package repository

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Ensure FirestoreStore implements Store.
var _ Store = (*FirestoreStore)(nil)

// FirestoreStore implements Store backed by Cloud Firestore. Pending flows
// and member credentials live in separate collections; pending flow
// documents are keyed by state token, member documents by member ID.
type FirestoreStore struct {
	log               logrus.FieldLogger
	client            *firestore.Client
	pendingCollection string
	membersCollection string
}

// NewFirestoreStore creates a Firestore-backed store.
func NewFirestoreStore(
	log logrus.FieldLogger,
	client *firestore.Client,
	pendingCollection, membersCollection string,
) *FirestoreStore {
	return &FirestoreStore{
		log:               log.WithField("component", "firestore_store"),
		client:            client,
		pendingCollection: pendingCollection,
		membersCollection: membersCollection,
	}
}

// PutPendingAuth records the state of a newly started OAuth2 flow.
func (f *FirestoreStore) PutPendingAuth(ctx context.Context, stateToken, pkceVerifier string) error {
	pending := &PendingAuth{
		PKCEVerifier: pkceVerifier,
		ExpiresAt:    time.Now().Add(PendingAuthTTL),
	}

	if _, err := f.client.Collection(f.pendingCollection).Doc(stateToken).Set(ctx, pending); err != nil {
		return wrapFirestoreErr("saving pending auth", err)
	}

	return nil
}

// TakePendingAuth atomically looks up and deletes the pending flow for the
// given state token. The read and delete run in one transaction, so a
// replayed callback cannot race a legitimate one.
func (f *FirestoreStore) TakePendingAuth(ctx context.Context, stateToken string) (*PendingAuth, error) {
	doc := f.client.Collection(f.pendingCollection).Doc(stateToken)

	var pending PendingAuth

	err := f.client.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		snapshot, err := tx.Get(doc)
		if err != nil {
			return err
		}

		if err := snapshot.DataTo(&pending); err != nil {
			return err
		}

		return tx.Delete(doc)
	})
	if err != nil {
		return nil, wrapFirestoreErr("taking pending auth", err)
	}

	if pending.IsExpired() {
		return nil, ErrNotFound
	}

	return &pending, nil
}

// UpsertMemberCredential creates or overwrites a member's tokens. The merge
// write leaves an existing display name untouched.
func (f *FirestoreStore) UpsertMemberCredential(ctx context.Context, memberID, accessToken, refreshToken string) error {
	doc := f.client.Collection(f.membersCollection).Doc(memberID)

	_, err := doc.Set(ctx, map[string]interface{}{
		"member_id":     memberID,
		"access_token":  accessToken,
		"refresh_token": refreshToken,
	}, firestore.MergeAll)
	if err != nil {
		return wrapFirestoreErr("upserting member credential", err)
	}

	return nil
}

// SaveDisplayName sets or clears a member's display name.
func (f *FirestoreStore) SaveDisplayName(ctx context.Context, memberID string, displayName *string) error {
	doc := f.client.Collection(f.membersCollection).Doc(memberID)

	err := f.client.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		if _, err := tx.Get(doc); err != nil {
			return err
		}

		var value interface{} = firestore.Delete
		if displayName != nil {
			value = *displayName
		}

		return tx.Update(doc, []firestore.Update{{Path: "display_name", Value: value}})
	})
	if err != nil {
		return wrapFirestoreErr("saving display name", err)
	}

	return nil
}

// GetMemberCredential retrieves a member's credential.
func (f *FirestoreStore) GetMemberCredential(ctx context.Context, memberID string) (*MemberCredential, error) {
	snapshot, err := f.client.Collection(f.membersCollection).Doc(memberID).Get(ctx)
	if err != nil {
		return nil, wrapFirestoreErr("getting member credential", err)
	}

	var member MemberCredential
	if err := snapshot.DataTo(&member); err != nil {
		return nil, wrapFirestoreErr("decoding member credential", err)
	}

	return &member, nil
}

// ListMemberCredentials retrieves all linked members.
func (f *FirestoreStore) ListMemberCredentials(ctx context.Context) ([]*MemberCredential, error) {
	iter := f.client.Collection(f.membersCollection).Documents(ctx)
	defer iter.Stop()

	members := make([]*MemberCredential, 0, 100)

	for {
		snapshot, err := iter.Next()
		if err == iterator.Done {
			break
		}

		if err != nil {
			return nil, wrapFirestoreErr("listing member credentials", err)
		}

		var member MemberCredential
		if err := snapshot.DataTo(&member); err != nil {
			return nil, wrapFirestoreErr("decoding member credential", err)
		}

		members = append(members, &member)
	}

	return members, nil
}

// wrapFirestoreErr maps a Firestore error onto the repository error taxonomy.
func wrapFirestoreErr(op string, err error) error {
	switch status.Code(err) {
	case codes.NotFound:
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case codes.Aborted, codes.FailedPrecondition:
		return fmt.Errorf("%s: %w: %v", op, ErrTransaction, err)
	default:
		return fmt.Errorf("%s: %w: %v", op, ErrInternal, err)
	}
}
