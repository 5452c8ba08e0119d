package repository

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"main/model"
	"main/utils"
)

// DeviceSessionRepo persists activated mobile-device sessions. It backs the
// operator-facing session listing and keeps a durable revocation audit trail
// alongside the in-process session state store.
type DeviceSessionRepo struct {
	MongoCollection *mongo.Collection
}

func GetDeviceSessionRepo(client *mongo.Client, dbName, collectionName string) *DeviceSessionRepo {
	return &DeviceSessionRepo{
		MongoCollection: client.Database(dbName).Collection(collectionName),
	}
}

func (r *DeviceSessionRepo) CreateSession(session *model.DeviceSession) error {
	timer := utils.TrackDBOperation("insert", "device_sessions")
	defer timer.ObserveDuration()

	if session == nil {
		utils.TrackError("database", "nil_session")
		return fmt.Errorf("session cannot be nil")
	}
	if session.SessionID == "" {
		utils.TrackError("database", "invalid_session_data")
		return fmt.Errorf("invalid session data: missing session id")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := r.MongoCollection.InsertOne(ctx, session); err != nil {
		utils.TrackError("database", "session_creation_failed")
		return fmt.Errorf("failed to create device session: %w", err)
	}
	return nil
}

func (r *DeviceSessionRepo) GetSession(sessionID string) (*model.DeviceSession, error) {
	timer := utils.TrackDBOperation("find", "device_sessions")
	defer timer.ObserveDuration()

	if sessionID == "" {
		return nil, fmt.Errorf("sessionID cannot be empty")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var session model.DeviceSession
	err := r.MongoCollection.FindOne(ctx, bson.M{"session_id": sessionID}).Decode(&session)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		utils.TrackError("database", "session_fetch_failed")
		return nil, fmt.Errorf("failed to fetch device session: %w", err)
	}
	return &session, nil
}

// TouchSession extends the recorded expiry after a token refresh and bumps
// the activity timestamp.
func (r *DeviceSessionRepo) TouchSession(sessionID string, expiresAt time.Time) error {
	timer := utils.TrackDBOperation("update", "device_sessions")
	defer timer.ObserveDuration()

	if sessionID == "" {
		return fmt.Errorf("sessionID cannot be empty")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	update := bson.M{
		"$set": bson.M{
			"expires_at":       expiresAt,
			"last_activity_at": time.Now(),
		},
	}

	result, err := r.MongoCollection.UpdateOne(ctx, bson.M{"session_id": sessionID}, update)
	if err != nil {
		utils.TrackError("database", "session_touch_failed")
		return fmt.Errorf("failed to update device session: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("device session not found")
	}
	return nil
}

func (r *DeviceSessionRepo) MarkRevoked(sessionID string) error {
	timer := utils.TrackDBOperation("update", "device_sessions")
	defer timer.ObserveDuration()

	if sessionID == "" {
		return fmt.Errorf("sessionID cannot be empty")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	update := bson.M{
		"$set": bson.M{
			"revoked":          true,
			"last_activity_at": time.Now(),
		},
	}

	result, err := r.MongoCollection.UpdateOne(ctx, bson.M{"session_id": sessionID}, update)
	if err != nil {
		utils.TrackError("database", "session_revoke_failed")
		return fmt.Errorf("failed to mark device session revoked: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("device session not found")
	}
	return nil
}

// ListActiveSessions returns unexpired, unrevoked sessions, most recently
// active first.
func (r *DeviceSessionRepo) ListActiveSessions() ([]*model.DeviceSession, error) {
	timer := utils.TrackDBOperation("find", "device_sessions")
	defer timer.ObserveDuration()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	opts := options.Find().SetSort(bson.M{"last_activity_at": -1})
	cursor, err := r.MongoCollection.Find(ctx, bson.M{
		"revoked":    false,
		"expires_at": bson.M{"$gt": time.Now()},
	}, opts)
	if err != nil {
		utils.TrackError("database", "session_list_failed")
		return nil, fmt.Errorf("failed to list device sessions: %w", err)
	}
	defer cursor.Close(ctx)

	var sessions []*model.DeviceSession
	if err = cursor.All(ctx, &sessions); err != nil {
		return nil, fmt.Errorf("failed to decode device sessions: %w", err)
	}
	return sessions, nil
}

func (r *DeviceSessionRepo) CountActiveSessions() (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	count, err := r.MongoCollection.CountDocuments(ctx, bson.M{
		"revoked":    false,
		"expires_at": bson.M{"$gt": time.Now()},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count device sessions: %w", err)
	}
	return int(count), nil
}
