package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"canvasmind/internal/database"
	"canvasmind/internal/models"
)

// ErrProfileNotFound is returned when no profile carries the given token.
var ErrProfileNotFound = errors.New("profile not found")

const profileLockTTL = 15 * time.Second

// ProfileService owns profile documents and is the single gateway for every
// insights mutation. All writes go through a per-token critical section so
// concurrent turns against the same profile serialize instead of clobbering
// each other.
type ProfileService struct {
	db      *database.MongoDB
	redis   *RedisService
	retries int
	backoff time.Duration

	// localLocks serializes writers inside this process; the Redis lock
	// extends the same guarantee across instances.
	localLocks sync.Map
}

// NewProfileService builds the service.
func NewProfileService(db *database.MongoDB, redis *RedisService, retries int, backoff time.Duration) *ProfileService {
	return &ProfileService{
		db:      db,
		redis:   redis,
		retries: retries,
		backoff: backoff,
	}
}

func (s *ProfileService) collection() *mongo.Collection {
	return s.db.Collection(database.CollectionProfiles)
}

// CreateProfile inserts a new profile, minting a token when none is given.
func (s *ProfileService) CreateProfile(ctx context.Context, profile *models.UserProfile) error {
	if profile.Token == "" {
		profile.Token = uuid.NewString()
	}
	if profile.Role == "" {
		profile.Role = models.RoleBusinessOwner
	}
	profile.Insights = models.NewBusinessInsights()
	now := time.Now().UTC()
	profile.CreatedAt = now
	profile.UpdatedAt = now

	if _, err := s.collection().InsertOne(ctx, profile); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("token already in use")
		}
		return fmt.Errorf("failed to create profile: %w", err)
	}
	log.Printf("✅ [PROFILE] Created profile for %s (%s)", profile.BusinessName, profile.Token)
	return nil
}

// GetProfileByToken loads the profile identified by token.
func (s *ProfileService) GetProfileByToken(ctx context.Context, token string) (*models.UserProfile, error) {
	var profile models.UserProfile
	err := s.collection().FindOne(ctx, bson.M{"token": token}).Decode(&profile)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	profile.Insights.Normalize()
	return &profile, nil
}

// ValidateToken reports whether token identifies an existing profile.
func (s *ProfileService) ValidateToken(ctx context.Context, token string) (bool, error) {
	count, err := s.collection().CountDocuments(ctx, bson.M{"token": token}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("failed to validate token: %w", err)
	}
	return count > 0, nil
}

// ListProfiles returns every profile, newest activity first. Admin only.
func (s *ProfileService) ListProfiles(ctx context.Context) ([]models.UserProfile, error) {
	cursor, err := s.collection().Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "updatedAt", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	defer cursor.Close(ctx)

	var profiles []models.UserProfile
	if err := cursor.All(ctx, &profiles); err != nil {
		return nil, fmt.Errorf("failed to decode profiles: %w", err)
	}
	for i := range profiles {
		profiles[i].Insights.Normalize()
	}
	return profiles, nil
}

// UpdateProfile replaces the profile's descriptive fields. Insights are only
// ever written through MutateInsights.
func (s *ProfileService) UpdateProfile(ctx context.Context, token string, fields models.UserProfile) error {
	res, err := s.collection().UpdateOne(ctx,
		bson.M{"token": token},
		bson.M{"$set": bson.M{
			"ownerName":    fields.OwnerName,
			"businessName": fields.BusinessName,
			"sector":       fields.Sector,
			"challenges":   fields.Challenges,
			"goals":        fields.Goals,
			"updatedAt":    time.Now().UTC(),
		}})
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrProfileNotFound
	}
	return nil
}

// DeleteProfile removes the profile identified by token.
func (s *ProfileService) DeleteProfile(ctx context.Context, token string) error {
	res, err := s.collection().DeleteOne(ctx, bson.M{"token": token})
	if err != nil {
		return fmt.Errorf("failed to delete profile: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrProfileNotFound
	}
	return nil
}

// MutateInsights runs fn against a fresh copy of the profile's insights
// inside the per-token critical section and persists only what changed. fn
// returns false to signal that nothing changed, in which case no write is
// issued at all.
func (s *ProfileService) MutateInsights(ctx context.Context, token string, fn func(insights *models.BusinessInsights) bool) error {
	return s.withProfileLock(ctx, token, func() error {
		profile, err := s.GetProfileByToken(ctx, token)
		if err != nil {
			return err
		}

		before := profile.Insights.Clone()
		insights := profile.Insights.Clone()
		if !fn(&insights) {
			memoryWritesSkipped.Inc()
			log.Printf("💾 [PROFILE] No insight changes for %s, skipping write", token)
			return nil
		}
		insights.Normalize()

		update := minimalInsightsUpdate(before, insights)
		if len(update) == 0 {
			memoryWritesSkipped.Inc()
			return nil
		}
		update["updatedAt"] = time.Now().UTC()

		return s.writeWithRetry(ctx, token, bson.M{"$set": update})
	})
}

// ResetMemory clears every learned insight for the profile.
func (s *ProfileService) ResetMemory(ctx context.Context, token string) error {
	return s.withProfileLock(ctx, token, func() error {
		res, err := s.collection().UpdateOne(ctx,
			bson.M{"token": token},
			bson.M{"$set": bson.M{
				"insights":  models.NewBusinessInsights(),
				"updatedAt": time.Now().UTC(),
			}})
		if err != nil {
			return fmt.Errorf("failed to reset memory: %w", err)
		}
		if res.MatchedCount == 0 {
			return ErrProfileNotFound
		}
		log.Printf("🧹 [PROFILE] Memory reset for %s", token)
		return nil
	})
}

// minimalInsightsUpdate produces $set paths for exactly the fields that
// differ between before and after.
func minimalInsightsUpdate(before, after models.BusinessInsights) bson.M {
	update := bson.M{}
	for _, block := range models.CanvasBlocks {
		if !reflect.DeepEqual(before.CanvasState[block], after.CanvasState[block]) {
			update["insights.canvasState."+block] = after.CanvasState[block]
		}
	}
	if !reflect.DeepEqual(before.Constraints, after.Constraints) {
		update["insights.constraints"] = after.Constraints
	}
	if !reflect.DeepEqual(before.Preferences, after.Preferences) {
		update["insights.preferences"] = after.Preferences
	}
	if !reflect.DeepEqual(before.PendingTopics, after.PendingTopics) {
		update["insights.pendingTopics"] = after.PendingTopics
	}
	return update
}

func (s *ProfileService) writeWithRetry(ctx context.Context, token string, update bson.M) error {
	var lastErr error
	for attempt := 0; attempt <= s.retries; attempt++ {
		if attempt > 0 {
			memoryWriteRetries.Inc()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.backoff * time.Duration(attempt)):
			}
		}
		res, err := s.collection().UpdateOne(ctx, bson.M{"token": token}, update)
		if err == nil {
			if res.MatchedCount == 0 {
				return ErrProfileNotFound
			}
			return nil
		}
		lastErr = err
		log.Printf("⚠️ [PROFILE] Write attempt %d for %s failed: %v", attempt+1, token, err)
	}
	return fmt.Errorf("profile write failed after %d attempts: %w", s.retries+1, lastErr)
}

// withProfileLock runs fn while holding both the in-process and, when
// available, the distributed lock for token.
func (s *ProfileService) withProfileLock(ctx context.Context, token string, fn func() error) error {
	mu := s.localLock(token)
	mu.Lock()
	defer mu.Unlock()

	if s.redis != nil && s.redis.Available() {
		key := "lock:profile:" + token
		deadline := time.Now().Add(profileLockTTL)
		for {
			ok, err := s.redis.AcquireLock(ctx, key, profileLockTTL)
			if err != nil {
				log.Printf("⚠️ [PROFILE] Lock backend error for %s, continuing with local lock: %v", token, err)
				break
			}
			if ok {
				defer s.redis.ReleaseLock(context.Background(), key)
				break
			}
			if time.Now().After(deadline) {
				return fmt.Errorf("timed out waiting for profile lock on %s", token)
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(50 * time.Millisecond):
			}
		}
	}

	return fn()
}

func (s *ProfileService) localLock(token string) *sync.Mutex {
	mu, _ := s.localLocks.LoadOrStore(token, &sync.Mutex{})
	return mu.(*sync.Mutex)
}
