package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fyerfyer/fyer-drive-sub000/models"
)

// MongoStore is the production Store backed by MongoDB. Batch mutations run
// inside multi-document transactions, so it requires a replica set.
type MongoStore struct {
	client           *mongo.Client
	folderCollection *mongo.Collection
	fileCollection   *mongo.Collection
	grantCollection  *mongo.Collection
	userCollection   *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{
		client:           db.Client(),
		folderCollection: db.Collection("folders"),
		fileCollection:   db.Collection("files"),
		grantCollection:  db.Collection("grants"),
		userCollection:   db.Collection("users"),
	}
}

// EnsureIndexes creates the indexes the store relies on: ancestor-containment
// lookups, the (resource, grantee) uniqueness of grants, and trash listings.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.folderCollection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.M{"ancestors": 1}},
		{Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "is_trashed", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create folder indexes: %w", err)
	}

	_, err = s.fileCollection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.M{"folder_id": 1}},
		{Keys: bson.M{"sha1_hash": 1}},
		{Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "is_trashed", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create file indexes: %w", err)
	}

	_, err = s.grantCollection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "resource_id", Value: 1}, {Key: "grantee_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create grant index: %w", err)
	}

	return nil
}

func (s *MongoStore) FolderByID(ctx context.Context, id primitive.ObjectID) (*models.Folder, error) {
	var folder models.Folder
	err := s.folderCollection.FindOne(ctx, bson.M{"_id": id}).Decode(&folder)
	if err == mongo.ErrNoDocuments {
		return nil, fmt.Errorf("folder %s: %w", id.Hex(), models.ErrNotFound)
	} else if err != nil {
		return nil, fmt.Errorf("error fetching folder: %w", err)
	}
	return &folder, nil
}

func (s *MongoStore) FoldersByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.Folder, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	cursor, err := s.folderCollection.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, fmt.Errorf("error fetching folders: %w", err)
	}
	defer cursor.Close(ctx)

	var folders []models.Folder
	if err = cursor.All(ctx, &folders); err != nil {
		return nil, fmt.Errorf("failed to decode folders: %w", err)
	}
	return folders, nil
}

func (s *MongoStore) InsertFolder(ctx context.Context, folder *models.Folder) error {
	if _, err := s.folderCollection.InsertOne(ctx, folder); err != nil {
		return fmt.Errorf("failed to insert folder: %w", err)
	}
	return nil
}

func (s *MongoStore) FolderDescendants(ctx context.Context, id primitive.ObjectID) ([]models.Folder, error) {
	cursor, err := s.folderCollection.Find(ctx, bson.M{"ancestors": id})
	if err != nil {
		return nil, fmt.Errorf("error fetching descendants: %w", err)
	}
	defer cursor.Close(ctx)

	var folders []models.Folder
	if err = cursor.All(ctx, &folders); err != nil {
		return nil, fmt.Errorf("failed to decode descendants: %w", err)
	}
	return folders, nil
}

func (s *MongoStore) UpdateFolderParent(ctx context.Context, id primitive.ObjectID, parentID *primitive.ObjectID, ancestors []primitive.ObjectID) error {
	update := bson.M{"$set": bson.M{
		"parent_id":  parentID,
		"ancestors":  ancestors,
		"updated_at": time.Now(),
	}}
	result, err := s.folderCollection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("failed to update folder parent: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("folder %s: %w", id.Hex(), models.ErrNotFound)
	}
	return nil
}

func (s *MongoStore) UpdateFolderAncestors(ctx context.Context, ancestors map[primitive.ObjectID][]primitive.ObjectID) error {
	if len(ancestors) == 0 {
		return nil
	}
	writes := make([]mongo.WriteModel, 0, len(ancestors))
	for id, anc := range ancestors {
		writes = append(writes, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"_id": id}).
			SetUpdate(bson.M{"$set": bson.M{"ancestors": anc, "updated_at": time.Now()}}))
	}
	if _, err := s.folderCollection.BulkWrite(ctx, writes); err != nil {
		return fmt.Errorf("failed to rewrite ancestors: %w", err)
	}
	return nil
}

func (s *MongoStore) SetFoldersTrashed(ctx context.Context, ids []primitive.ObjectID, trashed bool, at *time.Time) error {
	return s.setTrashed(ctx, s.folderCollection, ids, trashed, at)
}

func (s *MongoStore) SetFilesTrashed(ctx context.Context, ids []primitive.ObjectID, trashed bool, at *time.Time) error {
	return s.setTrashed(ctx, s.fileCollection, ids, trashed, at)
}

func (s *MongoStore) setTrashed(ctx context.Context, collection *mongo.Collection, ids []primitive.ObjectID, trashed bool, at *time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	var update bson.M
	if trashed {
		update = bson.M{"$set": bson.M{"is_trashed": true, "trashed_at": at, "updated_at": time.Now()}}
	} else {
		update = bson.M{
			"$set":   bson.M{"is_trashed": false, "updated_at": time.Now()},
			"$unset": bson.M{"trashed_at": ""},
		}
	}
	if _, err := collection.UpdateMany(ctx, bson.M{"_id": bson.M{"$in": ids}}, update); err != nil {
		return fmt.Errorf("failed to update trash state: %w", err)
	}
	return nil
}

func (s *MongoStore) SetFolderStarred(ctx context.Context, id primitive.ObjectID, starred bool) error {
	return s.setStarred(ctx, s.folderCollection, id, starred)
}

func (s *MongoStore) SetFileStarred(ctx context.Context, id primitive.ObjectID, starred bool) error {
	return s.setStarred(ctx, s.fileCollection, id, starred)
}

func (s *MongoStore) setStarred(ctx context.Context, collection *mongo.Collection, id primitive.ObjectID, starred bool) error {
	result, err := collection.UpdateOne(ctx, bson.M{"_id": id},
		bson.M{"$set": bson.M{"is_starred": starred, "updated_at": time.Now()}})
	if err != nil {
		return fmt.Errorf("failed to update star state: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("resource %s: %w", id.Hex(), models.ErrNotFound)
	}
	return nil
}

func (s *MongoStore) DeleteFolders(ctx context.Context, ids []primitive.ObjectID) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := s.folderCollection.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}}); err != nil {
		return fmt.Errorf("failed to delete folders: %w", err)
	}
	return nil
}

func (s *MongoStore) ListTrashedFolders(ctx context.Context, ownerID primitive.ObjectID) ([]models.Folder, error) {
	cursor, err := s.folderCollection.Find(ctx,
		bson.M{"owner_id": ownerID, "is_trashed": true},
		options.Find().SetSort(bson.M{"trashed_at": -1}))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch trashed folders: %w", err)
	}
	defer cursor.Close(ctx)

	var folders []models.Folder
	if err = cursor.All(ctx, &folders); err != nil {
		return nil, fmt.Errorf("failed to decode trashed folders: %w", err)
	}
	return folders, nil
}

func (s *MongoStore) ListTrashedFoldersBefore(ctx context.Context, cutoff time.Time) ([]models.Folder, error) {
	cursor, err := s.folderCollection.Find(ctx, bson.M{
		"is_trashed": true,
		"trashed_at": bson.M{"$lte": cutoff},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch expired trash folders: %w", err)
	}
	defer cursor.Close(ctx)

	var folders []models.Folder
	if err = cursor.All(ctx, &folders); err != nil {
		return nil, fmt.Errorf("failed to decode expired trash folders: %w", err)
	}
	return folders, nil
}

func (s *MongoStore) ListTrashedFilesBefore(ctx context.Context, cutoff time.Time) ([]models.File, error) {
	cursor, err := s.fileCollection.Find(ctx, bson.M{
		"is_trashed": true,
		"trashed_at": bson.M{"$lte": cutoff},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch expired trash files: %w", err)
	}
	defer cursor.Close(ctx)

	var files []models.File
	if err = cursor.All(ctx, &files); err != nil {
		return nil, fmt.Errorf("failed to decode expired trash files: %w", err)
	}
	return files, nil
}

func (s *MongoStore) FileByID(ctx context.Context, id primitive.ObjectID) (*models.File, error) {
	var file models.File
	err := s.fileCollection.FindOne(ctx, bson.M{"_id": id}).Decode(&file)
	if err == mongo.ErrNoDocuments {
		return nil, fmt.Errorf("file %s: %w", id.Hex(), models.ErrNotFound)
	} else if err != nil {
		return nil, fmt.Errorf("error fetching file: %w", err)
	}
	return &file, nil
}

func (s *MongoStore) InsertFile(ctx context.Context, file *models.File) error {
	if _, err := s.fileCollection.InsertOne(ctx, file); err != nil {
		return fmt.Errorf("failed to insert file: %w", err)
	}
	return nil
}

func (s *MongoStore) FilesInFolders(ctx context.Context, folderIDs []primitive.ObjectID) ([]models.File, error) {
	if len(folderIDs) == 0 {
		return nil, nil
	}
	cursor, err := s.fileCollection.Find(ctx, bson.M{"folder_id": bson.M{"$in": folderIDs}})
	if err != nil {
		return nil, fmt.Errorf("error fetching files: %w", err)
	}
	defer cursor.Close(ctx)

	var files []models.File
	if err = cursor.All(ctx, &files); err != nil {
		return nil, fmt.Errorf("failed to decode files: %w", err)
	}
	return files, nil
}

func (s *MongoStore) UpdateFileFolder(ctx context.Context, id primitive.ObjectID, folderID *primitive.ObjectID) error {
	result, err := s.fileCollection.UpdateOne(ctx, bson.M{"_id": id},
		bson.M{"$set": bson.M{"folder_id": folderID, "updated_at": time.Now()}})
	if err != nil {
		return fmt.Errorf("failed to update file folder: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("file %s: %w", id.Hex(), models.ErrNotFound)
	}
	return nil
}

func (s *MongoStore) DeleteFiles(ctx context.Context, ids []primitive.ObjectID) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := s.fileCollection.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}}); err != nil {
		return fmt.Errorf("failed to delete files: %w", err)
	}
	return nil
}

func (s *MongoStore) ListTrashedFiles(ctx context.Context, ownerID primitive.ObjectID) ([]models.File, error) {
	cursor, err := s.fileCollection.Find(ctx,
		bson.M{"owner_id": ownerID, "is_trashed": true},
		options.Find().SetSort(bson.M{"trashed_at": -1}))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch trashed files: %w", err)
	}
	defer cursor.Close(ctx)

	var files []models.File
	if err = cursor.All(ctx, &files); err != nil {
		return nil, fmt.Errorf("failed to decode trashed files: %w", err)
	}
	return files, nil
}

func (s *MongoStore) CountFilesBySHA1(ctx context.Context, hash string) (int64, error) {
	count, err := s.fileCollection.CountDocuments(ctx, bson.M{"sha1_hash": hash})
	if err != nil {
		return 0, fmt.Errorf("failed to count files by hash: %w", err)
	}
	return count, nil
}

func (s *MongoStore) UpsertGrant(ctx context.Context, grant *models.AccessGrant) error {
	filter := bson.M{
		"resource_id": grant.ResourceID,
		"grantee_id":  grant.GranteeID,
	}
	update := bson.M{
		"$set": bson.M{
			"role":       grant.Role,
			"granter_id": grant.GranterID,
			"expires_at": grant.ExpiresAt,
			"updated_at": grant.UpdatedAt,
		},
		"$setOnInsert": bson.M{
			"_id":           grant.ID,
			"resource_type": grant.ResourceType,
			"granted_at":    grant.GrantedAt,
		},
	}
	_, err := s.grantCollection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to upsert grant: %w", err)
	}
	return nil
}

func (s *MongoStore) DeleteGrant(ctx context.Context, resourceID, granteeID primitive.ObjectID) error {
	result, err := s.grantCollection.DeleteOne(ctx, bson.M{
		"resource_id": resourceID,
		"grantee_id":  granteeID,
	})
	if err != nil {
		return fmt.Errorf("failed to delete grant: %w", err)
	}
	if result.DeletedCount == 0 {
		return fmt.Errorf("grant: %w", models.ErrNotFound)
	}
	return nil
}

func (s *MongoStore) DeleteGrantsOnResources(ctx context.Context, resourceIDs []primitive.ObjectID) error {
	if len(resourceIDs) == 0 {
		return nil
	}
	if _, err := s.grantCollection.DeleteMany(ctx, bson.M{"resource_id": bson.M{"$in": resourceIDs}}); err != nil {
		return fmt.Errorf("failed to delete grants: %w", err)
	}
	return nil
}

func (s *MongoStore) GrantsOnResource(ctx context.Context, resourceID primitive.ObjectID) ([]models.AccessGrant, error) {
	cursor, err := s.grantCollection.Find(ctx, bson.M{"resource_id": resourceID})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch grants: %w", err)
	}
	defer cursor.Close(ctx)

	var grants []models.AccessGrant
	if err = cursor.All(ctx, &grants); err != nil {
		return nil, fmt.Errorf("failed to decode grants: %w", err)
	}
	return grants, nil
}

func (s *MongoStore) GrantsFor(ctx context.Context, granteeID primitive.ObjectID, resourceIDs []primitive.ObjectID) ([]models.AccessGrant, error) {
	if len(resourceIDs) == 0 {
		return nil, nil
	}
	cursor, err := s.grantCollection.Find(ctx, bson.M{
		"grantee_id":  granteeID,
		"resource_id": bson.M{"$in": resourceIDs},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch grants: %w", err)
	}
	defer cursor.Close(ctx)

	var grants []models.AccessGrant
	if err = cursor.All(ctx, &grants); err != nil {
		return nil, fmt.Errorf("failed to decode grants: %w", err)
	}
	return grants, nil
}

func (s *MongoStore) SetLinkShare(ctx context.Context, resourceType models.ResourceType, id primitive.ObjectID, policy *models.LinkSharePolicy) error {
	collection := s.collectionFor(resourceType)
	var update bson.M
	if policy != nil {
		update = bson.M{"$set": bson.M{"link_share": policy, "updated_at": time.Now()}}
	} else {
		update = bson.M{
			"$unset": bson.M{"link_share": ""},
			"$set":   bson.M{"updated_at": time.Now()},
		}
	}
	result, err := collection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("failed to update link share: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("resource %s: %w", id.Hex(), models.ErrNotFound)
	}
	return nil
}

func (s *MongoStore) IncrementLinkAccess(ctx context.Context, resourceType models.ResourceType, id primitive.ObjectID, token string) error {
	collection := s.collectionFor(resourceType)
	result, err := collection.UpdateOne(ctx,
		bson.M{"_id": id, "link_share.token": token},
		bson.M{"$inc": bson.M{"link_share.access_count": 1}})
	if err != nil {
		return fmt.Errorf("failed to record link access: %w", err)
	}
	if result.MatchedCount == 0 {
		// Wrong or rotated token; indistinguishable from a missing resource.
		return fmt.Errorf("link access: %w", models.ErrForbidden)
	}
	return nil
}

func (s *MongoStore) collectionFor(resourceType models.ResourceType) *mongo.Collection {
	if resourceType == models.ResourceFolder {
		return s.folderCollection
	}
	return s.fileCollection
}

func (s *MongoStore) UserByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	var user models.User
	err := s.userCollection.FindOne(ctx, bson.M{"_id": id}).Decode(&user)
	if err == mongo.ErrNoDocuments {
		return nil, fmt.Errorf("user %s: %w", id.Hex(), models.ErrNotFound)
	} else if err != nil {
		return nil, fmt.Errorf("error fetching user: %w", err)
	}
	return &user, nil
}

func (s *MongoStore) AdjustStorageUsed(ctx context.Context, ownerID primitive.ObjectID, delta int64) error {
	result, err := s.userCollection.UpdateOne(ctx, bson.M{"_id": ownerID},
		bson.M{"$inc": bson.M{"storage_used": delta}, "$set": bson.M{"updated_at": time.Now()}})
	if err != nil {
		return fmt.Errorf("failed to adjust storage usage: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("user %s: %w", ownerID.Hex(), models.ErrNotFound)
	}
	return nil
}

// maxTxAttempts bounds retries on transient transaction errors so no batch
// blocks indefinitely.
const maxTxAttempts = 3

func (s *MongoStore) InTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	session, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", models.ErrTransactionFailed)
	}
	defer session.EndSession(ctx)

	var fnErr error
	var lastErr error
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		fnErr = nil
		_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
			fnErr = fn(sc)
			return nil, fnErr
		})
		if err == nil {
			return nil
		}
		// The callback's own error rolls back and propagates unchanged.
		if fnErr != nil && errors.Is(err, fnErr) {
			return fnErr
		}
		lastErr = err
		var cmdErr mongo.CommandError
		if errors.As(err, &cmdErr) && cmdErr.HasErrorLabel("TransientTransactionError") {
			continue
		}
		break
	}
	return fmt.Errorf("%v: %w", lastErr, models.ErrTransactionFailed)
}
