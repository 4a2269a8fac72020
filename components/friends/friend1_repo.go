package friends

import (
	"context"

	"kawan/components/user"
	"kawan/store"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// I_FriendRepo adds the graph mutations on top of the plain user reads.
// Every mutation is a single atomic array update on one record; the
// symmetric pair of a friendship is two separate writes, sequenced by
// the controller.
type I_FriendRepo interface {
	user.I_UserRepo
	PushRequest(toUID string, req *user.FriendRequest) error
	PullRequest(ownerUID string, req *user.FriendRequest) error
	AddFriend(uid, friendUID string) error
	RemoveFriend(uid, friendUID string) error
}

type FriendService struct {
	user.I_UserRepo
	userCollection *mongo.Collection
	ctx            context.Context
}

func NewFriendService(userCollection *mongo.Collection, ctx context.Context) I_FriendRepo {
	return &FriendService{user.NewUserService(userCollection, ctx), userCollection, ctx}
}

func (me *FriendService) PushRequest(toUID string, req *user.FriendRequest) error {
	query := bson.M{"uid": toUID}
	update := bson.M{"$push": bson.M{"friendRequests": req}}

	res, err := me.userCollection.UpdateOne(me.ctx, query, update)
	if err != nil {
		return store.Classify(err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}

	return nil
}

// PullRequest removes the pending entry by id, or by origin and
// timestamp for records written before ids existed. Pulling an entry
// that is already gone is a no-op.
func (me *FriendService) PullRequest(ownerUID string, req *user.FriendRequest) error {
	var match bson.M
	if req.ID != "" {
		match = bson.M{"id": req.ID}
	} else {
		match = bson.M{
			"from":      req.From,
			"timestamp": primitive.NewDateTimeFromTime(req.Timestamp),
		}
	}

	query := bson.M{"uid": ownerUID}
	update := bson.M{"$pull": bson.M{"friendRequests": match}}

	res, err := me.userCollection.UpdateOne(me.ctx, query, update)
	if err != nil {
		return store.Classify(err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}

	return nil
}

// AddFriend is idempotent: the friend set is a set.
func (me *FriendService) AddFriend(uid, friendUID string) error {
	query := bson.M{"uid": uid}
	update := bson.M{"$addToSet": bson.M{"friends": friendUID}}

	res, err := me.userCollection.UpdateOne(me.ctx, query, update)
	if err != nil {
		return store.Classify(err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}

	return nil
}

func (me *FriendService) RemoveFriend(uid, friendUID string) error {
	query := bson.M{"uid": uid}
	update := bson.M{"$pull": bson.M{"friends": friendUID}}

	res, err := me.userCollection.UpdateOne(me.ctx, query, update)
	if err != nil {
		return store.Classify(err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}

	return nil
}
