package user

import (
	"context"
	"fmt"
	"time"

	"kawan/store"
	"kawan/utils"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type I_UserRepo interface {
	GetCollection() *mongo.Collection
	CreateUser(*CreateUser) (*DBUser, error)
	MergeUser(uid string, fields bson.M) (*DBUser, error)
	FindUserById(uid string) (*DBUser, error)
	FindUserByEmail(email string) (*DBUser, error)
	FindUsersIn(uids []string) ([]*DBUser, error)
	FindAllUsers() ([]*DBUser, error)
	UpdatePresence(uid string, online bool, lastSeen time.Time) error
	WatchUser(uid string) (<-chan *DBUser, func(), error)
	WatchAll() (<-chan []*DBUser, func(), error)
}

type UserService struct {
	userCollection *mongo.Collection
	ctx            context.Context
}

func NewUserService(userCollection *mongo.Collection, ctx context.Context) I_UserRepo {
	return &UserService{userCollection, ctx}
}

func (me *UserService) GetCollection() *mongo.Collection {
	return me.userCollection
}

func (me *UserService) CreateUser(user *CreateUser) (*DBUser, error) {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}

	res, err := me.userCollection.InsertOne(me.ctx, user)
	if err != nil {
		return nil, store.Classify(err)
	}

	opt := options.Index()
	opt.SetUnique(true)
	index := mongo.IndexModel{Keys: bson.M{"uid": 1}, Options: opt}
	if _, err := me.userCollection.Indexes().CreateOne(me.ctx, index); err != nil {
		return nil, store.Classify(err)
	}

	var newUser *DBUser
	query := bson.M{"_id": res.InsertedID}
	if err = me.userCollection.FindOne(me.ctx, query).Decode(&newUser); err != nil {
		return nil, store.Classify(err)
	}

	return Normalize(newUser), nil
}

// MergeUser sets only the given fields, leaving accumulated graph and
// inbox state untouched.
func (me *UserService) MergeUser(uid string, fields bson.M) (*DBUser, error) {
	query := bson.D{{Key: "uid", Value: uid}}
	update := bson.D{{Key: "$set", Value: fields}}
	res := me.userCollection.FindOneAndUpdate(me.ctx, query, update, options.FindOneAndUpdate().SetReturnDocument(options.After))

	var updated *DBUser
	if err := res.Decode(&updated); err != nil {
		return nil, store.Classify(err)
	}

	return Normalize(updated), nil
}

func (me *UserService) FindUserById(uid string) (*DBUser, error) {
	query := bson.M{"uid": uid}

	var user *DBUser
	if err := me.userCollection.FindOne(me.ctx, query).Decode(&user); err != nil {
		return nil, store.Classify(err)
	}

	return Normalize(user), nil
}

func (me *UserService) FindUserByEmail(email string) (*DBUser, error) {
	query := bson.M{"email": utils.NormalizeEmail(email)}

	var user *DBUser
	if err := me.userCollection.FindOne(me.ctx, query).Decode(&user); err != nil {
		return nil, store.Classify(err)
	}

	return Normalize(user), nil
}

// FindUsersIn resolves a batch of ids with a single "value in list"
// query. Batches over store.FanOutLimit are rejected, not truncated,
// so a caller that forgot to chunk gets an error instead of a short
// result set.
func (me *UserService) FindUsersIn(uids []string) ([]*DBUser, error) {
	if len(uids) == 0 {
		return []*DBUser{}, nil
	}
	if len(uids) > store.FanOutLimit {
		return nil, fmt.Errorf("too many ids for a single lookup: %d > %d", len(uids), store.FanOutLimit)
	}

	query := bson.M{"uid": bson.M{"$in": uids}}
	return me.findUsers(query)
}

func (me *UserService) FindAllUsers() ([]*DBUser, error) {
	return me.findUsers(bson.M{})
}

func (me *UserService) findUsers(query bson.M) ([]*DBUser, error) {
	cursor, err := me.userCollection.Find(me.ctx, query)
	if err != nil {
		return nil, store.Classify(err)
	}
	defer cursor.Close(me.ctx)

	var users []*DBUser
	for cursor.Next(me.ctx) {
		u := &DBUser{}
		if err := cursor.Decode(u); err != nil {
			return nil, store.Classify(err)
		}
		users = append(users, Normalize(u))
	}

	if err := cursor.Err(); err != nil {
		return nil, store.Classify(err)
	}

	if len(users) == 0 {
		return []*DBUser{}, nil
	}

	return users, nil
}

func (me *UserService) UpdatePresence(uid string, online bool, lastSeen time.Time) error {
	query := bson.M{"uid": uid}
	update := bson.M{"$set": bson.M{"isOnline": online, "lastSeen": lastSeen}}

	res, err := me.userCollection.UpdateOne(me.ctx, query, update)
	if err != nil {
		return store.Classify(err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}

	return nil
}

// WatchUser delivers the record once, then again after every change,
// until the cancel func runs. Read failures emit nil rather than
// tearing the stream down.
func (me *UserService) WatchUser(uid string) (<-chan *DBUser, func(), error) {
	ctx, cancel := context.WithCancel(me.ctx)

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"fullDocument.uid": uid}}},
	}
	opt := options.ChangeStream().SetFullDocument(options.UpdateLookup)

	cs, err := me.userCollection.Watch(ctx, pipeline, opt)
	if err != nil {
		cancel()
		return nil, nil, store.Classify(err)
	}

	ch := make(chan *DBUser, 1)
	emit := func() {
		u, err := me.FindUserById(uid)
		if err != nil {
			utils.Log().V(2).Info("user watch read failed")
			u = nil
		}
		select {
		case ch <- u:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- u
		}
	}

	go func() {
		defer close(ch)
		defer cs.Close(context.Background())

		emit()
		for cs.Next(ctx) {
			emit()
		}
	}()

	return ch, cancel, nil
}

// WatchAll re-emits the full normalized user list after every change to
// the collection. Subscription read failures emit an empty list.
func (me *UserService) WatchAll() (<-chan []*DBUser, func(), error) {
	ctx, cancel := context.WithCancel(me.ctx)

	cs, err := me.userCollection.Watch(ctx, mongo.Pipeline{})
	if err != nil {
		cancel()
		return nil, nil, store.Classify(err)
	}

	ch := make(chan []*DBUser, 1)
	emit := func() {
		users, err := me.FindAllUsers()
		if err != nil {
			utils.Log().V(2).Info("directory watch read failed, emitting empty list")
			users = []*DBUser{}
		}
		select {
		case ch <- users:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- users
		}
	}

	go func() {
		defer close(ch)
		defer cs.Close(context.Background())

		emit()
		for cs.Next(ctx) {
			emit()
		}
	}()

	return ch, cancel, nil
}
