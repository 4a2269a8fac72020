package inbox

import (
	"context"
	"time"

	"kawan/store"
	"kawan/utils"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type I_InboxRepo interface {
	Append(uid string, n *Notification) error
	MarkRead(uid string, n *Notification) error
	Clear(uid string) error
	List(uid string) ([]*Notification, error)
	Subscribe(uid string) (<-chan []*Notification, func(), error)
}

type InboxService struct {
	userCollection *mongo.Collection
	ctx            context.Context
}

func NewInboxService(userCollection *mongo.Collection, ctx context.Context) I_InboxRepo {
	return &InboxService{userCollection, ctx}
}

func (me *InboxService) Append(uid string, n *Notification) error {
	Normalize(n)

	query := bson.M{"uid": uid}
	update := bson.M{"$push": bson.M{"notifications": n}}

	res, err := me.userCollection.UpdateOne(me.ctx, query, update)
	if err != nil {
		return store.Classify(err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}

	return nil
}

// MarkRead flips the read flag on the matching entry. Matching prefers the
// surrogate id; tuple matching updates every entry sharing the tuple, as
// there is no uniqueness guarantee for legacy records. Re-marking an
// already-read entry is a no-op, not an error.
func (me *InboxService) MarkRead(uid string, n *Notification) error {
	var filter bson.M
	if n.ID != "" {
		filter = bson.M{"n.id": n.ID}
	} else {
		filter = bson.M{
			"n.type":      n.Type,
			"n.message":   n.Message,
			"n.timestamp": primitive.NewDateTimeFromTime(n.Timestamp),
		}
	}

	query := bson.M{"uid": uid}
	update := bson.M{"$set": bson.M{"notifications.$[n].read": true}}
	opt := options.Update().SetArrayFilters(options.ArrayFilters{
		Filters: []interface{}{filter},
	})

	res, err := me.userCollection.UpdateOne(me.ctx, query, update, opt)
	if err != nil {
		return store.Classify(err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}

	return nil
}

func (me *InboxService) Clear(uid string) error {
	query := bson.M{"uid": uid}
	update := bson.M{"$set": bson.M{"notifications": []*Notification{}}}

	res, err := me.userCollection.UpdateOne(me.ctx, query, update)
	if err != nil {
		return store.Classify(err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}

	return nil
}

func (me *InboxService) List(uid string) ([]*Notification, error) {
	query := bson.M{"uid": uid}
	opt := options.FindOne().SetProjection(bson.M{"notifications": 1})

	var doc struct {
		Notifications []*Notification `bson:"notifications"`
	}
	if err := me.userCollection.FindOne(me.ctx, query, opt).Decode(&doc); err != nil {
		return nil, store.Classify(err)
	}

	for _, n := range doc.Notifications {
		Normalize(n)
	}

	return doc.Notifications, nil
}

// Subscribe delivers the filtered, recency-sorted inbox: one snapshot up
// front, then a fresh list after every change to the user's record until
// the cancel func runs. Read failures surface as an empty list, never as
// an error, so a subscription glitch cannot take the consumer down.
func (me *InboxService) Subscribe(uid string) (<-chan []*Notification, func(), error) {
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

	ch := make(chan []*Notification, 1)
	emit := func() {
		list, err := me.List(uid)
		if err != nil {
			utils.Log().V(2).Info("inbox subscription read failed, emitting empty list")
			list = nil
		}
		visible := FilterVisible(list, time.Now())

		// newest-wins: a slow consumer only ever sees the latest list
		select {
		case ch <- visible:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- visible
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
